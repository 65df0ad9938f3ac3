package core

import (
	"context"
	"fmt"
	"strconv"
)

// ValueKind tags which column of a stored value is populated.
type ValueKind int

const (
	KindText ValueKind = iota
	KindInteger
)

func (k ValueKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindInteger:
		return "integer"
	default:
		return "unknown"
	}
}

// Value is a stored value: either UTF-8 text or an integer. Whichever kind was
// written is the kind read back.
type Value struct {
	Kind    ValueKind
	Text    string
	Integer int64
}

// TextValue returns a text-kinded value.
func TextValue(s string) Value {
	return Value{Kind: KindText, Text: s}
}

// IntegerValue returns an integer-kinded value.
func IntegerValue(i int64) Value {
	return Value{Kind: KindInteger, Integer: i}
}

// Equal reports whether both values have the same kind and content.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	if v.Kind == KindInteger {
		return v.Integer == other.Integer
	}
	return v.Text == other.Text
}

func (v Value) String() string {
	if v.Kind == KindInteger {
		return strconv.FormatInt(v.Integer, 10)
	}
	return v.Text
}

// GoString keeps the kind visible in debug output.
func (v Value) GoString() string {
	return fmt.Sprintf("core.Value{%s: %q}", v.Kind, v.String())
}

// Entry is a stored key with its value.
type Entry struct {
	Key   string `json:"key"`
	Value Value  `json:"value"`
}

// Backend is a string-keyed store of text or integer values.
type Backend interface {
	Get(ctx context.Context, key string) (Value, bool, error)
	Set(ctx context.Context, key string, value Value) error
	Remove(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Close() error
}

// Swapper is implemented by backends that can replace a value atomically.
//
// CompareAndSwap stores next only if the current value equals *old, or if the
// key is absent when old is nil. It reports whether the write happened.
type Swapper interface {
	CompareAndSwap(ctx context.Context, key string, old *Value, next Value) (bool, error)
}
