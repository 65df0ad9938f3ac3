// Package rules implements approval rules that a host evaluates per request.
// Quota rules keep their counts in a ledger; the others are stateless.
package rules

import (
	"context"
	"errors"
)

// RequestType names the operation a request asks approval for.
type RequestType string

// ProfileInfo identifies the caller.
type ProfileInfo struct {
	ID    []byte
	Words []string
}

// Request is one approval request.
type Request struct {
	Type     RequestType
	DeviceID []byte
	Profile  *ProfileInfo
}

// Rule decides whether a request is approved.
type Rule interface {
	// Name is the registered rule type, e.g. "per-profile-throttle-rule".
	Name() string
	// ID identifies this configured instance.
	ID() string
	ApproveRequest(ctx context.Context, req Request) (bool, error)
}

// QuotaRule is a Rule that charges callers against a stored quota.
//
// After ApproveRequest returns true the host must call UseQuota for the same
// caller to charge the request and release the row.
type QuotaRule interface {
	Rule
	UseQuota(ctx context.Context, req Request) error
	ClearQuota(ctx context.Context, profile ProfileInfo) error
	AtQuota(ctx context.Context, profile ProfileInfo) (bool, error)
}

var (
	// ErrProtocolViolation means UseQuota found the caller's row held by
	// another owner. The host broke the approve-then-use contract or two
	// hosts share a rule identity; the request must fail.
	ErrProtocolViolation = errors.New("quota row is being handled by another process")

	// ErrInvalidConfig wraps every rule construction failure caused by bad arguments.
	ErrInvalidConfig = errors.New("invalid rule configuration")

	// ErrNoProfile is returned by rules that need a caller profile.
	ErrNoProfile = errors.New("request has no profile")
)
