package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/policyworks/quotaledger/internal/core"
)

// DefaultExpiry is how long a lock token is honoured after its row was last
// written. A request round trip times out after 60s; 30s more covers clock skew.
const DefaultExpiry = 90 * time.Second

// ErrMalformedRecord is returned by Decode for stored data that is not a
// ledger record.
var ErrMalformedRecord = errors.New("malformed ledger record")

// wireRecord is the stored JSON form. Pointer fields distinguish a missing
// field from a zero one.
type wireRecord struct {
	Tm *float64 `json:"tm"`
	Hr *int64   `json:"hr"`
	Dy *int64   `json:"dy"`
	Lk *string  `json:"lk,omitempty"`
}

// Codec converts records to and from their stored text form.
type Codec struct {
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
	// Location decides calendar dates and hours. Defaults to time.Local.
	Location *time.Location
	// Expiry is the lock lifetime. Defaults to DefaultExpiry.
	Expiry time.Duration
}

func (c Codec) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c Codec) location() *time.Location {
	if c.Location != nil {
		return c.Location
	}
	return time.Local
}

func (c Codec) expiry() time.Duration {
	if c.Expiry > 0 {
		return c.Expiry
	}
	return DefaultExpiry
}

// Encode renders rec as a text value. The lock field is omitted when
// lockToken is empty.
func (c Codec) Encode(rec core.QuotaRecord, lockToken string) (core.Value, error) {
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = c.now()
	}
	tm := float64(ts.Unix()) + float64(ts.Nanosecond())/float64(time.Second)
	hr := int64(rec.HourCount)
	dy := int64(rec.DayCount)
	wire := wireRecord{Tm: &tm, Hr: &hr, Dy: &dy}
	if lockToken != "" {
		wire.Lk = &lockToken
	}
	data, err := json.Marshal(wire)
	if err != nil {
		return core.Value{}, fmt.Errorf("encode ledger record: %w", err)
	}
	return core.TextValue(string(data)), nil
}

// Decode parses a stored value and applies rollover and lock expiry against
// the codec's clock. A new calendar date resets both counts; a new hour on the
// same date resets the hour count. A lock older than the expiry is dropped.
func (c Codec) Decode(v core.Value) (core.QuotaRecord, error) {
	if v.Kind != core.KindText {
		return core.QuotaRecord{}, fmt.Errorf("%w: %s value", ErrMalformedRecord, v.Kind)
	}

	var wire wireRecord
	if err := json.Unmarshal([]byte(v.Text), &wire); err != nil {
		return core.QuotaRecord{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if wire.Tm == nil || wire.Hr == nil || wire.Dy == nil {
		return core.QuotaRecord{}, fmt.Errorf("%w: missing field", ErrMalformedRecord)
	}
	if *wire.Hr < 0 || *wire.Dy < 0 {
		return core.QuotaRecord{}, fmt.Errorf("%w: negative count", ErrMalformedRecord)
	}
	if math.IsNaN(*wire.Tm) || math.IsInf(*wire.Tm, 0) {
		return core.QuotaRecord{}, fmt.Errorf("%w: invalid timestamp", ErrMalformedRecord)
	}

	stored := fromEpochSeconds(*wire.Tm)
	rec := core.QuotaRecord{
		Timestamp: stored,
		HourCount: int(*wire.Hr),
		DayCount:  int(*wire.Dy),
	}

	now := c.now()
	loc := c.location()
	then, current := stored.In(loc), now.In(loc)
	if !sameDate(then, current) {
		rec.HourCount = 0
		rec.DayCount = 0
	} else if then.Hour() != current.Hour() {
		rec.HourCount = 0
	}

	if wire.Lk != nil && !stored.Add(c.expiry()).Before(now) {
		rec.LockToken = *wire.Lk
	}

	return rec, nil
}

func fromEpochSeconds(tm float64) time.Time {
	sec, frac := math.Modf(tm)
	return time.Unix(int64(sec), int64(frac*float64(time.Second))).UTC()
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
