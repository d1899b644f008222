package ledger

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// RippleEpochOffset is the number of seconds between 1970-01-01 and the
// Ripple epoch, 2000-01-01T00:00:00Z.
const RippleEpochOffset int64 = 946684800

// 2^63, the first float64 that no longer fits in an int64.
const int64Bound = float64(1 << 63)

// Timestamp is a converted close time. Valid is false when the source
// transaction carried no date.
type Timestamp struct {
	Time  time.Time
	Valid bool
}

// Ptr returns nil for an absent timestamp.
func (t Timestamp) Ptr() *time.Time {
	if !t.Valid {
		return nil
	}
	value := t.Time
	return &value
}

// FromRippleTime converts seconds since the Ripple epoch to UTC.
func FromRippleTime(seconds int64) time.Time {
	return time.Unix(seconds+RippleEpochOffset, 0).UTC()
}

// CloseTime converts an optional ledger date.
func CloseTime(raw *int64) Timestamp {
	if raw == nil {
		return Timestamp{}
	}
	return Timestamp{Time: FromRippleTime(*raw), Valid: true}
}

// IntAmount is an issued amount truncated to an integer. Defaulted marks a
// value that could not be parsed and was replaced by zero.
type IntAmount struct {
	Value     int64
	Defaulted bool
}

// ParseAmount parses a decimal amount and truncates it toward zero, so
// "123.99" becomes 123. Unparseable, non-finite and out-of-range values
// yield zero with Defaulted set.
func ParseAmount(value string) IntAmount {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return IntAmount{Defaulted: true}
	}
	truncated := math.Trunc(parsed)
	if truncated < -int64Bound || truncated >= int64Bound {
		return IntAmount{Defaulted: true}
	}
	return IntAmount{Value: int64(truncated)}
}
