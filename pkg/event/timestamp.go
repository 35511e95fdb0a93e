package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrUnparseableTimestamp is returned when a timestamp cannot be normalized.
var ErrUnparseableTimestamp = errors.New("unparseable timestamp")

// MillisThreshold separates epoch seconds from epoch milliseconds. Numeric values
// strictly greater than the threshold are milliseconds (anything after 2001-09-09 in
// ms); values at or below it are seconds.
const MillisThreshold int64 = 1_000_000_000_000

// Kind tags which representation a Timestamp holds.
type Kind int

const (
	// KindUnset means no timestamp was present.
	KindUnset Kind = iota

	// KindNumeric is an integer epoch value, seconds or milliseconds.
	KindNumeric

	// KindString is an ISO-8601 / RFC 3339 string.
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindNumeric:
		return "numeric"
	case KindString:
		return "string"
	default:
		return "unset"
	}
}

// Timestamp is the tagged union of timestamp representations the API emits.
type Timestamp struct {
	kind    Kind
	numeric int64
	text    string
}

// FromEpoch returns an epoch-valued Timestamp.
func FromEpoch(v int64) Timestamp {
	return Timestamp{kind: KindNumeric, numeric: v}
}

// FromString returns a string-valued Timestamp.
func FromString(s string) Timestamp {
	return Timestamp{kind: KindString, text: s}
}

// Kind reports the representation held.
func (t Timestamp) Kind() Kind {
	return t.kind
}

// UnmarshalJSON accepts a JSON number or string.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = Timestamp{}
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode timestamp: %w", err)
		}
		*t = FromString(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decode timestamp: %w", err)
	}
	if v, err := n.Int64(); err == nil {
		*t = FromEpoch(v)
		return nil
	}
	f, err := n.Float64()
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return fmt.Errorf("%w: %s", ErrUnparseableTimestamp, string(data))
	}
	*t = FromEpoch(int64(f))
	return nil
}

// MarshalJSON writes the timestamp in its original representation.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	switch t.kind {
	case KindNumeric:
		return []byte(strconv.FormatInt(t.numeric, 10)), nil
	case KindString:
		return json.Marshal(t.text)
	default:
		return []byte("null"), nil
	}
}

// Normalize resolves the timestamp to a UTC instant. Every representation of the same
// instant normalizes to the identical value.
func (t Timestamp) Normalize() (time.Time, error) {
	switch t.kind {
	case KindNumeric:
		if t.numeric > MillisThreshold {
			return time.UnixMilli(t.numeric).UTC(), nil
		}
		return time.Unix(t.numeric, 0).UTC(), nil
	case KindString:
		return parseISO(t.text)
	default:
		return time.Time{}, fmt.Errorf("%w: missing", ErrUnparseableTimestamp)
	}
}

// isoLayouts are tried in order for string timestamps.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

func parseISO(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range isoLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrUnparseableTimestamp, s)
}
