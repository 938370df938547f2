package model

import (
	"fmt"
	"strings"
	"time"
)

// LocalTime formats as "YYYY-MM-DD HH:MM:SS" and accepts the timestamp
// shapes the backend emits (RFC 3339, or ISO 8601 without a zone).
type LocalTime time.Time

const timeFormat = "2006-01-02 15:04:05"

var parseLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	timeFormat,
}

// MarshalJSON implements the json.Marshaler interface.
func (t LocalTime) MarshalJSON() ([]byte, error) {
	if time.Time(t).IsZero() {
		return []byte("null"), nil
	}
	formatted := fmt.Sprintf("\"%s\"", time.Time(t).Format(timeFormat))
	return []byte(formatted), nil
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (t *LocalTime) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), "\"")
	if s == "" || s == "null" {
		*t = LocalTime(time.Time{})
		return nil
	}
	for _, layout := range parseLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			*t = LocalTime(parsed)
			return nil
		}
	}
	return fmt.Errorf("unrecognized time %q", s)
}

// Time returns the underlying time.Time.
func (t LocalTime) Time() time.Time {
	return time.Time(t)
}
