// Package gps models the loosely-typed GPS objects returned by GPServer.
//
// The upstream API gives no schema guarantees: numbers arrive as JSON numbers
// or strings, booleans as bools, 0/1, or "on"/"off", and the capture time as
// either epoch seconds or a "YYYY-MM-DD HH:MM:SS" string. Records stay as
// maps until validation and transformation pin their meaning down.
package gps

import (
	"strconv"
	"strings"
	"time"
)

// Record is one GPS object as received from GPServer.
type Record map[string]any

// DateTimeLayout is the date-time string format GPServer uses for dt_server.
const DateTimeLayout = "2006-01-02 15:04:05"

// Has reports whether the field is present (possibly null or empty).
func (r Record) Has(field string) bool {
	_, ok := r[field]
	return ok
}

// String returns the field coerced to a string, trimmed. Numbers are
// formatted compactly; absent or null fields return "".
func (r Record) String(field string) string {
	v, ok := r[field]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strings.TrimSpace(strconv.FormatFloat(s, 'f', -1, 64))
	case bool:
		return strconv.FormatBool(s)
	default:
		return ""
	}
}

// Float returns the field as a float64. ok is false when the field is absent,
// null, or not numeric (a numeric string counts as numeric).
func (r Record) Float(field string) (float64, bool) {
	v, ok := r[field]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	case bool:
		return 0, false
	default:
		return 0, false
	}
}

// FloatOr returns the field as a float64, or def when absent or non-numeric.
func (r Record) FloatOr(field string, def float64) float64 {
	if f, ok := r.Float(field); ok {
		return f
	}
	return def
}

// Empty reports whether the field is absent, null, or blank after trimming.
// A numeric zero is not empty.
func (r Record) Empty(field string) bool {
	v, ok := r[field]
	if !ok || v == nil {
		return true
	}
	if s, isStr := v.(string); isStr {
		return strings.TrimSpace(s) == ""
	}
	return false
}

// IMEI returns the raw device identifier string.
func (r Record) IMEI() string { return r.String("imei") }

// DigitsOnly strips every non-digit character from s.
func DigitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, c := range s {
		if c >= '0' && c <= '9' {
			b.WriteRune(c)
		}
	}
	return b.String()
}

// CaptureTime parses the dt_server field. Numeric values are epoch seconds
// in UTC; strings are civil date-times in loc (no zone shift applied).
// ok is false when the field is absent or unparseable either way.
func (r Record) CaptureTime(loc *time.Location) (time.Time, bool) {
	v, ok := r["dt_server"]
	if !ok || v == nil {
		return time.Time{}, false
	}
	if f, isNum := r.Float("dt_server"); isNum {
		// Reject non-positive epochs; GPServer never reports them legitimately.
		if f <= 0 {
			return time.Time{}, false
		}
		return time.Unix(int64(f), 0).UTC(), true
	}
	s := r.String("dt_server")
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(DateTimeLayout, s, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// CustomFields returns the custom_fields collection as records, if present.
// GPServer encodes it as an array of {name, value} objects.
func (r Record) CustomFields() []Record {
	v, ok := r["custom_fields"]
	if !ok {
		return nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]Record, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, Record(m))
		}
	}
	return out
}
