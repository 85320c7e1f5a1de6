package db

import (
	"encoding/json"
	"time"
)

// TimeFormat is the canonical timestamp encoding for TEXT columns.
// UTC with nanosecond precision keeps ordering stable across dialects.
const TimeFormat = "2006-01-02 15:04:05.000000000"

// FormatTime encodes a timestamp for storage. Zero times encode as "".
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimeFormat)
}

// ParseTime decodes a stored timestamp. "" decodes to the zero time.
func ParseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(TimeFormat, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// encodeList JSON-encodes a string slice for a TEXT column.
func encodeList(list []string) string {
	if len(list) == 0 {
		return "[]"
	}
	data, err := json.Marshal(list)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// decodeList decodes a JSON-encoded string slice column.
func decodeList(s string) []string {
	if s == "" || s == "[]" {
		return nil
	}
	var list []string
	if err := json.Unmarshal([]byte(s), &list); err != nil {
		return nil
	}
	return list
}

// boolToInt encodes a bool for an INTEGER column.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
