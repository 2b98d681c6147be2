package state

import (
	"database/sql"
	"encoding/json"
	"time"
)

// TimeLayout is fixed width so that lexical order of stored timestamps is
// chronological order.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime accepts TimeLayout as well as RFC 3339 and SQLite's
// datetime('now') form. Unparseable input yields the zero time.
func ParseTime(v string) time.Time {
	for _, layout := range []string{TimeLayout, time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func ParseNullTime(v sql.NullString) *time.Time {
	if !v.Valid || v.String == "" {
		return nil
	}
	t := ParseTime(v.String)
	if t.IsZero() {
		return nil
	}
	return &t
}

// EncodeMap encodes a metadata document; nil encodes as "{}".
func EncodeMap(v map[string]any) (string, error) {
	if v == nil {
		return "{}", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeMap never fails: empty or malformed documents decode to an empty map.
func DecodeMap(v string) map[string]any {
	out := map[string]any{}
	if v == "" {
		return out
	}
	if err := json.Unmarshal([]byte(v), &out); err != nil || out == nil {
		return map[string]any{}
	}
	return out
}

func NullString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func StringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func NullInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func Int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}
