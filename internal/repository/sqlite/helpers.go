package sqlite

import (
	"database/sql"
	"time"

	"lanwatch/internal/domain"
)

// nullToString safely converts sql.NullString to string
func nullToString(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// stringToNull safely converts string to sql.NullString
func stringToNull(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// fieldToNull stores a known field value and NULL for unknown or absent
func fieldToNull(f domain.Field[string]) sql.NullString {
	if v, ok := f.Get(); ok {
		return stringToNull(v)
	}
	return sql.NullString{}
}

// timeToUnix stores times as Unix nanoseconds so they sort numerically
func timeToUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func unixToTime(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
