// internal/server/handlers/query.go

package handlers

import (
	"fmt"
	"net/url"
	"strconv"
	"time"
)

const maxLimit = 500

// parseTime accepts RFC 3339 timestamps or plain dates
func parseTime(values url.Values, key string) (time.Time, error) {
	raw := values.Get(key)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return t.UTC(), nil
}

func parseRange(values url.Values) (time.Time, time.Time, error) {
	from, err := parseTime(values, "from")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := parseTime(values, "to")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("from must be before to")
	}
	return from, to, nil
}

func parseLimit(values url.Values) (int, error) {
	raw := values.Get("limit")
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, fmt.Errorf("invalid limit: %q", raw)
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit, nil
}
