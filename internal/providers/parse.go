package providers

import (
	"strconv"
	"strings"
	"time"
)

// unixUTC converts a unix-seconds timestamp into UTC time.
func unixUTC(ts int64) time.Time {
	return time.Unix(ts, 0).UTC()
}

// parsePrice converts the string-typed prices some providers emit. Returns 0
// on anything unparseable.
func parsePrice(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func floatPtr(v float64) *float64 { return &v }

func intPtr(v int) *int { return &v }
