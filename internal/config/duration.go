package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseDuration parses TTL strings of the form "<number><unit>" where unit is
// one of s, m, h, d, w ("15m", "7d"). A bare number is seconds. Malformed
// input is an error so the process fails at boot instead of running with a
// silently defaulted TTL.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}

	unit := time.Second
	num := s
	switch s[len(s)-1] {
	case 's':
		num = s[:len(s)-1]
	case 'm':
		unit = time.Minute
		num = s[:len(s)-1]
	case 'h':
		unit = time.Hour
		num = s[:len(s)-1]
	case 'd':
		unit = 24 * time.Hour
		num = s[:len(s)-1]
	case 'w':
		unit = 7 * 24 * time.Hour
		num = s[:len(s)-1]
	}

	n, err := strconv.Atoi(num)
	if err != nil {
		return 0, fmt.Errorf("malformed duration %q", s)
	}
	if n <= 0 {
		return 0, fmt.Errorf("duration %q must be positive", s)
	}

	return time.Duration(n) * unit, nil
}
