package models

import (
	"fmt"
	"strconv"
	"time"
)

// ParseTimeframe converts a venue interval string such as "1m", "4h" or "1d"
// into its duration. Month intervals have no fixed length and are rejected.
func ParseTimeframe(tf string) (time.Duration, error) {
	if len(tf) < 2 {
		return 0, fmt.Errorf("%w: timeframe %q", ErrUnsupported, tf)
	}
	qty, err := strconv.Atoi(tf[:len(tf)-1])
	if err != nil || qty <= 0 {
		return 0, fmt.Errorf("%w: timeframe %q", ErrUnsupported, tf)
	}

	var unit time.Duration
	switch tf[len(tf)-1] {
	case 's':
		unit = time.Second
	case 'm':
		unit = time.Minute
	case 'h':
		unit = time.Hour
	case 'd':
		unit = 24 * time.Hour
	case 'w':
		unit = 7 * 24 * time.Hour
	default:
		return 0, fmt.Errorf("%w: timeframe %q", ErrUnsupported, tf)
	}
	return time.Duration(qty) * unit, nil
}
