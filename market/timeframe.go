package market

import (
	"fmt"
	"time"
)

// Timeframe is a MetaTrader style candle period name such as "M5" or "H1".
type Timeframe string

const (
	M1  Timeframe = "M1"
	M5  Timeframe = "M5"
	M15 Timeframe = "M15"
	M30 Timeframe = "M30"
	H1  Timeframe = "H1"
	H4  Timeframe = "H4"
	D1  Timeframe = "D1"
	W1  Timeframe = "W1"
	MN1 Timeframe = "MN1"
)

// Seconds returns the nominal length of the timeframe.
func (tf Timeframe) Seconds() (int32, error) {
	switch tf {
	case M1:
		return 60, nil
	case M5:
		return 300, nil
	case M15:
		return 900, nil
	case M30:
		return 1800, nil
	case H1:
		return 3600, nil
	case H4:
		return 14400, nil
	case D1:
		return 86400, nil
	case W1:
		return 604800, nil
	case MN1:
		return 2592000, nil
	default:
		return 0, fmt.Errorf("unsupported timeframe string: %s", tf)
	}
}

// Duration is Seconds as a time.Duration.
func (tf Timeframe) Duration() (time.Duration, error) {
	sec, err := tf.Seconds()
	if err != nil {
		return 0, err
	}
	return time.Duration(sec) * time.Second, nil
}

// Truncate returns the open time of the candle of this timeframe containing t.
// MN1 truncates to the first of the calendar month, everything else to a
// multiple of the period since the unix epoch (W1 is not Monday aligned).
func (tf Timeframe) Truncate(t time.Time) (time.Time, error) {
	if tf == MN1 {
		y, m, _ := t.Date()
		return time.Date(y, m, 1, 0, 0, 0, 0, t.Location()), nil
	}
	d, err := tf.Duration()
	if err != nil {
		return time.Time{}, err
	}
	return t.Truncate(d), nil
}

// ParseTimeframe accepts a timeframe name or a length in seconds.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if _, err := tf.Seconds(); err == nil {
		return tf, nil
	}
	var sec int32
	if _, err := fmt.Sscanf(s, "%d", &sec); err == nil {
		return FromSeconds(sec)
	}
	return "", fmt.Errorf("unsupported timeframe string: %s", s)
}

// FromSeconds maps a period length back to its name.
func FromSeconds(sec int32) (Timeframe, error) {
	if sec <= 0 {
		return "", fmt.Errorf("invalid timeframe seconds: %d", sec)
	}
	for _, tf := range []Timeframe{M1, M5, M15, M30, H1, H4, D1, W1, MN1} {
		if s, _ := tf.Seconds(); s == sec {
			return tf, nil
		}
	}
	return "", fmt.Errorf("cannot map timeframe: %d seconds", sec)
}
