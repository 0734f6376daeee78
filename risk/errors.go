package risk

import (
	"errors"
	"fmt"
)

// ErrNoSnapshot is reported by account based checks before the first
// snapshot has been observed.
var ErrNoSnapshot = errors.New("no account snapshot observed yet")

// ConfigError is an invalid protection parameter. It is returned before any
// evaluation takes place; the engine never substitutes a default.
type ConfigError struct {
	Check  Check
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Check == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s.%s: %s", e.Check, e.Field, e.Reason)
}

func configErr(check Check, field, format string, args ...any) *ConfigError {
	return &ConfigError{Check: check, Field: field, Reason: fmt.Sprintf(format, args...)}
}

// DataUnavailableError means there was not enough candle history to run a
// check or compute a stop.
type DataUnavailableError struct {
	Check  Check
	Symbol string
	Need   int
	Have   int
}

func (e *DataUnavailableError) Error() string {
	return fmt.Sprintf("%s: insufficient history for %s: need %d candles, have %d",
		e.Check, e.Symbol, e.Need, e.Have)
}

// IsConfigError reports whether err carries a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsDataUnavailable reports whether err carries a DataUnavailableError.
func IsDataUnavailable(err error) bool {
	var de *DataUnavailableError
	return errors.As(err, &de)
}
