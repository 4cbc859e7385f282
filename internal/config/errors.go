package config

import (
	"errors"
	"fmt"
)

// ConfigError reports bad settings or an unsupported local environment.
// It is always fatal and raised before any fleet operation starts.
type ConfigError struct {
	Field   string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Field == "" {
		return "config: " + msg
	}
	return fmt.Sprintf("config: %s: %s", e.Field, msg)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// IsConfigError reports whether err contains a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

func fieldError(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Message: fmt.Sprintf(format, args...)}
}
