package model

import "errors"

// InputError reports operator input that failed validation. It belongs to
// the configuration error class: it must be shown to the operator rather
// than swallowed.
type InputError struct {
	Field string
	Value string
	Msg   string
}

func (e *InputError) Error() string {
	return e.Field + ": " + e.Msg + ": " + e.Value
}

// ConfigurationError marks an error that needs operator action, such as a
// missing transport credential.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string { return e.Msg }

// IsConfigurationError reports whether err (or anything it wraps) belongs to
// the configuration error class.
func IsConfigurationError(err error) bool {
	var ie *InputError
	var ce *ConfigurationError
	return errors.As(err, &ie) || errors.As(err, &ce)
}
