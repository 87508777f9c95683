// Package secret wraps sensitive strings so they cannot leak through
// logs or serialized output by accident.
package secret

import "log/slog"

// Secret holds a sensitive string. Every formatted or marshaled form is
// redacted; use Get to read the real value.
type Secret struct {
	value string
}

// New wraps a value in a Secret.
func New(value string) Secret {
	return Secret{value: value}
}

// Get returns the wrapped value.
func (s Secret) Get() string {
	return s.value
}

func (s Secret) String() string {
	return "[REDACTED]"
}

// GoString keeps %#v from leaking the value.
func (s Secret) GoString() string {
	return "secret.Secret{}"
}

// LogValue implements slog.LogValuer.
func (s Secret) LogValue() slog.Value {
	return slog.StringValue("[REDACTED]")
}

// UnmarshalText lets envconfig populate a Secret from the environment.
func (s *Secret) UnmarshalText(b []byte) error {
	s.value = string(b)
	return nil
}

// MarshalJSON always writes the redacted form.
func (s Secret) MarshalJSON() ([]byte, error) {
	return []byte(`"[REDACTED]"`), nil
}
