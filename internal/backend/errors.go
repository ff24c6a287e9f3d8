package backend

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrUnsupported means a backend cannot service a node's configuration (dtype, shape,
// attribute or fused pattern). Factories wrap it with the reason using Unsupportedf.
var ErrUnsupported = errors.New("unsupported by backend")

// Unsupportedf returns an error wrapping ErrUnsupported with a formatted reason.
func Unsupportedf(format string, args ...any) error {
	return errors.Wrapf(ErrUnsupported, format, args...)
}

// IsUnsupported reports whether err signals an unsupported configuration.
func IsUnsupported(err error) bool {
	return errors.Is(err, ErrUnsupported)
}

// ConfigurationError is a construction-time mistake: a duplicate registration in a
// table, an empty backend list, or an invalid engine configuration. It is never
// recoverable by falling back.
type ConfigurationError struct {
	Reason string
}

// Error implements error.
func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

// Configurationf builds a *ConfigurationError.
func Configurationf(format string, args ...any) error {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

// IsConfigurationError reports whether err is, or wraps, a *ConfigurationError.
func IsConfigurationError(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}
