package orchestra

import "fmt"

// ConfigurationError reports an unrecoverable setup problem, such as a
// request for an unknown engine type. It is fatal to the operation that
// produced it; callers detect it with errors.As.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return e.Message
}

// newConfigurationError formats a configuration error.
func newConfigurationError(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Message: fmt.Sprintf(format, args...)}
}
