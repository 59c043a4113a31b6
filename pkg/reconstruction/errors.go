package reconstruction

import "fmt"

// ConfigurationError reports an invalid strategy name or parameter value.
// It is raised at configuration time, never deferred to a run, and the
// setter that produced it leaves the prior configuration untouched.
type ConfigurationError struct {
	// Param is the configuration parameter being set
	Param string

	// Value is the rejected value
	Value string

	// Allowed describes the accepted values
	Allowed string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s %q, allowed: %s", e.Param, e.Value, e.Allowed)
}
