package collector

import "fmt"

// OptionError reports a required collector option that is missing or
// invalid. Constructors return it so misconfiguration surfaces when the
// collector is built rather than on every tick.
type OptionError struct {
	Collector string
	Option    string
	Reason    string
}

func (e *OptionError) Error() string {
	return fmt.Sprintf("collector %s: option %q %s", e.Collector, e.Option, e.Reason)
}

// Kind returns ConfigError.
func (e *OptionError) Kind() ErrorKind { return ConfigError }

func newConfigError(collector, option string) error {
	return &OptionError{Collector: collector, Option: option, Reason: "must be set"}
}
