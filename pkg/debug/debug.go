// This file contains the '--debug' command line flag shared by all the
// commands.

package debug

import (
	"log"

	"github.com/spf13/pflag"
)

var enabled bool

// AddFlag adds the debug flag to the given set of command line flags.
func AddFlag(flags *pflag.FlagSet) {
	flags.BoolVar(
		&enabled,
		"debug",
		false,
		"Enable debug mode.",
	)
}

// Enabled returns a boolean flag that indicates if the debug mode is enabled.
func Enabled() bool {
	return enabled
}

// ConfigureLogger widens the given logger's output when the debug mode is
// enabled, adding microsecond timestamps and the logging call site.
func ConfigureLogger(logger *log.Logger) {
	if enabled {
		logger.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	}
}
