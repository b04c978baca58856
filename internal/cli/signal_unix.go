//go:build !windows

package cli

import (
	"os"
	"syscall"
)

// interruptSignals stop a running command.
func interruptSignals() []os.Signal {
	return []os.Signal{os.Interrupt, syscall.SIGTERM}
}
