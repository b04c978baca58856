//go:build windows

package cli

import "os"

// interruptSignals stop a running command. Windows only delivers Ctrl+C.
func interruptSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}
