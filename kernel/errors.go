package kernel

import (
	"fmt"
	"strings"

	"github.com/exascience/accel/device"
)

// A CompileError reports that the kernel for a key could not be built.
// The error is cached: later requests for the same key return the same
// CompileError without building again.
type CompileError struct {
	Key Key
	// Source is the complete generated source that was submitted.
	Source string
	// Options are the build options that were used.
	Options string
	// Logs are the per-device build logs, if the build reached the
	// device compiler.
	Logs []device.BuildLog
	Err  error
}

func (err *CompileError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "kernel: compile of %v failed: %v", err.Key, err.Err)
	for _, log := range err.Logs {
		if log.Status == device.BuildFailure {
			fmt.Fprintf(&b, "\n--- %v (device %v, options %q)\n%v", log.DeviceName, log.Device, log.Options, log.Log)
		}
	}
	return b.String()
}

func (err *CompileError) Unwrap() error { return err.Err }
