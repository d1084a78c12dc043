package device

import (
	"fmt"
	"strings"
)

// A BuildError is returned by Runtime.Build when the source fails to
// build for at least one device. It carries the logs of all devices.
type BuildError struct {
	Label string
	Logs  []BuildLog
}

func (err *BuildError) Error() string {
	var failed []string
	for _, log := range err.Logs {
		if log.Status == BuildFailure {
			failed = append(failed, log.DeviceName)
		}
	}
	msg := fmt.Sprintf("device: build of %v failed on %v", err.Label, strings.Join(failed, ", "))
	for _, log := range err.Logs {
		if log.Status == BuildFailure {
			if first, _, _ := strings.Cut(strings.TrimSpace(log.Log), "\n"); first != "" {
				msg += ": " + first
			}
			break
		}
	}
	return msg
}

// A ResourceExhaustionError is returned when a device cannot satisfy an
// allocation of global or local memory. The request is not retried.
type ResourceExhaustionError struct {
	Device    string
	Resource  string
	Requested int64
	Available int64
}

func (err *ResourceExhaustionError) Error() string {
	return fmt.Sprintf("device: %v out of %v: requested %v bytes, %v available",
		err.Device, err.Resource, err.Requested, err.Available)
}

// A LaunchError is returned when a kernel fails while executing.
type LaunchError struct {
	Kernel string
	Group  int
	Err    error
}

func (err *LaunchError) Error() string {
	return fmt.Sprintf("device: kernel %v failed in work-group %v: %v", err.Kernel, err.Group, err.Err)
}

func (err *LaunchError) Unwrap() error {
	return err.Err
}
