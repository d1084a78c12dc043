package control

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/exascience/accel/dispatch"
)

// Environment variables read by ApplyEnv.
const (
	EnvDebug              = "ACCEL_DEBUG"
	EnvUseHost            = "ACCEL_USE_HOST"
	EnvRunMode            = "ACCEL_RUN_MODE"
	EnvWGPerComputeUnit   = "ACCEL_WG_PER_CU"
	EnvMultiCoreThreshold = "ACCEL_MULTICORE_THRESHOLD"
	EnvDeviceThreshold    = "ACCEL_DEVICE_THRESHOLD"
	EnvTimeout            = "ACCEL_TIMEOUT"
)

func envLookup(key string) (string, bool) { return os.LookupEnv(key) }

// ApplyEnv configures c from environment variables, looked up with
// lookup. Invalid values are skipped, and reported together in the
// returned error. If ACCEL_DEBUG selects any debug flags and c has no
// logger other than the no-op logger, a development logger is installed
// so that the debug output is visible.
func (c *Control) ApplyEnv(lookup func(key string) (string, bool)) error {
	var errs []error
	invalid := func(key, value string, err error) {
		errs = append(errs, fmt.Errorf("%v=%q: %w", key, value, err))
	}

	if value, ok := lookup(EnvDebug); ok {
		if flags, err := ParseDebugFlags(value); err != nil {
			invalid(EnvDebug, value, err)
		} else {
			c.debug = flags
			if flags != 0 && !c.logger.Core().Enabled(zap.FatalLevel) {
				if logger, err := zap.NewDevelopment(); err == nil {
					c.logger = logger.Named("accel")
				}
			}
		}
	}
	if value, ok := lookup(EnvUseHost); ok {
		if useHost, err := strconv.ParseBool(value); err != nil {
			invalid(EnvUseHost, value, err)
		} else {
			c.useHost = useHost
		}
	}
	if value, ok := lookup(EnvRunMode); ok {
		if mode, err := dispatch.ParseRunMode(value); err != nil {
			invalid(EnvRunMode, value, err)
		} else {
			c.runMode = mode
		}
	}
	if value, ok := lookup(EnvWGPerComputeUnit); ok {
		if n, err := strconv.Atoi(value); err != nil || n < 1 {
			invalid(EnvWGPerComputeUnit, value, errors.New("need a positive integer"))
		} else {
			c.wgPerComputeUnit = n
		}
	}
	t := c.defaultThresholds
	for key, field := range map[string]*int{EnvMultiCoreThreshold: &t.MultiCore, EnvDeviceThreshold: &t.Device} {
		if value, ok := lookup(key); ok {
			if n, err := strconv.Atoi(value); err != nil || n < 0 {
				invalid(key, value, errors.New("need a non-negative integer"))
			} else {
				*field = n
			}
		}
	}
	if t.Device < t.MultiCore {
		errs = append(errs, fmt.Errorf("%v must not be below %v", EnvDeviceThreshold, EnvMultiCoreThreshold))
	} else {
		c.defaultThresholds = t
	}
	if value, ok := lookup(EnvTimeout); ok {
		if timeout, err := time.ParseDuration(value); err != nil {
			invalid(EnvTimeout, value, err)
		} else {
			c.timeout = timeout
		}
	}
	return errors.Join(errs...)
}
