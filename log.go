package subrelay

import (
	"fmt"

	"github.com/btcsuite/btclog"
	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/build"
)

// Subsystem defines the sub system name of this package.
const Subsystem = "RLAY"

// log is a logger that is initialized with no output filters.  This means the
// package will not perform any logging by default until the caller requests
// it.
var log btclog.Logger

// The default amount of logging is none.
func init() {
	UseLogger(build.NewSubLogger(Subsystem, nil))
}

// UseLogger uses a specified Logger to output package logging info.  This
// should be used in preference to SetLogWriter if the caller is also using
// btclog.
func UseLogger(logger btclog.Logger) {
	log = logger
}

// CycleLog logs with a short cycle id prefix.
type CycleLog struct {
	// Logger is the underlying based logger.
	Logger btclog.Logger

	// ID identifies the target cycle.
	ID uuid.UUID
}

// Infof formats message according to format specifier and writes to
// log with LevelInfo.
func (c *CycleLog) Infof(format string, params ...interface{}) {
	c.Logger.Infof(
		fmt.Sprintf("%v %s", ShortID(c.ID), format), params...,
	)
}

// Warnf formats message according to format specifier and writes to
// log with LevelWarn.
func (c *CycleLog) Warnf(format string, params ...interface{}) {
	c.Logger.Warnf(
		fmt.Sprintf("%v %s", ShortID(c.ID), format), params...,
	)
}

// Errorf formats message according to format specifier and writes to
// log with LevelError.
func (c *CycleLog) Errorf(format string, params ...interface{}) {
	c.Logger.Errorf(
		fmt.Sprintf("%v %s", ShortID(c.ID), format), params...,
	)
}

// ShortID returns a shortened version of the id suitable for use in
// logging.
func ShortID(id uuid.UUID) string {
	return id.String()[:8]
}
