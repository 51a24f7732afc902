package relayd

import (
	"github.com/btcsuite/btclog/v2"
	"github.com/lightninglabs/subrelay"
	"github.com/lightninglabs/subrelay/batch"
	"github.com/lightninglabs/subrelay/fsm"
	"github.com/lightninglabs/subrelay/keys"
	"github.com/lightninglabs/subrelay/processor"
	"github.com/lightninglabs/subrelay/relaydb"
	"github.com/lightninglabs/subrelay/selector"
	"github.com/lightninglabs/subrelay/wallet"
	"github.com/lightningnetwork/lnd"
	"github.com/lightningnetwork/lnd/build"
	"github.com/lightningnetwork/lnd/signal"
)

const (
	Subsystem = "RLYD"

	// EventSubsystem is the subsystem the coded failure events are
	// written to.
	EventSubsystem = "EVNT"
)

var (
	logMgr      *build.SubLoggerManager
	log         btclog.Logger
	interceptor signal.Interceptor
)

// The package loggers exist but write nowhere until Run attaches handlers.
func init() {
	SetupLoggers(build.NewSubLoggerManager(), signal.Interceptor{})
}

// SetupLoggers initializes all package-global logger variables.
func SetupLoggers(root *build.SubLoggerManager, intercept signal.Interceptor) {
	genLogger := genSubLogger(root, intercept)

	logMgr = root
	log = build.NewSubLogger(Subsystem, genLogger)
	interceptor = intercept

	lnd.SetSubLogger(root, Subsystem, log)
	lnd.AddV1SubLogger(
		root, subrelay.Subsystem, intercept, subrelay.UseLogger,
	)
	lnd.AddV1SubLogger(
		root, selector.Subsystem, intercept, selector.UseLogger,
	)
	lnd.AddV1SubLogger(root, batch.Subsystem, intercept, batch.UseLogger)
	lnd.AddV1SubLogger(
		root, processor.Subsystem, intercept, processor.UseLogger,
	)
	lnd.AddV1SubLogger(
		root, relaydb.Subsystem, intercept, relaydb.UseLogger,
	)
	lnd.AddV1SubLogger(root, wallet.Subsystem, intercept, wallet.UseLogger)
	lnd.AddV1SubLogger(root, keys.Subsystem, intercept, keys.UseLogger)
	lnd.AddV1SubLogger(root, fsm.Subsystem, intercept, fsm.UseLogger)
	lnd.AddSubLogger(root, EventSubsystem, intercept)
}

// eventLogger returns the logger the coded failure events are written to.
func eventLogger() btclog.Logger {
	return logMgr.SubLoggers()[EventSubsystem]
}

// genSubLogger creates a logger for a subsystem. We provide an instance of
// a signal.Interceptor to be able to shutdown in the case of a critical error.
func genSubLogger(root *build.SubLoggerManager,
	interceptor signal.Interceptor) func(string) btclog.Logger {

	// Create a shutdown function which will request shutdown from our
	// interceptor if it is listening.
	shutdown := func() {
		if !interceptor.Listening() {
			return
		}

		interceptor.RequestShutdown()
	}

	// Return a function which will create a sublogger from our root
	// logger without shutdown fn.
	return func(tag string) btclog.Logger {
		return root.GenSubLogger(tag, shutdown)
	}
}
