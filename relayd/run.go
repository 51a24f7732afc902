package relayd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jessevdk/go-flags"
	"github.com/lightninglabs/subrelay"
	"github.com/lightningnetwork/lnd/build"
	"github.com/lightningnetwork/lnd/lncfg"
	"github.com/lightningnetwork/lnd/signal"
)

// Run parses the configuration and runs the daemon until it is interrupted
// or fails.
func Run() error {
	config := DefaultConfig()

	// Parse command line flags.
	parser := flags.NewParser(&config, flags.Default)

	_, err := parser.Parse()
	var flagErr *flags.Error
	if errors.As(err, &flagErr) && flagErr.Type == flags.ErrHelp {
		return nil
	}
	if err != nil {
		return err
	}

	// Parse ini file.
	relayDir := lncfg.CleanAndExpandPath(config.RelayDir)
	configFile := getConfigPath(config, relayDir)

	if err := flags.IniParse(configFile, &config); err != nil {
		// A missing config file is fine, a malformed one is not.
		var iniErr *flags.IniError
		if errors.As(err, &iniErr) {
			return err
		}
	}

	// Parse command line flags again to restore flags overwritten by ini
	// parse.
	_, err = parser.Parse()
	if err != nil {
		return err
	}

	// Show the version and exit if the version flag was specified.
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	if config.ShowVersion {
		fmt.Println(appName, "version", subrelay.Version())
		os.Exit(0)
	}

	// Start listening for signal interrupts before the loggers are set up
	// so a critical log line can request shutdown.
	shutdownInterceptor, err := signal.Intercept()
	if err != nil {
		return err
	}

	logConfig := build.DefaultLogConfig()
	logWriter := build.NewRotatingLogWriter()
	SetupLoggers(
		build.NewSubLoggerManager(
			build.NewDefaultLogHandlers(logConfig, logWriter)...,
		),
		shutdownInterceptor,
	)

	// Special show command to list supported subsystems and exit.
	if config.DebugLevel == "show" {
		fmt.Printf("Supported subsystems: %v\n",
			logMgr.SupportedSubsystems())
		os.Exit(0)
	}

	// Validate our config before we proceed.
	if err := Validate(&config); err != nil {
		return err
	}

	// Initialize logging at the default logging level.
	logConfig.File.MaxLogFiles = config.MaxLogFiles
	logConfig.File.MaxLogFileSize = config.MaxLogFileSize
	err = logWriter.InitLogRotator(
		logConfig.File,
		filepath.Join(config.LogDir, defaultLogFilename),
	)
	if err != nil {
		return err
	}
	defer logWriter.Close()

	err = build.ParseAndSetDebugLevels(config.DebugLevel, logMgr)
	if err != nil {
		return err
	}

	log.Infof("Version: %v", subrelay.Version())

	daemon := New(&config)
	if err := daemon.Start(); err != nil {
		return err
	}

	select {
	case <-shutdownInterceptor.ShutdownChannel():
		log.Infof("Received SIGINT (Ctrl+C).")
		daemon.Stop()

		// The above stop will return immediately. But we'll be
		// notified on the error channel once the process is complete.
		return <-daemon.ErrChan

	case err := <-daemon.ErrChan:
		daemon.Stop()
		<-daemon.ErrChan

		return err
	}
}

// getConfigPath gets our config path based on the values that are set in our
// config.
func getConfigPath(cfg Config, relayDir string) string {
	// If the config file path provided by the user is set, then we just
	// use this value.
	if cfg.ConfigFile != defaultConfigFile {
		return lncfg.CleanAndExpandPath(cfg.ConfigFile)
	}

	// If the user has set a relay directory that is different to the
	// default we will use it as the location of our config file.
	if relayDir != RelayDirBase {
		return filepath.Join(relayDir, defaultConfigFilename)
	}

	return defaultConfigFile
}
