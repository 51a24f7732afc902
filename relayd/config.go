package relayd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightninglabs/subrelay/processor"
	"github.com/lightninglabs/subrelay/selector"
	"github.com/lightningnetwork/lnd/lncfg"
)

var (
	// RelayDirBase is the default main directory where relayd stores its
	// data.
	RelayDirBase = btcutil.AppDataDir("relayd", false)

	defaultConfigFilename = "relayd.conf"
	defaultLogLevel       = "info"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "relayd.log"
	defaultKeyDirname     = "keys"

	defaultLogDir     = filepath.Join(RelayDirBase, defaultLogDirname)
	defaultKeyDir     = filepath.Join(RelayDirBase, defaultKeyDirname)
	defaultConfigFile = filepath.Join(RelayDirBase, defaultConfigFilename)

	defaultMaxLogFiles      = 3
	defaultMaxLogFileSize   = 10
	defaultInterval         = 10 * time.Minute
	defaultMinConfirmations = int64(1)
	defaultAccount          = "incoming"

	// defaultCiphertextLen is the base64 ciphertext length of a 2048 bit
	// RSA key.
	defaultCiphertextLen = 344

	// minInterval is the shortest cycle interval accepted.
	minInterval = 10 * time.Second
)

var (
	// ErrNoSecret is returned when no handshake secret is configured.
	ErrNoSecret = errors.New("no handshake secret configured")

	// ErrNoOutgoing is returned when no outgoing server is configured.
	ErrNoOutgoing = errors.New("no outgoing servers configured")
)

type walletConfig struct {
	Host    string `long:"host" description:"Wallet JSON-RPC address host:port"`
	User    string `long:"user" description:"Wallet RPC user name"`
	Pass    string `long:"pass" description:"Wallet RPC password"`
	TLSPath string `long:"tlspath" description:"Path to the wallet's RPC TLS certificate, TLS is disabled if empty"`
}

type Config struct {
	ShowVersion bool `long:"version" description:"Display version information and exit"`

	RelayDir       string `long:"relaydir" description:"The directory for all of relayd's data."`
	ConfigFile     string `long:"configfile" description:"Path to configuration file."`
	DataDir        string `long:"datadir" description:"Directory for the cycle database."`
	LogDir         string `long:"logdir" description:"Directory to log output."`
	MaxLogFiles    int    `long:"maxlogfiles" description:"Maximum logfiles to keep (0 for no rotation)"`
	MaxLogFileSize int    `long:"maxlogfilesize" description:"Maximum logfile size in MB"`

	DebugLevel string `long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`

	Interval      time.Duration `long:"interval" description:"Time between two relay cycles"`
	MetricsListen string        `long:"metricslisten" description:"Address to serve prometheus metrics on, disabled if empty"`
	Instance      string        `long:"instance" description:"Name of this relay added to the user agent"`

	Outgoing         []string      `long:"outgoing" description:"Outgoing server host[:port], may be repeated"`
	Secret           string        `long:"secret" description:"Secret embedded in the test payload sent to outgoing servers"`
	CiphertextLen    int           `long:"ciphertextlen" description:"Base64 ciphertext length an outgoing server's key must produce"`
	HandshakeTimeout time.Duration `long:"handshaketimeout" description:"Timeout of a single request to an outgoing server"`
	NumAddresses     int           `long:"numaddresses" description:"Number of addresses requested during the handshake"`
	ClientCert       string        `long:"clientcert" description:"TLS certificate presented to outgoing servers"`
	ClientKey        string        `long:"clientkey" description:"Key of the TLS client certificate"`

	Account          string `long:"account" description:"Wallet account holding the incoming outputs"`
	MinConfirmations int64  `long:"minconfs" description:"Minimum confirmations of a relayed output"`
	MaxConcurrency   int    `long:"maxconcurrency" description:"Number of transactions forwarded in parallel"`

	KeyDir       string `long:"keydir" description:"Directory holding the relay's RSA key pair"`
	GenerateKeys bool   `long:"generatekeys" description:"Generate the key pair if it is missing"`

	Parent *walletConfig `group:"parent" namespace:"parent"`
	Sub    *walletConfig `group:"sub" namespace:"sub"`

	// cluster is the parsed outgoing server list.
	cluster []selector.Candidate
}

// DefaultConfig returns all default values for the Config struct.
func DefaultConfig() Config {
	return Config{
		RelayDir:         RelayDirBase,
		ConfigFile:       defaultConfigFile,
		DataDir:          RelayDirBase,
		LogDir:           defaultLogDir,
		MaxLogFiles:      defaultMaxLogFiles,
		MaxLogFileSize:   defaultMaxLogFileSize,
		DebugLevel:       defaultLogLevel,
		Interval:         defaultInterval,
		CiphertextLen:    defaultCiphertextLen,
		HandshakeTimeout: selector.DefaultHandshakeTimeout,
		NumAddresses:     selector.DefaultNumAddresses,
		Account:          defaultAccount,
		MinConfirmations: defaultMinConfirmations,
		MaxConcurrency:   processor.DefaultMaxConcurrency,
		KeyDir:           defaultKeyDir,
		Parent: &walletConfig{
			Host: "localhost:44444",
		},
		Sub: &walletConfig{
			Host: "localhost:33333",
		},
	}
}

// Validate cleans up paths in the config provided and validates it.
func Validate(cfg *Config) error {
	// Cleanup any paths before we use them.
	cfg.RelayDir = lncfg.CleanAndExpandPath(cfg.RelayDir)
	cfg.DataDir = lncfg.CleanAndExpandPath(cfg.DataDir)
	cfg.LogDir = lncfg.CleanAndExpandPath(cfg.LogDir)
	cfg.KeyDir = lncfg.CleanAndExpandPath(cfg.KeyDir)
	cfg.ClientCert = lncfg.CleanAndExpandPath(cfg.ClientCert)
	cfg.ClientKey = lncfg.CleanAndExpandPath(cfg.ClientKey)
	cfg.Parent.TLSPath = lncfg.CleanAndExpandPath(cfg.Parent.TLSPath)
	cfg.Sub.TLSPath = lncfg.CleanAndExpandPath(cfg.Sub.TLSPath)

	// The relay directory overrides the log, data and key directories, so
	// refuse to guess which one the user meant if both are set.
	logDirSet := cfg.LogDir != defaultLogDir
	dataDirSet := cfg.DataDir != RelayDirBase
	keyDirSet := cfg.KeyDir != defaultKeyDir
	relayDirSet := cfg.RelayDir != RelayDirBase

	if relayDirSet {
		switch {
		case logDirSet:
			return fmt.Errorf("relaydir overwrites logdir, please " +
				"only set one value")

		case dataDirSet:
			return fmt.Errorf("relaydir overwrites datadir, please " +
				"only set one value")

		case keyDirSet:
			return fmt.Errorf("relaydir overwrites keydir, please " +
				"only set one value")
		}

		cfg.DataDir = cfg.RelayDir
		cfg.LogDir = filepath.Join(cfg.RelayDir, defaultLogDirname)
		cfg.KeyDir = filepath.Join(cfg.RelayDir, defaultKeyDirname)
	}

	if cfg.Secret == "" {
		return ErrNoSecret
	}

	if len(cfg.Outgoing) == 0 {
		return ErrNoOutgoing
	}

	cluster, err := selector.ParseCluster(cfg.Outgoing)
	if err != nil {
		return fmt.Errorf("invalid outgoing server: %w", err)
	}
	cfg.cluster = cluster

	if cfg.Interval < minInterval {
		return fmt.Errorf("interval must be at least %v", minInterval)
	}

	if cfg.CiphertextLen <= 0 {
		return fmt.Errorf("invalid ciphertext length %d",
			cfg.CiphertextLen)
	}

	if cfg.MaxConcurrency < 1 {
		return fmt.Errorf("maxconcurrency must be at least 1")
	}

	if cfg.MinConfirmations < 0 {
		return fmt.Errorf("minconfs must not be negative")
	}

	if (cfg.ClientCert == "") != (cfg.ClientKey == "") {
		return fmt.Errorf("clientcert and clientkey must be set " +
			"together")
	}

	if cfg.Parent.Host == "" || cfg.Sub.Host == "" {
		return fmt.Errorf("both parent and sub wallet hosts are " +
			"required")
	}

	// If either of these directories do not exist, create them.
	for _, dir := range []string{cfg.DataDir, cfg.LogDir, cfg.KeyDir} {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return err
		}
	}

	return nil
}
