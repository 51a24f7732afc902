package relayd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lightninglabs/subrelay"
	"github.com/lightninglabs/subrelay/batch"
	"github.com/lightninglabs/subrelay/eventlog"
	"github.com/lightninglabs/subrelay/keys"
	"github.com/lightninglabs/subrelay/metrics"
	"github.com/lightninglabs/subrelay/processor"
	"github.com/lightninglabs/subrelay/relaydb"
	"github.com/lightninglabs/subrelay/selector"
	"github.com/lightninglabs/subrelay/wallet"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// metricsReadHeaderTimeout bounds the time a metrics client may take
	// to send its request headers.
	metricsReadHeaderTimeout = 5 * time.Second

	// shutdownTimeout bounds the graceful shutdown of the metrics server.
	shutdownTimeout = 5 * time.Second
)

// Daemon is the relay daemon. It owns the wallet connections, the cycle
// database and the optional metrics server.
type Daemon struct {
	cfg *Config

	// ErrChan is an error channel that users of the Daemon struct must use
	// to detect runtime errors and also whether a shutdown is fully
	// completed.
	ErrChan chan error

	parentWallet *wallet.RPCClient
	subWallet    *wallet.RPCClient
	store        *relaydb.BoltStore
	relay        *subrelay.Relay

	metricsServer   *http.Server
	metricsListener net.Listener

	mainCtxCancel func()
	wg            sync.WaitGroup
	stopOnce      sync.Once
}

// New creates a new instance of the relay daemon.
func New(cfg *Config) *Daemon {
	return &Daemon{
		cfg:     cfg,
		ErrChan: make(chan error, 1),
	}
}

// Start connects to the wallets, opens the database and starts the relay
// loop and the metrics server. Start returns once everything is running,
// runtime errors are reported on ErrChan.
func (d *Daemon) Start() error {
	if err := d.initialize(); err != nil {
		d.closeResources()

		return err
	}

	mainCtx, cancel := context.WithCancel(context.Background())
	d.mainCtxCancel = cancel

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		log.Infof("Starting relay, cycle interval %v", d.cfg.Interval)
		if err := d.relay.Run(mainCtx); err != nil {
			d.reportErr(fmt.Errorf("relay stopped: %w", err))
		}
	}()

	if d.metricsListener != nil {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()

			log.Infof("Metrics server listening on %v",
				d.metricsListener.Addr())

			err := d.metricsServer.Serve(d.metricsListener)
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				d.reportErr(fmt.Errorf("metrics server: %w", err))
			}
		}()
	}

	return nil
}

// Stop shuts the daemon down. It returns immediately, the final result is
// sent on ErrChan once shutdown is complete.
func (d *Daemon) Stop() {
	go d.stop()
}

func (d *Daemon) stop() {
	d.stopOnce.Do(func() {
		log.Infof("Stopping relayd")

		if d.mainCtxCancel != nil {
			d.mainCtxCancel()
		}

		if d.metricsServer != nil {
			ctx, cancel := context.WithTimeout(
				context.Background(), shutdownTimeout,
			)
			err := d.metricsServer.Shutdown(ctx)
			cancel()
			if err != nil {
				log.Errorf("Unable to stop metrics server: %v",
					err)
			}
		}

		d.wg.Wait()

		err := d.closeResources()

		log.Infof("Relayd stopped")

		d.reportErr(err)
	})
}

// reportErr sends err on ErrChan without blocking if an error is already
// pending.
func (d *Daemon) reportErr(err error) {
	select {
	case d.ErrChan <- err:
	default:
	}
}

// closeResources releases everything initialize opened.
func (d *Daemon) closeResources() error {
	var err error

	if d.store != nil {
		err = d.store.Close()
		d.store = nil
	}

	if d.parentWallet != nil {
		d.parentWallet.Stop()
		d.parentWallet = nil
	}

	if d.subWallet != nil {
		d.subWallet.Stop()
		d.subWallet = nil
	}

	if d.metricsListener != nil {
		_ = d.metricsListener.Close()
	}

	return err
}

// initialize creates all relay components from the configuration.
func (d *Daemon) initialize() error {
	var err error

	d.parentWallet, err = newWalletClient(d.cfg.Parent)
	if err != nil {
		return fmt.Errorf("parent wallet: %w", err)
	}

	d.subWallet, err = newWalletClient(d.cfg.Sub)
	if err != nil {
		return fmt.Errorf("sub wallet: %w", err)
	}

	// Make sure the key pair exists before the first cycle. The selector
	// reloads it from the custodian on every run.
	custodian := keys.NewFileCustodian(d.cfg.KeyDir, d.cfg.GenerateKeys)
	keyFiles, err := custodian.GetEncryptionKeys(context.Background())
	if err != nil {
		return err
	}

	localKey, _, err := keys.LoadPair(keyFiles)
	if err != nil {
		return fmt.Errorf("unable to load key pair: %w", err)
	}

	transportCfg := selector.HTTPTransportConfig{
		Timeout:      d.cfg.HandshakeTimeout,
		NumAddresses: d.cfg.NumAddresses,
		UserAgent:    subrelay.UserAgent(d.cfg.Instance),
	}
	if d.cfg.ClientCert != "" {
		cert, err := tls.LoadX509KeyPair(
			d.cfg.ClientCert, d.cfg.ClientKey,
		)
		if err != nil {
			return fmt.Errorf("unable to load client certificate: "+
				"%w", err)
		}
		transportCfg.ClientCert = &cert
	}

	m := metrics.Default()
	eventLog := m.EventWriter(&eventlog.Logger{Logger: eventLogger()})

	sel := selector.New(&selector.Config{
		Cluster:               d.cfg.cluster,
		Secret:                d.cfg.Secret,
		ExpectedCiphertextLen: d.cfg.CiphertextLen,
		Wallet:                d.parentWallet,
		Keys:                  custodian,
		Transport:             selector.NewHTTPTransport(transportCfg),
		EventLog:              eventLog,
	})

	preparer := batch.NewPreparer(&batch.Config{
		Wallet:           d.parentWallet,
		Account:          d.cfg.Account,
		MinConfirmations: d.cfg.MinConfirmations,
		EventLog:         eventLog,
	})

	proc := processor.New(&processor.Config{
		ParentWallet:          d.parentWallet,
		SubWallet:             d.subWallet,
		LocalKey:              localKey,
		ExpectedCiphertextLen: d.cfg.CiphertextLen,
		MaxConcurrency:        d.cfg.MaxConcurrency,
		EventLog:              eventLog,
	})

	log.Infof("Opening cycle database in %v", d.cfg.DataDir)
	d.store, err = relaydb.NewBoltStore(d.cfg.DataDir)
	if err != nil {
		return err
	}

	d.relay = subrelay.NewRelay(&subrelay.Config{
		Selector:  sel,
		Preparer:  preparer,
		Processor: proc,
		SubWallet: d.subWallet,
		Store:     d.store,
		Metrics:   m,
		Ticker:    ticker.New(d.cfg.Interval),
	})

	if d.cfg.MetricsListen == "" {
		log.Infof("Metrics server disabled")

		return nil
	}

	d.metricsListener, err = net.Listen("tcp", d.cfg.MetricsListen)
	if err != nil {
		return fmt.Errorf("metrics server unable to listen on %v: %w",
			d.cfg.MetricsListen, err)
	}

	d.metricsServer = &http.Server{
		Handler:           newMetricsRouter(prometheus.DefaultGatherer),
		ReadHeaderTimeout: metricsReadHeaderTimeout,
	}

	return nil
}

// newWalletClient connects to a wallet described by cfg.
func newWalletClient(cfg *walletConfig) (*wallet.RPCClient, error) {
	rpcCfg := &wallet.RPCConfig{
		Host: cfg.Host,
		User: cfg.User,
		Pass: cfg.Pass,
	}

	if cfg.TLSPath != "" {
		cert, err := os.ReadFile(cfg.TLSPath)
		if err != nil {
			return nil, fmt.Errorf("unable to read tls cert: %w",
				err)
		}
		rpcCfg.TLSCert = cert
	}

	return wallet.NewRPCClient(rpcCfg)
}

// newMetricsRouter serves the prometheus metrics and a liveness probe.
func newMetricsRouter(gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()

	r.Method(
		http.MethodGet, "/metrics",
		promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}),
	)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
}
