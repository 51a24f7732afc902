package subrelay

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lightninglabs/subrelay/batch"
	"github.com/lightninglabs/subrelay/metrics"
	"github.com/lightninglabs/subrelay/processor"
	"github.com/lightninglabs/subrelay/relaydb"
	"github.com/lightninglabs/subrelay/selector"
	"github.com/lightninglabs/subrelay/wallet"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/ticker"
)

// NodeSelector picks a partner and hands out its sub addresses.
type NodeSelector interface {
	// Select runs the handshake against the configured cluster.
	Select(ctx context.Context) (*selector.Outcome, error)

	// RetrieveSubAddresses requests up to n sub addresses from node.
	RetrieveSubAddresses(ctx context.Context, node selector.Candidate,
		n int, subWallet wallet.Client) ([]string, error)
}

// BatchPreparer lists pending outputs and builds batches.
type BatchPreparer interface {
	// Pending returns the outputs the relay may spend.
	Pending(ctx context.Context) ([]*wallet.Unspent, error)

	// Run builds a batch bounded by maxAmount.
	Run(ctx context.Context, subBalance, maxAmount float64) (*batch.Batch,
		error)
}

// BatchProcessor forwards a batch to the partner.
type BatchProcessor interface {
	// Run processes every transaction of the request's batch.
	Run(ctx context.Context, req *processor.Request) (*processor.Result,
		error)
}

// Config holds the components a relay cycle is made of.
type Config struct {
	// Selector picks the partner.
	Selector NodeSelector

	// Preparer builds the batch.
	Preparer BatchPreparer

	// Processor forwards the batch.
	Processor BatchProcessor

	// SubWallet reports the subchain balance and validates the partner's
	// sub addresses.
	SubWallet wallet.Client

	// Store records finished cycles.
	Store relaydb.Store

	// Metrics is updated after every cycle. Optional.
	Metrics *metrics.Metrics

	// Clock stamps the cycles. Defaults to the system clock.
	Clock clock.Clock

	// Ticker triggers the cycles of Run.
	Ticker ticker.Ticker
}

// Relay runs relay cycles: select a partner, prepare a batch, forward it and
// record the outcome.
type Relay struct {
	cfg *Config
}

// NewRelay creates a relay.
func NewRelay(cfg *Config) *Relay {
	c := *cfg
	if c.Clock == nil {
		c.Clock = clock.NewDefaultClock()
	}

	return &Relay{cfg: &c}
}

// Run executes a cycle on every tick until the context is cancelled. Cycle
// failures are recorded and logged but do not stop the loop.
func (r *Relay) Run(ctx context.Context) error {
	if r.cfg.Ticker == nil {
		return errors.New("no cycle ticker configured")
	}

	r.cfg.Ticker.Resume()
	defer r.cfg.Ticker.Stop()

	log.Infof("Relay started")

	for {
		select {
		case <-r.cfg.Ticker.Ticks():
			_, err := r.RunCycle(ctx)
			if err != nil && ctx.Err() == nil {
				log.Errorf("Relay cycle failed: %v", err)
			}

		case <-ctx.Done():
			log.Infof("Relay stopped")

			return nil
		}
	}
}

// RunCycle runs a single relay cycle and stores its record. The record is
// returned even if the cycle failed.
func (r *Relay) RunCycle(ctx context.Context) (*relaydb.Cycle, error) {
	start := r.cfg.Clock.Now()

	cycle := &relaydb.Cycle{
		ID:   uuid.New(),
		Time: start.UTC(),
	}
	clog := &CycleLog{Logger: log, ID: cycle.ID}

	cycleErr := r.runCycle(ctx, cycle, clog)
	if cycleErr != nil {
		cycle.Outcome = relaydb.OutcomeFailed
		cycle.Error = cycleErr.Error()
	}

	clog.Infof("Cycle finished: outcome=%v, forwarded=%d, returned=%d",
		cycle.Outcome, len(cycle.Forwarded), len(cycle.Returned))

	if r.cfg.Metrics != nil {
		r.cfg.Metrics.ObserveCycle(
			cycle.Outcome.String(),
			r.cfg.Clock.Now().Sub(start).Seconds(),
		)
	}

	if r.cfg.Store != nil {
		// The cycle is recorded even if the caller gave up on it.
		err := r.cfg.Store.AddCycle(context.WithoutCancel(ctx), cycle)
		if err != nil {
			clog.Errorf("Unable to store cycle: %v", err)

			if cycleErr == nil {
				return cycle, fmt.Errorf("store cycle: %w", err)
			}
		}
	}

	return cycle, cycleErr
}

func (r *Relay) runCycle(ctx context.Context, cycle *relaydb.Cycle,
	clog *CycleLog) error {

	outcome, err := r.cfg.Selector.Select(ctx)
	if err != nil {
		return fmt.Errorf("select partner: %w", err)
	}

	if !outcome.Selected() {
		return r.returnAll(ctx, cycle, clog)
	}

	cycle.Partner = outcome.Node.String()
	cycle.PartnerBalance = outcome.NavBalance
	cycle.EscrowEncrypted = outcome.EscrowEncrypted

	if r.cfg.Metrics != nil {
		r.cfg.Metrics.SetPartnerBalance(int64(outcome.NavBalance))
	}

	clog.Infof("Selected partner %v with balance %v", cycle.Partner,
		outcome.NavBalance)

	subBalance, err := r.cfg.SubWallet.GetBalance(ctx)
	if err != nil {
		return fmt.Errorf("sub balance: %w", err)
	}

	b, err := r.cfg.Preparer.Run(
		ctx, subBalance.ToBTC(), outcome.NavBalance.ToBTC(),
	)
	switch {
	case errors.Is(err, batch.ErrNoUnspent),
		errors.Is(err, batch.ErrNoQualifyingOutputs):

		clog.Infof("Nothing to relay: %v", err)
		cycle.Outcome = relaydb.OutcomeIdle

		return nil

	case err != nil:
		return fmt.Errorf("prepare batch: %w", err)
	}

	subAddresses, err := r.cfg.Selector.RetrieveSubAddresses(
		ctx, *outcome.Node, len(b.Items), r.cfg.SubWallet,
	)
	if err != nil {
		return fmt.Errorf("retrieve sub addresses: %w", err)
	}

	result, err := r.cfg.Processor.Run(ctx, &processor.Request{
		Batch:        b,
		PartnerKey:   outcome.PublicKey,
		SubAddresses: subAddresses,
	})
	if err != nil {
		return fmt.Errorf("process batch: %w", err)
	}

	cycle.Outcome = relaydb.OutcomeProcessed

	var forwardedSat int64
	for _, f := range result.Successful {
		cycle.Forwarded = append(cycle.Forwarded, relaydb.Forward{
			OutPoint:    outPoint(f.Tx),
			SubAddress:  f.SubAddress,
			ForwardTxID: f.TxID,
		})
		forwardedSat += int64(f.Tx.Amount)
	}

	for _, tx := range result.ToReturn {
		cycle.Returned = append(cycle.Returned, outPoint(tx))
	}

	if r.cfg.Metrics != nil {
		r.cfg.Metrics.ObserveTransactions(
			len(result.Successful), len(result.ToReturn),
			forwardedSat,
		)
	}

	return nil
}

// returnAll records every pending output for return to its sender.
func (r *Relay) returnAll(ctx context.Context, cycle *relaydb.Cycle,
	clog *CycleLog) error {

	cycle.Outcome = relaydb.OutcomeReturnAll

	pending, err := r.cfg.Preparer.Pending(ctx)
	switch {
	case errors.Is(err, batch.ErrNoUnspent):
		clog.Infof("No partner available and nothing pending")

		return nil

	case err != nil:
		return fmt.Errorf("list pending: %w", err)
	}

	for _, tx := range pending {
		cycle.Returned = append(cycle.Returned, outPoint(tx))
	}

	clog.Warnf("No partner available, returning %d outputs to senders",
		len(pending))

	return nil
}

func outPoint(tx *wallet.Unspent) relaydb.OutPoint {
	return relaydb.OutPoint{
		TxID:   tx.TxID,
		Vout:   tx.Vout,
		Amount: tx.Amount,
	}
}
