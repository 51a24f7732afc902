package batch

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightninglabs/subrelay/eventlog"
	"github.com/lightninglabs/subrelay/wallet"
)

// Event codes written by the preparer.
const (
	CodeNoPending         eventlog.Code = "PRE_001"
	CodeInvalidSubBalance eventlog.Code = "PRE_002"
	CodeInvalidMaxAmount  eventlog.Code = "PRE_003"
	CodeListUnspentFailed eventlog.Code = "PRE_004"
)

var (
	// ErrNoPending is returned when pruning is asked for an empty pending
	// list.
	ErrNoPending = errors.New("no pending outputs provided")

	// ErrInvalidSubBalance is returned when the sub balance is not a
	// usable number.
	ErrInvalidSubBalance = errors.New("sub balance is not a valid amount")

	// ErrInvalidMaxAmount is returned when the max amount is not a usable
	// number.
	ErrInvalidMaxAmount = errors.New("max amount is not a valid amount")

	// ErrNoUnspent is returned when the wallet holds no unspent outputs
	// for the relay. It is an expected outcome and not logged.
	ErrNoUnspent = errors.New("no unspent outputs to process")

	// ErrNoQualifyingOutputs is returned when no pending output fits the
	// partner's capacity. It is an expected outcome and not logged.
	ErrNoQualifyingOutputs = errors.New("no pending outputs fit the " +
		"outgoing server's balance")
)

// Batch is the chosen subset of pending outputs and their total.
type Batch struct {
	// Items are the outputs to process, in wallet order.
	Items []*wallet.Unspent

	// Sum is the total amount of Items.
	Sum btcutil.Amount
}

// Config holds the preparer's collaborators and settings.
type Config struct {
	// Wallet lists the unspent outputs.
	Wallet wallet.Client

	// Account is the wallet account whose outputs are relayed. Outputs of
	// other accounts are ignored. Empty accepts every account.
	Account string

	// MinConfirmations is the number of confirmations an output needs
	// before it is relayed.
	MinConfirmations int64

	// EventLog receives one entry per failure.
	EventLog eventlog.Writer
}

// Preparer turns the wallet's unspent outputs into a batch.
type Preparer struct {
	cfg *Config
}

// NewPreparer creates a preparer.
func NewPreparer(cfg *Config) *Preparer {
	return &Preparer{cfg: cfg}
}

func (p *Preparer) eventLog() eventlog.Writer {
	if p.cfg.EventLog == nil {
		return eventlog.Discard
	}

	return p.cfg.EventLog
}

// Pending lists the wallet's unspent outputs and keeps the ones the relay
// may spend. An empty wallet returns ErrNoUnspent.
func (p *Preparer) Pending(ctx context.Context) ([]*wallet.Unspent, error) {
	unspent, err := p.cfg.Wallet.ListUnspent(ctx)
	if err != nil {
		p.eventLog().WriteLog(
			CodeListUnspentFailed, "failed to list unspent",
			eventlog.Fields{"error": err},
		)

		return nil, fmt.Errorf("list unspent: %w", err)
	}

	pending := p.filter(unspent)
	if len(pending) == 0 {
		log.Debugf("None of %d unspent outputs is ready to relay",
			len(unspent))

		return nil, ErrNoUnspent
	}

	return pending, nil
}

// Run lists the pending outputs and prunes them against maxAmount, the
// partner's balance. Both amounts are in whole coins.
func (p *Preparer) Run(ctx context.Context, subBalance,
	maxAmount float64) (*Batch, error) {

	pending, err := p.Pending(ctx)
	if err != nil {
		return nil, err
	}

	return p.Prune(pending, subBalance, maxAmount)
}

// filter keeps spendable outputs of the relay account with enough
// confirmations.
func (p *Preparer) filter(unspent []*wallet.Unspent) []*wallet.Unspent {
	pending := make([]*wallet.Unspent, 0, len(unspent))
	for _, output := range unspent {
		if !output.Spendable {
			continue
		}

		if p.cfg.Account != "" && output.Account != p.cfg.Account {
			continue
		}

		if output.Confirmations < p.cfg.MinConfirmations {
			continue
		}

		pending = append(pending, output)
	}

	return pending
}

// Prune validates its parameters and returns every pending output whose
// amount does not exceed maxAmount, in the original order. An output larger
// than the partner can absorb is skipped entirely, outputs are never split.
//
// NOTE: subBalance is validated but does not bound the batch.
func (p *Preparer) Prune(pending []*wallet.Unspent, subBalance,
	maxAmount float64) (*Batch, error) {

	if len(pending) == 0 {
		p.eventLog().WriteLog(
			CodeNoPending, "no pending outputs provided", nil,
		)

		return nil, ErrNoPending
	}

	if _, err := parseAmount(subBalance); err != nil {
		p.eventLog().WriteLog(
			CodeInvalidSubBalance, "sub balance is not a number",
			eventlog.Fields{"subBalance": subBalance, "error": err},
		)

		return nil, ErrInvalidSubBalance
	}

	max, err := parseAmount(maxAmount)
	if err != nil {
		p.eventLog().WriteLog(
			CodeInvalidMaxAmount, "max amount is not a number",
			eventlog.Fields{"maxAmount": maxAmount, "error": err},
		)

		return nil, ErrInvalidMaxAmount
	}

	batch := &Batch{}
	for _, output := range pending {
		if output.Amount > max {
			continue
		}

		batch.Items = append(batch.Items, output)
		batch.Sum += output.Amount
	}

	if len(batch.Items) == 0 {
		return nil, ErrNoQualifyingOutputs
	}

	log.Debugf("Prepared batch of %d/%d outputs totalling %v",
		len(batch.Items), len(pending), batch.Sum)

	return batch, nil
}

// parseAmount converts a coin amount, rejecting NaN, infinities and
// negative values.
func parseAmount(f float64) (btcutil.Amount, error) {
	amount, err := btcutil.NewAmount(f)
	if err != nil {
		return 0, err
	}

	if amount < 0 {
		return 0, fmt.Errorf("negative amount %v", f)
	}

	return amount, nil
}
