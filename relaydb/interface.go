package relaydb

import (
	"context"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/google/uuid"
)

// CycleOutcome describes how a relay cycle ended.
type CycleOutcome uint8

const (
	// OutcomeProcessed is a cycle that ran a batch through the processor.
	OutcomeProcessed CycleOutcome = iota

	// OutcomeIdle is a cycle that found nothing to relay.
	OutcomeIdle

	// OutcomeReturnAll is a cycle that found no usable partner, every
	// pending output goes back to its sender.
	OutcomeReturnAll

	// OutcomeFailed is a cycle aborted by an error.
	OutcomeFailed
)

// String returns a human readable outcome.
func (o CycleOutcome) String() string {
	switch o {
	case OutcomeProcessed:
		return "Processed"

	case OutcomeIdle:
		return "Idle"

	case OutcomeReturnAll:
		return "ReturnAll"

	case OutcomeFailed:
		return "Failed"

	default:
		return "Unknown"
	}
}

// OutPoint references an incoming output and its amount.
type OutPoint struct {
	// TxID is the hash of the transaction holding the output.
	TxID chainhash.Hash

	// Vout is the output index.
	Vout uint32

	// Amount is the value of the output.
	Amount btcutil.Amount
}

// Forward is an incoming output that was forwarded to the partner.
type Forward struct {
	OutPoint

	// SubAddress is the partner address that received the amount.
	SubAddress string

	// ForwardTxID is the id of the forwarding transaction.
	ForwardTxID string
}

// Cycle is the record of a single relay cycle.
type Cycle struct {
	// ID uniquely identifies the cycle.
	ID uuid.UUID

	// Time is when the cycle started.
	Time time.Time

	// Outcome is how the cycle ended.
	Outcome CycleOutcome

	// Partner is the selected outgoing server, empty if none was found.
	Partner string

	// PartnerBalance is the balance the partner reported.
	PartnerBalance btcutil.Amount

	// EscrowEncrypted is the partner address list encrypted under the
	// local key.
	EscrowEncrypted string

	// Forwarded are the outputs that reached the partner.
	Forwarded []Forward

	// Returned are the outputs that go back to their senders.
	Returned []OutPoint

	// Error is the reason a failed cycle was aborted.
	Error string
}

// Store persists relay cycles.
type Store interface {
	// AddCycle stores a finished cycle.
	AddCycle(ctx context.Context, cycle *Cycle) error

	// FetchCycles returns all stored cycles, oldest first.
	FetchCycles(ctx context.Context) ([]*Cycle, error)

	// FetchCycle returns the cycle with the given id.
	FetchCycle(ctx context.Context, id uuid.UUID) (*Cycle, error)

	// Close closes the underlying database.
	Close() error
}
