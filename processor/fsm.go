package processor

import (
	"context"

	"github.com/lightninglabs/subrelay/encryption"
	"github.com/lightninglabs/subrelay/fsm"
	"github.com/lightninglabs/subrelay/wallet"
)

const (
	// defaultObserverSize is the number of transitions cached per
	// transaction.
	defaultObserverSize = 20
)

// States.
var (
	// Decrypting is the state where the carried destination is decrypted
	// with the local key.
	Decrypting = fsm.StateType("Decrypting")

	// Validating is the state where the decrypted destination is checked
	// by the parent wallet.
	Validating = fsm.StateType("Validating")

	// ReEncrypting is the state where the destination is encrypted under
	// the partner's key. It loops onto itself until the ciphertext has the
	// expected length or the attempt ceiling is hit.
	ReEncrypting = fsm.StateType("ReEncrypting")

	// Sending is the state where the transaction amount is forwarded to a
	// partner sub address.
	Sending = fsm.StateType("Sending")

	// Succeeded is the terminal state of a forwarded transaction.
	Succeeded = fsm.StateType("Succeeded")

	// Returned is the terminal state of a transaction that goes back to
	// its sender.
	Returned = fsm.StateType("Returned")
)

// Events.
var (
	// OnStart starts processing a transaction.
	OnStart = fsm.EventType("OnStart")

	// OnDecrypted is sent once the destination was decrypted.
	OnDecrypted = fsm.EventType("OnDecrypted")

	// OnValidated is sent once the destination passed validation.
	OnValidated = fsm.EventType("OnValidated")

	// OnRetry is sent when a re-encryption attempt produced an unusable
	// ciphertext.
	OnRetry = fsm.EventType("OnRetry")

	// OnReEncrypted is sent once the destination was re-encrypted.
	OnReEncrypted = fsm.EventType("OnReEncrypted")

	// OnSent is sent once the wallet forwarded the amount.
	OnSent = fsm.EventType("OnSent")

	// OnFailed is sent by every failing action. The action has already
	// written the failure event.
	OnFailed = fsm.EventType("OnFailed")
)

// TxFSM drives a single transaction through the relay pipeline.
type TxFSM struct {
	*fsm.StateMachine

	cfg *Config

	// partnerKey encrypts the destination for the partner.
	partnerKey encryption.Encrypter

	// tx is the incoming transaction. It is never modified.
	tx *wallet.Unspent

	// claimAddress hands out an outstanding partner sub address.
	claimAddress func(ctx context.Context) (string, error)

	// destination is the decrypted destination address.
	destination string

	// attachment is the destination encrypted under the partner key.
	attachment string

	// attempt counts re-encryption attempts, starting at zero.
	attempt int

	// subAddress is the partner address the amount was sent to.
	subAddress string

	// txid is the id of the forwarding transaction.
	txid string

	observer *fsm.CachedObserver
}

// NewTxFSM creates the state machine of a transaction.
func NewTxFSM(cfg *Config, partnerKey encryption.Encrypter,
	tx *wallet.Unspent,
	claimAddress func(context.Context) (string, error)) *TxFSM {

	f := &TxFSM{
		cfg:          cfg,
		partnerKey:   partnerKey,
		tx:           tx,
		claimAddress: claimAddress,
		observer:     fsm.NewCachedObserver(defaultObserverSize),
	}

	f.StateMachine = fsm.NewStateMachine(f.GetStates())
	f.RegisterObserver(f.observer)

	return f
}

// GetStates returns the transaction state machine definition.
func (f *TxFSM) GetStates() fsm.States {
	return fsm.States{
		fsm.Default: fsm.State{
			Transitions: fsm.Transitions{
				OnStart: Decrypting,
			},
			Action: nil,
		},
		Decrypting: fsm.State{
			Transitions: fsm.Transitions{
				OnDecrypted: Validating,
				OnFailed:    Returned,
			},
			Action: f.DecryptAction,
		},
		Validating: fsm.State{
			Transitions: fsm.Transitions{
				OnValidated: ReEncrypting,
				OnFailed:    Returned,
			},
			Action: f.ValidateAction,
		},
		ReEncrypting: fsm.State{
			Transitions: fsm.Transitions{
				OnRetry:       ReEncrypting,
				OnReEncrypted: Sending,
				OnFailed:      Returned,
			},
			Action: f.ReEncryptAction,
		},
		Sending: fsm.State{
			Transitions: fsm.Transitions{
				OnSent:   Succeeded,
				OnFailed: Returned,
			},
			Action: f.SendAction,
		},
		Succeeded: fsm.State{
			Action: fsm.NoOpAction,
		},
		Returned: fsm.State{
			Action: fsm.NoOpAction,
		},
	}
}

// GetStates returns the transaction state machine definition without any
// bound collaborators. It is used to render the state diagram.
func GetStates() fsm.States {
	return (&TxFSM{}).GetStates()
}

// Process runs the transaction to a terminal state.
func (f *TxFSM) Process(ctx context.Context) error {
	return f.SendEvent(ctx, OnStart, nil)
}

// Succeeded returns true if the transaction was forwarded.
func (f *TxFSM) Succeeded() bool {
	return f.CurrentState() == Succeeded
}

// VisitedStates returns the states the transaction went through.
func (f *TxFSM) VisitedStates() []fsm.StateType {
	return f.observer.VisitedStates()
}

func (f *TxFSM) Debugf(format string, args ...interface{}) {
	log.Debugf(
		"Tx %v:%d: "+format,
		append([]interface{}{f.tx.TxID, f.tx.Vout}, args...)...,
	)
}

func (f *TxFSM) Infof(format string, args ...interface{}) {
	log.Infof(
		"Tx %v:%d: "+format,
		append([]interface{}{f.tx.TxID, f.tx.Vout}, args...)...,
	)
}
