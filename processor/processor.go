package processor

import (
	"context"
	"errors"
	"fmt"

	"github.com/lightninglabs/subrelay/batch"
	"github.com/lightninglabs/subrelay/encryption"
	"github.com/lightninglabs/subrelay/eventlog"
	"github.com/lightninglabs/subrelay/wallet"
	"golang.org/x/sync/errgroup"
)

// Event codes written by the processor.
const (
	CodeInvalidParams      eventlog.Code = "PROC_001"
	CodeDecryptFailed      eventlog.Code = "PROC_002"
	CodeInvalidDestination eventlog.Code = "PROC_003"
	CodeValidateFailed     eventlog.Code = "PROC_004"
	CodeReEncryptExhausted eventlog.Code = "PROC_005"
	CodeNoSubAddress       eventlog.Code = "PROC_006"
	CodeSendFailed         eventlog.Code = "PROC_007"
	CodeSendRejected       eventlog.Code = "PROC_008"
)

const (
	// DefaultMaxReEncryptAttempts is the highest re-encryption attempt
	// number that may still succeed. Attempts are counted from zero.
	DefaultMaxReEncryptAttempts = 10

	// DefaultMaxConcurrency is the number of transactions processed at
	// the same time.
	DefaultMaxConcurrency = 1
)

var (
	// ErrInvalidParams is returned when the processor is misconfigured or
	// called without a batch or partner key.
	ErrInvalidParams = errors.New("invalid processor parameters")

	// errNoSubAddress is returned when every partner sub address is used
	// or claimed.
	errNoSubAddress = errors.New("no outstanding sub address")
)

// Config holds the processor's collaborators and settings.
type Config struct {
	// ParentWallet validates the decrypted destinations.
	ParentWallet wallet.Client

	// SubWallet forwards the amounts to the partner.
	SubWallet wallet.Client

	// LocalKey decrypts the destinations carried by the incoming
	// transactions.
	LocalKey encryption.Decrypter

	// ExpectedCiphertextLen is the length of a valid partner ciphertext.
	ExpectedCiphertextLen int

	// MaxReEncryptAttempts is the highest attempt number that may still
	// produce a ciphertext.
	MaxReEncryptAttempts int

	// MaxConcurrency bounds the number of transactions in flight.
	MaxConcurrency int

	// EventLog receives one entry per failure.
	EventLog eventlog.Writer
}

func (c *Config) eventLog() eventlog.Writer {
	if c.EventLog == nil {
		return eventlog.Discard
	}

	return c.EventLog
}

// Request is a single batch run.
type Request struct {
	// Batch holds the transactions to forward.
	Batch *batch.Batch

	// PartnerKey is the selected partner's public key.
	PartnerKey encryption.Encrypter

	// SubAddresses are the partner addresses handed out for this run.
	// Each one receives at most one transaction.
	SubAddresses []string
}

// Forward is a successfully forwarded transaction.
type Forward struct {
	// Tx is the incoming transaction.
	Tx *wallet.Unspent

	// SubAddress is the partner address the amount was sent to.
	SubAddress string

	// TxID is the id of the forwarding transaction.
	TxID string
}

// Result holds the outcome of a batch run. Every transaction of the batch
// shows up in exactly one of Successful and ToReturn, in batch order.
type Result struct {
	// Successful are the forwarded transactions.
	Successful []*Forward

	// ToReturn are the transactions that go back to their senders.
	ToReturn []*wallet.Unspent

	// SubAddresses are the partner addresses left unused.
	SubAddresses []string
}

// Processor forwards batches of incoming transactions to the partner.
type Processor struct {
	cfg *Config
}

// New creates a processor, filling in defaults for unset limits.
func New(cfg *Config) *Processor {
	c := *cfg
	if c.MaxReEncryptAttempts <= 0 {
		c.MaxReEncryptAttempts = DefaultMaxReEncryptAttempts
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = DefaultMaxConcurrency
	}

	return &Processor{cfg: &c}
}

// validate checks the configuration and the request.
func (p *Processor) validate(req *Request) error {
	switch {
	case p.cfg.ParentWallet == nil:
		return errors.New("parent wallet missing")

	case p.cfg.SubWallet == nil:
		return errors.New("sub wallet missing")

	case p.cfg.LocalKey == nil:
		return errors.New("local key missing")

	case p.cfg.ExpectedCiphertextLen <= 0:
		return fmt.Errorf("invalid expected ciphertext length %d",
			p.cfg.ExpectedCiphertextLen)

	case req == nil || req.Batch == nil:
		return errors.New("batch missing")

	case req.PartnerKey == nil:
		return errors.New("partner key missing")
	}

	return nil
}

// Run forwards every transaction of the batch. Transactions are processed
// concurrently, each on its own state machine, while the calling goroutine
// owns the run's bookkeeping: it hands out sub addresses and collects one
// result per transaction. An empty batch completes immediately.
func (p *Processor) Run(ctx context.Context, req *Request) (*Result, error) {
	if err := p.validate(req); err != nil {
		p.cfg.eventLog().WriteLog(
			CodeInvalidParams, "invalid processor parameters",
			eventlog.Fields{"error": err},
		)

		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	items := req.Batch.Items
	state := newRunState(items, req.SubAddresses)
	if len(items) == 0 {
		return state.result(), nil
	}

	var (
		claims   = make(chan chan string)
		results  = make(chan txResult)
		launched = make(chan struct{})
		g        errgroup.Group
	)
	g.SetLimit(p.cfg.MaxConcurrency)

	claim := func(ctx context.Context) (string, error) {
		resp := make(chan string, 1)
		select {
		case claims <- resp:
		case <-ctx.Done():
			return "", ctx.Err()
		}

		addr := <-resp
		if addr == "" {
			return "", errNoSubAddress
		}

		return addr, nil
	}

	go func() {
		defer close(launched)

		for i, tx := range items {
			if ctx.Err() != nil {
				return
			}

			i := i
			f := NewTxFSM(p.cfg, req.PartnerKey, tx, claim)
			g.Go(func() error {
				err := f.Process(ctx)
				if err != nil {
					f.Debugf("Processing stopped: %v", err)
				}

				select {
				case results <- txResult{index: i, fsm: f}:
				case <-ctx.Done():
				}

				return nil
			})
		}
	}()

	wait := func() {
		<-launched
		_ = g.Wait()
	}

	for outstanding := len(items); outstanding > 0; {
		select {
		case resp := <-claims:
			resp <- state.claim()

		case res := <-results:
			state.resolve(res)
			outstanding--

		case <-ctx.Done():
			wait()

			return nil, ctx.Err()
		}
	}
	wait()

	result := state.result()
	log.Infof("Processed batch of %d: %d forwarded, %d to return",
		len(items), len(result.Successful), len(result.ToReturn))

	return result, nil
}

// txResult is the terminal state machine of the transaction at index.
type txResult struct {
	index int
	fsm   *TxFSM
}

// runState is the bookkeeping of a batch run. It is only touched by the
// goroutine executing Run.
type runState struct {
	items []*wallet.Unspent

	// remaining holds the indexes of unresolved transactions.
	remaining map[int]struct{}

	// forwards and returned are indexed by batch position.
	forwards map[int]*Forward
	returned map[int]struct{}

	// subAddresses are the outstanding partner addresses, claimed ones
	// included until they are used or released.
	subAddresses []string
	claimed      map[string]struct{}
}

func newRunState(items []*wallet.Unspent, subAddresses []string) *runState {
	remaining := make(map[int]struct{}, len(items))
	for i := range items {
		remaining[i] = struct{}{}
	}

	return &runState{
		items:        items,
		remaining:    remaining,
		forwards:     make(map[int]*Forward),
		returned:     make(map[int]struct{}),
		subAddresses: uniqueAddresses(subAddresses),
		claimed:      make(map[string]struct{}),
	}
}

// uniqueAddresses copies the addresses, keeping the first occurrence of each
// so that no address can be forwarded to twice.
func uniqueAddresses(addresses []string) []string {
	seen := make(map[string]struct{}, len(addresses))
	unique := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		unique = append(unique, addr)
	}

	return unique
}

// claim returns the first unclaimed sub address, or an empty string if none
// is left.
func (s *runState) claim() string {
	for _, addr := range s.subAddresses {
		if _, ok := s.claimed[addr]; ok {
			continue
		}

		s.claimed[addr] = struct{}{}

		return addr
	}

	return ""
}

// resolve moves a transaction out of the remaining set. A forwarded
// transaction consumes its sub address, any other outcome releases it.
func (s *runState) resolve(res txResult) {
	if _, ok := s.remaining[res.index]; !ok {
		log.Errorf("Transaction %d resolved twice", res.index)
		return
	}
	delete(s.remaining, res.index)

	f := res.fsm
	if f.subAddress != "" {
		delete(s.claimed, f.subAddress)
	}

	if !f.Succeeded() {
		s.returned[res.index] = struct{}{}
		return
	}

	for i, addr := range s.subAddresses {
		if addr == f.subAddress {
			s.subAddresses = append(
				s.subAddresses[:i], s.subAddresses[i+1:]...,
			)
			break
		}
	}

	s.forwards[res.index] = &Forward{
		Tx:         f.tx,
		SubAddress: f.subAddress,
		TxID:       f.txid,
	}
}

// result returns the run outcome. Unresolved transactions are reported as
// to return.
func (s *runState) result() *Result {
	result := &Result{
		Successful:   []*Forward{},
		ToReturn:     []*wallet.Unspent{},
		SubAddresses: append([]string{}, s.subAddresses...),
	}

	for i, tx := range s.items {
		if forward, ok := s.forwards[i]; ok {
			result.Successful = append(result.Successful, forward)
			continue
		}

		_, returned := s.returned[i]
		_, remaining := s.remaining[i]
		if returned || remaining {
			result.ToReturn = append(result.ToReturn, tx)
		}
	}

	return result
}
