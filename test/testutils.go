package test

import (
	"errors"
	"os"
	"runtime/pprof"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightninglabs/subrelay/wallet"
)

var (
	// Timeout is the default timeout when tests wait for something to
	// happen.
	Timeout = time.Second * 5

	// ErrTimeout is returned on timeout.
	ErrTimeout = errors.New("test timeout")
)

// NewUnspent deterministically creates an unspent output for testing.
func NewUnspent(t *testing.T, nr byte, amount btcutil.Amount,
	anonDestination string) *wallet.Unspent {

	t.Helper()

	var txid chainhash.Hash
	txid[0] = nr

	return &wallet.Unspent{
		TxID:            txid,
		Vout:            uint32(nr),
		Address:         "incoming-address",
		Account:         "incoming",
		Amount:          amount,
		Confirmations:   6,
		Spendable:       true,
		AnonDestination: anonDestination,
	}
}

// DumpGoroutines dumps all currently running goroutines.
func DumpGoroutines() {
	_ = pprof.Lookup("goroutine").WriteTo(os.Stdout, 1)
}
