package batch

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightninglabs/subrelay/eventlog"
	"github.com/lightninglabs/subrelay/test"
	"github.com/lightninglabs/subrelay/wallet"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// coins converts a whole coin amount.
func coins(n float64) btcutil.Amount {
	return btcutil.Amount(n * btcutil.SatoshiPerBitcoin)
}

func newOutputs(t *testing.T, amounts ...float64) []*wallet.Unspent {
	outputs := make([]*wallet.Unspent, 0, len(amounts))
	for i, amount := range amounts {
		outputs = append(
			outputs, test.NewUnspent(t, byte(i), coins(amount), ""),
		)
	}

	return outputs
}

func newTestPreparer() (*Preparer, *eventlog.Recorder) {
	recorder := &eventlog.Recorder{}

	return NewPreparer(&Config{EventLog: recorder}), recorder
}

// TestPruneNoneQualify asserts that no output below the max amount fails
// without an event.
func TestPruneNoneQualify(t *testing.T) {
	p, recorder := newTestPreparer()

	pending := newOutputs(t, 10000, 10000, 10000, 10000)

	_, err := p.Prune(pending, 1000, 5000)
	require.ErrorIs(t, err, ErrNoQualifyingOutputs)
	require.Zero(t, recorder.Count())
}

// TestPruneSuccess asserts that only outputs not exceeding the max amount
// are kept, in order.
func TestPruneSuccess(t *testing.T) {
	p, recorder := newTestPreparer()

	pending := newOutputs(t, 100, 100, 10000, 10000)

	batch, err := p.Prune(pending, 1000, 5000)
	require.NoError(t, err)
	require.Len(t, batch.Items, 2)
	require.Equal(t, coins(200), batch.Sum)
	require.Equal(t, pending[:2], batch.Items)
	require.Zero(t, recorder.Count())

	// An output equal to the max amount is included, and the sub balance
	// does not bound the batch.
	pending = newOutputs(t, 3000, 10000, 5000)
	batch, err = p.Prune(pending, 1, 5000)
	require.NoError(t, err)
	require.Equal(t, []*wallet.Unspent{pending[0], pending[2]}, batch.Items)
	require.Equal(t, coins(8000), batch.Sum)
}

// TestPruneInvalidParams asserts that every parameter violation writes one
// event.
func TestPruneInvalidParams(t *testing.T) {
	tests := []struct {
		name       string
		pending    int
		subBalance float64
		maxAmount  float64
		err        error
		code       eventlog.Code
	}{
		{
			name:       "no pending",
			subBalance: 1000,
			maxAmount:  5000,
			err:        ErrNoPending,
			code:       CodeNoPending,
		},
		{
			name:       "sub balance nan",
			pending:    4,
			subBalance: math.NaN(),
			maxAmount:  5000,
			err:        ErrInvalidSubBalance,
			code:       CodeInvalidSubBalance,
		},
		{
			name:       "sub balance negative",
			pending:    4,
			subBalance: -1,
			maxAmount:  5000,
			err:        ErrInvalidSubBalance,
			code:       CodeInvalidSubBalance,
		},
		{
			name:       "max amount inf",
			pending:    4,
			subBalance: 1000,
			maxAmount:  math.Inf(1),
			err:        ErrInvalidMaxAmount,
			code:       CodeInvalidMaxAmount,
		},
	}

	for _, tc := range tests {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			p, recorder := newTestPreparer()

			var pending []*wallet.Unspent
			for i := 0; i < tc.pending; i++ {
				pending = append(pending, newOutputs(t, 1)...)
			}

			_, err := p.Prune(pending, tc.subBalance, tc.maxAmount)
			require.ErrorIs(t, err, tc.err)
			require.Equal(
				t, []eventlog.Code{tc.code}, recorder.Codes(),
			)
		})
	}
}

// TestRun covers listing and filtering ahead of pruning.
func TestRun(t *testing.T) {
	ctx := context.Background()

	unconfirmed := test.NewUnspent(t, 10, coins(1), "")
	unconfirmed.Confirmations = 0

	otherAccount := test.NewUnspent(t, 11, coins(1), "")
	otherAccount.Account = "other"

	watchOnly := test.NewUnspent(t, 12, coins(1), "")
	watchOnly.Spendable = false

	ready := test.NewUnspent(t, 13, coins(2), "")
	tooLarge := test.NewUnspent(t, 14, coins(50), "")

	t.Run("list failure", func(t *testing.T) {
		w := &test.MockWallet{}
		w.On("ListUnspent", mock.Anything).Return(
			nil, errors.New("rpc down"),
		)

		recorder := &eventlog.Recorder{}
		p := NewPreparer(&Config{Wallet: w, EventLog: recorder})

		_, err := p.Run(ctx, 1000, 10)
		require.Error(t, err)
		require.Equal(
			t, []eventlog.Code{CodeListUnspentFailed},
			recorder.Codes(),
		)
	})

	t.Run("nothing unspent", func(t *testing.T) {
		w := &test.MockWallet{}
		w.On("ListUnspent", mock.Anything).Return(
			[]*wallet.Unspent{}, nil,
		)

		recorder := &eventlog.Recorder{}
		p := NewPreparer(&Config{Wallet: w, EventLog: recorder})

		_, err := p.Run(ctx, 1000, 10)
		require.ErrorIs(t, err, ErrNoUnspent)
		require.Zero(t, recorder.Count())
	})

	t.Run("filtered", func(t *testing.T) {
		w := &test.MockWallet{}
		w.On("ListUnspent", mock.Anything).Return(
			[]*wallet.Unspent{
				unconfirmed, otherAccount, watchOnly, ready,
				tooLarge,
			}, nil,
		)

		recorder := &eventlog.Recorder{}
		p := NewPreparer(&Config{
			Wallet:           w,
			Account:          "incoming",
			MinConfirmations: 1,
			EventLog:         recorder,
		})

		batch, err := p.Run(ctx, 1000, 10)
		require.NoError(t, err)
		require.Equal(t, []*wallet.Unspent{ready}, batch.Items)
		require.Equal(t, coins(2), batch.Sum)
		require.Zero(t, recorder.Count())
		w.AssertExpectations(t)
	})
}
