package subrelay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightninglabs/subrelay/batch"
	"github.com/lightninglabs/subrelay/metrics"
	"github.com/lightninglabs/subrelay/processor"
	"github.com/lightninglabs/subrelay/relaydb"
	"github.com/lightninglabs/subrelay/selector"
	"github.com/lightninglabs/subrelay/test"
	"github.com/lightninglabs/subrelay/wallet"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2018, time.January, 9, 14, 0, 0, 0, time.UTC)

type mockSelector struct {
	mock.Mock
}

func (m *mockSelector) Select(ctx context.Context) (*selector.Outcome,
	error) {

	args := m.Called(ctx)
	outcome, _ := args.Get(0).(*selector.Outcome)

	return outcome, args.Error(1)
}

func (m *mockSelector) RetrieveSubAddresses(ctx context.Context,
	node selector.Candidate, n int, subWallet wallet.Client) ([]string,
	error) {

	args := m.Called(ctx, node, n, subWallet)
	addrs, _ := args.Get(0).([]string)

	return addrs, args.Error(1)
}

type mockPreparer struct {
	mock.Mock
}

func (m *mockPreparer) Pending(ctx context.Context) ([]*wallet.Unspent,
	error) {

	args := m.Called(ctx)
	pending, _ := args.Get(0).([]*wallet.Unspent)

	return pending, args.Error(1)
}

func (m *mockPreparer) Run(ctx context.Context, subBalance,
	maxAmount float64) (*batch.Batch, error) {

	args := m.Called(ctx, subBalance, maxAmount)
	b, _ := args.Get(0).(*batch.Batch)

	return b, args.Error(1)
}

type mockProcessor struct {
	mock.Mock
}

func (m *mockProcessor) Run(ctx context.Context,
	req *processor.Request) (*processor.Result, error) {

	args := m.Called(ctx, req)
	result, _ := args.Get(0).(*processor.Result)

	return result, args.Error(1)
}

type testContext struct {
	selector  *mockSelector
	preparer  *mockPreparer
	processor *mockProcessor
	subWallet *test.MockWallet
	store     *relaydb.BoltStore
	metrics   *metrics.Metrics
	ticker    *ticker.Force
	relay     *Relay
}

func newTestContext(t *testing.T) *testContext {
	store, err := relaydb.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})

	c := &testContext{
		selector:  &mockSelector{},
		preparer:  &mockPreparer{},
		processor: &mockProcessor{},
		subWallet: &test.MockWallet{},
		store:     store,
		metrics:   metrics.New(prometheus.NewRegistry()),
		ticker:    ticker.NewForce(time.Hour),
	}

	c.relay = NewRelay(&Config{
		Selector:  c.selector,
		Preparer:  c.preparer,
		Processor: c.processor,
		SubWallet: c.subWallet,
		Store:     store,
		Metrics:   c.metrics,
		Clock:     clock.NewTestClock(testTime),
		Ticker:    c.ticker,
	})

	return c
}

func (c *testContext) assertStored(t *testing.T, cycle *relaydb.Cycle) {
	t.Helper()

	stored, err := c.store.FetchCycle(context.Background(), cycle.ID)
	require.NoError(t, err)
	require.Equal(t, cycle, stored)
}

// TestRunCycleProcessed covers a cycle that forwards a batch.
func TestRunCycleProcessed(t *testing.T) {
	c := newTestContext(t)
	ctx := context.Background()

	_, partnerKey := test.CreateKey(t)
	node := selector.Candidate{Address: "10.0.0.1", Port: 3000}

	c.selector.On("Select", mock.Anything).Return(&selector.Outcome{
		Node:            &node,
		NavBalance:      btcutil.Amount(50 * btcutil.SatoshiPerBitcoin),
		PublicKey:       partnerKey,
		EscrowEncrypted: "escrow",
	}, nil)

	forwarded := test.NewUnspent(t, 1, 100_000, "dest-1")
	returned := test.NewUnspent(t, 2, 200_000, "dest-2")
	b := &batch.Batch{
		Items: []*wallet.Unspent{forwarded, returned},
		Sum:   300_000,
	}
	c.subWallet.On("GetBalance", mock.Anything).Return(
		btcutil.Amount(2.5*btcutil.SatoshiPerBitcoin), nil,
	)
	c.preparer.On("Run", mock.Anything, 2.5, 50.0).Return(b, nil)

	c.selector.On(
		"RetrieveSubAddresses", mock.Anything, node, 2, c.subWallet,
	).Return([]string{"sub-1", "sub-2"}, nil)

	c.processor.On("Run", mock.Anything, &processor.Request{
		Batch:        b,
		PartnerKey:   partnerKey,
		SubAddresses: []string{"sub-1", "sub-2"},
	}).Return(&processor.Result{
		Successful: []*processor.Forward{{
			Tx:         forwarded,
			SubAddress: "sub-1",
			TxID:       "forward-txid",
		}},
		ToReturn:     []*wallet.Unspent{returned},
		SubAddresses: []string{"sub-2"},
	}, nil)

	cycle, err := c.relay.RunCycle(ctx)
	require.NoError(t, err)

	require.Equal(t, relaydb.OutcomeProcessed, cycle.Outcome)
	require.Equal(t, testTime, cycle.Time)
	require.Equal(t, "10.0.0.1:3000", cycle.Partner)
	require.Equal(
		t, btcutil.Amount(50*btcutil.SatoshiPerBitcoin),
		cycle.PartnerBalance,
	)
	require.Equal(t, "escrow", cycle.EscrowEncrypted)
	require.Equal(t, []relaydb.Forward{{
		OutPoint:    outPoint(forwarded),
		SubAddress:  "sub-1",
		ForwardTxID: "forward-txid",
	}}, cycle.Forwarded)
	require.Equal(t, []relaydb.OutPoint{outPoint(returned)}, cycle.Returned)

	c.assertStored(t, cycle)

	c.selector.AssertExpectations(t)
	c.preparer.AssertExpectations(t)
	c.processor.AssertExpectations(t)
}

// TestRunCycleReturnAll asserts that every pending output is recorded for
// return when no partner is available.
func TestRunCycleReturnAll(t *testing.T) {
	c := newTestContext(t)

	c.selector.On("Select", mock.Anything).Return(
		&selector.Outcome{ReturnAllToSenders: true}, nil,
	)

	pending := []*wallet.Unspent{
		test.NewUnspent(t, 1, 100_000, ""),
		test.NewUnspent(t, 2, 200_000, ""),
	}
	c.preparer.On("Pending", mock.Anything).Return(pending, nil)

	cycle, err := c.relay.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, relaydb.OutcomeReturnAll, cycle.Outcome)
	require.Empty(t, cycle.Partner)
	require.Equal(t, []relaydb.OutPoint{
		outPoint(pending[0]), outPoint(pending[1]),
	}, cycle.Returned)

	c.assertStored(t, cycle)
	c.processor.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

// TestRunCycleIdle asserts that a batch without qualifying outputs ends the
// cycle quietly.
func TestRunCycleIdle(t *testing.T) {
	c := newTestContext(t)

	_, partnerKey := test.CreateKey(t)
	node := selector.Candidate{Address: "10.0.0.1"}

	c.selector.On("Select", mock.Anything).Return(&selector.Outcome{
		Node:       &node,
		NavBalance: 1000,
		PublicKey:  partnerKey,
	}, nil)
	c.subWallet.On("GetBalance", mock.Anything).Return(
		btcutil.Amount(0), nil,
	)
	c.preparer.On("Run", mock.Anything, 0.0, 0.00001).Return(
		nil, batch.ErrNoQualifyingOutputs,
	)

	cycle, err := c.relay.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, relaydb.OutcomeIdle, cycle.Outcome)
	require.Empty(t, cycle.Returned)

	c.assertStored(t, cycle)
	c.selector.AssertNotCalled(
		t, "RetrieveSubAddresses", mock.Anything, mock.Anything,
		mock.Anything, mock.Anything,
	)
}

// TestRunCycleFailed asserts that a failed cycle is recorded with its error.
func TestRunCycleFailed(t *testing.T) {
	c := newTestContext(t)

	c.selector.On("Select", mock.Anything).Return(
		nil, selector.ErrNoRemoteServers,
	)

	cycle, err := c.relay.RunCycle(context.Background())
	require.ErrorIs(t, err, selector.ErrNoRemoteServers)
	require.Equal(t, relaydb.OutcomeFailed, cycle.Outcome)
	require.Contains(t, cycle.Error, selector.ErrNoRemoteServers.Error())

	c.assertStored(t, cycle)
}

// TestRun asserts that the relay runs a cycle per tick until it is
// cancelled.
func TestRun(t *testing.T) {
	defer test.Guard(t)()

	c := newTestContext(t)

	c.selector.On("Select", mock.Anything).Return(
		nil, errors.New("cluster unreachable"),
	)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- c.relay.Run(ctx)
	}()

	c.ticker.Force <- testTime
	c.ticker.Force <- testTime

	require.Eventually(t, func() bool {
		cycles, err := c.store.FetchCycles(context.Background())

		return err == nil && len(cycles) == 2
	}, test.Timeout, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
