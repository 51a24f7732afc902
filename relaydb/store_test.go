package relaydb

import (
	"context"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"
)

var testTime = time.Date(2018, time.January, 9, 14, 0, 0, 0, time.UTC)

func newOutPoint(nr byte) OutPoint {
	var hash chainhash.Hash
	hash[0] = nr

	return OutPoint{TxID: hash, Vout: uint32(nr), Amount: 100_000}
}

func newCycle(offset time.Duration, outcome CycleOutcome) *Cycle {
	return &Cycle{
		ID:      uuid.New(),
		Time:    testTime.Add(offset),
		Outcome: outcome,
	}
}

// TestCycleStore tests the basic functionality of the bolt cycle store.
func TestCycleStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := NewBoltStore(dir)
	require.NoError(t, err)

	// An empty store has no cycles.
	cycles, err := store.FetchCycles(ctx)
	require.NoError(t, err)
	require.Empty(t, cycles)

	processed := newCycle(time.Minute, OutcomeProcessed)
	processed.Partner = "10.0.0.1:3000"
	processed.PartnerBalance = 5_000_000
	processed.EscrowEncrypted = "ZXNjcm93"
	processed.Forwarded = []Forward{{
		OutPoint:    newOutPoint(1),
		SubAddress:  "sub-1",
		ForwardTxID: "forward-txid",
	}}
	processed.Returned = []OutPoint{newOutPoint(2)}

	returnAll := newCycle(0, OutcomeReturnAll)
	returnAll.Returned = []OutPoint{newOutPoint(3), newOutPoint(4)}

	failed := newCycle(2*time.Minute, OutcomeFailed)
	failed.Error = "wallet unreachable"

	// Cycles are stored out of time order.
	for _, cycle := range []*Cycle{processed, returnAll, failed} {
		require.NoError(t, store.AddCycle(ctx, cycle))
	}

	// Storing an id twice fails.
	err = store.AddCycle(ctx, processed)
	require.ErrorIs(t, err, ErrCycleExists)

	expected := []*Cycle{returnAll, processed, failed}

	cycles, err = store.FetchCycles(ctx)
	require.NoError(t, err)
	require.Equal(t, expected, cycles)

	cycle, err := store.FetchCycle(ctx, processed.ID)
	require.NoError(t, err)
	require.Equal(t, processed, cycle)

	_, err = store.FetchCycle(ctx, uuid.New())
	require.ErrorIs(t, err, ErrCycleNotFound)

	// The cycles survive a restart.
	require.NoError(t, store.Close())

	store, err = NewBoltStore(dir)
	require.NoError(t, err)
	defer store.Close()

	cycles, err = store.FetchCycles(ctx)
	require.NoError(t, err)
	require.Equal(t, expected, cycles)
}

// TestMigrateCycleIndex asserts that cycles stored without an index become
// reachable by id after migration.
func TestMigrateCycleIndex(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := NewBoltStore(dir)
	require.NoError(t, err)

	cycle := newCycle(0, OutcomeIdle)
	require.NoError(t, store.AddCycle(ctx, cycle))

	// Roll the database back to version zero, dropping the index.
	err = store.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(cycleIndexBucketKey); err != nil {
			return err
		}

		return setDBVersion(tx, 0)
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = NewBoltStore(dir)
	require.NoError(t, err)
	defer store.Close()

	version, err := getDBVersion(store.db)
	require.NoError(t, err)
	require.Equal(t, latestDBVersion, version)

	fetched, err := store.FetchCycle(ctx, cycle.ID)
	require.NoError(t, err)
	require.Equal(t, cycle, fetched)
}

// TestDBReversion asserts that a database newer than the binary is refused.
func TestDBReversion(t *testing.T) {
	dir := t.TempDir()

	store, err := NewBoltStore(dir)
	require.NoError(t, err)

	err = store.db.Update(func(tx *bbolt.Tx) error {
		return setDBVersion(tx, latestDBVersion+1)
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = NewBoltStore(dir)
	require.ErrorIs(t, err, ErrDBReversion)
}
