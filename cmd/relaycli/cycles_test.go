package main

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/google/uuid"
	"github.com/lightninglabs/subrelay/relaydb"
	"github.com/stretchr/testify/require"
)

// TestNewCycleView asserts the printed form of a cycle.
func TestNewCycleView(t *testing.T) {
	id := uuid.MustParse("5f0c8d0e-8d2a-4f4e-9a51-7c3e1c2b9b1a")
	txid := chainhash.Hash{1}

	view := newCycleView(&relaydb.Cycle{
		ID:             id,
		Time:           time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Outcome:        relaydb.OutcomeProcessed,
		Partner:        "10.0.0.1:3000",
		PartnerBalance: 5_000,
		Forwarded: []relaydb.Forward{{
			OutPoint: relaydb.OutPoint{
				TxID: txid, Vout: 1, Amount: 1_000,
			},
			SubAddress:  "sub-1",
			ForwardTxID: "fwd",
		}},
	})

	require.Equal(t, &cycleView{
		ID:             id.String(),
		Time:           "2024-03-01T12:00:00Z",
		Outcome:        "Processed",
		Partner:        "10.0.0.1:3000",
		PartnerBalance: 5_000,
		Forwarded: []forwardView{{
			outPointView: outPointView{
				OutPoint: txid.String() + ":1",
				Amount:   1_000,
			},
			SubAddress:  "sub-1",
			ForwardTxID: "fwd",
		}},
		Returned: []outPointView{},
	}, view)
}
