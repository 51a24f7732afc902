package eventlog

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btclog"
	"github.com/stretchr/testify/require"
)

// TestLogger asserts that events are written with their code and sorted
// context.
func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	backend := btclog.NewBackend(&buf)

	logger := &Logger{Logger: backend.Logger("TEST")}
	logger.WriteLog("SEL_004", "failed to query outgoing server", Fields{
		"outgoingAddress": "10.0.0.1:3000",
		"error":           "refused",
	})

	out := buf.String()
	require.Contains(t, out, "SEL_004 failed to query outgoing server")
	require.Contains(
		t, out, "error=refused outgoingAddress=10.0.0.1:3000",
	)
}

// TestRecorder asserts that the recorder keeps events in order.
func TestRecorder(t *testing.T) {
	var r Recorder
	require.Zero(t, r.Count())

	r.WriteLog("A", "first", nil)
	r.WriteLog("B", "second", Fields{"k": 1})

	require.Equal(t, 2, r.Count())
	require.Equal(t, []Code{"A", "B"}, r.Codes())
	require.Equal(t, 1, r.Entries()[1].Fields["k"])

	Discard.WriteLog("C", "dropped", nil)
}
