// Package eventlog records coded failure events. Each rejection or failure
// path of the relay writes exactly one entry with a code that is unique to
// that path, so operators and tests can tell them apart.
package eventlog

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/btcsuite/btclog"
	"github.com/davecgh/go-spew/spew"
)

// Code identifies a single failure path.
type Code string

// Fields carries the context of an event.
type Fields map[string]interface{}

// Writer writes coded events.
type Writer interface {
	// WriteLog records one event.
	WriteLog(code Code, msg string, fields Fields)
}

// Logger writes events to a btclog logger at error level, prefixed with the
// event code.
type Logger struct {
	// Logger is the underlying based logger.
	Logger btclog.Logger
}

// A compile time check to ensure Logger implements Writer.
var _ Writer = (*Logger)(nil)

// WriteLog writes the event as a single error line. The full context is
// dumped at trace level.
func (l *Logger) WriteLog(code Code, msg string, fields Fields) {
	l.Logger.Errorf("%v %s%s", code, msg, formatFields(fields))

	if len(fields) > 0 && l.Logger.Level() <= btclog.LevelTrace {
		l.Logger.Tracef("%v context: %v", code, spew.Sdump(fields))
	}
}

// formatFields renders fields as sorted key=value pairs.
func formatFields(fields Fields) string {
	if len(fields) == 0 {
		return ""
	}

	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, key := range keys {
		fmt.Fprintf(&b, " %s=%v", key, fields[key])
	}

	return b.String()
}

// Discard drops all events.
var Discard Writer = discard{}

type discard struct{}

func (discard) WriteLog(Code, string, Fields) {}

// Entry is a recorded event.
type Entry struct {
	Code    Code
	Message string
	Fields  Fields
}

// Recorder keeps every event in memory. It is safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

// A compile time check to ensure Recorder implements Writer.
var _ Writer = (*Recorder)(nil)

// WriteLog appends the event.
func (r *Recorder) WriteLog(code Code, msg string, fields Fields) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = append(r.entries, Entry{
		Code:    code,
		Message: msg,
		Fields:  fields,
	})
}

// Entries returns a copy of the recorded events.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]Entry, len(r.entries))
	copy(entries, r.entries)

	return entries
}

// Codes returns the codes of the recorded events in order.
func (r *Recorder) Codes() []Code {
	r.mu.Lock()
	defer r.mu.Unlock()

	codes := make([]Code, 0, len(r.entries))
	for _, entry := range r.entries {
		codes = append(codes, entry.Code)
	}

	return codes
}

// Count returns the number of recorded events.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.entries)
}
