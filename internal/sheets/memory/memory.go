// Package memory provides an in-memory ledger appender used in tests and
// when no spreadsheet is configured.
package memory

import (
	"context"
	"fmt"
	"sync"

	"fintrack/internal/sheets"
)

// Ledger records appended entries in order.
type Ledger struct {
	mu      sync.Mutex
	entries []sheets.Entry
	failure error
}

func NewLedger() *Ledger {
	return &Ledger{}
}

// FailWith makes every subsequent append return err. Pass nil to recover.
func (l *Ledger) FailWith(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failure = err
}

func (l *Ledger) AppendEntry(_ context.Context, e sheets.Entry) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failure != nil {
		return "", l.failure
	}
	l.entries = append(l.entries, e)
	return fmt.Sprintf("row-%d", len(l.entries)), nil
}

// Entries returns a copy of everything appended so far.
func (l *Ledger) Entries() []sheets.Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]sheets.Entry, len(l.entries))
	copy(out, l.entries)
	return out
}
