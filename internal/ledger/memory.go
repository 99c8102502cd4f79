package ledger

import (
	"context"
	"sync"
)

// MemoryLedger is an in-memory, thread-safe Ledger. It is primarily
// useful for tests and for embedding the chain in a host process that
// does its own persistence.
type MemoryLedger struct {
	mu    sync.RWMutex
	lines [][]byte
}

// NewMemoryLedger creates an empty MemoryLedger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{}
}

// Append implements Ledger.
func (l *MemoryLedger) Append(_ context.Context, raw []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, append([]byte(nil), raw...))
	return nil
}

// Last implements Ledger.
func (l *MemoryLedger) Last(_ context.Context) ([]byte, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.lines) == 0 {
		return nil, false, nil
	}
	return append([]byte(nil), l.lines[len(l.lines)-1]...), true, nil
}

// Len implements Ledger.
func (l *MemoryLedger) Len(_ context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.lines), nil
}

// Scan implements Ledger.
func (l *MemoryLedger) Scan(_ context.Context, fn func(index int, raw []byte) error) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for i, line := range l.lines {
		if err := fn(i, append([]byte(nil), line...)); err != nil {
			return err
		}
	}
	return nil
}
