// Package notify delivers chain lifecycle events to an external sink.
//
// The core treats every publish as best-effort: a sink failure is logged
// and dropped, never surfaced as a chain failure. Ledger state is already
// durable by the time an event is emitted.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event kinds.
const (
	KindEntryCreated = "entry_created"
	KindChainValid   = "chain_valid"
	KindChainInvalid = "chain_invalid"
	KindDrift        = "drift"
)

// Chain statuses carried on events.
const (
	StatusGenesis = "genesis"
	StatusValid   = "valid"
	StatusInvalid = "invalid"
)

// Violation mirrors a verification violation for transport. Kept separate
// from the verifier's type so the wire shape is owned by this package.
type Violation struct {
	Index    int    `json:"index"`
	Reason   string `json:"reason"`
	Expected string `json:"expected,omitempty"`
	Found    string `json:"found,omitempty"`
}

// Drift records a single file whose live digest no longer matches the
// ledger tip.
type Drift struct {
	Was string `json:"was"`
	Now string `json:"now"`
}

// Event is a structured chain lifecycle notification.
type Event struct {
	ID             uuid.UUID         `json:"id"`
	Kind           string            `json:"kind"`
	Timestamp      time.Time         `json:"timestamp"`
	EntryHash      string            `json:"entry_hash,omitempty"`
	PreviousHash   string            `json:"previous_hash,omitempty"`
	LogStates      map[string]string `json:"log_states,omitempty"`
	ChainLength    int               `json:"chain_length"`
	Status         string            `json:"status"`
	Violations     []Violation       `json:"violations,omitempty"`
	ViolationCount int               `json:"violation_count,omitempty"`
	Drifted        map[string]Drift  `json:"drifted,omitempty"`
}

// NewEvent stamps a fresh event of the given kind.
func NewEvent(kind string) Event {
	return Event{
		ID:        uuid.New(),
		Kind:      kind,
		Timestamp: time.Now().UTC(),
	}
}

// Sink receives chain events. Implementations own their own delivery
// semantics (timeouts, retries, rate limits); callers log and discard any
// returned error.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
}
