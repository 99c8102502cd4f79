// Package ledger provides append-only storage for hash chain entries.
//
// Entries are stored as raw serialized lines, not decoded records: the
// verifier needs to see exactly the bytes that were appended so that a
// corrupted line can be localized as an invalid entry instead of failing
// the whole scan. Every backend preserves append order.
package ledger

import "context"

// Ledger is the persistence interface for a hash chain. The file backend
// is the canonical one; the memory, sqlite and postgres backends share its
// semantics.
type Ledger interface {
	// Append durably adds one serialized entry to the end of the chain.
	// A failed append must be reported: the chain's durability guarantee
	// depends on it.
	Append(ctx context.Context, raw []byte) error

	// Last returns the raw tip entry. ok is false when the ledger is
	// empty (or the backing file does not exist yet).
	Last(ctx context.Context) (raw []byte, ok bool, err error)

	// Len returns the number of entries (non-blank lines for the file
	// backend).
	Len(ctx context.Context) (int, error)

	// Scan calls fn for each stored line in chain order with its
	// zero-based index. fn errors abort the scan. A missing backing file
	// scans as an empty chain.
	Scan(ctx context.Context, fn func(index int, raw []byte) error) error
}
