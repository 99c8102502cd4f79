// Package chain implements the hash chain integrity core: entry creation,
// full chain verification and point-in-time drift detection.
//
// Verification re-synchronizes its expected link to each entry's own
// declared hash, even when that entry is flagged invalid. A single
// corrupted entry therefore produces one violation instead of cascading
// false positives through the rest of the ledger. The flip side is that a
// forged link which is internally self-consistent yields exactly one
// violation rather than invalidating everything downstream; callers that
// need a hard stop must treat any non-empty violation list as fatal.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/helixlog/chainguard/internal/ledger"
	"github.com/helixlog/chainguard/internal/notify"
	"go.uber.org/zap"
)

// Violation reasons. A closed set: every verification failure mode maps
// to exactly one of these.
const (
	ReasonInvalidJSON       = "Invalid JSON"
	ReasonPrevHashMismatch  = "Previous hash mismatch"
	ReasonEntryHashMismatch = "Entry hash mismatch"
)

// invalidHash stands in for the declared hash of an entry that has none,
// so the next entry's link check fails explicitly instead of chaining to
// an empty string.
const invalidHash = "INVALID"

// maxReportedViolations bounds the violations carried on an alert event.
const maxReportedViolations = 5

// Violation localizes a single verification failure to a ledger index.
type Violation struct {
	Index    int    `json:"index"`
	Reason   string `json:"reason"`
	Expected string `json:"expected,omitempty"`
	Found    string `json:"found,omitempty"`
	Line     string `json:"line,omitempty"`
}

// DriftEntry records one file whose live digest differs from the digest
// in the ledger's last entry. Digests are truncated for reporting;
// sentinels are carried whole.
type DriftEntry struct {
	Was string `json:"was"`
	Now string `json:"now"`
}

// Verifier replays a ledger and checks every link and every entry hash.
// It is strictly read-only.
type Verifier struct {
	led      ledger.Ledger
	digester *Digester
	sink     notify.Sink
	logger   *zap.Logger
}

// NewVerifier creates a Verifier over the given ledger.
func NewVerifier(led ledger.Ledger, digester *Digester, sink notify.Sink, logger *zap.Logger) *Verifier {
	return &Verifier{led: led, digester: digester, sink: sink, logger: logger}
}

// VerifyChain walks the entire ledger in order, recomputing every entry
// hash and checking every previous_hash link. It always returns the
// complete violation list rather than stopping at the first problem. An
// empty or absent ledger is valid with zero violations.
//
// The returned error covers only ledger I/O failures, never integrity
// findings.
func (v *Verifier) VerifyChain(ctx context.Context) (bool, []Violation, error) {
	var violations []Violation
	expectedPrevious := Genesis
	lines := 0

	err := v.led.Scan(ctx, func(index int, raw []byte) error {
		lines++

		var entry Entry
		if err := json.Unmarshal(bytes.TrimSpace(raw), &entry); err != nil {
			violations = append(violations, Violation{
				Index:  index,
				Reason: ReasonInvalidJSON,
				Line:   truncateLine(raw, 100),
			})
			// Nothing usable here: the next entry is still expected to
			// link to the last declared hash we saw.
			return nil
		}

		if entry.PreviousHash != expectedPrevious {
			violations = append(violations, Violation{
				Index:    index,
				Reason:   ReasonPrevHashMismatch,
				Expected: expectedPrevious,
				Found:    entry.PreviousHash,
			})
		}

		computed, err := EntryHash(v.digester.Algorithm(), entry.Timestamp, entry.PreviousHash, entry.LogStates)
		if err != nil {
			return fmt.Errorf("recompute hash at index %d: %w", index, err)
		}
		if computed != entry.Hash {
			violations = append(violations, Violation{
				Index:    index,
				Reason:   ReasonEntryHashMismatch,
				Expected: computed,
				Found:    entry.Hash,
			})
		}

		// Re-sync to the entry's own declared hash regardless of the
		// findings above; see the package comment for the tradeoff.
		if entry.Hash != "" {
			expectedPrevious = entry.Hash
		} else {
			expectedPrevious = invalidHash
		}
		return nil
	})
	if err != nil {
		return false, nil, err
	}

	isValid := len(violations) == 0
	v.publishReport(ctx, isValid, expectedPrevious, lines, violations)
	return isValid, violations, nil
}

// VerifyCurrentState is the cheap tripwire between full verifications: it
// reads only the ledger's last entry and recomputes digests for exactly
// the files that entry recorded. O(1) in ledger length. An empty ledger
// trivially reports no drift.
func (v *Verifier) VerifyCurrentState(ctx context.Context) (bool, map[string]DriftEntry, error) {
	raw, ok, err := v.led.Last(ctx)
	if err != nil {
		return false, nil, fmt.Errorf("read ledger tip: %w", err)
	}
	if !ok {
		return true, map[string]DriftEntry{}, nil
	}

	var tip Entry
	if err := json.Unmarshal(bytes.TrimSpace(raw), &tip); err != nil {
		// A corrupt tip carries no usable states; full verification is
		// the tool for that failure.
		return true, map[string]DriftEntry{}, nil
	}

	drifted := make(map[string]DriftEntry)
	for path, recorded := range tip.LogStates {
		current := v.digester.Digest(path)
		if current == recorded {
			continue
		}
		now := current
		if !IsSentinel(current) {
			now = truncateDigest(current)
		}
		drifted[path] = DriftEntry{
			Was: truncateDigest(recorded),
			Now: now,
		}
	}
	return len(drifted) == 0, drifted, nil
}

// ChainLength returns the number of entries, for reporting context only.
func (v *Verifier) ChainLength(ctx context.Context) (int, error) {
	return v.led.Len(ctx)
}

// TipHash returns the declared hash of the last entry without walking
// the chain. ok is false for an empty ledger or an unparseable tip.
func (v *Verifier) TipHash(ctx context.Context) (string, bool, error) {
	raw, ok, err := v.led.Last(ctx)
	if err != nil {
		return "", false, fmt.Errorf("read ledger tip: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	var tip Entry
	if err := json.Unmarshal(bytes.TrimSpace(raw), &tip); err != nil || tip.Hash == "" {
		return "", false, nil
	}
	return tip.Hash, true, nil
}

// publishReport emits the verification outcome. Failures never propagate.
func (v *Verifier) publishReport(ctx context.Context, isValid bool, tipHash string, length int, violations []Violation) {
	var ev notify.Event
	if isValid {
		ev = notify.NewEvent(notify.KindChainValid)
		ev.EntryHash = tipHash
		ev.Status = notify.StatusValid
	} else {
		ev = notify.NewEvent(notify.KindChainInvalid)
		ev.Status = notify.StatusInvalid
		ev.ViolationCount = len(violations)
		for _, viol := range violations {
			if len(ev.Violations) == maxReportedViolations {
				break
			}
			ev.Violations = append(ev.Violations, notify.Violation{
				Index:    viol.Index,
				Reason:   viol.Reason,
				Expected: viol.Expected,
				Found:    viol.Found,
			})
		}
	}
	ev.ChainLength = length

	if err := v.sink.Publish(ctx, ev); err != nil {
		v.logger.Warn("publish verification event", zap.Error(err))
	}
}

// truncateDigest shortens a digest for drift reports. Sentinels pass
// through untouched.
func truncateDigest(s string) string {
	if IsSentinel(s) || len(s) <= 12 {
		return s
	}
	return s[:12]
}

func truncateLine(raw []byte, n int) string {
	if len(raw) <= n {
		return string(raw)
	}
	return string(raw[:n])
}
