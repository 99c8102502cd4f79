package chain

import (
	"encoding/json"
	"fmt"
)

// Genesis is the sentinel previous_hash of the first entry in a chain.
// It anchors the chain; every later entry links to the declared hash of
// its predecessor.
const Genesis = "GENESIS"

// Entry is one record in the hash-chained ledger. It captures the digest
// of every monitored log file at a point in time, linked to the previous
// entry's hash.
//
// All fields are plain structs and string maps (no map[string]any) so that
// json.Marshal output is deterministic and the entry hash is reproducible.
type Entry struct {
	Timestamp    string            `json:"timestamp"`
	PreviousHash string            `json:"previous_hash"`
	LogStates    map[string]string `json:"log_states"`
	Hash         string            `json:"hash"`
}

// canonicalEntry is the hash input: the entry minus its own hash field.
// Field order matches lexicographic key order and json.Marshal sorts map
// keys, so the serialized bytes are identical between builder and verifier.
type canonicalEntry struct {
	LogStates    map[string]string `json:"log_states"`
	PreviousHash string            `json:"previous_hash"`
	Timestamp    string            `json:"timestamp"`
}

// EntryHash computes the hex digest binding an entry's timestamp, previous
// hash and log states together under the given algorithm.
func EntryHash(alg Algorithm, timestamp, previousHash string, logStates map[string]string) (string, error) {
	canonical, err := json.Marshal(canonicalEntry{
		LogStates:    logStates,
		PreviousHash: previousHash,
		Timestamp:    timestamp,
	})
	if err != nil {
		return "", fmt.Errorf("canonicalize entry: %w", err)
	}
	return alg.Sum(canonical), nil
}

// IsGenesis reports whether the entry is the first in its chain.
func (e *Entry) IsGenesis() bool {
	return e.PreviousHash == Genesis
}
