package chain

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"io/fs"
	"os"

	"golang.org/x/crypto/blake2b"
)

// Sentinel digests recorded in place of a real content hash when a
// monitored file cannot be read. They are valid log_states values and are
// hashed into the entry like any digest.
const (
	SentinelMissing  = "MISSING"
	SentinelNoAccess = "NO_ACCESS"
)

// Algorithm selects the 256-bit content hash. A ledger must be built and
// verified with the same algorithm.
type Algorithm string

const (
	AlgSHA256  Algorithm = "sha256"
	AlgBLAKE2b Algorithm = "blake2b"
)

// ParseAlgorithm maps a config string to an Algorithm.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(s) {
	case AlgSHA256, "":
		return AlgSHA256, nil
	case AlgBLAKE2b:
		return AlgBLAKE2b, nil
	default:
		return "", fmt.Errorf("unknown digest algorithm %q", s)
	}
}

func (a Algorithm) newHash() hash.Hash {
	if a == AlgBLAKE2b {
		h, _ := blake2b.New256(nil) // only errors with a key, and we pass none
		return h
	}
	return sha256.New()
}

// Sum returns the lowercase hex digest of data.
func (a Algorithm) Sum(data []byte) string {
	h := a.newHash()
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Digester computes content digests for monitored files, mapping I/O
// failures to sentinel values instead of errors. Tamper detection rests on
// its determinism: identical bytes always produce identical digests.
type Digester struct {
	alg Algorithm
}

// NewDigester creates a Digester using the given algorithm.
func NewDigester(alg Algorithm) *Digester {
	return &Digester{alg: alg}
}

// Algorithm returns the digest algorithm in use.
func (d *Digester) Algorithm() Algorithm {
	return d.alg
}

// Digest hashes the full content of path and returns the lowercase hex
// digest. It never fails: unreadable files yield one of the sentinel
// values instead.
func (d *Digester) Digest(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return sentinelFor(err)
	}
	defer f.Close()

	h := d.alg.newHash()
	if _, err := io.Copy(h, f); err != nil {
		return sentinelFor(err)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// sentinelFor translates a file error into its recorded sentinel. Kinds
// beyond missing/no-access are enumerated rather than stringifying
// arbitrary errors, so ledger values stay a closed set.
func sentinelFor(err error) string {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return SentinelMissing
	case errors.Is(err, fs.ErrPermission):
		return SentinelNoAccess
	case errors.Is(err, os.ErrDeadlineExceeded):
		return "ERROR:timeout"
	case errors.Is(err, fs.ErrClosed):
		return "ERROR:closed"
	default:
		return "ERROR:io"
	}
}

// IsSentinel reports whether a log_states value is a sentinel rather than
// a real content digest.
func IsSentinel(v string) bool {
	return v == SentinelMissing || v == SentinelNoAccess || (len(v) > 6 && v[:6] == "ERROR:")
}
