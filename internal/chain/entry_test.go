package chain_test

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/helixlog/chainguard/internal/chain"
)

func TestEntryHash_canonicalLayout(t *testing.T) {
	// The canonical serialization is pinned: sorted keys, no whitespace.
	// Changing it silently would invalidate every existing ledger.
	canonical := `{"log_states":{"a":"x","b":"y"},"previous_hash":"GENESIS","timestamp":"2026-01-02T03:04:05Z"}`
	sum := sha256.Sum256([]byte(canonical))
	want := hex.EncodeToString(sum[:])

	got, err := chain.EntryHash(chain.AlgSHA256, "2026-01-02T03:04:05Z", chain.Genesis, map[string]string{
		"b": "y",
		"a": "x",
	})
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("EntryHash: got %s, want %s", got, want)
	}
}

func TestEntryHash_deterministic(t *testing.T) {
	states := map[string]string{"/logs/a.log": "aaa", "/logs/b.log": "bbb"}

	h1, err := chain.EntryHash(chain.AlgSHA256, "2026-01-02T03:04:05Z", chain.Genesis, states)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := chain.EntryHash(chain.AlgSHA256, "2026-01-02T03:04:05Z", chain.Genesis, states)
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Errorf("same inputs hashed differently: %s vs %s", h1, h2)
	}
	if len(h1) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(h1))
	}
}

func TestEntryHash_sensitiveToEveryField(t *testing.T) {
	base := func() (string, string, map[string]string) {
		return "2026-01-02T03:04:05Z", chain.Genesis, map[string]string{"/logs/a.log": "aaa"}
	}

	ts, prev, states := base()
	h0, _ := chain.EntryHash(chain.AlgSHA256, ts, prev, states)

	cases := []struct {
		name string
		hash func() (string, error)
	}{
		{"timestamp", func() (string, error) {
			_, prev, states := base()
			return chain.EntryHash(chain.AlgSHA256, "2026-01-02T03:04:06Z", prev, states)
		}},
		{"previous_hash", func() (string, error) {
			ts, _, states := base()
			return chain.EntryHash(chain.AlgSHA256, ts, "deadbeef", states)
		}},
		{"log_states", func() (string, error) {
			ts, prev, _ := base()
			return chain.EntryHash(chain.AlgSHA256, ts, prev, map[string]string{"/logs/a.log": "aab"})
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, err := tc.hash()
			if err != nil {
				t.Fatal(err)
			}
			if h == h0 {
				t.Errorf("changing %s did not change the hash", tc.name)
			}
		})
	}
}

func TestEntryHash_algorithmsDiffer(t *testing.T) {
	states := map[string]string{"/logs/a.log": "aaa"}
	hSHA, _ := chain.EntryHash(chain.AlgSHA256, "2026-01-02T03:04:05Z", chain.Genesis, states)
	hB2, _ := chain.EntryHash(chain.AlgBLAKE2b, "2026-01-02T03:04:05Z", chain.Genesis, states)
	if hSHA == hB2 {
		t.Error("sha256 and blake2b produced the same digest")
	}
	if len(hB2) != 64 {
		t.Errorf("blake2b digest: expected 64 hex chars, got %d", len(hB2))
	}
}

func TestIsGenesis(t *testing.T) {
	e := &chain.Entry{PreviousHash: chain.Genesis}
	if !e.IsGenesis() {
		t.Error("entry with GENESIS previous_hash reported non-genesis")
	}
	e.PreviousHash = "abc"
	if e.IsGenesis() {
		t.Error("chained entry reported genesis")
	}
}
