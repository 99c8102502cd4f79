package chain_test

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/helixlog/chainguard/internal/chain"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDigest_contentOnly(t *testing.T) {
	dir := t.TempDir()
	d := chain.NewDigester(chain.AlgSHA256)

	p1 := writeFile(t, dir, "a.log", "hello world\n")
	p2 := writeFile(t, dir, "b.log", "hello world\n")

	sum := sha256.Sum256([]byte("hello world\n"))
	want := hex.EncodeToString(sum[:])

	if got := d.Digest(p1); got != want {
		t.Errorf("digest: got %s, want %s", got, want)
	}
	// Identical content under a different path digests identically:
	// the path is not mixed into the hash.
	if d.Digest(p1) != d.Digest(p2) {
		t.Error("identical content produced different digests")
	}
}

func TestDigest_oneByteChange(t *testing.T) {
	dir := t.TempDir()
	d := chain.NewDigester(chain.AlgSHA256)

	p := writeFile(t, dir, "a.log", "hello world\n")
	before := d.Digest(p)

	writeFile(t, dir, "a.log", "hello worle\n")
	after := d.Digest(p)

	if before == after {
		t.Error("one-byte change did not change the digest")
	}
}

func TestDigest_missingFile(t *testing.T) {
	d := chain.NewDigester(chain.AlgSHA256)
	got := d.Digest(filepath.Join(t.TempDir(), "nope.log"))
	if got != chain.SentinelMissing {
		t.Errorf("missing file: got %q, want %q", got, chain.SentinelMissing)
	}
}

func TestDigest_noAccess(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("running as root, permission bits are not enforced")
	}
	dir := t.TempDir()
	p := writeFile(t, dir, "a.log", "secret")
	if err := os.Chmod(p, 0o000); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(p, 0o644) })

	d := chain.NewDigester(chain.AlgSHA256)
	if got := d.Digest(p); got != chain.SentinelNoAccess {
		t.Errorf("unreadable file: got %q, want %q", got, chain.SentinelNoAccess)
	}
}

func TestParseAlgorithm(t *testing.T) {
	cases := []struct {
		in      string
		want    chain.Algorithm
		wantErr bool
	}{
		{"sha256", chain.AlgSHA256, false},
		{"", chain.AlgSHA256, false},
		{"blake2b", chain.AlgBLAKE2b, false},
		{"md5", "", true},
	}
	for _, tc := range cases {
		got, err := chain.ParseAlgorithm(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseAlgorithm(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseAlgorithm(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("ParseAlgorithm(%q): got %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestIsSentinel(t *testing.T) {
	for _, v := range []string{"MISSING", "NO_ACCESS", "ERROR:io", "ERROR:timeout"} {
		if !chain.IsSentinel(v) {
			t.Errorf("IsSentinel(%q) = false", v)
		}
	}
	sum := sha256.Sum256([]byte("x"))
	if chain.IsSentinel(hex.EncodeToString(sum[:])) {
		t.Error("real digest classified as sentinel")
	}
}
