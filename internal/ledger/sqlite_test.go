package ledger_test

import (
	"path/filepath"
	"testing"

	"github.com/helixlog/chainguard/internal/ledger"
)

func openSQLite(t *testing.T) *ledger.SQLiteLedger {
	t.Helper()
	l, err := ledger.OpenSQLiteLedger(filepath.Join(t.TempDir(), "chainguard.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestSQLiteLedger_emptyChain(t *testing.T) {
	l := openSQLite(t)

	if _, ok, err := l.Last(ctx); err != nil || ok {
		t.Errorf("Last on empty ledger: got (ok=%v, err=%v), want (false, nil)", ok, err)
	}
	if n, err := l.Len(ctx); err != nil || n != 0 {
		t.Errorf("Len on empty ledger: got (%d, %v), want (0, nil)", n, err)
	}
}

func TestSQLiteLedger_appendPreservesOrder(t *testing.T) {
	l := openSQLite(t)

	want := []string{`{"a":1}`, `{"b":2}`, `{"c":3}`}
	for _, line := range want {
		if err := l.Append(ctx, []byte(line)); err != nil {
			t.Fatal(err)
		}
	}

	var got []string
	err := l.Scan(ctx, func(i int, raw []byte) error {
		if i != len(got) {
			t.Errorf("scan index: got %d, want %d", i, len(got))
		}
		got = append(got, string(raw))
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(want) {
		t.Fatalf("Scan: got %d rows, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("row %d: got %q, want %q", i, got[i], want[i])
		}
	}

	raw, ok, err := l.Last(ctx)
	if err != nil || !ok || string(raw) != `{"c":3}` {
		t.Errorf("Last: got (%q, %v, %v)", raw, ok, err)
	}
	if n, _ := l.Len(ctx); n != 3 {
		t.Errorf("Len: got %d, want 3", n)
	}
}

func TestSQLiteLedger_persistsAcrossReopen(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "chainguard.db")

	l, err := ledger.OpenSQLiteLedger(dsn)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Append(ctx, []byte(`{"a":1}`)); err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	l2, err := ledger.OpenSQLiteLedger(dsn)
	if err != nil {
		t.Fatal(err)
	}
	defer l2.Close()

	raw, ok, err := l2.Last(ctx)
	if err != nil || !ok || string(raw) != `{"a":1}` {
		t.Errorf("Last after reopen: got (%q, %v, %v)", raw, ok, err)
	}
}
