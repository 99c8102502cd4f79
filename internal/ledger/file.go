package ledger

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// maxLineSize bounds a single ledger line. An entry covering a few dozen
// monitored files is well under 64 KiB; 1 MiB leaves headroom.
const maxLineSize = 1 << 20

// FileLedger stores the chain as newline-delimited JSON in a single
// append-only file. One entry per line, line order is chain order.
//
// It assumes a single writer process. Appends are one write(2) call on an
// O_APPEND descriptor, so a crash mid-write leaves at worst one malformed
// trailing line, which verification localizes rather than treating as
// catastrophic.
type FileLedger struct {
	path string
}

// NewFileLedger creates a FileLedger at path, creating the parent
// directory and an empty file if they do not exist.
func NewFileLedger(path string) (*FileLedger, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open ledger file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close ledger file: %w", err)
	}
	return &FileLedger{path: path}, nil
}

// Path returns the backing file path.
func (l *FileLedger) Path() string {
	return l.path
}

// Append implements Ledger. The line and its trailing newline go out in a
// single write so concurrent readers never observe a torn entry boundary.
func (l *FileLedger) Append(_ context.Context, raw []byte) error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open ledger for append: %w", err)
	}
	defer f.Close()

	line := make([]byte, 0, len(raw)+1)
	line = append(line, raw...)
	line = append(line, '\n')
	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync ledger: %w", err)
	}
	return nil
}

// Last implements Ledger. A missing file is an empty chain, not an error.
func (l *FileLedger) Last(ctx context.Context) ([]byte, bool, error) {
	var last []byte
	err := l.Scan(ctx, func(_ int, raw []byte) error {
		if len(bytes.TrimSpace(raw)) > 0 {
			last = raw
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return last, last != nil, nil
}

// Len implements Ledger. Blank lines do not count as entries.
func (l *FileLedger) Len(ctx context.Context) (int, error) {
	n := 0
	err := l.Scan(ctx, func(_ int, raw []byte) error {
		if len(bytes.TrimSpace(raw)) > 0 {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Scan implements Ledger. Every line is surfaced, blank or not, so the
// verifier's line indexes match the physical file.
func (l *FileLedger) Scan(_ context.Context, fn func(index int, raw []byte) error) error {
	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open ledger for scan: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for i := 0; scanner.Scan(); i++ {
		// Copy out: the scanner reuses its buffer on the next line.
		line := append([]byte(nil), scanner.Bytes()...)
		if err := fn(i, line); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan ledger: %w", err)
	}
	return nil
}
