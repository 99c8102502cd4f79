package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/helixlog/chainguard/internal/ledger"
	"github.com/helixlog/chainguard/internal/notify"
	"go.uber.org/zap"
)

// DefaultLogFiles are the conventional log categories monitored when the
// caller does not override the set.
var DefaultLogFiles = []string{
	"commands.log",
	"api_calls.log",
	"file_changes.log",
	"network.log",
	"system.log",
	"consciousness.log",
}

// Builder creates new chain entries linked to the ledger's current tip.
// It performs the subsystem's only mutation of persisted state: appending
// one serialized entry to the ledger.
type Builder struct {
	led      ledger.Ledger
	digester *Digester
	paths    []string
	sink     notify.Sink
	logger   *zap.Logger
}

// NewBuilder creates a Builder monitoring the given filenames resolved
// under logDir. An empty logFiles falls back to DefaultLogFiles.
func NewBuilder(led ledger.Ledger, digester *Digester, logDir string, logFiles []string, sink notify.Sink, logger *zap.Logger) *Builder {
	if len(logFiles) == 0 {
		logFiles = DefaultLogFiles
	}
	paths := make([]string, len(logFiles))
	for i, name := range logFiles {
		paths[i] = filepath.Join(logDir, name)
	}
	return &Builder{
		led:      led,
		digester: digester,
		paths:    paths,
		sink:     sink,
		logger:   logger,
	}
}

// MonitoredPaths returns the resolved paths whose digests each new entry
// records.
func (b *Builder) MonitoredPaths() []string {
	return b.paths
}

// CreateEntry digests every monitored file, links the result to the
// ledger tip and appends it. The only fatal condition is a failed append:
// durability cannot be silently dropped. Unreadable monitored files are
// recorded as sentinels, and sink failures are logged and discarded.
func (b *Builder) CreateEntry(ctx context.Context) (*Entry, error) {
	previousHash, err := b.tipHash(ctx)
	if err != nil {
		return nil, err
	}

	logStates := make(map[string]string, len(b.paths))
	for _, p := range b.paths {
		logStates[p] = b.digester.Digest(p)
	}

	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	hash, err := EntryHash(b.digester.Algorithm(), timestamp, previousHash, logStates)
	if err != nil {
		return nil, err
	}

	entry := &Entry{
		Timestamp:    timestamp,
		PreviousHash: previousHash,
		LogStates:    logStates,
		Hash:         hash,
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("marshal entry: %w", err)
	}
	if err := b.led.Append(ctx, raw); err != nil {
		return nil, fmt.Errorf("append entry: %w", err)
	}

	b.publishCreated(ctx, entry)
	return entry, nil
}

// tipHash reads the ledger's last entry and returns its declared hash.
// An empty ledger, an unparseable tip line or a tip without a hash all
// yield Genesis: the chain restarts from the anchor rather than refusing
// to grow.
func (b *Builder) tipHash(ctx context.Context) (string, error) {
	raw, ok, err := b.led.Last(ctx)
	if err != nil {
		return "", fmt.Errorf("read ledger tip: %w", err)
	}
	if !ok {
		return Genesis, nil
	}
	var tip Entry
	if err := json.Unmarshal(raw, &tip); err != nil || tip.Hash == "" {
		return Genesis, nil
	}
	return tip.Hash, nil
}

// publishCreated emits the creation event. Failures never propagate.
func (b *Builder) publishCreated(ctx context.Context, entry *Entry) {
	length, err := b.led.Len(ctx)
	if err != nil {
		b.logger.Warn("chain length for notification", zap.Error(err))
	}

	ev := notify.NewEvent(notify.KindEntryCreated)
	ev.EntryHash = entry.Hash
	ev.PreviousHash = entry.PreviousHash
	ev.LogStates = entry.LogStates
	ev.ChainLength = length
	ev.Status = notify.StatusValid
	if entry.IsGenesis() {
		ev.Status = notify.StatusGenesis
	}

	if err := b.sink.Publish(ctx, ev); err != nil {
		b.logger.Warn("publish creation event", zap.Error(err))
	}
}
