package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/helixlog/chainguard/internal/chain"
	"github.com/helixlog/chainguard/internal/config"
	"github.com/helixlog/chainguard/internal/ledger"
	"github.com/helixlog/chainguard/internal/notify"
	"github.com/helixlog/chainguard/internal/server"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// version is overridden by goreleaser via -ldflags "-X main.version=...".
var version = "dev"

var cfgFile string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "chainguard",
	Short: "Tamper-evident hash chain for log files",
	Long: `chainguard maintains a cryptographically linked ledger of log file
digests. Each entry records the content hash of every monitored file,
chained to the previous entry, so any after-the-fact modification of a
log file or of the ledger itself is detectable.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default configs/chainguard.yaml)")

	rootCmd.AddCommand(appendCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

// components bundles everything a command needs, with a cleanup for
// backends that hold handles.
type components struct {
	cfg      *config.Config
	builder  *chain.Builder
	verifier *chain.Verifier
	sink     notify.Sink
	logger   *zap.Logger
	cleanup  func()
}

func setup(ctx context.Context) (*components, error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	alg, err := chain.ParseAlgorithm(cfg.Chain.Algorithm)
	if err != nil {
		return nil, err
	}
	digester := chain.NewDigester(alg)

	led, cleanup, err := openLedger(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	var sink notify.Sink
	if cfg.Notify.WebhookURL != "" {
		ws := notify.NewWebhookSink(cfg.Notify.WebhookURL, cfg.Notify.RatePerMin, logger)
		ws.SetMetricsRecorder(server.RecordWebhookDelivery)
		sink = ws
	} else {
		sink = notify.NewNoopSink(logger)
	}

	return &components{
		cfg:      cfg,
		builder:  chain.NewBuilder(led, digester, cfg.Chain.LogDir, cfg.Chain.LogFiles, sink, logger),
		verifier: chain.NewVerifier(led, digester, sink, logger),
		sink:     sink,
		logger:   logger,
		cleanup: func() {
			cleanup()
			logger.Sync() //nolint:errcheck
		},
	}, nil
}

func openLedger(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ledger.Ledger, func(), error) {
	switch cfg.Storage.Backend {
	case "file":
		l, err := ledger.NewFileLedger(cfg.Chain.File)
		if err != nil {
			return nil, nil, err
		}
		return l, func() {}, nil
	case "sqlite":
		l, err := ledger.OpenSQLiteLedger(cfg.Storage.SQLiteDSN)
		if err != nil {
			return nil, nil, err
		}
		return l, func() { _ = l.Close() }, nil
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Storage.PostgresURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		l, err := ledger.NewPostgresLedger(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return l, pool.Close, nil
	case "memory":
		return ledger.NewMemoryLedger(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// ── append ───────────────────────────────────────────────────────────────────

var appendCmd = &cobra.Command{
	Use:   "append",
	Short: "Digest the monitored files and append one chain entry",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		c, err := setup(ctx)
		if err != nil {
			return err
		}
		defer c.cleanup()

		entry, err := c.builder.CreateEntry(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Entry created: %s\n", entry.Hash)
		return nil
	},
}

// ── verify ───────────────────────────────────────────────────────────────────

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Replay the whole ledger and check every link and hash",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		c, err := setup(ctx)
		if err != nil {
			return err
		}
		defer c.cleanup()

		valid, violations, err := c.verifier.VerifyChain(ctx)
		if err != nil {
			return err
		}
		if valid {
			length, _ := c.verifier.ChainLength(ctx)
			fmt.Printf("Chain valid: %d entries\n", length)
			return nil
		}

		fmt.Printf("Chain verification FAILED: %d violations\n", len(violations))
		for _, v := range violations {
			if v.Expected != "" || v.Found != "" {
				fmt.Printf("  entry %d: %s (expected %s, found %s)\n", v.Index, v.Reason, v.Expected, v.Found)
			} else {
				fmt.Printf("  entry %d: %s\n", v.Index, v.Reason)
			}
		}
		return errors.New("chain invalid")
	},
}

// ── status ───────────────────────────────────────────────────────────────────

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report chain length and drift against the last entry",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		c, err := setup(ctx)
		if err != nil {
			return err
		}
		defer c.cleanup()

		length, err := c.verifier.ChainLength(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Chain length: %d\n", length)

		matches, drifted, err := c.verifier.VerifyCurrentState(ctx)
		if err != nil {
			return err
		}
		if matches {
			fmt.Println("No drift since last entry")
			return nil
		}
		fmt.Printf("Drift detected in %d file(s):\n", len(drifted))
		paths := make([]string, 0, len(drifted))
		for path := range drifted {
			paths = append(paths, path)
		}
		sort.Strings(paths)
		for _, path := range paths {
			d := drifted[path]
			fmt.Printf("  %s: was %s, now %s\n", path, d.Was, d.Now)
		}
		return nil
	},
}

// ── watch ────────────────────────────────────────────────────────────────────

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Periodically append entries and run the drift tripwire",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		c, err := setup(ctx)
		if err != nil {
			return err
		}
		defer c.cleanup()

		c.logger.Info("watch loop started",
			zap.Duration("interval", c.cfg.Watch.Interval),
			zap.Strings("files", c.builder.MonitoredPaths()),
		)

		ticker := time.NewTicker(c.cfg.Watch.Interval)
		defer ticker.Stop()

		for {
			tick(ctx, c)
			select {
			case <-ctx.Done():
				c.logger.Info("watch loop stopping")
				return nil
			case <-ticker.C:
			}
		}
	},
}

// tick runs one watch iteration: drift check against the current tip,
// then a fresh entry. Failures are logged and the loop keeps going; only
// the append path is allowed to be fatal, and even there the next tick
// retries rather than killing the watcher.
func tick(ctx context.Context, c *components) {
	matches, drifted, err := c.verifier.VerifyCurrentState(ctx)
	if err != nil {
		c.logger.Error("drift check", zap.Error(err))
	} else if !matches {
		c.logger.Warn("drift detected", zap.Int("files", len(drifted)))
		ev := notify.NewEvent(notify.KindDrift)
		ev.Status = notify.StatusInvalid
		ev.Drifted = make(map[string]notify.Drift, len(drifted))
		for path, d := range drifted {
			ev.Drifted[path] = notify.Drift{Was: d.Was, Now: d.Now}
		}
		if length, lenErr := c.verifier.ChainLength(ctx); lenErr == nil {
			ev.ChainLength = length
		}
		if err := c.sink.Publish(ctx, ev); err != nil {
			c.logger.Warn("publish drift event", zap.Error(err))
		}
	}

	if _, err := c.builder.CreateEntry(ctx); err != nil {
		c.logger.Error("create entry", zap.Error(err))
	}
}

// ── serve ────────────────────────────────────────────────────────────────────

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the chain over HTTP with Prometheus metrics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		c, err := setup(ctx)
		if err != nil {
			return err
		}
		defer c.cleanup()

		srv := server.New(c.builder, c.verifier, c.logger)
		httpSrv := &http.Server{
			Addr:              fmt.Sprintf(":%d", c.cfg.Server.Port),
			Handler:           srv.Router(c.cfg.Server),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			c.logger.Info("http server listening", zap.Int("port", c.cfg.Server.Port))
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		select {
		case err := <-errCh:
			return fmt.Errorf("http server: %w", err)
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		c.logger.Info("http server stopped")
		return nil
	},
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the chainguard version",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("chainguard %s\n", version)
	},
}
