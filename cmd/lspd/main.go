// Command lspd is the long-lived language server entrypoint: it speaks
// JSON-RPC over stdio, drives the C8/C9 concurrency core
// (internal/lsp.Server), and optionally watches the workspace with
// watchman instead of relying solely on didChange notifications (spec §6).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/sorbet-go/checker/internal/config"
	"github.com/sorbet-go/checker/internal/errqueue"
	"github.com/sorbet-go/checker/internal/loc"
	"github.com/sorbet-go/checker/internal/lsp"
	"github.com/sorbet-go/checker/internal/statsd"
	"github.com/sorbet-go/checker/internal/watchman"
)

func main() {
	var (
		rootDir         = pflag.String("root", ".", "workspace root directory")
		disableWatchman = pflag.Bool("disable-watchman", false, "don't spawn a watchman subprocess")
		statsdAddr      = pflag.String("statsd-host", "", "statsd endpoint (host:port)")
		numWorkers      = pflag.Int("workers", 0, "worker pool size (0 = unbounded)")
	)
	pflag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().
		Str("component", "lspd").Logger()

	cfg := config.Config{
		RootDir:         *rootDir,
		WatchmanEnabled: !*disableWatchman,
		StatsdAddr:      *statsdAddr,
		NumWorkers:      *numWorkers,
	}.Resolve()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	files := &loc.Table{}
	errs := errqueue.New()
	checker := newPipelineChecker(files, errs)
	srv := lsp.NewServer(cfg, logger, os.Stdout, checker, files, errs)

	var sc *statsd.Client
	if cfg.StatsdAddr != "" {
		var err error
		sc, err = statsd.New(cfg.StatsdAddr, "lspd", cfg.StatsdFlushInterval)
		if err != nil {
			logger.Warn().Err(err).Msg("statsd disabled: dial failed")
		} else {
			defer sc.Close()
			go reportCounters(ctx, srv, sc)
		}
	}

	if cfg.WatchmanEnabled {
		startWatchman(cfg, logger, srv)
	}

	if err := srv.Run(ctx, os.Stdin); err != nil {
		logger.Error().Err(err).Msg("lspd: server exited with error")
		os.Exit(1)
	}
}

// reportCounters periodically ships the preprocessor's metric counters
// (lsp.messages.processed/sorbet.mergedEdits per spec §8 S6) to statsd,
// the long-running-process counterpart of cmd/check's one-shot flush.
func reportCounters(ctx context.Context, srv *lsp.Server, sc *statsd.Client) {
	const pollInterval = 10 * time.Second
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if !sc.ShouldFlush(now) {
				continue
			}
			for name, v := range srv.CounterValues() {
				sc.Count(name, v)
			}
			_ = sc.Flush(now)
		}
	}
}

// startWatchman wires the watchman listener's edits into the server; the
// original's "swallow error, disable feature" failure mode (spec §6, §7)
// is followed by only logging a Start failure, never treating it as
// fatal to the server process.
func startWatchman(cfg config.Config, logger zerolog.Logger, srv *lsp.Server) {
	l := &watchman.Listener{
		Root:       cfg.RootDir,
		Extensions: []string{"rb", "rbi"},
		OnEdits: func(edits []watchman.Edit) {
			for _, e := range edits {
				content, err := os.ReadFile(e.Path)
				if err != nil {
					continue // file removed or unreadable; next save will re-sync it
				}
				srv.IngestEdit(e.Path, string(content))
			}
		},
		OnExit: func(err error) {
			logger.Warn().Err(err).Msg("watchman: subprocess exited, file watching disabled")
		},
	}
	if err := l.Start(); err != nil {
		logger.Warn().Err(err).Msg("watchman: failed to start, file watching disabled")
	}
}
