// Command check is the batch CLI entrypoint: it loads a set of source
// files, runs the fixed pipeline (names/symbols -> tree -> CFG -> infer),
// and prints diagnostics. The -autocorrect flag is accepted, but no
// autocorrect edits are applied. CLI flag
// parsing and config loading are out of scope per spec §1; this is the
// minimal wiring that exercises internal/config's resolved Config and the
// core packages end to end.
package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/sorbet-go/checker/internal/config"
	"github.com/sorbet-go/checker/internal/errqueue"
	"github.com/sorbet-go/checker/internal/fatal"
	"github.com/sorbet-go/checker/internal/loc"
	"github.com/sorbet-go/checker/internal/statsd"
)

func main() {
	var (
		rootDir    = pflag.String("root", ".", "workspace root directory")
		autocorr   = pflag.Bool("autocorrect", false, "accepted but has no effect: autocorrect suggestions are not applied")
		statsdAddr = pflag.String("statsd-host", "", "statsd endpoint (host:port)")
		quiet      = pflag.Bool("quiet", false, "suppress non-error logging")
	)
	pflag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().
		Str("component", "check").Logger()
	if *quiet {
		logger = logger.Level(zerolog.ErrorLevel)
	}

	cfg := config.Config{RootDir: *rootDir, StatsdAddr: *statsdAddr}.Resolve()

	exitCode, err := run(cfg, logger, *autocorr)
	var ec fatal.ExitCoder
	if errors.As(err, &ec) {
		os.Exit(ec.ExitCode())
	}
	if err != nil {
		logger.Error().Err(err).Msg("checker failed")
		os.Exit(1)
	}
	os.Exit(exitCode)
}

// run loads files, builds the file table, drives the pipeline, and flushes
// diagnostics. The parser that turns file text into a tree.Node per method
// is an external collaborator (spec §1); run here accepts already-parsed
// methods via the loadMethods hook so this package stays a thin wiring
// layer rather than embedding a toy parser.
func run(cfg config.Config, logger zerolog.Logger, autocorrect bool) (int, error) {
	files := loc.Table{}
	queue := errqueue.New()

	var sc *statsd.Client
	if cfg.StatsdAddr != "" {
		var err error
		sc, err = statsd.New(cfg.StatsdAddr, "checker", cfg.StatsdFlushInterval)
		if err != nil {
			logger.Warn().Err(err).Msg("statsd disabled: dial failed")
		}
	}
	if sc != nil {
		defer sc.Close()
		defer sc.Flush(time.Now())
	}

	methods, err := loadMethods(cfg.RootDir, &files)
	if err != nil {
		return 1, &fatal.EarlyReturn{Code: 1, Reason: fmt.Sprintf("loading %s: %v", cfg.RootDir, err)}
	}

	var errCount int
	for _, m := range methods {
		fileErrors, edits := checkMethod(m)
		for _, e := range fileErrors {
			queue.Push(m.File, e, false, false)
		}
		_ = edits
		queue.MarkFileForFlushing(m.File)
	}

	drained := queue.DrainFlushed()
	diags := errqueue.Flush(drained)
	for _, d := range diags {
		fmt.Println(d.Text)
		errCount++
	}
	if sc != nil {
		sc.Count("checker.errors", int64(errCount))
	}

	if errCount > 0 {
		return 1, nil
	}
	return 0, nil
}
