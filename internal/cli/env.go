package cli

import (
	"context"
	"io"
	"log/slog"

	"github.com/roach88/s01l/internal/config"
	"github.com/roach88/s01l/internal/ledger"
	"github.com/roach88/s01l/internal/logfile"
	"github.com/roach88/s01l/internal/projector"
	"github.com/roach88/s01l/internal/store"
)

// openLedger opens the configured event log.
func openLedger(ctx context.Context, cfg config.Config, logger *slog.Logger) (*ledger.Ledger, error) {
	l, err := ledger.Open(ctx, ledger.Config{
		Path:       cfg.Ledger.Path,
		InMemory:   cfg.Ledger.InMemory,
		SyncWrites: cfg.Ledger.SyncWrites,
		Registry:   cfg.Ledger.Registry(),
		Logger:     logger,
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open ledger", err)
	}
	return l, nil
}

// openStore opens the configured entity store.
func openStore(cfg config.Config) (*store.Store, error) {
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open entity store", err)
	}
	return st, nil
}

// openSource opens the projector's event source: the ledger itself or a
// tailed log file, per projector.source. The returned closer releases
// whatever was opened.
func openSource(ctx context.Context, cfg config.Config, logger *slog.Logger) (projector.Source, io.Closer, error) {
	if cfg.Projector.Source == "logfile" {
		src, err := logfile.Open(logfile.Config{
			Path:     cfg.Projector.LogFile,
			Debounce: cfg.Projector.Debounce,
			Logger:   logger,
		})
		if err != nil {
			return nil, nil, WrapExitError(ExitCommandError, "failed to open log file", err)
		}
		return src, src, nil
	}
	l, err := openLedger(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return l, l, nil
}

// closeLogged closes c and logs, rather than returns, a failure.
func closeLogged(logger *slog.Logger, what string, c io.Closer) {
	if err := c.Close(); err != nil {
		logger.Error("close failed", "what", what, "error", err)
	}
}

func projectorOptions(cfg config.Config, logger *slog.Logger, extra ...projector.Option) []projector.Option {
	opts := []projector.Option{
		projector.WithLogger(logger),
		projector.WithPollInterval(cfg.Projector.PollInterval),
		projector.WithRetryBudget(cfg.Projector.RetryBudget),
	}
	return append(opts, extra...)
}
