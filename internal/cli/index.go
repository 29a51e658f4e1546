package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/s01l/internal/projector"
	"github.com/roach88/s01l/internal/telemetry"
)

// IndexOptions holds flags for the index command.
type IndexOptions struct {
	*RootOptions
	Follow   bool
	FromFile string
}

// IndexResult summarizes one index run.
type IndexResult struct {
	RunID      string `json:"run_id"`
	Checkpoint uint64 `json:"checkpoint"`
	Blocks     uint64 `json:"blocks"`
	Applied    uint64 `json:"applied"`
	Duplicates uint64 `json:"duplicates"`
	Retracted  uint64 `json:"retracted"`
	Reorgs     uint64 `json:"reorgs"`
}

func (r IndexResult) String() string {
	return fmt.Sprintf("indexed to block %d: %d blocks, %d entities applied, %d duplicates, %d retracted in %d reorgs",
		r.Checkpoint, r.Blocks, r.Applied, r.Duplicates, r.Retracted, r.Reorgs)
}

// NewIndexCommand creates the index command.
func NewIndexCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IndexOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Project the event log into the entity store",
		Long: `Apply every block the store has not seen yet, then exit. With --follow,
keep applying new blocks until interrupted.

The source is the local ledger unless --from-file names an exported log
file, which is then watched for changes.

Exit codes:
  0 - Caught up (or stopped by signal with --follow)
  1 - Projection halted (conflict, failed retraction, source mismatch)
  2 - Command error

Examples:
  s01l index
  s01l index --follow
  s01l index --from-file ./export.ndjson --follow`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(opts, cmd)
		},
	}

	cmd.Flags().BoolVarP(&opts.Follow, "follow", "f", false, "keep indexing new blocks until interrupted")
	cmd.Flags().StringVar(&opts.FromFile, "from-file", "", "index an exported log file instead of the ledger")
	cmd.Flags().String("ledger", "", "ledger directory (overrides ledger.path)")
	cmd.Flags().String("store", "", "entity store path (overrides store.path)")

	return cmd
}

func runIndex(opts *IndexOptions, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig(cmd)
	if err != nil {
		return err
	}
	if opts.FromFile != "" {
		cfg.Projector.Source = "logfile"
		cfg.Projector.LogFile = opts.FromFile
	}
	logger := opts.logger(cfg, cmd.ErrOrStderr())

	ctx, stop := signalContext(cmd.Context(), logger)
	defer stop()

	tp, err := telemetry.NewProvider(cfg.Tracing)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start tracing", err)
	}
	defer tp.Shutdown(context.Background())

	src, closer, err := openSource(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLogged(logger, "source", closer)

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeLogged(logger, "store", st)

	p := projector.New(src, st, projectorOptions(cfg, logger, projector.WithTracer(tp.Tracer()))...)

	if opts.Follow {
		logger.Info("indexing", "source", src.ID(), "store", cfg.Store.Path, "run_id", p.Stats().RunID)
		err = p.Run(ctx)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
	} else {
		err = p.Sync(ctx)
	}
	if err != nil {
		return WrapExitError(ExitFailure, "indexing stopped", err)
	}

	stats := p.Stats()
	result := IndexResult{
		RunID:      stats.RunID,
		Blocks:     stats.Blocks,
		Applied:    stats.Applied,
		Duplicates: stats.Duplicates,
		Retracted:  stats.Retracted,
		Reorgs:     stats.Reorgs,
	}
	if cp, found, err := st.Checkpoint(context.Background()); err == nil && found {
		result.Checkpoint = cp.Block
	}
	return opts.formatter(cmd).Success(result)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context, logger *slog.Logger) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}
