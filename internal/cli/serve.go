package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/s01l/internal/projector"
	"github.com/roach88/s01l/internal/query"
	"github.com/roach88/s01l/internal/telemetry"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 5 * time.Second

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Index continuously and serve the query API",
		Long: `Run the projector in follow mode and serve the HTTP query API from the
same entity store. Reads tolerate projector lag: every response carries
the indexed head. A halted projector stops the server with exit code 1;
an unavailable store only pauses indexing.

Endpoints:
  GET /v1/entities/:id
  GET /v1/entities?kind=&contract_address=&parent=&from_block=&to_block=&order=&limit=&after=
  GET /v1/lineage/:address
  GET /v1/state
  GET /v1/status
  GET /metrics
  GET /healthz`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(rootOpts, cmd)
		},
	}

	cmd.Flags().String("addr", "", "listen address (overrides http.addr)")
	cmd.Flags().String("ledger", "", "ledger directory (overrides ledger.path)")
	cmd.Flags().String("store", "", "entity store path (overrides store.path)")

	return cmd
}

func runServe(opts *RootOptions, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig(cmd)
	if err != nil {
		return err
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

	svc := query.NewService(st, query.WithCacheTTL(cfg.HTTP.CacheTTL))
	p := projector.New(src, st, projectorOptions(cfg, logger,
		projector.WithTracer(tp.Tracer()),
		projector.WithRetractHook(svc.Invalidate),
	)...)

	if !opts.Verbose {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           query.NewRouter(svc, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := p.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		logger.Info("query API listening", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "serve stopped", err)
	}
	logger.Info("serve stopped gracefully")
	return nil
}
