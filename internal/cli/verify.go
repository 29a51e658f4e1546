package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/s01l/internal/ir"
	"github.com/roach88/s01l/internal/ledger"
	"github.com/roach88/s01l/internal/projector"
	"github.com/roach88/s01l/internal/query"
	"github.com/roach88/s01l/internal/store"
)

// VerifyResult reports whether the index reproduces the ledger.
type VerifyResult struct {
	Head       uint64   `json:"head"`
	Checkpoint *uint64  `json:"checkpoint,omitempty"`
	Entities   int      `json:"entities"`
	OK         bool     `json:"ok"`
	Mismatches []string `json:"mismatches,omitempty"`
}

func (r VerifyResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "ledger head %d, %d entities", r.Head, r.Entities)
	if r.Checkpoint != nil {
		fmt.Fprintf(&b, ", store checkpoint %d", *r.Checkpoint)
	}
	if r.OK {
		b.WriteString("\n✓ index matches registry state")
		return b.String()
	}
	for _, m := range r.Mismatches {
		fmt.Fprintf(&b, "\n✗ %s", m)
	}
	return b.String()
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check that indexing reproduces registry state",
		Long: `Project the whole ledger into a scratch in-memory store and check that
the state rebuilt from those entities equals the registry's own state.
When the configured store is at the ledger head, its entities must also
equal the scratch projection one for one.

Exit codes:
  0 - Index and registry agree
  1 - Mismatch found
  2 - Command error`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(rootOpts, cmd)
		},
	}
	cmd.Flags().String("ledger", "", "ledger directory (overrides ledger.path)")
	cmd.Flags().String("store", "", "entity store path (overrides store.path)")
	return cmd
}

func runVerify(opts *RootOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	cfg, err := opts.loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := opts.logger(cfg, cmd.ErrOrStderr())

	l, err := openLedger(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLogged(logger, "ledger", l)

	head, err := l.Head(ctx)
	if err != nil {
		return err
	}
	scratch, err := project(ctx, l)
	if err != nil {
		return WrapExitError(ExitFailure, "scratch projection failed", err)
	}
	defer closeLogged(logger, "scratch store", scratch)

	want, err := scratch.EntitiesFrom(ctx, 0)
	if err != nil {
		return err
	}
	snap, err := query.NewService(scratch).Reconstruct(ctx)
	if err != nil {
		return err
	}

	result := VerifyResult{Head: head.Number, Entities: len(want)}
	result.Mismatches = snap.Diff(l.Snapshot())

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeLogged(logger, "store", st)

	cp, found, err := st.Checkpoint(ctx)
	if err != nil {
		return err
	}
	if found {
		result.Checkpoint = &cp.Block
		if cp.Block == head.Number && cp.Hash == head.Hash {
			got, err := st.EntitiesFrom(ctx, 0)
			if err != nil {
				return err
			}
			result.Mismatches = append(result.Mismatches, compareEntities(got, want)...)
		} else {
			logger.Info("store is not at the ledger head; skipping entity comparison",
				"checkpoint", cp.Block, "head", head.Number)
		}
	}

	result.OK = len(result.Mismatches) == 0
	out := opts.formatter(cmd)
	if !result.OK {
		if opts.Format == "json" {
			_ = out.Error(CodeMismatch, "index does not reproduce the registry", result)
		} else {
			_ = out.Success(result)
		}
		return NewExitError(ExitFailure, fmt.Sprintf("%d mismatch(es)", len(result.Mismatches)))
	}
	return out.Success(result)
}

// project indexes every block of l into a fresh in-memory store.
func project(ctx context.Context, l *ledger.Ledger) (*store.Store, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, err
	}
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := projector.New(l, st, projector.WithLogger(quiet)).Sync(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

// compareEntities lists differences between two position-ordered entity
// sets.
func compareEntities(got, want []ir.Entity) []string {
	var diffs []string
	if len(got) != len(want) {
		diffs = append(diffs, fmt.Sprintf("store holds %d entities, ledger implies %d", len(got), len(want)))
	}
	for i := range min(len(got), len(want)) {
		if !got[i].Equal(want[i]) {
			diffs = append(diffs, fmt.Sprintf("entity %d: store has %s at %s, ledger implies %s at %s",
				i, got[i].ID, got[i].Position, want[i].ID, want[i].Position))
		}
	}
	return diffs
}
