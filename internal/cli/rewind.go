package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// RewindResult reports a ledger rewind.
type RewindResult struct {
	Head    uint64 `json:"head"`
	Removed int    `json:"removed"`
}

func (r RewindResult) String() string {
	return fmt.Sprintf("removed %d block(s); head is now %d", r.Removed, r.Head)
}

// NewRewindCommand creates the rewind command.
func NewRewindCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rewind <block>",
		Short: "Drop every ledger block above a height",
		Long: `Drop every block above <block> and rebuild registry state from the
survivors. Blocks appended afterwards fork from <block>; the next index
run retracts entities from the dropped blocks.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			to, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid block number", err)
			}
			cfg, err := rootOpts.loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := rootOpts.logger(cfg, cmd.ErrOrStderr())

			l, err := openLedger(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer closeLogged(logger, "ledger", l)

			removed, err := l.Rewind(cmd.Context(), to)
			if err != nil {
				return WrapExitError(ExitFailure, "rewind failed", err)
			}
			head, err := l.Head(cmd.Context())
			if err != nil {
				return err
			}
			return rootOpts.formatter(cmd).Success(RewindResult{Head: head.Number, Removed: removed})
		},
	}
	cmd.Flags().String("ledger", "", "ledger directory (overrides ledger.path)")
	return cmd
}
