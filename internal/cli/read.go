package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/s01l/internal/registry"
)

// ReadResult is the value of one accessor.
type ReadResult struct {
	Accessor string   `json:"accessor"`
	Args     []string `json:"args,omitempty"`
	Value    string   `json:"value"`
}

func (r ReadResult) String() string { return r.Value }

// NewReadCommand creates the read command.
func NewReadCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read [accessor] [arg]",
		Short: "Evaluate a read-only registry accessor",
		Long: `Evaluate a read-only registry accessor against the ledger's current
state. With no arguments, list the accessors.

Examples:
  s01l read owner
  s01l read getSproutContract 1
  s01l read parentChildRelationship 0x...`,
		Args:          cobra.MaximumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRead(rootOpts, cmd, args)
		},
	}
	cmd.Flags().String("ledger", "", "ledger directory (overrides ledger.path)")
	return cmd
}

func runRead(opts *RootOptions, cmd *cobra.Command, args []string) error {
	out := opts.formatter(cmd)
	if len(args) == 0 {
		names := registry.Accessors()
		if opts.Format == "json" {
			return out.Success(names)
		}
		return out.Success(strings.Join(names, "\n"))
	}

	cfg, err := opts.loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := opts.logger(cfg, cmd.ErrOrStderr())

	l, err := openLedger(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer closeLogged(logger, "ledger", l)

	value, err := l.Read(args[0], args[1:]...)
	if err != nil {
		_ = out.Error(CodeRejected, err.Error(), nil)
		return WrapExitError(ExitFailure, "read failed", err)
	}
	return out.Success(ReadResult{Accessor: args[0], Args: args[1:], Value: value})
}
