package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/s01l/internal/logfile"
)

// ExportResult reports a written log file.
type ExportResult struct {
	Path     string `json:"path"`
	SourceID string `json:"source_id"`
	Blocks   int    `json:"blocks"`
}

func (r ExportResult) String() string {
	return fmt.Sprintf("wrote %d block(s) of %s to %s", r.Blocks, r.SourceID, r.Path)
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <path>",
		Short: "Write the ledger to a log file",
		Long: `Write every ledger block to an NDJSON log file, replacing it atomically.
"s01l index --from-file <path> --follow" tails such a file and picks up
each new export.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
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

			n, err := logfile.Export(cmd.Context(), l, args[0])
			if err != nil {
				return WrapExitError(ExitFailure, "export failed", err)
			}
			return rootOpts.formatter(cmd).Success(ExportResult{Path: args[0], SourceID: l.ID(), Blocks: n})
		},
	}
	cmd.Flags().String("ledger", "", "ledger directory (overrides ledger.path)")
	return cmd
}
