package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/s01l/internal/ir"
	"github.com/roach88/s01l/internal/query"
)

// NewLineageCommand creates the lineage command.
func NewLineageCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lineage <address>",
		Short: "Show a contract's ancestors and children",
		Long: `Walk the parent chain of a Sprout contract back to its root and list the
Sprouts it created, using indexed SproutContractCreated entities.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := ir.ParseAddress(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid address", err)
			}
			return withService(rootOpts, cmd, func(svc *query.Service) error {
				l, err := svc.Lineage(cmd.Context(), addr)
				if errors.Is(err, query.ErrNotFound) {
					_ = rootOpts.formatter(cmd).Error(CodeNotFound, err.Error(), nil)
					return WrapExitError(ExitFailure, "no lineage", err)
				}
				if err != nil {
					return err
				}
				if rootOpts.Format == "json" {
					return rootOpts.formatter(cmd).Success(l)
				}
				return rootOpts.formatter(cmd).Success(formatLineage(l))
			})
		},
	}
	cmd.Flags().String("store", "", "entity store path (overrides store.path)")
	return cmd
}

func formatLineage(l query.Lineage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", l.Address)
	fmt.Fprintf(&b, "root  %s (depth %d)\n", l.Root(), len(l.Ancestors))

	ancestors := make([][]string, len(l.Ancestors))
	for i, a := range l.Ancestors {
		ancestors[i] = []string{a.Contract.String(), fmt.Sprint(a.SproutID), a.Parent.String(), a.Position.String()}
	}
	b.WriteString(Table([]string{"CONTRACT", "SPROUT", "CREATED BY", "POSITION"}, ancestors))

	children := make([][]string, len(l.Children))
	for i, c := range l.Children {
		children[i] = []string{c.Contract.String(), fmt.Sprint(c.SproutID), c.Position.String()}
	}
	b.WriteString(Table([]string{"CHILD", "SPROUT", "POSITION"}, children))
	return strings.TrimRight(b.String(), "\n")
}
