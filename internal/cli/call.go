package cli

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/s01l/internal/ir"
	"github.com/roach88/s01l/internal/ledger"
	"github.com/roach88/s01l/internal/registry"
)

// CallOptions holds flags for the call commands.
type CallOptions struct {
	*RootOptions
	From   string
	DryRun bool
}

// EventView is an emitted event in CLI output.
type EventView struct {
	Kind   ir.EventKind      `json:"kind"`
	Fields map[string]string `json:"fields"`
}

func (e EventView) String() string {
	return fmt.Sprintf("%s %s", e.Kind, e.fieldsString())
}

// fieldsString renders fields as sorted key=value pairs.
func (e EventView) fieldsString() string {
	keys := slices.Sorted(maps.Keys(e.Fields))
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + e.Fields[k]
	}
	return strings.Join(parts, " ")
}

// CallResult is the receipt of an accepted call. For a dry run Block is
// the block the call would land in and Tx is zero.
type CallResult struct {
	DryRun   bool        `json:"dry_run,omitempty"`
	Block    uint64      `json:"block"`
	Tx       ir.Hash     `json:"tx"`
	Contract *ir.Address `json:"contract,omitempty"`
	Events   []EventView `json:"events"`
}

func (r CallResult) String() string {
	var b strings.Builder
	if r.DryRun {
		fmt.Fprintf(&b, "dry run: accepted at block %d", r.Block)
	} else {
		fmt.Fprintf(&b, "block %d tx %s", r.Block, r.Tx)
	}
	if r.Contract != nil {
		fmt.Fprintf(&b, "\ncontract %s", r.Contract)
	}
	for _, e := range r.Events {
		fmt.Fprintf(&b, "\n  %s", e)
	}
	return b.String()
}

// NewCallCommand creates the call command and one subcommand per
// registry operation.
func NewCallCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CallOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "call",
		Short: "Submit a registry call to the event log",
		Long: `Submit a registry call on behalf of --from. An accepted call is sealed
into a new block; a rejected call changes nothing and exits 1.

Examples:
  s01l call trust 0xAAA --from 0xD0
  s01l call sprout 0xBBB --from 0xAAA
  s01l call seed Oak OAK --from 0xBBB
  s01l call renounce --from 0xD0 --dry-run`,
	}

	cmd.PersistentFlags().StringVar(&opts.From, "from", "", "caller address (required)")
	_ = cmd.MarkPersistentFlagRequired("from")
	cmd.PersistentFlags().BoolVar(&opts.DryRun, "dry-run", false, "check the call without submitting it")
	cmd.PersistentFlags().String("ledger", "", "ledger directory (overrides ledger.path)")
	cmd.PersistentFlags().String("deployer", "", "deployer used when creating a new ledger")

	sub := func(use, short string, nargs int, build func(args []string) (registry.Call, error)) *cobra.Command {
		return &cobra.Command{
			Use:           use,
			Short:         short,
			Args:          cobra.ExactArgs(nargs),
			SilenceUsage:  true,
			SilenceErrors: true,
			RunE: func(c *cobra.Command, args []string) error {
				call, err := build(args)
				if err != nil {
					return WrapExitError(ExitCommandError, "invalid arguments", err)
				}
				return runCall(opts, c, call)
			},
		}
	}
	cmd.AddCommand(
		sub("seed <name> <symbol>", "Create a S33D contract (S0WS33D)", 2, func(args []string) (registry.Call, error) {
			return registry.Seed{Name: args[0], Symbol: args[1]}, nil
		}),
		sub("sprout <new-owner>", "Create a Sprout contract owned by new-owner", 1, func(args []string) (registry.Call, error) {
			a, err := ir.ParseAddress(args[0])
			return registry.CreateSprout{NewOwner: a}, err
		}),
		sub("trust <contract>", "Add a contract to the trusted set", 1, func(args []string) (registry.Call, error) {
			a, err := ir.ParseAddress(args[0])
			return registry.AddTrusted{Contract: a}, err
		}),
		sub("untrust <contract>", "Remove a contract from the trusted set", 1, func(args []string) (registry.Call, error) {
			a, err := ir.ParseAddress(args[0])
			return registry.RemoveTrusted{Contract: a}, err
		}),
		sub("transfer-ownership <new-owner>", "Hand registry ownership to new-owner", 1, func(args []string) (registry.Call, error) {
			a, err := ir.ParseAddress(args[0])
			return registry.TransferOwnership{NewOwner: a}, err
		}),
		sub("renounce", "Renounce registry ownership permanently", 0, func([]string) (registry.Call, error) {
			return registry.RenounceOwnership{}, nil
		}),
	)

	return cmd
}

func runCall(opts *CallOptions, cmd *cobra.Command, call registry.Call) error {
	from, err := ir.ParseAddress(opts.From)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --from", err)
	}
	cfg, err := opts.loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := opts.logger(cfg, cmd.ErrOrStderr())
	out := opts.formatter(cmd)

	l, err := openLedger(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer closeLogged(logger, "ledger", l)

	if opts.DryRun {
		return previewCall(opts, cmd, l, from, call)
	}

	receipt, err := l.Submit(cmd.Context(), from, call)
	if err != nil {
		return callFailed(out, err, "submit failed")
	}

	result := CallResult{
		Block:  receipt.Block.Number,
		Tx:     receipt.Tx.Hash,
		Events: make([]EventView, len(receipt.Tx.Logs)),
	}
	if !receipt.Contract.IsZero() {
		c := receipt.Contract
		result.Contract = &c
	}
	for i, lg := range receipt.Tx.Logs {
		result.Events[i] = EventView{Kind: lg.Event.Kind(), Fields: lg.Event.Fields()}
	}
	return out.Success(result)
}

func previewCall(opts *CallOptions, cmd *cobra.Command, l *ledger.Ledger, from ir.Address, call registry.Call) error {
	out := opts.formatter(cmd)
	head, err := l.Head(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "read ledger head", err)
	}
	res, err := l.Preview(from, call)
	if err != nil {
		return callFailed(out, err, "preview failed")
	}

	result := CallResult{DryRun: true, Block: head.Number + 1, Events: make([]EventView, len(res.Events))}
	if !res.Contract.IsZero() {
		c := res.Contract
		result.Contract = &c
	}
	for i, e := range res.Events {
		result.Events[i] = EventView{Kind: e.Kind(), Fields: e.Fields()}
	}
	return out.Success(result)
}

// callFailed reports a registry rejection with exit code 1; anything else
// is a command error.
func callFailed(out *OutputFormatter, err error, msg string) error {
	if code := registry.CodeOf(err); code != "" {
		_ = out.Error(CodeRejected, err.Error(), map[string]string{"reason": string(code)})
		return WrapExitError(ExitFailure, "call rejected", err)
	}
	return WrapExitError(ExitCommandError, msg, err)
}
