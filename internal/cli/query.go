package cli

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/s01l/internal/ir"
	"github.com/roach88/s01l/internal/query"
	"github.com/roach88/s01l/internal/queryir"
)

// QueryOptions holds flags for the query commands.
type QueryOptions struct {
	*RootOptions
	Kind     string
	Contract string
	Parent   string
	Tx       string
	Order    string
	Limit    int
	After    string

	// FromBlock and ToBlock are negative when unset.
	FromBlock int64
	ToBlock   int64
}

// NewQueryCommand creates the query command group.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Read indexed entities from the entity store",
		Long: `Read indexed entities. Results reflect the store's checkpoint, which
may trail the ledger; run "s01l index" to catch up.`,
	}
	cmd.PersistentFlags().String("store", "", "entity store path (overrides store.path)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List entities in position order",
		Example: `  s01l query list --kind SproutContractCreated
  s01l query list --parent 0xAAA --order desc --limit 10
  s01l query list --after 4/0/0
  s01l query list --from-block 10 --to-block 20`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueryList(opts, cmd)
		},
	}
	list.Flags().StringVar(&opts.Kind, "kind", "", "event kind")
	list.Flags().StringVar(&opts.Contract, "contract", "", "contractAddress field")
	list.Flags().StringVar(&opts.Parent, "parent", "", "parent field")
	list.Flags().StringVar(&opts.Tx, "tx", "", "transaction hash")
	list.Flags().StringVar(&opts.Order, "order", "asc", "asc or desc")
	list.Flags().IntVar(&opts.Limit, "limit", queryir.DefaultLimit, "page size")
	list.Flags().StringVar(&opts.After, "after", "", "cursor from a previous page (block/tx/log)")
	list.Flags().Int64Var(&opts.FromBlock, "from-block", -1, "first block, inclusive")
	list.Flags().Int64Var(&opts.ToBlock, "to-block", -1, "last block, inclusive")

	get := &cobra.Command{
		Use:           "get <id>",
		Short:         "Show one entity",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(opts.RootOptions, cmd, func(svc *query.Service) error {
				e, err := svc.Get(cmd.Context(), args[0])
				if errors.Is(err, query.ErrNotFound) {
					_ = opts.formatter(cmd).Error(CodeNotFound, err.Error(), nil)
					return WrapExitError(ExitFailure, "entity not found", err)
				}
				if err != nil {
					return err
				}
				return opts.formatter(cmd).Success(entityView(e))
			})
		},
	}

	var latestN int
	latest := &cobra.Command{
		Use:           "latest <kind>",
		Short:         "Show the newest entities of a kind",
		Example:       `  s01l query latest SproutContractCreated -n 1`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := ir.EventKind(args[0])
			if !kind.Valid() {
				return NewExitError(ExitCommandError, fmt.Sprintf("unknown event kind %q", args[0]))
			}
			return withService(opts.RootOptions, cmd, func(svc *query.Service) error {
				entities, err := svc.Latest(cmd.Context(), kind, latestN)
				if err != nil {
					return err
				}
				return opts.writeEntities(cmd, query.Page{Entities: entities})
			})
		},
	}
	latest.Flags().IntVarP(&latestN, "count", "n", 1, "number of entities")

	state := &cobra.Command{
		Use:           "state",
		Short:         "Rebuild registry state from indexed history",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(opts.RootOptions, cmd, func(svc *query.Service) error {
				snap, err := svc.Reconstruct(cmd.Context())
				if err != nil {
					return err
				}
				if opts.Format == "json" {
					return opts.formatter(cmd).Success(snap)
				}
				return opts.formatter(cmd).Success(formatSnapshot(snap))
			})
		},
	}

	status := &cobra.Command{
		Use:           "status",
		Short:         "Show the indexed head and entity counts",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(opts.RootOptions, cmd, func(svc *query.Service) error {
				st, err := svc.Status(cmd.Context())
				if err != nil {
					return err
				}
				if opts.Format == "json" {
					return opts.formatter(cmd).Success(st)
				}
				return opts.formatter(cmd).Success(formatStatus(st))
			})
		},
	}

	cmd.AddCommand(list, get, latest, state, status)
	return cmd
}

// withService opens the configured store for the duration of fn.
func withService(opts *RootOptions, cmd *cobra.Command, fn func(*query.Service) error) error {
	cfg, err := opts.loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := opts.logger(cfg, cmd.ErrOrStderr())
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeLogged(logger, "store", st)
	return fn(query.NewService(st))
}

func (o *QueryOptions) params() (query.ListParams, error) {
	p := query.ListParams{
		Kind:  ir.EventKind(o.Kind),
		Order: queryir.Order(o.Order),
		Limit: o.Limit,
	}
	var err error
	if o.Contract != "" {
		if p.ContractAddress, err = ir.ParseAddress(o.Contract); err != nil {
			return p, fmt.Errorf("--contract: %w", err)
		}
	}
	if o.Parent != "" {
		if p.Parent, err = ir.ParseAddress(o.Parent); err != nil {
			return p, fmt.Errorf("--parent: %w", err)
		}
	}
	if o.Tx != "" {
		if p.TransactionHash, err = ir.ParseHash(o.Tx); err != nil {
			return p, fmt.Errorf("--tx: %w", err)
		}
	}
	if o.After != "" {
		pos, err := ir.ParsePosition(o.After)
		if err != nil {
			return p, fmt.Errorf("--after: %w", err)
		}
		p.After = &pos
	}
	if o.FromBlock >= 0 {
		from := uint64(o.FromBlock)
		p.FromBlock = &from
	}
	if o.ToBlock >= 0 {
		to := uint64(o.ToBlock)
		p.ToBlock = &to
	}
	return p, nil
}

func runQueryList(opts *QueryOptions, cmd *cobra.Command) error {
	p, err := opts.params()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid filter", err)
	}
	return withService(opts.RootOptions, cmd, func(svc *query.Service) error {
		page, err := svc.List(cmd.Context(), p)
		if err != nil {
			return WrapExitError(ExitCommandError, "query failed", err)
		}
		return opts.writeEntities(cmd, page)
	})
}

// EntityView is an entity in CLI output.
type EntityView struct {
	ID              string            `json:"id"`
	Kind            ir.EventKind      `json:"kind"`
	Position        string            `json:"position"`
	BlockTimestamp  int64             `json:"block_timestamp"`
	TransactionHash ir.Hash           `json:"transaction_hash"`
	Fields          map[string]string `json:"fields"`
}

func entityView(e ir.Entity) EntityView {
	return EntityView{
		ID:              e.ID,
		Kind:            e.Kind,
		Position:        e.Position.String(),
		BlockTimestamp:  e.BlockTimestamp,
		TransactionHash: e.TransactionHash,
		Fields:          e.Fields,
	}
}

func (v EntityView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", v.Kind, v.ID)
	fmt.Fprintf(&b, "  position  %s\n", v.Position)
	fmt.Fprintf(&b, "  tx        %s\n", v.TransactionHash)
	fmt.Fprintf(&b, "  timestamp %d", v.BlockTimestamp)
	for _, k := range slices.Sorted(maps.Keys(v.Fields)) {
		fmt.Fprintf(&b, "\n  %s = %s", k, v.Fields[k])
	}
	return b.String()
}

func (o *RootOptions) writeEntities(cmd *cobra.Command, page query.Page) error {
	if o.Format == "json" {
		return o.formatter(cmd).Success(page)
	}
	rows := make([][]string, len(page.Entities))
	for i, e := range page.Entities {
		rows[i] = []string{e.Position.String(), string(e.Kind), EventView{Kind: e.Kind, Fields: e.Fields}.fieldsString(), e.ID}
	}
	w := cmd.OutOrStdout()
	fmt.Fprint(w, Table([]string{"POSITION", "KIND", "FIELDS", "ID"}, rows))
	if page.Cursor != "" {
		fmt.Fprintln(w, mutedStyle.Render("next page: --after "+page.Cursor))
	}
	return nil
}

func formatSnapshot(s query.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "owner          %s\n", s.Owner)
	fmt.Fprintf(&b, "s33d counter   %d\n", s.S33DCounter)
	fmt.Fprintf(&b, "sprout counter %d\n", s.SproutCounter)

	trusted := make([][]string, len(s.Trusted))
	for i, a := range s.Trusted {
		trusted[i] = []string{a.String()}
	}
	b.WriteString(Table([]string{"TRUSTED"}, trusted))

	sprouts := make([][]string, 0, len(s.Sprouts))
	for _, id := range slices.Sorted(maps.Keys(s.Sprouts)) {
		addr := s.Sprouts[id]
		sprouts = append(sprouts, []string{strconv.FormatUint(id, 10), addr.String(), s.Parents[addr].String()})
	}
	b.WriteString(Table([]string{"SPROUT", "ADDRESS", "PARENT"}, sprouts))

	seeds := make([][]string, 0, len(s.S33D))
	for _, id := range slices.Sorted(maps.Keys(s.S33D)) {
		seeds = append(seeds, []string{strconv.FormatUint(id, 10), s.S33D[id].String()})
	}
	b.WriteString(Table([]string{"S33D", "ADDRESS"}, seeds))
	return strings.TrimRight(b.String(), "\n")
}

func formatStatus(st query.Status) string {
	var b strings.Builder
	if st.Head == nil {
		b.WriteString("nothing indexed yet\n")
	} else {
		fmt.Fprintf(&b, "source %s\nhead   %d %s\n", st.Head.SourceID, st.Head.Block, st.Head.Hash)
	}
	rows := make([][]string, 0, len(ir.EventKinds)+1)
	for _, kind := range ir.EventKinds {
		rows = append(rows, []string{string(kind), strconv.FormatInt(st.Counts[kind], 10)})
	}
	rows = append(rows, []string{"total", strconv.FormatInt(st.Total, 10)})
	b.WriteString(Table([]string{"KIND", "ENTITIES"}, rows))
	return strings.TrimRight(b.String(), "\n")
}
