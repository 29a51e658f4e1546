package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/roach88/s01l/internal/ir"
	"github.com/roach88/s01l/internal/ledger"
	"github.com/roach88/s01l/internal/projector"
	"github.com/roach88/s01l/internal/query"
	"github.com/roach88/s01l/internal/registry"
	"github.com/roach88/s01l/internal/store"
	"github.com/roach88/s01l/internal/testutil"
)

// Harness holds one scenario's collaborators.
type Harness struct {
	ledger    *ledger.Ledger
	store     *store.Store
	projector *projector.Projector
	query     *query.Service

	// binds maps scenario names ("$sprout1") to addresses.
	binds map[string]ir.Address
	// symbols maps addresses to their trace spelling.
	symbols map[ir.Address]string
}

// Run executes scenario against a fresh in-memory ledger and store.
// Failed expectations and assertions are reported in the Result; the
// error is reserved for scenarios that cannot run at all.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))

	h := &Harness{
		binds:   make(map[string]ir.Address),
		symbols: make(map[ir.Address]string),
	}

	regCfg, err := h.registryConfig(scenario.Registry)
	if err != nil {
		return nil, err
	}

	l, err := ledger.Open(ctx, ledger.Config{
		InMemory: true,
		Registry: regCfg,
		Clock:    testutil.NewBlockClock(),
		Logger:   quiet,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	defer l.Close()

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h.ledger = l
	h.store = st
	h.query = query.NewService(st)
	h.projector = projector.New(l, st,
		projector.WithLogger(quiet),
		projector.WithRetractHook(h.query.Invalidate),
	)

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.execute(ctx, i+1, step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	if err := h.projector.Sync(ctx); err != nil {
		return nil, fmt.Errorf("final sync: %w", err)
	}

	for i, a := range scenario.Assertions {
		if err := h.evaluate(ctx, a); err != nil {
			result.AddError(fmt.Sprintf("assertion %d (%s): %v", i+1, a.Type, err))
		}
	}
	return result, nil
}

func (h *Harness) registryConfig(setup *RegistrySetup) (registry.Config, error) {
	cfg := registry.Config{Address: testutil.Registry, Deployer: testutil.Deployer}
	if setup == nil {
		h.remember("0xd0", cfg.Deployer)
		return cfg, nil
	}
	cfg.Cost = setup.Cost
	if setup.Address != "" {
		a, err := ir.ParseAddress(setup.Address)
		if err != nil {
			return cfg, fmt.Errorf("registry address: %w", err)
		}
		cfg.Address = a
	}
	deployer := setup.Deployer
	if deployer == "" {
		deployer = "0xd0"
	}
	a, err := ir.ParseAddress(deployer)
	if err != nil {
		return cfg, fmt.Errorf("registry deployer: %w", err)
	}
	cfg.Deployer = a
	h.remember(deployer, a)
	return cfg, nil
}

func (h *Harness) execute(ctx context.Context, n int, step Step, result *Result) error {
	switch {
	case step.Call != "":
		return h.executeCall(ctx, n, step, result)

	case len(step.Batch) > 0:
		return h.executeBatch(ctx, n, step.Batch, result)

	case step.Rewind != nil:
		if _, err := h.ledger.Rewind(ctx, *step.Rewind); err != nil {
			return fmt.Errorf("rewind: %w", err)
		}
		result.Trace = append(result.Trace, TraceEvent{Step: n, Type: TraceRewind, Block: *step.Rewind})
		return nil

	case step.Sync:
		if err := h.projector.Sync(ctx); err != nil {
			return fmt.Errorf("sync: %w", err)
		}
		cp, _, err := h.store.Checkpoint(ctx)
		if err != nil {
			return fmt.Errorf("sync: %w", err)
		}
		result.Trace = append(result.Trace, TraceEvent{Step: n, Type: TraceSync, Block: cp.Block})
		return nil

	default:
		return fmt.Errorf("empty step")
	}
}

func (h *Harness) executeCall(ctx context.Context, n int, step Step, result *Result) error {
	from, call, err := h.prepare(step)
	if err != nil {
		return err
	}
	receipt, err := h.ledger.Submit(ctx, from, call)
	h.record(n, step, receipt, err, result)
	return nil
}

func (h *Harness) executeBatch(ctx context.Context, n int, steps []Step, result *Result) error {
	reqs := make([]ledger.Request, len(steps))
	for i, step := range steps {
		from, call, err := h.prepare(step)
		if err != nil {
			return fmt.Errorf("batch call %d: %w", i+1, err)
		}
		reqs[i] = ledger.Request{Caller: from, Call: call}
	}
	results, err := h.ledger.SubmitBatch(ctx, reqs)
	if err != nil {
		return fmt.Errorf("batch: %w", err)
	}
	for i, r := range results {
		var receipt ledger.Receipt
		if r.Receipt != nil {
			receipt = *r.Receipt
		}
		h.record(n, steps[i], receipt, r.Err, result)
	}
	return nil
}

// prepare resolves a call step's caller and arguments.
func (h *Harness) prepare(step Step) (ir.Address, registry.Call, error) {
	from, err := h.resolve(step.From)
	if err != nil {
		return ir.Address{}, nil, fmt.Errorf("from: %w", err)
	}
	h.remember(step.From, from)

	args := make(map[string]string, len(step.Args))
	for k, v := range step.Args {
		if looksLikeAddress(v) {
			a, err := h.resolve(v)
			if err != nil {
				return ir.Address{}, nil, fmt.Errorf("arg %s: %w", k, err)
			}
			h.remember(v, a)
			v = a.String()
		}
		args[k] = v
	}
	call, err := registry.ParseCall(step.Call, args)
	if err != nil {
		return ir.Address{}, nil, err
	}
	return from, call, nil
}

// record appends the outcome of one call to the trace and checks it
// against the step's expectation.
func (h *Harness) record(n int, step Step, receipt ledger.Receipt, err error, result *Result) {
	ev := TraceEvent{Step: n, Method: step.Call, From: step.From}
	if a, rerr := h.resolve(step.From); rerr == nil {
		ev.From = h.symbol(a)
	}

	if err != nil {
		code := string(registry.CodeOf(err))
		ev.Type = TraceRejected
		ev.Error = code
		result.Trace = append(result.Trace, ev)
		if step.ExpectError == "" {
			result.AddError(fmt.Sprintf("step %d: %s rejected: %v", n, step.Call, err))
		} else if step.ExpectError != code {
			result.AddError(fmt.Sprintf("step %d: %s rejected with %s, want %s", n, step.Call, code, step.ExpectError))
		}
		return
	}

	if !receipt.Contract.IsZero() {
		h.nameContract(receipt.Contract)
		if step.Bind != "" {
			h.binds["$"+step.Bind] = receipt.Contract
		}
	}
	ev.Type = TraceCall
	ev.Block = receipt.Block.Number
	for _, l := range receipt.Tx.Logs {
		ev.Logs = append(ev.Logs, TraceLog{Kind: string(l.Event.Kind()), Fields: h.symbolizeFields(l.Event.Fields())})
	}
	result.Trace = append(result.Trace, ev)

	if step.ExpectError != "" {
		result.AddError(fmt.Sprintf("step %d: %s accepted, want %s", n, step.Call, step.ExpectError))
	}
}

// resolve turns "$name" or hex into an address.
func (h *Harness) resolve(s string) (ir.Address, error) {
	if strings.HasPrefix(s, "$") {
		a, ok := h.binds[s]
		if !ok {
			return ir.Address{}, fmt.Errorf("unbound name %s", s)
		}
		return a, nil
	}
	return ir.ParseAddress(s)
}

// remember records the scenario's spelling of a literal address.
func (h *Harness) remember(spelled string, a ir.Address) {
	if strings.HasPrefix(spelled, "$") {
		return
	}
	if _, ok := h.symbols[a]; !ok {
		h.symbols[a] = strings.ToLower(spelled)
	}
}

func (h *Harness) nameContract(a ir.Address) {
	rec, ok := h.ledger.Snapshot().Records[a]
	if !ok {
		return
	}
	switch rec.Kind {
	case ir.ContractS33D:
		h.symbols[a] = fmt.Sprintf("$s33d:%d", rec.ID)
	case ir.ContractSprout:
		h.symbols[a] = fmt.Sprintf("$sprout:%d", rec.ID)
	}
}

func (h *Harness) symbol(a ir.Address) string {
	if s, ok := h.symbols[a]; ok {
		return s
	}
	if a.IsZero() {
		return "0x0"
	}
	return a.String()
}

func (h *Harness) symbolizeFields(fields map[string]string) map[string]string {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		if a, err := ir.ParseAddress(v); err == nil && looksLikeAddress(v) {
			v = h.symbol(a)
		}
		out[k] = v
	}
	return out
}

func looksLikeAddress(s string) bool {
	return strings.HasPrefix(s, "$") || strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X")
}
