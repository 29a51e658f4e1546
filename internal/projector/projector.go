package projector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/s01l/internal/ir"
	"github.com/roach88/s01l/internal/store"
)

// Source is an ordered, append-mostly block log. Blocks above the head
// may be replaced (a reorg); Changed fires after every append or rewind.
type Source interface {
	ID() string
	Head(ctx context.Context) (ir.BlockRef, error)
	BlockByNumber(ctx context.Context, n uint64) (ir.Block, error)
	Changed() <-chan struct{}
}

// Store is the subset of *store.Store the projector writes through.
type Store interface {
	InsertEntity(ctx context.Context, e ir.Entity) (bool, error)
	RecordBlock(ctx context.Context, sourceID string, ref ir.BlockRef) error
	Checkpoint(ctx context.Context) (store.Checkpoint, bool, error)
	BlockHash(ctx context.Context, n uint64) (ir.Hash, bool, error)
	Retract(ctx context.Context, from uint64) (int64, error)
	HasEntitiesFrom(ctx context.Context, from uint64) (bool, error)
}

var _ Store = (*store.Store)(nil)

// DefaultPollInterval is how often Run re-checks the source head when no
// change notification arrives.
const DefaultPollInterval = time.Second

// Stats summarizes what a projector has done since it was created.
type Stats struct {
	RunID      string
	Blocks     uint64
	Applied    uint64
	Duplicates uint64
	Retracted  uint64
	Reorgs     uint64
}

// Projector applies blocks from a Source to a Store.
//
// Run and Sync must not be called concurrently. Stats is safe from any
// goroutine.
type Projector struct {
	src    Source
	st     Store
	logger *slog.Logger
	tracer trace.Tracer

	newBackOff   func() backoff.BackOff
	retryBudget  time.Duration
	pollInterval time.Duration
	onRetract    func(from uint64)

	mu     sync.Mutex
	stats  Stats
	halted error
}

// Option configures a Projector.
type Option func(*Projector)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Projector) { p.logger = l }
}

// WithTracer sets the tracer used for per-block spans.
func WithTracer(t trace.Tracer) Option {
	return func(p *Projector) { p.tracer = t }
}

// WithBackOff sets the retry schedule factory. Each retried operation gets
// a fresh BackOff.
func WithBackOff(f func() backoff.BackOff) Option {
	return func(p *Projector) { p.newBackOff = f }
}

// WithRetryBudget bounds how long a single operation is retried.
func WithRetryBudget(d time.Duration) Option {
	return func(p *Projector) { p.retryBudget = d }
}

// WithPollInterval sets how often Run polls the source head.
func WithPollInterval(d time.Duration) Option {
	return func(p *Projector) { p.pollInterval = d }
}

// WithRetractHook registers fn to run after entities from block `from`
// upward were retracted. Read caches use it to drop stale entries.
func WithRetractHook(fn func(from uint64)) Option {
	return func(p *Projector) { p.onRetract = fn }
}

// New creates a projector reading src and writing st.
func New(src Source, st Store, opts ...Option) *Projector {
	p := &Projector{
		src:          src,
		st:           st,
		logger:       slog.Default(),
		tracer:       otel.Tracer("s01l/projector"),
		newBackOff:   defaultBackOff,
		retryBudget:  DefaultRetryBudget,
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.stats.RunID = uuid.Must(uuid.NewV7()).String()
	p.logger = p.logger.With("run", p.stats.RunID)
	return p
}

// Stats returns a copy of the projector counters.
func (p *Projector) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Halted returns the fail-stop error, or nil while the projector is healthy.
func (p *Projector) Halted() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.halted
}

// Run follows the source until ctx is cancelled or a fail-stop error
// occurs. An UNAVAILABLE store or source pauses Run with backoff and the
// next attempt resumes from the checkpoint. Waiting for new blocks or for
// the store to come back are the only blocking points.
func (p *Projector) Run(ctx context.Context) error {
	p.logger.Info("projector starting", "source", p.src.ID())
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()
	pause := p.newBackOff()

	for {
		// Take the channel before catching up so an append in between
		// still wakes us.
		changed := p.src.Changed()
		err := p.Sync(ctx)
		switch {
		case err != nil && CodeOf(err) == CodeUnavailable:
			wait := pause.NextBackOff()
			if wait == backoff.Stop {
				wait = p.pollInterval
			}
			p.logger.Warn("projector paused", "wait", wait, "error", err)
			select {
			case <-ctx.Done():
				p.logger.Info("projector stopping: context cancelled")
				return ctx.Err()
			case <-time.After(wait):
			}
			continue
		case err != nil:
			return err
		}
		pause.Reset()

		select {
		case <-ctx.Done():
			p.logger.Info("projector stopping: context cancelled")
			return ctx.Err()
		case <-changed:
		case <-ticker.C:
		}
	}
}

// Sync applies blocks until the checkpoint reaches the source head.
func (p *Projector) Sync(ctx context.Context) error {
	for {
		advanced, err := p.Step(ctx)
		if err != nil {
			return err
		}
		if !advanced {
			return nil
		}
	}
}

// Step performs one unit of work: a reorg retraction or one block apply.
// It returns false when the checkpoint is already at the source head.
func (p *Projector) Step(ctx context.Context) (bool, error) {
	if err := p.Halted(); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	advanced, err := p.step(ctx)
	if err != nil && errors.Is(err, ErrHalted) {
		p.mu.Lock()
		p.halted = err
		p.mu.Unlock()
		p.logger.Error("projector halted", "error", err)
	}
	return advanced, err
}

func (p *Projector) step(ctx context.Context) (bool, error) {
	head, err := retry(ctx, p, "head", func() (ir.BlockRef, error) {
		return p.src.Head(ctx)
	})
	if err != nil {
		return false, p.unavailable(0, "read source head", err)
	}

	cp, found, err := p.checkpoint(ctx)
	if err != nil {
		return false, err
	}
	if found && cp.SourceID != p.src.ID() {
		return false, &Error{
			Code:    CodeSourceMismatch,
			Block:   cp.Block,
			Message: fmt.Sprintf("store indexed source %s, not %s", cp.SourceID, p.src.ID()),
		}
	}

	next := uint64(0)
	if found {
		next = cp.Block + 1
		headLag.Set(float64(int64(head.Number) - int64(cp.Block)))
	}

	if found && next > head.Number {
		if head.Number < cp.Block || head.Hash != cp.Hash {
			return true, p.reorg(ctx, cp, head)
		}
		return false, p.clearResidue(ctx, next)
	}

	block, err := retry(ctx, p, "block", func() (ir.Block, error) {
		return p.src.BlockByNumber(ctx, next)
	})
	if err != nil {
		return false, p.unavailable(next, "read source block", err)
	}
	if found && block.ParentHash != cp.Hash {
		return true, p.reorg(ctx, cp, head)
	}
	return true, p.apply(ctx, block)
}

func (p *Projector) checkpoint(ctx context.Context) (store.Checkpoint, bool, error) {
	type result struct {
		cp    store.Checkpoint
		found bool
	}
	r, err := retry(ctx, p, "checkpoint", func() (result, error) {
		cp, found, err := p.st.Checkpoint(ctx)
		return result{cp, found}, err
	})
	if err != nil {
		return store.Checkpoint{}, false, p.unavailable(0, "read checkpoint", err)
	}
	return r.cp, r.found, nil
}

// apply inserts every entity of block and then records it. Entities at or
// above block that the store already holds belong to a block that was
// written but never recorded; they are retracted before the insert.
func (p *Projector) apply(ctx context.Context, block ir.Block) error {
	ctx, span := p.tracer.Start(ctx, "projector.apply_block",
		trace.WithAttributes(
			attribute.Int64("block.number", int64(block.Number)),
			attribute.String("block.hash", block.Hash.String()),
		),
	)
	defer span.End()
	start := time.Now()

	if err := p.clearResidue(ctx, block.Number); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	logs := block.Logs()
	slices.SortStableFunc(logs, func(a, b ir.Log) int {
		return a.Position.Compare(b.Position)
	})

	applied, dups, err := p.insertAll(ctx, logs)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	_, err = retry(ctx, p, "record block", func() (struct{}, error) {
		return struct{}{}, p.st.RecordBlock(ctx, p.src.ID(), block.Ref())
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return p.unavailable(block.Number, "record block", err)
	}

	applyDuration.Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.Int("entities.applied", applied), attribute.Int("entities.duplicate", dups))

	p.mu.Lock()
	p.stats.Blocks++
	p.stats.Applied += uint64(applied)
	p.stats.Duplicates += uint64(dups)
	p.mu.Unlock()

	p.logger.Debug("block applied",
		"block", block.Number,
		"hash", block.Hash.String(),
		"applied", applied,
		"duplicates", dups,
	)
	return nil
}

// clearResidue retracts entities stored at or above from. Nothing above the
// checkpoint is recorded, so any such entity is left over from an
// interrupted apply.
func (p *Projector) clearResidue(ctx context.Context, from uint64) error {
	has, err := retry(ctx, p, "residue", func() (bool, error) {
		return p.st.HasEntitiesFrom(ctx, from)
	})
	if err != nil {
		return p.unavailable(from, "check residue", err)
	}
	if !has {
		return nil
	}
	p.logger.Warn("retracting residue of unrecorded block", "from_block", from)
	return p.retract(ctx, from)
}

func (p *Projector) insertAll(ctx context.Context, logs []ir.Log) (applied, dups int, err error) {
	for _, l := range logs {
		e := ir.NewEntity(l)
		inserted, err := retry(ctx, p, "insert entity", func() (bool, error) {
			return p.st.InsertEntity(ctx, e)
		})
		switch {
		case err != nil && errors.Is(err, store.ErrConflict):
			return applied, dups, &Error{
				Code:    CodeConflict,
				Block:   l.Position.Block,
				Message: fmt.Sprintf("entity %s at %s differs from stored entity", e.ID, l.Position),
				Err:     err,
			}
		case err != nil:
			return applied, dups, p.unavailable(l.Position.Block, "insert entity", err)
		case inserted:
			applied++
			appliedTotal.WithLabelValues(string(e.Kind)).Inc()
		default:
			dups++
			duplicateTotal.Inc()
			p.logger.Debug("duplicate delivery", "id", e.ID, "position", l.Position.String())
		}
	}
	return applied, dups, nil
}

func (p *Projector) unavailable(block uint64, what string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &Error{Code: CodeUnavailable, Block: block, Message: what, Err: err}
}
