package projector

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/require"

	"github.com/roach88/s01l/internal/ir"
	"github.com/roach88/s01l/internal/ledger"
	"github.com/roach88/s01l/internal/registry"
	"github.com/roach88/s01l/internal/store"
	"github.com/roach88/s01l/internal/testutil"
)

var errUnavailable = errors.New("database is locked")

func openLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	l, err := ledger.Open(context.Background(), ledger.Config{
		InMemory: true,
		Registry: registry.Config{Address: testutil.Registry, Deployer: testutil.Deployer},
		Clock:    testutil.NewBlockClock(),
		Logger:   quietLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "entities.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fastRetry keeps retry tests quick.
func fastRetry() []Option {
	return []Option{
		WithLogger(quietLogger()),
		WithBackOff(func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) }),
		WithRetryBudget(50 * time.Millisecond),
		WithPollInterval(10 * time.Millisecond),
	}
}

func newProjector(src Source, st Store, opts ...Option) *Projector {
	return New(src, st, append(fastRetry(), opts...)...)
}

func submit(t *testing.T, l *ledger.Ledger, caller ir.Address, call registry.Call) ledger.Receipt {
	t.Helper()
	r, err := l.Submit(context.Background(), caller, call)
	require.NoError(t, err)
	return r
}

// runScenario submits the trust → sprout → sprout-of-sprout sequence.
func runScenario(t *testing.T, l *ledger.Ledger) (sprout1, sprout2 ir.Address) {
	t.Helper()
	submit(t, l, testutil.Deployer, registry.AddTrusted{Contract: testutil.AAA})
	sprout1 = submit(t, l, testutil.AAA, registry.CreateSprout{NewOwner: testutil.BBB}).Contract
	submit(t, l, testutil.Deployer, registry.AddTrusted{Contract: sprout1})
	sprout2 = submit(t, l, sprout1, registry.CreateSprout{NewOwner: testutil.CCC}).Contract
	return sprout1, sprout2
}

// allEntities lists every stored entity in position order.
func allEntities(t *testing.T, st *store.Store) []ir.Entity {
	t.Helper()
	es, err := st.ListEntities(context.Background(),
		"SELECT "+store.EntityColumns+" FROM entities ORDER BY "+store.EntityOrder)
	require.NoError(t, err)
	return es
}

// expectedEntities derives the entity set straight from the source blocks.
func expectedEntities(t *testing.T, src Source) []ir.Entity {
	t.Helper()
	ctx := context.Background()
	head, err := src.Head(ctx)
	require.NoError(t, err)
	var out []ir.Entity
	for n := uint64(0); n <= head.Number; n++ {
		b, err := src.BlockByNumber(ctx, n)
		require.NoError(t, err)
		for _, l := range b.Logs() {
			out = append(out, ir.NewEntity(l))
		}
	}
	slices.SortFunc(out, func(a, b ir.Entity) int { return a.Position.Compare(b.Position) })
	return out
}

// shuffledSource delivers each block with its transactions, and the logs
// inside them, in reverse order.
type shuffledSource struct {
	Source
}

func (s shuffledSource) BlockByNumber(ctx context.Context, n uint64) (ir.Block, error) {
	b, err := s.Source.BlockByNumber(ctx, n)
	if err != nil {
		return b, err
	}
	txs := slices.Clone(b.Txs)
	slices.Reverse(txs)
	for i := range txs {
		logs := slices.Clone(txs[i].Logs)
		slices.Reverse(logs)
		txs[i].Logs = logs
	}
	b.Txs = txs
	return b, nil
}

// faultyStore wraps a store with injectable failures and records the
// order of inserted positions.
type faultyStore struct {
	Store

	mu             sync.Mutex
	insertFailures int
	insertErr      error
	retractErr     error
	inserted       []ir.Position
}

func (f *faultyStore) InsertEntity(ctx context.Context, e ir.Entity) (bool, error) {
	f.mu.Lock()
	if f.insertErr != nil {
		err := f.insertErr
		f.mu.Unlock()
		return false, err
	}
	if f.insertFailures > 0 {
		f.insertFailures--
		f.mu.Unlock()
		return false, errUnavailable
	}
	f.inserted = append(f.inserted, e.Position)
	f.mu.Unlock()
	return f.Store.InsertEntity(ctx, e)
}

func (f *faultyStore) Retract(ctx context.Context, from uint64) (int64, error) {
	if f.retractErr != nil {
		return 0, f.retractErr
	}
	return f.Store.Retract(ctx, from)
}

func (f *faultyStore) insertedPositions() []ir.Position {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.inserted)
}

func (f *faultyStore) setInsertErr(err error) {
	f.mu.Lock()
	f.insertErr = err
	f.mu.Unlock()
}
