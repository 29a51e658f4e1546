package query

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/s01l/internal/ir"
	"github.com/roach88/s01l/internal/ledger"
	"github.com/roach88/s01l/internal/projector"
	"github.com/roach88/s01l/internal/registry"
	"github.com/roach88/s01l/internal/store"
	"github.com/roach88/s01l/internal/testutil"
)

type fixture struct {
	ledger  *ledger.Ledger
	store   *store.Store
	svc     *Service
	sprout1 ir.Address
	sprout2 ir.Address
	seeds   []ir.Address
}

// newFixture indexes a small registry history:
//
//	block 1: Deployer trusts AAA
//	block 2: AAA creates sprout1 for BBB
//	block 3: Deployer trusts sprout1
//	block 4: sprout1 creates sprout2 for CCC
//	block 5-6: BBB and CCC seed S33D contracts
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))

	l, err := ledger.Open(ctx, ledger.Config{
		InMemory: true,
		Registry: registry.Config{Address: testutil.Registry, Deployer: testutil.Deployer},
		Clock:    testutil.NewBlockClock(),
		Logger:   quiet,
	})
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	st, err := store.Open(filepath.Join(t.TempDir(), "entities.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	submit := func(caller ir.Address, call registry.Call) ledger.Receipt {
		r, err := l.Submit(ctx, caller, call)
		require.NoError(t, err)
		return r
	}

	f := &fixture{ledger: l, store: st}
	submit(testutil.Deployer, registry.AddTrusted{Contract: testutil.AAA})
	f.sprout1 = submit(testutil.AAA, registry.CreateSprout{NewOwner: testutil.BBB}).Contract
	submit(testutil.Deployer, registry.AddTrusted{Contract: f.sprout1})
	f.sprout2 = submit(f.sprout1, registry.CreateSprout{NewOwner: testutil.CCC}).Contract
	f.seeds = append(f.seeds,
		submit(testutil.BBB, registry.Seed{Name: "Oak", Symbol: "OAK"}).Contract,
		submit(testutil.CCC, registry.Seed{Name: "Elm", Symbol: "ELM"}).Contract,
	)

	require.NoError(t, projector.New(l, st, projector.WithLogger(quiet)).Sync(ctx))
	f.svc = NewService(st)
	return f
}
