package query

import (
	"context"
	"maps"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/s01l/internal/ir"
	"github.com/roach88/s01l/internal/queryir"
	"github.com/roach88/s01l/internal/store"
	"github.com/roach88/s01l/internal/testutil"
)

func TestGet(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	page, err := f.svc.List(ctx, ListParams{Kind: ir.KindS33DContractCreated})
	require.NoError(t, err)
	require.Len(t, page.Entities, 2)

	want := page.Entities[0]
	got, err := f.svc.Get(ctx, want.ID)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = f.svc.Get(ctx, "0xmissing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInvalidateDropsRetractedEntities(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	latest, err := f.svc.Latest(ctx, ir.KindS33DContractCreated, 1)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	id := latest[0].ID
	_, err = f.svc.Get(ctx, id)
	require.NoError(t, err)

	_, err = f.store.Retract(ctx, latest[0].Position.Block)
	require.NoError(t, err)

	// Still cached until invalidated.
	_, err = f.svc.Get(ctx, id)
	require.NoError(t, err)

	f.svc.Invalidate(latest[0].Position.Block + 1)
	_, err = f.svc.Get(ctx, id)
	require.NoError(t, err, "entities below the retraction stay cached")

	f.svc.Invalidate(latest[0].Position.Block)
	_, err = f.svc.Get(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
}

// retractingStore retracts from block `from` right after the first read,
// the way the projector's retract hook can fire mid-Get.
type retractingStore struct {
	Store
	st   *store.Store
	svc  *Service
	from uint64
	done bool
}

func (r *retractingStore) ReadEntity(ctx context.Context, id string) (ir.Entity, bool, error) {
	e, found, err := r.Store.ReadEntity(ctx, id)
	if !r.done {
		r.done = true
		if _, err := r.st.Retract(ctx, r.from); err != nil {
			return ir.Entity{}, false, err
		}
		r.svc.Invalidate(r.from)
	}
	return e, found, err
}

func TestGetDoesNotCacheAcrossInvalidate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	latest, err := f.svc.Latest(ctx, ir.KindS33DContractCreated, 1)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	victim := latest[0]

	rs := &retractingStore{Store: f.store, st: f.store, from: victim.Position.Block}
	svc := NewService(rs)
	rs.svc = svc

	got, err := svc.Get(ctx, victim.ID)
	require.NoError(t, err, "the read itself saw the entity before the retraction")
	assert.Equal(t, victim, got)

	_, found, err := f.store.ReadEntity(ctx, victim.ID)
	require.NoError(t, err)
	require.False(t, found)

	_, err = svc.Get(ctx, victim.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListFilters(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	page, err := f.svc.List(ctx, ListParams{Kind: ir.KindSproutContractCreated, Parent: testutil.AAA})
	require.NoError(t, err)
	require.Len(t, page.Entities, 1)
	assert.Equal(t, f.sprout1.String(), page.Entities[0].Fields[ir.FieldContractAddress])
	assert.Nil(t, page.Next)
	require.NotNil(t, page.Head)
	assert.Equal(t, uint64(6), page.Head.Block)
	assert.Equal(t, f.ledger.ID(), page.Head.SourceID)

	page, err = f.svc.List(ctx, ListParams{ContractAddress: f.sprout1})
	require.NoError(t, err)
	require.Len(t, page.Entities, 2, "sprout creation and trust")
	assert.Equal(t, ir.KindSproutContractCreated, page.Entities[0].Kind)
	assert.Equal(t, ir.KindTrustedContractAdded, page.Entities[1].Kind)

	page, err = f.svc.List(ctx, ListParams{Kind: ir.KindTrustedContractRemoved})
	require.NoError(t, err)
	assert.NotNil(t, page.Entities)
	assert.Empty(t, page.Entities)
}

func TestListBlockRange(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	from, to := uint64(1), uint64(4)

	page, err := f.svc.List(ctx, ListParams{Kind: ir.KindTrustedContractAdded, FromBlock: &from, ToBlock: &to})
	require.NoError(t, err)
	require.Len(t, page.Entities, 2)
	assert.Equal(t, uint64(1), page.Entities[0].Position.Block)
	assert.Equal(t, uint64(3), page.Entities[1].Position.Block)

	page, err = f.svc.List(ctx, ListParams{ToBlock: &from, Order: queryir.Descending})
	require.NoError(t, err)
	require.Len(t, page.Entities, 2)
	assert.Equal(t, uint64(1), page.Entities[0].Position.Block)

	_, err = f.svc.List(ctx, ListParams{FromBlock: &to, ToBlock: &from})
	assert.ErrorIs(t, err, queryir.ErrInvalidQuery)
}

func TestListPagination(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	all, err := f.svc.List(ctx, ListParams{})
	require.NoError(t, err)
	require.Len(t, all.Entities, 7)

	for _, order := range []queryir.Order{queryir.Ascending, queryir.Descending} {
		t.Run(string(order), func(t *testing.T) {
			var walked []ir.Entity
			params := ListParams{Order: order, Limit: 3}
			for {
				page, err := f.svc.List(ctx, params)
				require.NoError(t, err)
				walked = append(walked, page.Entities...)
				if page.Next == nil {
					break
				}
				assert.Equal(t, page.Next.String(), page.Cursor)
				params.After = page.Next
			}
			want := slices.Clone(all.Entities)
			if order == queryir.Descending {
				slices.Reverse(want)
			}
			assert.Equal(t, want, walked)
		})
	}
}

func TestListRejectsInvalidLimit(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.List(context.Background(), ListParams{Limit: queryir.MaxLimit + 1})
	assert.Error(t, err)
}

func TestLatest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	got, err := f.svc.Latest(ctx, ir.KindSproutContractCreated, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, f.sprout2.String(), got[0].Fields[ir.FieldContractAddress])
	assert.Equal(t, "2", got[0].Fields[ir.FieldSproutID])

	got, err = f.svc.Latest(ctx, ir.KindS33DContractCreated, 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, f.seeds[1].String(), got[0].Fields[ir.FieldContractAddress])
	assert.Equal(t, f.seeds[0].String(), got[1].Fields[ir.FieldContractAddress])
}

func TestLineage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	l, err := f.svc.Lineage(ctx, f.sprout2)
	require.NoError(t, err)
	require.Len(t, l.Ancestors, 2)
	assert.Equal(t, Link{Contract: f.sprout2, SproutID: 2, Parent: f.sprout1, Position: l.Ancestors[0].Position}, l.Ancestors[0])
	assert.Equal(t, Link{Contract: f.sprout1, SproutID: 1, Parent: testutil.AAA, Position: l.Ancestors[1].Position}, l.Ancestors[1])
	assert.Equal(t, testutil.AAA, l.Root())
	assert.Empty(t, l.Children)

	l, err = f.svc.Lineage(ctx, testutil.AAA)
	require.NoError(t, err)
	assert.Empty(t, l.Ancestors)
	require.Len(t, l.Children, 1)
	assert.Equal(t, f.sprout1, l.Children[0].Contract)
	assert.Equal(t, testutil.AAA, l.Root())

	l, err = f.svc.Lineage(ctx, f.sprout1)
	require.NoError(t, err)
	require.Len(t, l.Ancestors, 1)
	require.Len(t, l.Children, 1)
	assert.Equal(t, f.sprout2, l.Children[0].Contract)

	_, err = f.svc.Lineage(ctx, testutil.CCC)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReconstructMatchesRegistry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	snap, err := f.svc.Reconstruct(ctx)
	require.NoError(t, err)
	state := f.ledger.Snapshot()

	assert.Equal(t, state.Owner, snap.Owner)
	assert.Equal(t, state.S33DCounter, snap.S33DCounter)
	assert.Equal(t, state.SproutCounter, snap.SproutCounter)
	assert.Equal(t, state.S33D, snap.S33D)
	assert.Equal(t, state.Sprouts, snap.Sprouts)
	assert.Equal(t, state.Parents, snap.Parents)
	assert.ElementsMatch(t, slices.Collect(maps.Keys(state.Trusted)), snap.Trusted)
	require.NotNil(t, snap.Head)
	assert.Equal(t, uint64(6), snap.Head.Block)
}

func TestStatus(t *testing.T) {
	f := newFixture(t)

	st, err := f.svc.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), st.Total)
	assert.Equal(t, int64(1), st.Counts[ir.KindOwnershipTransferred])
	assert.Equal(t, int64(2), st.Counts[ir.KindTrustedContractAdded])
	assert.Equal(t, int64(2), st.Counts[ir.KindSproutContractCreated])
	assert.Equal(t, int64(2), st.Counts[ir.KindS33DContractCreated])
	assert.Equal(t, int64(0), st.Counts[ir.KindTrustedContractRemoved])
}

func TestSnapshotDiff(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	snap, err := f.svc.Reconstruct(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Diff(f.ledger.Snapshot()))

	snap.Owner = testutil.AAA
	snap.Parents = map[ir.Address]ir.Address{}
	diffs := snap.Diff(f.ledger.Snapshot())
	require.Len(t, diffs, 2)
	assert.Contains(t, diffs[0], "owner")
	assert.Equal(t, "lineage differs", diffs[1])
}
