package querysql

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/s01l/internal/ir"
	"github.com/roach88/s01l/internal/queryir"
	"github.com/roach88/s01l/internal/store"
	"github.com/roach88/s01l/internal/testutil"
)

func TestCompile_Minimal(t *testing.T) {
	sql, params, err := Compile(queryir.ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, "SELECT "+store.EntityColumns+" FROM entities ORDER BY "+store.EntityOrder+" LIMIT ?", sql)
	assert.Equal(t, []any{queryir.DefaultLimit}, params)
}

func TestCompile_KindAndFilter(t *testing.T) {
	sql, params, err := Compile(queryir.ListQuery{
		Kind: ir.KindSproutContractCreated,
		Filter: queryir.And{Predicates: []queryir.Predicate{
			queryir.Equals{Field: queryir.FieldParent, Value: "0xaaa"},
			queryir.After{Position: ir.Position{Block: 4, TxIndex: 1, LogIndex: 2}},
		}},
		Order: queryir.Descending,
		Limit: 5,
	})
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT "+store.EntityColumns+" FROM entities WHERE kind = ? AND "+
			"(parent = ? AND (block_number, tx_index, log_index) > (?, ?, ?)) "+
			"ORDER BY "+store.EntityOrderDesc+" LIMIT ?",
		sql)
	assert.Equal(t, []any{"SproutContractCreated", "0xaaa", int64(4), int64(1), int64(2), 5}, params)
}

func TestCompile_NeverInterpolatesValues(t *testing.T) {
	hostile := "x' OR '1'='1"
	sql, params, err := Compile(queryir.ListQuery{Filter: queryir.Equals{Field: queryir.FieldID, Value: hostile}})
	require.NoError(t, err)
	assert.NotContains(t, sql, hostile)
	assert.Contains(t, params, hostile)
}

func TestCompile_RejectsInvalid(t *testing.T) {
	_, _, err := Compile(queryir.ListQuery{Filter: queryir.Equals{Field: "payload; DROP TABLE entities", Value: "x"}})
	assert.ErrorContains(t, err, "invalid query")
}

func TestCompile_RunsAgainstStore(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(filepath.Join(t.TempDir(), "q.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	var created []ir.Entity
	for i := uint64(1); i <= 4; i++ {
		parent := testutil.AAA
		if i%2 == 0 {
			parent = testutil.BBB
		}
		txHash := testutil.Hash(byte(i))
		e := ir.Entity{
			ID:              ir.EntityID(txHash, 0),
			Kind:            ir.KindSproutContractCreated,
			Position:        ir.Position{Block: i},
			BlockTimestamp:  int64(1704067200 + i*12),
			TransactionHash: txHash,
			Fields: ir.SproutContractCreated{
				ContractAddress: ir.Address{19: byte(0x10 + i)},
				SproutID:        i,
				Parent:          parent,
			}.Fields(),
		}
		_, err := st.InsertEntity(ctx, e)
		require.NoError(t, err)
		created = append(created, e)
	}

	sql, params, err := Compile(queryir.ListQuery{
		Kind:   ir.KindSproutContractCreated,
		Filter: queryir.Equals{Field: queryir.FieldParent, Value: testutil.AAA.String()},
		Order:  queryir.Descending,
	})
	require.NoError(t, err)
	got, err := st.ListEntities(ctx, sql, params...)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, created[2].ID, got[0].ID)
	assert.Equal(t, created[0].ID, got[1].ID)

	sql, params, err = Compile(queryir.ListQuery{
		Filter: queryir.And{Predicates: []queryir.Predicate{
			queryir.BlockRange{From: 2, To: 4},
			queryir.Before{Position: ir.Position{Block: 4}},
		}},
		Limit: 1,
	})
	require.NoError(t, err)
	got, err = st.ListEntities(ctx, sql, params...)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, created[1].ID, got[0].ID)
}
