package logfile

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/s01l/internal/ir"
	"github.com/roach88/s01l/internal/ledger"
	"github.com/roach88/s01l/internal/registry"
	"github.com/roach88/s01l/internal/testutil"
)

func newLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	l, err := ledger.Open(context.Background(), ledger.Config{
		InMemory: true,
		Registry: registry.Config{Address: testutil.Registry, Deployer: testutil.Deployer},
		Clock:    testutil.NewBlockClock(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestExportReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)
	_, err := l.Submit(ctx, testutil.Deployer, registry.AddTrusted{Contract: testutil.AAA})
	require.NoError(t, err)
	_, err = l.Submit(ctx, testutil.AAA, registry.CreateSprout{NewOwner: testutil.BBB})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "log", "events.ndjson")
	n, err := Export(ctx, l, path)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	h, blocks, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, l.ID(), h.SourceID)
	require.Len(t, blocks, 3)

	for _, b := range blocks {
		want, err := l.BlockByNumber(ctx, b.Number)
		require.NoError(t, err)
		assert.Equal(t, want, b)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file left behind")
}

func TestReadFileRejectsMalformedLogs(t *testing.T) {
	tests := map[string]string{
		"no header":   "",
		"bad format":  `{"format":9,"source_id":"x"}` + "\n",
		"no genesis":  `{"format":1,"source_id":"x"}` + "\n",
		"gap":         `{"format":1,"source_id":"x"}` + "\n" + `{"number":1,"txs":[]}` + "\n",
		"garbage row": `{"format":1,"source_id":"x"}` + "\n" + `{"number":` + "\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "events.ndjson")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
			_, _, err := ReadFile(path)
			assert.Error(t, err)
		})
	}
}

func TestReadFileRejectsBrokenParentLink(t *testing.T) {
	body := strings.Join([]string{
		`{"format":1,"source_id":"x"}`,
		`{"number":0,"hash":"` + testutil.Hash(1).String() + `","parent_hash":"` + ir.Hash{}.String() + `","timestamp":0,"txs":[]}`,
		`{"number":1,"hash":"` + testutil.Hash(2).String() + `","parent_hash":"` + testutil.Hash(9).String() + `","timestamp":0,"txs":[]}`,
	}, "\n")
	path := filepath.Join(t.TempDir(), "events.ndjson")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	_, _, err := ReadFile(path)
	assert.ErrorContains(t, err, "does not link")
}

func TestSourceServesBlocks(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)
	path := filepath.Join(t.TempDir(), "events.ndjson")
	_, err := Export(ctx, l, path)
	require.NoError(t, err)

	src, err := Open(DefaultConfig(path))
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, l.ID(), src.ID())
	head, err := src.Head(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), head.Number)

	_, err = src.BlockByNumber(ctx, 1)
	assert.ErrorIs(t, err, ErrBlockNotFound)
}

func TestSourceReloadsOnExport(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)
	path := filepath.Join(t.TempDir(), "events.ndjson")
	_, err := Export(ctx, l, path)
	require.NoError(t, err)

	cfg := DefaultConfig(path)
	cfg.Debounce = 10 * time.Millisecond
	src, err := Open(cfg)
	require.NoError(t, err)
	defer src.Close()

	changed := src.Changed()
	_, err = l.Submit(ctx, testutil.CCC, registry.Seed{Name: "Oak"})
	require.NoError(t, err)
	_, err = Export(ctx, l, path)
	require.NoError(t, err)

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("source did not reload after export")
	}

	head, err := src.Head(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), head.Number)
}

func TestSourceKeepsBlocksOnMalformedReload(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)
	path := filepath.Join(t.TempDir(), "events.ndjson")
	_, err := Export(ctx, l, path)
	require.NoError(t, err)

	src, err := Open(DefaultConfig(path))
	require.NoError(t, err)
	defer src.Close()

	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))
	assert.Error(t, src.Reload())

	head, err := src.Head(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), head.Number)
}

func TestSourceCloseIsIdempotent(t *testing.T) {
	l := newLedger(t)
	path := filepath.Join(t.TempDir(), "events.ndjson")
	_, err := Export(context.Background(), l, path)
	require.NoError(t, err)

	src, err := Open(DefaultConfig(path))
	require.NoError(t, err)
	assert.NoError(t, src.Close())
	assert.NoError(t, src.Close())
}
