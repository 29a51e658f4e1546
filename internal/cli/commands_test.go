package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/s01l/internal/ir"
)

// workspace is a config file plus the ledger and store it points at.
type workspace struct {
	dir    string
	config string
}

func newWorkspace(t *testing.T) *workspace {
	t.Helper()
	dir := t.TempDir()
	cfg := fmt.Sprintf(`ledger:
  path: %s
  sync_writes: false
  registry_address: "0x5011"
  deployer: "0xD0"
store:
  path: %s
log:
  level: error
`, filepath.Join(dir, "ledger"), filepath.Join(dir, "entities.db"))
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return &workspace{dir: dir, config: path}
}

// run executes the CLI and returns stdout.
func (w *workspace) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--config", w.config}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func (w *workspace) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := w.run(t, args...)
	require.NoError(t, err, "s01l %s\n%s", strings.Join(args, " "), out)
	return out
}

// runJSON executes the CLI with --format json and decodes the data payload.
func runJSON[T any](t *testing.T, w *workspace, args ...string) T {
	t.Helper()
	out := w.mustRun(t, append([]string{"--format", "json"}, args...)...)
	var resp struct {
		Status string `json:"status"`
		Data   T      `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "ok", resp.Status)
	return resp.Data
}

func TestCallIndexAndQuery(t *testing.T) {
	w := newWorkspace(t)

	trust := runJSON[CallResult](t, w, "call", "trust", "0xAAA", "--from", "0xD0")
	assert.Equal(t, uint64(1), trust.Block)
	require.Len(t, trust.Events, 1)
	assert.Equal(t, ir.KindTrustedContractAdded, trust.Events[0].Kind)

	sprout := runJSON[CallResult](t, w, "call", "sprout", "0xBBB", "--from", "0xAAA")
	require.NotNil(t, sprout.Contract)
	child := *sprout.Contract

	idx := runJSON[IndexResult](t, w, "index")
	assert.Equal(t, uint64(2), idx.Checkpoint)
	assert.Equal(t, uint64(3), idx.Applied)
	assert.NotEmpty(t, idx.RunID)

	again := runJSON[IndexResult](t, w, "index")
	assert.Equal(t, uint64(0), again.Applied, "a caught-up store applies nothing")

	out := w.mustRun(t, "query", "list", "--kind", "SproutContractCreated")
	assert.Contains(t, out, "POSITION")
	assert.Contains(t, out, "2/0/0")
	assert.Contains(t, out, "contractAddress="+child.String())

	out = w.mustRun(t, "lineage", child.String())
	assert.Contains(t, out, "root  "+ir.MustAddress("0xAAA").String()+" (depth 1)")

	read := runJSON[ReadResult](t, w, "read", "parentChildRelationship", child.String())
	assert.Equal(t, ir.MustAddress("0xAAA").String(), read.Value)

	out = w.mustRun(t, "query", "status")
	assert.Contains(t, out, "head   2")
	assert.Contains(t, out, "total")

	out = w.mustRun(t, "verify")
	assert.Contains(t, out, "✓ index matches registry state")
}

func TestQueryGetAndLatest(t *testing.T) {
	w := newWorkspace(t)
	w.mustRun(t, "call", "seed", "Oak", "OAK", "--from", "0xBBB")
	w.mustRun(t, "call", "seed", "Elm", "ELM", "--from", "0xCCC")
	w.mustRun(t, "index")

	page := runJSON[struct {
		Entities []ir.Entity `json:"entities"`
	}](t, w, "query", "latest", "S33DContractCreated", "-n", "1")
	require.Len(t, page.Entities, 1)
	latest := page.Entities[0]
	assert.Equal(t, "2", latest.Fields[ir.FieldContractID])

	got := runJSON[EntityView](t, w, "query", "get", latest.ID)
	assert.Equal(t, latest.ID, got.ID)
	assert.Equal(t, "2/0/0", got.Position)

	out, err := w.run(t, "query", "get", "0xdeadbeef")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [E_NOT_FOUND]")
}

func TestQueryListPaging(t *testing.T) {
	w := newWorkspace(t)
	for _, a := range []string{"0xA1", "0xA2", "0xA3"} {
		w.mustRun(t, "call", "trust", a, "--from", "0xD0")
	}
	w.mustRun(t, "index")

	out := w.mustRun(t, "query", "list", "--kind", "TrustedContractAdded", "--limit", "2")
	assert.Contains(t, out, "next page: --after 2/0/0")

	out = w.mustRun(t, "query", "list", "--kind", "TrustedContractAdded", "--after", "2/0/0")
	assert.Contains(t, out, "3/0/0")
	assert.NotContains(t, out, "1/0/0")
	assert.NotContains(t, out, "next page")

	_, err := w.run(t, "query", "list", "--after", "two")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestQueryListBlockRange(t *testing.T) {
	w := newWorkspace(t)
	for _, a := range []string{"0xA1", "0xA2", "0xA3"} {
		w.mustRun(t, "call", "trust", a, "--from", "0xD0")
	}
	w.mustRun(t, "index")

	out := w.mustRun(t, "query", "list", "--from-block", "2", "--to-block", "2")
	assert.Contains(t, out, "2/0/0")
	assert.NotContains(t, out, "1/0/0")
	assert.NotContains(t, out, "3/0/0")

	_, err := w.run(t, "query", "list", "--from-block", "3", "--to-block", "1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCallDryRunLeavesLedgerUnchanged(t *testing.T) {
	w := newWorkspace(t)

	res := runJSON[CallResult](t, w, "call", "trust", "0xAAA", "--from", "0xD0", "--dry-run")
	assert.True(t, res.DryRun)
	assert.Equal(t, uint64(1), res.Block)
	require.Len(t, res.Events, 1)
	assert.Equal(t, ir.KindTrustedContractAdded, res.Events[0].Kind)

	read := runJSON[ReadResult](t, w, "read", "trustedContracts", "0xAAA")
	assert.Equal(t, "false", read.Value)

	out, err := w.run(t, "call", "renounce", "--from", "0xBAD", "--dry-run")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "UNAUTHORIZED")

	trust := runJSON[CallResult](t, w, "call", "trust", "0xAAA", "--from", "0xD0")
	assert.False(t, trust.DryRun)
	assert.Equal(t, uint64(1), trust.Block, "the dry run sealed no block")
}

func TestRejectedCall(t *testing.T) {
	w := newWorkspace(t)

	out, err := w.run(t, "call", "trust", "0xAAA", "--from", "0xBAD")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [E_REJECTED]")
	assert.Contains(t, out, "UNAUTHORIZED")

	read := runJSON[ReadResult](t, w, "read", "trustedContracts", "0xAAA")
	assert.Equal(t, "false", read.Value)
}

func TestMalformedAddressIsCommandError(t *testing.T) {
	w := newWorkspace(t)

	_, err := w.run(t, "call", "sprout", "not-an-address", "--from", "0xD0")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRewindRetractsOnNextIndex(t *testing.T) {
	w := newWorkspace(t)
	w.mustRun(t, "call", "trust", "0xAAA", "--from", "0xD0")
	w.mustRun(t, "call", "sprout", "0xBBB", "--from", "0xAAA")
	w.mustRun(t, "index")

	rw := runJSON[RewindResult](t, w, "rewind", "1")
	assert.Equal(t, RewindResult{Head: 1, Removed: 1}, rw)

	idx := runJSON[IndexResult](t, w, "index")
	assert.Equal(t, uint64(1), idx.Reorgs)
	assert.Equal(t, uint64(1), idx.Retracted)
	assert.Equal(t, uint64(1), idx.Checkpoint)

	read := runJSON[ReadResult](t, w, "read", "getLastSproutId")
	assert.Equal(t, "0", read.Value)
	w.mustRun(t, "verify")
}

func TestExportAndIndexFromFile(t *testing.T) {
	w := newWorkspace(t)
	w.mustRun(t, "call", "trust", "0xAAA", "--from", "0xD0")
	w.mustRun(t, "call", "sprout", "0xBBB", "--from", "0xAAA")

	logPath := filepath.Join(w.dir, "export", "ledger.ndjson")
	exp := runJSON[ExportResult](t, w, "export", logPath)
	assert.Equal(t, 3, exp.Blocks)
	assert.NotEmpty(t, exp.SourceID)

	mirror := filepath.Join(w.dir, "mirror.db")
	idx := runJSON[IndexResult](t, w, "index", "--from-file", logPath, "--store", mirror)
	assert.Equal(t, uint64(2), idx.Checkpoint)
	assert.Equal(t, uint64(3), idx.Applied)

	status := runJSON[struct {
		Total int64 `json:"total"`
		Head  struct {
			SourceID string `json:"source_id"`
		} `json:"head"`
	}](t, w, "query", "status", "--store", mirror)
	assert.Equal(t, int64(3), status.Total)
	assert.Equal(t, exp.SourceID, status.Head.SourceID)
}

func TestVerifySkipsLaggingStore(t *testing.T) {
	w := newWorkspace(t)
	w.mustRun(t, "call", "trust", "0xAAA", "--from", "0xD0")
	w.mustRun(t, "index")
	w.mustRun(t, "call", "untrust", "0xAAA", "--from", "0xD0")

	res := runJSON[VerifyResult](t, w, "verify")
	assert.True(t, res.OK)
	assert.Equal(t, uint64(2), res.Head)
	require.NotNil(t, res.Checkpoint)
	assert.Equal(t, uint64(1), *res.Checkpoint)
	assert.Equal(t, 3, res.Entities)
}

func TestReadListsAccessors(t *testing.T) {
	w := newWorkspace(t)
	out := w.mustRun(t, "read")
	assert.Contains(t, out, "getLastSproutId")
	assert.Contains(t, out, "parentChildRelationship")

	_, err := w.run(t, "read", "balanceOf")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestConfigErrorIsCommandError(t *testing.T) {
	w := newWorkspace(t)
	_, err := w.run(t, "--config", filepath.Join(w.dir, "missing.yaml"), "read", "owner")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommand(t *testing.T) {
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetArgs([]string{"test", "../harness/testdata/scenarios", "--golden", "../harness/testdata/golden"})

	require.NoError(t, cmd.Execute(), out.String())
	assert.Contains(t, out.String(), "✓ lineage_aaa_bbb_ccc")
	assert.Contains(t, out.String(), "✓ All scenarios passed")
}

func TestTestCommandReportsFailures(t *testing.T) {
	dir := t.TempDir()
	scenario := `name: wrong_owner
description: expects the wrong owner
steps:
  - call: addTrustedContract
    from: "0xD0"
    args: {contractAddress: "0xAAA"}
assertions:
  - type: accessor
    accessor: owner
    expect: "0xAAA"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wrong_owner.yaml"), []byte(scenario), 0o644))

	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetArgs([]string{"--format", "json", "test", dir})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
		Error  *CLIError  `json:"error"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, 1, resp.Data.Failed)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeTestFailed, resp.Error.Code)
}

func TestTestCommandUpdateWritesGolden(t *testing.T) {
	dir := t.TempDir()
	scenario := `name: renounce_only
description: the deployer renounces
steps:
  - call: renounceOwnership
    from: "0xD0"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "renounce_only.yaml"), []byte(scenario), 0o644))

	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"test", dir, "--update"})
	require.NoError(t, cmd.Execute())

	golden, err := os.ReadFile(filepath.Join(dir, "golden", "renounce_only.golden"))
	require.NoError(t, err)
	assert.Equal(t,
		`{"pass":true,"scenario_name":"renounce_only","trace":[{"block":1,"from":"0xd0","logs":[{"fields":{"newOwner":"0x0","previousOwner":"0xd0"},"kind":"OwnershipTransferred"}],"method":"renounceOwnership","step":1,"type":"call"}]}`,
		string(golden))

	cmd = NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"test", dir})
	require.NoError(t, cmd.Execute(), "a fresh golden file matches its own run")
}
