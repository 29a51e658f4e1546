package registry

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/roach88/s01l/internal/ir"
)

// TestCountersMatchAcceptedCreations drives random call sequences and checks
// that each counter equals the number of accepted creations of its kind,
// that ids are assigned 1, 2, 3, ... without gaps, and that lineage edges
// never change once written.
func TestCountersMatchAcceptedCreations(t *testing.T) {
	principals := []ir.Address{deployer, aaa, bbb, ccc, ir.ZeroAddress}

	rapid.Check(t, func(rt *rapid.T) {
		r, _, err := New(Config{Address: self, Deployer: deployer})
		require.NoError(rt, err)

		var seeds, sprouts uint64
		edges := map[ir.Address]ir.Address{}

		steps := rapid.IntRange(1, 60).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			caller := rapid.SampledFrom(principals).Draw(rt, "caller")
			target := rapid.SampledFrom(principals).Draw(rt, "target")

			var call Call
			switch rapid.IntRange(0, 5).Draw(rt, "op") {
			case 0:
				call = Seed{Name: rapid.String().Draw(rt, "name")}
			case 1:
				call = CreateSprout{NewOwner: target}
			case 2:
				call = AddTrusted{Contract: target}
			case 3:
				call = RemoveTrusted{Contract: target}
			case 4:
				call = TransferOwnership{NewOwner: target}
			default:
				if rapid.IntRange(0, 9).Draw(rt, "renounce") != 0 {
					continue
				}
				call = RenounceOwnership{}
			}

			before := r.Snapshot()
			res, err := r.Execute(caller, call)
			if err != nil {
				require.Equal(rt, before, r.Snapshot(), "rejected call changed state")
				require.Empty(rt, res.Events)
				continue
			}
			require.Len(rt, res.Events, 1)

			switch ev := res.Events[0].(type) {
			case ir.S33DContractCreated:
				seeds++
				require.Equal(rt, seeds, ev.ContractID)
			case ir.SproutContractCreated:
				sprouts++
				require.Equal(rt, sprouts, ev.SproutID)
				require.Equal(rt, caller, ev.Parent)
				_, dup := edges[ev.ContractAddress]
				require.False(rt, dup)
				edges[ev.ContractAddress] = ev.Parent
			}

			require.Equal(rt, seeds, r.GetLastS33DContractID())
			require.Equal(rt, sprouts, r.GetLastSproutID())
		}

		for child, parent := range edges {
			require.Equal(rt, parent, r.ParentChildRelationship(child))
		}
	})
}
