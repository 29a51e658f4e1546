package ir

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddress(t *testing.T) {
	a, err := ParseAddress("0xAAA")
	require.NoError(t, err)
	assert.Equal(t, "0x0000000000000000000000000000000000000aaa", a.String())

	upper, err := ParseAddress("0X0000000000000000000000000000000000000AAA")
	require.NoError(t, err)
	assert.Equal(t, a, upper)

	for _, bad := range []string{"", "aaa", "0x", "0xzz", "0x" + strings.Repeat("a", 42)} {
		_, err := ParseAddress(bad)
		assert.Error(t, err, bad)
	}
}

func TestAddressTextRoundTrip(t *testing.T) {
	type wrapper struct {
		Owner Address `json:"owner"`
	}
	in := wrapper{Owner: MustAddress("0xBBB")}

	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"owner":"0x0000000000000000000000000000000000000bbb"}`, string(data))

	var out wrapper
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestParseHashRequiresFullLength(t *testing.T) {
	_, err := ParseHash("0x01")
	assert.Error(t, err)

	h := Hash{1, 2, 3}
	parsed, err := ParseHash(h.String())
	require.NoError(t, err)
	assert.Equal(t, h, parsed)
}

func TestPositionOrdering(t *testing.T) {
	e1 := Position{Block: 10, TxIndex: 0, LogIndex: 0}
	e2 := Position{Block: 10, TxIndex: 0, LogIndex: 1}
	e3 := Position{Block: 10, TxIndex: 1, LogIndex: 0}
	e4 := Position{Block: 11}

	assert.True(t, e1.Less(e2))
	assert.True(t, e2.Less(e3))
	assert.True(t, e3.Less(e4))
	assert.False(t, e2.Less(e1))
	assert.Equal(t, 0, e1.Compare(e1))
}

func TestParsePosition(t *testing.T) {
	p, err := ParsePosition("12/3/4")
	require.NoError(t, err)
	assert.Equal(t, Position{Block: 12, TxIndex: 3, LogIndex: 4}, p)

	back, err := ParsePosition(p.String())
	require.NoError(t, err)
	assert.Equal(t, p, back)

	for _, bad := range []string{"", "1/2", "1/2/3/4", "a/0/0", "1/-1/0", "1/0/4294967296"} {
		_, err := ParsePosition(bad)
		assert.Error(t, err, bad)
	}
}

func TestEventFieldsRoundTrip(t *testing.T) {
	events := []Event{
		OwnershipTransferred{PreviousOwner: ZeroAddress, NewOwner: MustAddress("0x1")},
		S33DContractCreated{ContractAddress: MustAddress("0x2"), ContractID: 1},
		SproutContractCreated{ContractAddress: MustAddress("0x3"), SproutID: 2, Parent: MustAddress("0xAAA")},
		TrustedContractAdded{ContractAddress: MustAddress("0xAAA")},
		TrustedContractRemoved{ContractAddress: MustAddress("0xAAA")},
	}
	for _, ev := range events {
		t.Run(string(ev.Kind()), func(t *testing.T) {
			data, err := MarshalEvent(ev)
			require.NoError(t, err)

			back, err := UnmarshalEvent(data)
			require.NoError(t, err)
			assert.Equal(t, ev, back)
		})
	}
}

func TestParseEventErrors(t *testing.T) {
	_, err := ParseEvent("Unknown", nil)
	assert.Error(t, err)

	_, err = ParseEvent(KindS33DContractCreated, map[string]string{FieldContractAddress: "0x1"})
	assert.ErrorContains(t, err, "missing field")

	_, err = ParseEvent(KindS33DContractCreated, map[string]string{
		FieldContractAddress: "0x1",
		FieldContractID:      "-1",
	})
	assert.Error(t, err)

	_, err = ParseEvent(KindTrustedContractAdded, map[string]string{
		FieldContractAddress: "0x1",
		"extra":              "x",
	})
	assert.ErrorContains(t, err, "unexpected fields")
}

func TestLogJSONRoundTrip(t *testing.T) {
	in := Log{
		Position:  Position{Block: 3, TxIndex: 1, LogIndex: 0},
		TxHash:    Hash{7},
		BlockHash: Hash{8},
		Timestamp: 1700000000,
		Event:     SproutContractCreated{ContractAddress: MustAddress("0x3"), SproutID: 1, Parent: MustAddress("0xAAA")},
	}
	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out Log
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestNewEntityCopiesPayloadAndProvenance(t *testing.T) {
	l := Log{
		Position:  Position{Block: 5, TxIndex: 0, LogIndex: 1},
		TxHash:    Hash{0xaa},
		Timestamp: 42,
		Event:     S33DContractCreated{ContractAddress: MustAddress("0x9"), ContractID: 4},
	}
	e := NewEntity(l)

	assert.Equal(t, EntityID(l.TxHash, 1), e.ID)
	assert.Equal(t, KindS33DContractCreated, e.Kind)
	assert.Equal(t, l.Position, e.Position)
	assert.Equal(t, int64(42), e.BlockTimestamp)
	assert.Equal(t, l.TxHash, e.TransactionHash)
	assert.Equal(t, "4", e.Fields[FieldContractID])

	ev, err := e.Event()
	require.NoError(t, err)
	assert.Equal(t, l.Event, ev)
}

func TestBlockLogsNeverNil(t *testing.T) {
	assert.NotNil(t, Block{}.Logs())
}
