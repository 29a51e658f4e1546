package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/s01l/internal/ir"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestEntity creates a TrustedContractAdded entity at the given position.
func createTestEntity(txByte byte, block uint64, txIndex, logIndex uint32) ir.Entity {
	var txHash ir.Hash
	txHash[0] = txByte
	return ir.NewEntity(ir.Log{
		Position:  ir.Position{Block: block, TxIndex: txIndex, LogIndex: logIndex},
		TxHash:    txHash,
		Timestamp: 1700000000 + int64(block),
		Event:     ir.TrustedContractAdded{ContractAddress: ir.MustAddress("0xAAA")},
	})
}

func blockRef(n uint64, hash, parent byte) ir.BlockRef {
	var h, p ir.Hash
	h[0], p[0] = hash, parent
	if n == 0 {
		p = ir.Hash{}
	}
	return ir.BlockRef{Number: n, Hash: h, ParentHash: p}
}
