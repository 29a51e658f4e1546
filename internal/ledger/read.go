package ledger

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/roach88/s01l/internal/ir"
	"github.com/roach88/s01l/internal/registry"
)

// ID returns the ledger's source id, assigned once at genesis.
func (l *Ledger) ID() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.id
}

// Head returns the latest block.
func (l *Ledger) Head(ctx context.Context) (ir.BlockRef, error) {
	if err := ctx.Err(); err != nil {
		return ir.BlockRef{}, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ir.BlockRef{}, ErrClosed
	}
	return l.head.Ref(), nil
}

// Changed returns a channel closed at the next append or rewind.
// Callers re-fetch the channel after every wake-up.
func (l *Ledger) Changed() <-chan struct{} {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.changed
}

// BlockByNumber reads one block from storage.
func (l *Ledger) BlockByNumber(ctx context.Context, n uint64) (ir.Block, error) {
	if err := ctx.Err(); err != nil {
		return ir.Block{}, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ir.Block{}, ErrClosed
	}
	if n > l.head.Number {
		return ir.Block{}, fmt.Errorf("block %d: %w", n, ErrBlockNotFound)
	}

	var b ir.Block
	err := l.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(blockKey(n))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error { return json.Unmarshal(v, &b) })
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ir.Block{}, fmt.Errorf("block %d: %w", n, ErrBlockNotFound)
	}
	if err != nil {
		return ir.Block{}, fmt.Errorf("read block %d: %w", n, err)
	}
	return b, nil
}

// Blocks calls fn for every stored block numbered from onward, in order.
func (l *Ledger) Blocks(ctx context.Context, from uint64, fn func(ir.Block) error) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrClosed
	}
	return l.iterate(ctx, from, fn)
}

// iterate walks block keys in order. Caller holds a lock (or is Open).
func (l *Ledger) iterate(ctx context.Context, from uint64, fn func(ir.Block) error) error {
	return l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = blockPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(blockKey(from)); it.ValidForPrefix(blockPrefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			key := item.Key()
			if !bytes.HasPrefix(key, blockPrefix) || len(key) != len(blockPrefix)+8 {
				return fmt.Errorf("malformed block key %q", key)
			}
			n := binary.BigEndian.Uint64(key[len(blockPrefix):])

			var b ir.Block
			if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &b) }); err != nil {
				return fmt.Errorf("decode block %d: %w", n, err)
			}
			if err := fn(b); err != nil {
				return err
			}
		}
		return nil
	})
}

// Read evaluates a registry accessor against current state.
func (l *Ledger) Read(name string, args ...string) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.reg.Read(name, args...)
}

// Snapshot returns a copy of the registry's current state.
func (l *Ledger) Snapshot() *registry.State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.reg.Snapshot()
}

// RegistryConfig returns the deployment the ledger was created with.
func (l *Ledger) RegistryConfig() registry.Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.regCfg
}

// Preview reports what Submit would return for call without sealing a
// block or changing registry state.
func (l *Ledger) Preview(caller ir.Address, call registry.Call) (registry.Result, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.reg.Preview(caller, call)
}
