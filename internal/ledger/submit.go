package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/roach88/s01l/internal/ir"
	"github.com/roach88/s01l/internal/registry"
)

// Request is one call submitted for inclusion.
type Request struct {
	Caller ir.Address
	Call   registry.Call
}

// Receipt describes an accepted call.
type Receipt struct {
	Block    ir.BlockRef `json:"block"`
	Tx       ir.Tx       `json:"tx"`
	Contract ir.Address  `json:"contract"`
}

// BatchResult is the outcome of one request in a batch. Exactly one of
// Receipt and Err is set.
type BatchResult struct {
	Receipt *Receipt
	Err     error
}

type pendingTx struct {
	tx       ir.Tx
	events   []ir.Event
	contract ir.Address
}

// Submit runs one call. An accepted call is sealed into a new block of
// its own; a rejected call appends nothing and returns the registry error.
func (l *Ledger) Submit(ctx context.Context, caller ir.Address, call registry.Call) (Receipt, error) {
	results, err := l.SubmitBatch(ctx, []Request{{Caller: caller, Call: call}})
	if err != nil {
		return Receipt{}, err
	}
	if results[0].Err != nil {
		return Receipt{}, results[0].Err
	}
	return *results[0].Receipt, nil
}

// SubmitBatch runs calls in order against the evolving state and seals the
// accepted ones into a single block, numbered 0..n-1 in submission order.
// Rejected calls are reported in their BatchResult and leave no trace. If
// every call is rejected no block is appended. A non-nil error means the
// block could not be stored and nothing was committed.
func (l *Ledger) SubmitBatch(ctx context.Context, reqs []Request) ([]BatchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}

	work := l.reg.Snapshot()
	results := make([]BatchResult, len(reqs))
	var pending []pendingTx
	seq := l.txSeq

	for i, req := range reqs {
		delta, events, err := registry.Transition(work, req.Caller, req.Call)
		if err != nil {
			l.logger.Debug("call rejected", "method", methodOf(req.Call), "caller", req.Caller.String(), "error", err)
			results[i].Err = err
			continue
		}
		work.Apply(delta)
		seq++

		args, err := ir.MarshalCanonical(req.Call.Args())
		if err != nil {
			return nil, fmt.Errorf("submit %s: encode args: %w", req.Call.Method(), err)
		}
		hash, err := registry.TxHash(req.Caller, req.Call, seq)
		if err != nil {
			return nil, fmt.Errorf("submit %s: %w", req.Call.Method(), err)
		}
		p := pendingTx{
			tx: ir.Tx{
				Hash:   hash,
				Index:  uint32(len(pending)),
				From:   req.Caller,
				Method: req.Call.Method(),
				Args:   json.RawMessage(args),
			},
			events: events,
		}
		if delta.Record != nil {
			p.contract = delta.Record.Address
		}
		pending = append(pending, p)
	}

	if len(pending) == 0 {
		return results, nil
	}

	block := l.seal(l.head, l.head.Number+1, pending)
	raw, err := json.Marshal(block)
	if err != nil {
		return nil, fmt.Errorf("submit: encode block %d: %w", block.Number, err)
	}
	if err := l.db.Update(func(txn *badger.Txn) error {
		return txn.Set(blockKey(block.Number), raw)
	}); err != nil {
		return nil, fmt.Errorf("submit: write block %d: %w", block.Number, err)
	}

	// The block is durable; commit the same calls to the live registry.
	k := 0
	for i, req := range reqs {
		if results[i].Err != nil {
			continue
		}
		if _, err := l.reg.Execute(req.Caller, req.Call); err != nil {
			panic(fmt.Sprintf("ledger: registry diverged from sealed block %d: %v", block.Number, err))
		}
		results[i].Receipt = &Receipt{
			Block:    block.Ref(),
			Tx:       block.Txs[k],
			Contract: pending[k].contract,
		}
		k++
	}

	l.head = block
	l.txSeq = seq
	l.notify()
	l.logger.Debug("block sealed", "number", block.Number, "hash", block.Hash.String(), "txs", len(block.Txs))
	return results, nil
}

// seal assembles a block on top of parent, stamping each event with its
// position, transaction hash, block hash, and timestamp.
func (l *Ledger) seal(parent ir.Block, number uint64, pending []pendingTx) ir.Block {
	ts := l.clock.Now().Unix()
	if number > 0 && ts < parent.Timestamp {
		ts = parent.Timestamp
	}

	hashes := make([]ir.Hash, len(pending))
	for i, p := range pending {
		hashes[i] = p.tx.Hash
	}
	var parentHash ir.Hash
	if number > 0 {
		parentHash = parent.Hash
	}
	blockHash := ir.BlockHash(parentHash, number, ts, hashes)

	txs := make([]ir.Tx, len(pending))
	for i, p := range pending {
		tx := p.tx
		tx.Logs = make([]ir.Log, len(p.events))
		for j, ev := range p.events {
			tx.Logs[j] = ir.Log{
				Position:  ir.Position{Block: number, TxIndex: tx.Index, LogIndex: uint32(j)},
				TxHash:    tx.Hash,
				BlockHash: blockHash,
				Timestamp: ts,
				Event:     ev,
			}
		}
		txs[i] = tx
	}

	return ir.Block{
		Number:     number,
		Hash:       blockHash,
		ParentHash: parentHash,
		Timestamp:  ts,
		Txs:        txs,
	}
}

// notify wakes every waiter on the current Changed channel. Caller holds
// the write lock.
func (l *Ledger) notify() {
	close(l.changed)
	l.changed = make(chan struct{})
}

func methodOf(c registry.Call) string {
	if c == nil {
		return ""
	}
	return c.Method()
}
