package projector

import (
	"context"
	"fmt"

	"github.com/roach88/s01l/internal/ir"
	"github.com/roach88/s01l/internal/store"
)

// reorg handles a source that no longer extends the indexed chain. It finds
// the highest block whose stored hash the source still agrees with and
// retracts everything above it.
func (p *Projector) reorg(ctx context.Context, cp store.Checkpoint, head ir.BlockRef) error {
	ancestor, ok, err := p.commonAncestor(ctx, min(cp.Block, head.Number))
	if err != nil {
		return err
	}
	from := uint64(0)
	if ok {
		from = ancestor + 1
	}

	p.logger.Warn("reorg detected",
		"checkpoint", cp.Block,
		"checkpoint_hash", cp.Hash.String(),
		"source_head", head.Number,
		"retract_from", from,
	)
	reorgTotal.Inc()
	p.mu.Lock()
	p.stats.Reorgs++
	p.mu.Unlock()

	return p.retract(ctx, from)
}

// commonAncestor walks down from start comparing stored block hashes with
// the source. ok is false when not even block 0 matches.
func (p *Projector) commonAncestor(ctx context.Context, start uint64) (n uint64, ok bool, err error) {
	for n = start; ; n-- {
		stored, err := retry(ctx, p, "block hash", func() (storedHash, error) {
			h, found, err := p.st.BlockHash(ctx, n)
			return storedHash{h, found}, err
		})
		if err != nil {
			return 0, false, p.unavailable(n, "read stored block hash", err)
		}
		if stored.found {
			block, err := retry(ctx, p, "block", func() (ir.Block, error) {
				return p.src.BlockByNumber(ctx, n)
			})
			if err != nil {
				return 0, false, p.unavailable(n, "read source block", err)
			}
			if block.Hash == stored.hash {
				return n, true, nil
			}
		}
		if n == 0 {
			return 0, false, nil
		}
	}
}

type storedHash struct {
	hash  ir.Hash
	found bool
}

// retract removes every entity and indexed block at or above from. Any
// failure halts the projector.
func (p *Projector) retract(ctx context.Context, from uint64) error {
	removed, err := retry(ctx, p, "retract", func() (int64, error) {
		return p.st.Retract(ctx, from)
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &Error{
			Code:    CodeHalted,
			Block:   from,
			Message: fmt.Sprintf("retract entities from block %d", from),
			Err:     err,
		}
	}

	retractedTotal.Add(float64(removed))
	p.mu.Lock()
	p.stats.Retracted += uint64(removed)
	p.mu.Unlock()
	p.logger.Info("entities retracted", "from_block", from, "count", removed)

	if p.onRetract != nil {
		p.onRetract(from)
	}
	return nil
}
