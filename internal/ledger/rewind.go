package ledger

import (
	"context"
	"fmt"
)

// Rewind drops every block above to and rebuilds registry state by
// replaying the survivors. The genesis block cannot be dropped.
// Returns the number of blocks removed.
func (l *Ledger) Rewind(ctx context.Context, to uint64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("rewind: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0, ErrClosed
	}
	if to >= l.head.Number {
		return 0, nil
	}

	removed := 0
	wb := l.db.NewWriteBatch()
	defer wb.Cancel()
	for n := to + 1; n <= l.head.Number; n++ {
		if err := wb.Delete(blockKey(n)); err != nil {
			return 0, fmt.Errorf("rewind: delete block %d: %w", n, err)
		}
		removed++
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("rewind: %w", err)
	}

	oldHead := l.head.Number
	if err := l.replay(ctx, l.regCfg); err != nil {
		return removed, fmt.Errorf("rewind: %w", err)
	}
	l.notify()
	l.logger.Info("ledger rewound", "from", oldHead, "to", to, "removed", removed)
	return removed, nil
}
