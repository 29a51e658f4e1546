package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/s01l/internal/ir"
)

// ErrBlockOrder reports a block recorded out of sequence or over a
// different block at the same height.
var ErrBlockOrder = errors.New("block out of order")

// Checkpoint is the projector's durable position.
type Checkpoint struct {
	SourceID string
	Block    uint64
	Hash     ir.Hash
}

// RecordBlock marks block ref as fully applied: it stores the block's hashes
// and advances the checkpoint in one transaction. ref must directly follow
// the current checkpoint (or be block 0 on an empty store).
func (s *Store) RecordBlock(ctx context.Context, sourceID string, ref ir.BlockRef) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record block: begin tx: %w", err)
	}
	defer tx.Rollback()

	cp, found, err := readCheckpoint(ctx, tx)
	if err != nil {
		return fmt.Errorf("record block %d: %w", ref.Number, err)
	}
	switch {
	case !found && ref.Number != 0:
		return fmt.Errorf("record block %d: empty store expects block 0: %w", ref.Number, ErrBlockOrder)
	case found && ref.Number != cp.Block+1:
		return fmt.Errorf("record block %d: checkpoint is %d: %w", ref.Number, cp.Block, ErrBlockOrder)
	case found && ref.ParentHash != cp.Hash:
		return fmt.Errorf("record block %d: parent %s does not match checkpoint %s: %w",
			ref.Number, ref.ParentHash, cp.Hash, ErrBlockOrder)
	case found && cp.SourceID != sourceID:
		return fmt.Errorf("record block %d: checkpoint belongs to source %s, not %s: %w",
			ref.Number, cp.SourceID, sourceID, ErrBlockOrder)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO indexed_blocks (number, hash, parent_hash)
		VALUES (?, ?, ?)
	`, int64(ref.Number), ref.Hash.String(), ref.ParentHash.String()); err != nil {
		return fmt.Errorf("record block %d: %w", ref.Number, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO checkpoint (id, source_id, block_number, block_hash)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source_id = excluded.source_id,
			block_number = excluded.block_number,
			block_hash = excluded.block_hash
	`, sourceID, int64(ref.Number), ref.Hash.String()); err != nil {
		return fmt.Errorf("record block %d: checkpoint: %w", ref.Number, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record block %d: commit: %w", ref.Number, err)
	}
	return nil
}

// Checkpoint returns the last recorded block. found is false on an empty
// store.
func (s *Store) Checkpoint(ctx context.Context) (cp Checkpoint, found bool, err error) {
	cp, found, err = readCheckpoint(ctx, s.db)
	if err != nil {
		return Checkpoint{}, false, fmt.Errorf("read checkpoint: %w", err)
	}
	return cp, found, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func readCheckpoint(ctx context.Context, q queryRower) (Checkpoint, bool, error) {
	var (
		cp    Checkpoint
		block int64
		hash  string
	)
	err := q.QueryRowContext(ctx,
		"SELECT source_id, block_number, block_hash FROM checkpoint WHERE id = 1",
	).Scan(&cp.SourceID, &block, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return Checkpoint{}, false, nil
	}
	if err != nil {
		return Checkpoint{}, false, err
	}
	h, err := ir.ParseHash(hash)
	if err != nil {
		return Checkpoint{}, false, err
	}
	cp.Block = uint64(block)
	cp.Hash = h
	return cp, true, nil
}

// BlockHash returns the stored hash of block n. found is false if block n
// has not been recorded.
func (s *Store) BlockHash(ctx context.Context, n uint64) (h ir.Hash, found bool, err error) {
	var hash string
	err = s.db.QueryRowContext(ctx,
		"SELECT hash FROM indexed_blocks WHERE number = ?", int64(n),
	).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Hash{}, false, nil
	}
	if err != nil {
		return ir.Hash{}, false, fmt.Errorf("block hash %d: %w", n, err)
	}
	h, err = ir.ParseHash(hash)
	if err != nil {
		return ir.Hash{}, false, fmt.Errorf("block hash %d: %w", n, err)
	}
	return h, true, nil
}

// Retract removes every entity and indexed block at height from or above
// and moves the checkpoint to from-1, all in one transaction. Retracting
// from 0 empties the store. Returns the number of entities removed.
func (s *Store) Retract(ctx context.Context, from uint64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("retract: begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, "DELETE FROM entities WHERE block_number >= ?", int64(from))
	if err != nil {
		return 0, fmt.Errorf("retract from %d: entities: %w", from, err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("retract: rows affected: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM indexed_blocks WHERE number >= ?", int64(from)); err != nil {
		return 0, fmt.Errorf("retract from %d: blocks: %w", from, err)
	}

	cp, found, err := readCheckpoint(ctx, tx)
	if err != nil {
		return 0, fmt.Errorf("retract: %w", err)
	}
	if found && cp.Block >= from {
		if err := rewindCheckpoint(ctx, tx, from); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("retract: commit: %w", err)
	}
	return removed, nil
}

// rewindCheckpoint moves the checkpoint to from-1, or clears it when
// nothing below from is recorded.
func rewindCheckpoint(ctx context.Context, tx *sql.Tx, from uint64) error {
	var hash string
	err := sql.ErrNoRows
	if from > 0 {
		err = tx.QueryRowContext(ctx,
			"SELECT hash FROM indexed_blocks WHERE number = ?", int64(from-1),
		).Scan(&hash)
	}
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := tx.ExecContext(ctx, "DELETE FROM checkpoint"); err != nil {
			return fmt.Errorf("retract: clear checkpoint: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("retract: read block %d: %w", from-1, err)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE checkpoint SET block_number = ?, block_hash = ? WHERE id = 1",
		int64(from-1), hash,
	); err != nil {
		return fmt.Errorf("retract: move checkpoint: %w", err)
	}
	return nil
}
