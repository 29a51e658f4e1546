package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sqlite "github.com/mattn/go-sqlite3"

	"github.com/roach88/s01l/internal/ir"
)

// ErrConflict reports a different entity under an id or position that is
// already stored. It is never retried: the store and the source disagree.
var ErrConflict = errors.New("entity conflict")

// EntityColumns is the column list every entity query selects, in the
// order scanEntity expects.
const EntityColumns = "id, kind, block_number, tx_index, log_index, block_timestamp, transaction_hash, payload"

// EntityOrder is the deterministic order of every entity list.
const EntityOrder = "block_number ASC, tx_index ASC, log_index ASC, id COLLATE BINARY ASC"

// EntityOrderDesc reverses EntityOrder.
const EntityOrderDesc = "block_number DESC, tx_index DESC, log_index DESC, id COLLATE BINARY DESC"

// InsertEntity stores e if no entity with its id exists.
// Returns inserted=true for a new row and inserted=false when an identical
// entity is already stored. A stored entity that differs in any field
// returns ErrConflict.
func (s *Store) InsertEntity(ctx context.Context, e ir.Entity) (inserted bool, err error) {
	payload, err := ir.MarshalCanonical(e.Fields)
	if err != nil {
		return false, fmt.Errorf("insert entity %s: %w", e.ID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("insert entity: begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO entities
		(id, kind, block_number, tx_index, log_index, block_timestamp, transaction_hash, contract_address, parent, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		e.ID,
		string(e.Kind),
		int64(e.Position.Block),
		int64(e.Position.TxIndex),
		int64(e.Position.LogIndex),
		e.BlockTimestamp,
		e.TransactionHash.String(),
		nullable(e.Fields[ir.FieldContractAddress]),
		nullable(e.Fields[ir.FieldParent]),
		string(payload),
	)
	if err != nil {
		var se sqlite.Error
		if errors.As(err, &se) && se.ExtendedCode == sqlite.ErrConstraintUnique {
			return false, fmt.Errorf("insert entity %s: position %s already holds another entity: %w",
				e.ID, e.Position, ErrConflict)
		}
		return false, fmt.Errorf("insert entity %s: %w", e.ID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert entity: rows affected: %w", err)
	}

	if rows == 0 {
		existing, err := scanEntity(tx.QueryRowContext(ctx,
			"SELECT "+EntityColumns+" FROM entities WHERE id = ?", e.ID))
		if err != nil {
			return false, fmt.Errorf("insert entity %s: read existing: %w", e.ID, err)
		}
		if !existing.Equal(e) {
			return false, fmt.Errorf("insert entity %s: stored entity differs: %w", e.ID, ErrConflict)
		}
		return false, nil
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("insert entity: commit: %w", err)
	}
	return true, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// ReadEntity returns the entity with the given id.
// found is false if no such entity exists.
func (s *Store) ReadEntity(ctx context.Context, id string) (e ir.Entity, found bool, err error) {
	e, err = scanEntity(s.db.QueryRowContext(ctx,
		"SELECT "+EntityColumns+" FROM entities WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Entity{}, false, nil
	}
	if err != nil {
		return ir.Entity{}, false, fmt.Errorf("read entity %s: %w", id, err)
	}
	return e, true, nil
}

// ListEntities runs a query that selects EntityColumns from entities and
// returns the rows in query order. Callers build query with querysql.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) ListEntities(ctx context.Context, query string, args ...any) ([]ir.Entity, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()

	entities := []ir.Entity{}
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("list entities: %w", err)
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list entities: iterate: %w", err)
	}
	return entities, nil
}

// EntitiesFrom returns every entity at or after block from, in order.
func (s *Store) EntitiesFrom(ctx context.Context, from uint64) ([]ir.Entity, error) {
	return s.ListEntities(ctx,
		"SELECT "+EntityColumns+" FROM entities WHERE block_number >= ? ORDER BY "+EntityOrder,
		int64(from))
}

// HasEntitiesFrom reports whether any entity is stored at or after block from.
func (s *Store) HasEntitiesFrom(ctx context.Context, from uint64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM entities WHERE block_number >= ?)", int64(from),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("entities from %d: %w", from, err)
	}
	return exists, nil
}

// CountEntities counts entities of kind, or of every kind when kind is "".
func (s *Store) CountEntities(ctx context.Context, kind ir.EventKind) (int64, error) {
	var (
		n   int64
		err error
	)
	if kind == "" {
		err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entities").Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entities WHERE kind = ?", string(kind)).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("count entities: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (ir.Entity, error) {
	var (
		e                        ir.Entity
		kind, txHash, payload    string
		block, txIndex, logIndex int64
	)
	if err := row.Scan(&e.ID, &kind, &block, &txIndex, &logIndex, &e.BlockTimestamp, &txHash, &payload); err != nil {
		return ir.Entity{}, err
	}
	h, err := ir.ParseHash(txHash)
	if err != nil {
		return ir.Entity{}, fmt.Errorf("entity %s: %w", e.ID, err)
	}
	if err := json.Unmarshal([]byte(payload), &e.Fields); err != nil {
		return ir.Entity{}, fmt.Errorf("entity %s: decode payload: %w", e.ID, err)
	}
	e.Kind = ir.EventKind(kind)
	e.TransactionHash = h
	e.Position = ir.Position{Block: uint64(block), TxIndex: uint32(txIndex), LogIndex: uint32(logIndex)}
	return e, nil
}
