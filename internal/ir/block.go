package ir

import (
	"encoding/json"
	"fmt"
	"maps"
)

// Block is one sealed unit of the event log.
type Block struct {
	Number     uint64 `json:"number"`
	Hash       Hash   `json:"hash"`
	ParentHash Hash   `json:"parent_hash"`
	Timestamp  int64  `json:"timestamp"`
	Txs        []Tx   `json:"txs"`
}

// Ref returns the block's identity triple.
func (b Block) Ref() BlockRef {
	return BlockRef{Number: b.Number, Hash: b.Hash, ParentHash: b.ParentHash}
}

// Logs returns every log in the block in (tx, log) order.
// Returns an empty slice, never nil.
func (b Block) Logs() []Log {
	logs := []Log{}
	for _, tx := range b.Txs {
		logs = append(logs, tx.Logs...)
	}
	return logs
}

// BlockRef identifies a block without its contents.
type BlockRef struct {
	Number     uint64 `json:"number"`
	Hash       Hash   `json:"hash"`
	ParentHash Hash   `json:"parent_hash"`
}

// Tx is one accepted call sealed into a block.
type Tx struct {
	Hash   Hash            `json:"hash"`
	Index  uint32          `json:"index"`
	From   Address         `json:"from"`
	Method string          `json:"method"`
	Args   json.RawMessage `json:"args"`
	Logs   []Log           `json:"logs"`
}

// Log is one emitted event with the provenance the log assigns to it.
type Log struct {
	Position  Position
	TxHash    Hash
	BlockHash Hash
	Timestamp int64
	Event     Event
}

type logJSON struct {
	Position  Position        `json:"position"`
	TxHash    Hash            `json:"tx_hash"`
	BlockHash Hash            `json:"block_hash"`
	Timestamp int64           `json:"timestamp"`
	Event     json.RawMessage `json:"event"`
}

// MarshalJSON implements json.Marshaler.
func (l Log) MarshalJSON() ([]byte, error) {
	ev, err := MarshalEvent(l.Event)
	if err != nil {
		return nil, fmt.Errorf("log %s: %w", l.Position, err)
	}
	return json.Marshal(logJSON{
		Position:  l.Position,
		TxHash:    l.TxHash,
		BlockHash: l.BlockHash,
		Timestamp: l.Timestamp,
		Event:     ev,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *Log) UnmarshalJSON(data []byte) error {
	var raw logJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	ev, err := UnmarshalEvent(raw.Event)
	if err != nil {
		return fmt.Errorf("log %s: %w", raw.Position, err)
	}
	*l = Log{
		Position:  raw.Position,
		TxHash:    raw.TxHash,
		BlockHash: raw.BlockHash,
		Timestamp: raw.Timestamp,
		Event:     ev,
	}
	return nil
}

// Entity is the materialized, immutable record of one log entry.
type Entity struct {
	ID              string            `json:"id"`
	Kind            EventKind         `json:"kind"`
	Position        Position          `json:"position"`
	BlockTimestamp  int64             `json:"block_timestamp"`
	TransactionHash Hash              `json:"transaction_hash"`
	Fields          map[string]string `json:"fields"`
}

// NewEntity builds the entity for a log: payload copied verbatim plus
// provenance.
func NewEntity(l Log) Entity {
	return Entity{
		ID:              EntityID(l.TxHash, l.Position.LogIndex),
		Kind:            l.Event.Kind(),
		Position:        l.Position,
		BlockTimestamp:  l.Timestamp,
		TransactionHash: l.TxHash,
		Fields:          l.Event.Fields(),
	}
}

// Equal reports whether e and o carry the same id, payload, and provenance.
func (e Entity) Equal(o Entity) bool {
	return e.ID == o.ID &&
		e.Kind == o.Kind &&
		e.Position == o.Position &&
		e.BlockTimestamp == o.BlockTimestamp &&
		e.TransactionHash == o.TransactionHash &&
		maps.Equal(e.Fields, o.Fields)
}

// Event decodes the entity payload back into its Event.
func (e Entity) Event() (Event, error) {
	return ParseEvent(e.Kind, e.Fields)
}
