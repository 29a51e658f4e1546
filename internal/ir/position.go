package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// Position is the deterministic key of a log entry in the event log.
// Positions are totally ordered: block, then transaction, then log.
type Position struct {
	Block    uint64 `json:"block"`
	TxIndex  uint32 `json:"tx_index"`
	LogIndex uint32 `json:"log_index"`
}

// Compare returns -1, 0, or +1 ordering p against o.
func (p Position) Compare(o Position) int {
	switch {
	case p.Block != o.Block:
		return cmpUint(p.Block, o.Block)
	case p.TxIndex != o.TxIndex:
		return cmpUint(uint64(p.TxIndex), uint64(o.TxIndex))
	default:
		return cmpUint(uint64(p.LogIndex), uint64(o.LogIndex))
	}
}

// Less reports whether p sorts before o.
func (p Position) Less(o Position) bool {
	return p.Compare(o) < 0
}

func (p Position) String() string {
	return fmt.Sprintf("%d/%d/%d", p.Block, p.TxIndex, p.LogIndex)
}

// ParsePosition parses the "block/tx/log" form produced by String.
func ParsePosition(s string) (Position, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return Position{}, fmt.Errorf("position %q: want block/tx/log", s)
	}
	block, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return Position{}, fmt.Errorf("position %q: block: %w", s, err)
	}
	tx, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return Position{}, fmt.Errorf("position %q: tx: %w", s, err)
	}
	log, err := strconv.ParseUint(parts[2], 10, 32)
	if err != nil {
		return Position{}, fmt.Errorf("position %q: log: %w", s, err)
	}
	return Position{Block: block, TxIndex: uint32(tx), LogIndex: uint32(log)}, nil
}

func cmpUint(a, b uint64) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}
