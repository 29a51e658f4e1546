package logfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/roach88/s01l/internal/ir"
)

// ReadFile loads and validates a whole log file: blocks must be numbered
// from 0 without gaps, each linked to its predecessor by parent hash.
func ReadFile(path string) (Header, []ir.Block, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, nil, fmt.Errorf("read log: %w", err)
	}
	defer f.Close()
	return decode(f)
}

func decode(r io.Reader) (Header, []ir.Block, error) {
	dec := json.NewDecoder(r)

	var h Header
	if err := dec.Decode(&h); err != nil {
		return Header{}, nil, fmt.Errorf("read log header: %w", err)
	}
	if h.Format != FormatVersion {
		return Header{}, nil, fmt.Errorf("read log: unsupported format %d", h.Format)
	}
	if h.SourceID == "" {
		return Header{}, nil, fmt.Errorf("read log: header has no source id")
	}

	blocks := []ir.Block{}
	for {
		var b ir.Block
		err := dec.Decode(&b)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Header{}, nil, fmt.Errorf("read log: block %d: %w", len(blocks), err)
		}
		if b.Number != uint64(len(blocks)) {
			return Header{}, nil, fmt.Errorf("read log: expected block %d, found %d", len(blocks), b.Number)
		}
		if n := len(blocks); n > 0 && b.ParentHash != blocks[n-1].Hash {
			return Header{}, nil, fmt.Errorf("read log: block %d does not link to block %d", b.Number, n-1)
		}
		blocks = append(blocks, b)
	}
	if len(blocks) == 0 {
		return Header{}, nil, fmt.Errorf("read log: no genesis block")
	}
	return h, blocks, nil
}
