package logfile

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/roach88/s01l/internal/ir"
)

// FormatVersion is written in the header line.
const FormatVersion = 1

// Header is the first line of a log file.
type Header struct {
	Format   int    `json:"format"`
	SourceID string `json:"source_id"`
}

// BlockReader is what Export needs from a ledger.
type BlockReader interface {
	ID() string
	Blocks(ctx context.Context, from uint64, fn func(ir.Block) error) error
}

// Export writes every block of src to path and returns the block count.
func Export(ctx context.Context, src BlockReader, path string) (int, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("export: create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return 0, fmt.Errorf("export: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	enc := json.NewEncoder(w)
	if err := enc.Encode(Header{Format: FormatVersion, SourceID: src.ID()}); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("export: header: %w", err)
	}

	count := 0
	err = src.Blocks(ctx, 0, func(b ir.Block) error {
		count++
		return enc.Encode(b)
	})
	if err != nil {
		tmp.Close()
		return 0, fmt.Errorf("export: block %d: %w", count-1, err)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("export: flush: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("export: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("export: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, fmt.Errorf("export: rename: %w", err)
	}
	return count, nil
}
