package logfile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/roach88/s01l/internal/ir"
)

// ErrBlockNotFound is returned for block numbers above the loaded head.
var ErrBlockNotFound = errors.New("block not found")

// Config holds Source options.
type Config struct {
	Path     string
	Debounce time.Duration
	Logger   *slog.Logger
}

// DefaultConfig returns a config with a short debounce.
func DefaultConfig(path string) Config {
	return Config{Path: path, Debounce: 100 * time.Millisecond}
}

// Source serves blocks from a log file and reloads it when it changes.
type Source struct {
	path     string
	debounce time.Duration
	logger   *slog.Logger
	fsw      *fsnotify.Watcher

	mu      sync.RWMutex
	id      string
	blocks  []ir.Block
	changed chan struct{}

	done chan struct{}
	wg   sync.WaitGroup
}

// Open loads the file and starts watching it.
func Open(cfg Config) (*Source, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	h, blocks, err := ReadFile(cfg.Path)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	dir := filepath.Dir(cfg.Path)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watching directory %s: %w", dir, err)
	}

	s := &Source{
		path:     cfg.Path,
		debounce: cfg.Debounce,
		logger:   cfg.Logger,
		fsw:      fsw,
		id:       h.SourceID,
		blocks:   blocks,
		changed:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	s.wg.Add(1)
	go s.loop()
	return s, nil
}

// Close stops watching.
func (s *Source) Close() error {
	select {
	case <-s.done:
		return nil
	default:
	}
	close(s.done)
	err := s.fsw.Close()
	s.wg.Wait()
	return err
}

// ID returns the source id from the file header.
func (s *Source) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// Head returns the last loaded block.
func (s *Source) Head(ctx context.Context) (ir.BlockRef, error) {
	if err := ctx.Err(); err != nil {
		return ir.BlockRef{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.blocks[len(s.blocks)-1].Ref(), nil
}

// BlockByNumber returns a loaded block.
func (s *Source) BlockByNumber(ctx context.Context, n uint64) (ir.Block, error) {
	if err := ctx.Err(); err != nil {
		return ir.Block{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n >= uint64(len(s.blocks)) {
		return ir.Block{}, fmt.Errorf("block %d: %w", n, ErrBlockNotFound)
	}
	return s.blocks[n], nil
}

// Changed returns a channel closed at the next successful reload.
func (s *Source) Changed() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.changed
}

// Reload re-reads the file. A malformed file leaves the loaded blocks
// untouched.
func (s *Source) Reload() error {
	h, blocks, err := ReadFile(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = h.SourceID
	s.blocks = blocks
	close(s.changed)
	s.changed = make(chan struct{})
	s.logger.Debug("log file reloaded", "path", s.path, "head", blocks[len(blocks)-1].Number)
	return nil
}

// loop processes file system events with debouncing.
func (s *Source) loop() {
	defer s.wg.Done()

	var timer *time.Timer
	timerC := func() <-chan time.Time {
		if timer != nil {
			return timer.C
		}
		return nil
	}

	for {
		select {
		case event, ok := <-s.fsw.Events:
			if !ok {
				return
			}
			if !s.isRelevantEvent(event) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(s.debounce)
			} else {
				timer.Reset(s.debounce)
			}

		case <-timerC():
			timer = nil
			if err := s.Reload(); err != nil {
				s.logger.Warn("log file reload failed", "path", s.path, "error", err)
			}

		case err, ok := <-s.fsw.Errors:
			if !ok {
				return
			}
			s.logger.Warn("log file watch error", "path", s.path, "error", err)

		case <-s.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

// isRelevantEvent reports whether event touched the watched file. Export
// renames a temp file over it, which shows up as Create on most platforms.
func (s *Source) isRelevantEvent(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return false
	}
	return filepath.Clean(event.Name) == filepath.Clean(s.path)
}
