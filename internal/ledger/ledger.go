package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/roach88/s01l/internal/ir"
	"github.com/roach88/s01l/internal/registry"
)

// MethodDeploy is the method recorded on the genesis transaction.
const MethodDeploy = "deploy"

// ErrBlockNotFound is returned for block numbers above the head.
var ErrBlockNotFound = errors.New("block not found")

// ErrClosed is returned by operations on a closed ledger.
var ErrClosed = errors.New("ledger closed")

// Config configures a Ledger.
type Config struct {
	// Path is the badger directory. Ignored when InMemory is set.
	Path       string
	InMemory   bool
	SyncWrites bool

	// Registry describes the deployment. On reopen a zero Deployer means
	// "use the stored deployment"; otherwise it must match.
	Registry registry.Config

	Clock  Clock
	Logger *slog.Logger
}

// Ledger is a single-writer, append-only block log over one registry.
type Ledger struct {
	db     *badger.DB
	clock  Clock
	logger *slog.Logger

	mu      sync.RWMutex
	reg     *registry.Registry
	regCfg  registry.Config
	head    ir.Block
	txSeq   uint64
	id      string
	changed chan struct{}
	closed  bool
}

type registryMeta struct {
	Address  ir.Address `json:"address"`
	Deployer ir.Address `json:"deployer"`
	Cost     uint64     `json:"cost"`
}

// Open opens or creates a ledger. A new ledger gets a genesis block 0
// holding the deployment's ownership event; an existing one is replayed
// block by block and must reproduce its stored events exactly.
func Open(ctx context.Context, cfg Config) (*Ledger, error) {
	if cfg.Clock == nil {
		cfg.Clock = systemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	db, err := openBadger(cfg)
	if err != nil {
		return nil, fmt.Errorf("ledger open: %w", err)
	}

	l := &Ledger{
		db:      db,
		clock:   cfg.Clock,
		logger:  cfg.Logger,
		changed: make(chan struct{}),
	}

	if err := l.load(ctx, cfg.Registry); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger open: %w", err)
	}
	return l, nil
}

// load initializes a fresh ledger or replays an existing one.
func (l *Ledger) load(ctx context.Context, want registry.Config) error {
	var (
		meta    registryMeta
		present bool
	)
	err := l.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyRegistryCfg)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		present = true
		if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &meta) }); err != nil {
			return err
		}
		idItem, err := txn.Get(keySourceID)
		if err != nil {
			return fmt.Errorf("read source id: %w", err)
		}
		return idItem.Value(func(v []byte) error {
			l.id = string(v)
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("read metadata: %w", err)
	}

	if !present {
		return l.genesis(want)
	}

	stored := registry.Config{Address: meta.Address, Deployer: meta.Deployer, Cost: meta.Cost}
	if !want.Deployer.IsZero() && want != stored {
		return fmt.Errorf("registry config mismatch: stored %+v, requested %+v", stored, want)
	}
	return l.replay(ctx, stored)
}

func (l *Ledger) genesis(cfg registry.Config) error {
	reg, events, err := registry.New(cfg)
	if err != nil {
		return err
	}

	tx := ir.Tx{Index: 0, From: cfg.Deployer, Method: MethodDeploy, Args: json.RawMessage(`{}`)}
	tx.Hash, err = ir.TxHash(cfg.Deployer, MethodDeploy, map[string]any{}, 0)
	if err != nil {
		return err
	}
	block := l.seal(ir.Block{}, 0, []pendingTx{{tx: tx, events: events}})

	id := uuid.Must(uuid.NewV7()).String()
	meta, err := json.Marshal(registryMeta{Address: cfg.Address, Deployer: cfg.Deployer, Cost: cfg.Cost})
	if err != nil {
		return err
	}
	raw, err := json.Marshal(block)
	if err != nil {
		return fmt.Errorf("encode genesis: %w", err)
	}
	err = l.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(keySourceID, []byte(id)); err != nil {
			return err
		}
		if err := txn.Set(keyRegistryCfg, meta); err != nil {
			return err
		}
		return txn.Set(blockKey(0), raw)
	})
	if err != nil {
		return fmt.Errorf("write genesis: %w", err)
	}

	l.reg = reg
	l.regCfg = cfg
	l.head = block
	l.id = id
	l.logger.Info("ledger created", "source_id", id, "registry", cfg.Address.String(), "deployer", cfg.Deployer.String())
	return nil
}

// replay rebuilds the registry from every stored block, checking each
// transaction reproduces the events stored with it.
func (l *Ledger) replay(ctx context.Context, cfg registry.Config) error {
	reg, genesisEvents, err := registry.New(cfg)
	if err != nil {
		return err
	}

	var (
		head  ir.Block
		seq   uint64
		count int
	)
	err = l.iterate(ctx, 0, func(b ir.Block) error {
		if b.Number != uint64(count) {
			return fmt.Errorf("gap in block log: expected %d, found %d", count, b.Number)
		}
		if b.Number > 0 && b.ParentHash != head.Hash {
			return fmt.Errorf("block %d: parent hash does not match block %d", b.Number, head.Number)
		}
		count++
		if b.Number == 0 {
			if err := sameEvents(b.Logs(), genesisEvents); err != nil {
				return fmt.Errorf("genesis: %w", err)
			}
			head = b
			return nil
		}
		for _, tx := range b.Txs {
			seq++
			call, err := decodeCall(tx)
			if err != nil {
				return fmt.Errorf("block %d tx %d: %w", b.Number, tx.Index, err)
			}
			res, err := reg.Execute(tx.From, call)
			if err != nil {
				return fmt.Errorf("block %d tx %d: replay rejected: %w", b.Number, tx.Index, err)
			}
			if err := sameEvents(tx.Logs, res.Events); err != nil {
				return fmt.Errorf("block %d tx %d: %w", b.Number, tx.Index, err)
			}
		}
		head = b
		return nil
	})
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("replay: genesis block missing")
	}

	l.reg = reg
	l.regCfg = cfg
	l.head = head
	l.txSeq = seq
	l.logger.Debug("ledger replayed", "source_id", l.id, "head", head.Number, "txs", seq)
	return nil
}

func sameEvents(logs []ir.Log, events []ir.Event) error {
	if len(logs) != len(events) {
		return fmt.Errorf("replay diverged: %d stored events, %d produced", len(logs), len(events))
	}
	for i := range logs {
		if logs[i].Event != events[i] {
			return fmt.Errorf("replay diverged at log %d: stored %s, produced %s",
				i, logs[i].Event.Kind(), events[i].Kind())
		}
	}
	return nil
}

func decodeCall(tx ir.Tx) (registry.Call, error) {
	var args map[string]string
	if err := json.Unmarshal(tx.Args, &args); err != nil {
		return nil, fmt.Errorf("decode args: %w", err)
	}
	return registry.ParseCall(tx.Method, args)
}

// Close releases the underlying database.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	close(l.changed)
	return l.db.Close()
}
