package query

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/roach88/s01l/internal/ir"
	"github.com/roach88/s01l/internal/queryir"
	"github.com/roach88/s01l/internal/querysql"
	"github.com/roach88/s01l/internal/store"
)

// ErrNotFound reports an entity id or address with no indexed entity.
var ErrNotFound = errors.New("not found")

// DefaultCacheTTL is how long a point lookup stays cached.
const DefaultCacheTTL = 5 * time.Minute

// Store is the read-only subset of *store.Store the service uses.
type Store interface {
	ReadEntity(ctx context.Context, id string) (ir.Entity, bool, error)
	ListEntities(ctx context.Context, query string, args ...any) ([]ir.Entity, error)
	CountEntities(ctx context.Context, kind ir.EventKind) (int64, error)
	Checkpoint(ctx context.Context) (store.Checkpoint, bool, error)
	Ping(ctx context.Context) error
}

var _ Store = (*store.Store)(nil)

// Service serves queries over indexed entities.
type Service struct {
	st    Store
	cache *cache.Cache

	// gen counts invalidations. A read that overlaps one is not cached.
	mu  sync.Mutex
	gen uint64
}

// Option configures a Service.
type Option func(*serviceConfig)

type serviceConfig struct {
	ttl time.Duration
}

// WithCacheTTL sets the point-lookup cache lifetime.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *serviceConfig) { c.ttl = ttl }
}

// NewService creates a Service over st.
func NewService(st Store, opts ...Option) *Service {
	cfg := serviceConfig{ttl: DefaultCacheTTL}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Service{
		st:    st,
		cache: cache.New(cfg.ttl, 2*cfg.ttl),
	}
}

// Head is the last block the store has indexed.
type Head struct {
	SourceID string  `json:"source_id"`
	Block    uint64  `json:"block"`
	Hash     ir.Hash `json:"hash"`
}

// Get returns the entity with id. Entities are immutable until retracted,
// so hits are served from cache; Invalidate drops retracted ones.
func (s *Service) Get(ctx context.Context, id string) (ir.Entity, error) {
	if v, ok := s.cache.Get(id); ok {
		cacheHits.Inc()
		return v.(ir.Entity), nil
	}
	cacheMisses.Inc()

	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	e, found, err := s.st.ReadEntity(ctx, id)
	if err != nil {
		return ir.Entity{}, fmt.Errorf("get %s: %w", id, err)
	}
	if !found {
		return ir.Entity{}, fmt.Errorf("entity %s: %w", id, ErrNotFound)
	}

	s.mu.Lock()
	if s.gen == gen {
		s.cache.SetDefault(id, e)
	}
	s.mu.Unlock()
	return e, nil
}

// Invalidate drops cached entities positioned at or above block from.
// Wire it to the projector's retract hook.
func (s *Service) Invalidate(from uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	for id, item := range s.cache.Items() {
		if e, ok := item.Object.(ir.Entity); ok && e.Position.Block >= from {
			s.cache.Delete(id)
		}
	}
}

// ListParams selects entities for List. Zero values mean "any".
type ListParams struct {
	Kind            ir.EventKind
	ContractAddress ir.Address
	Parent          ir.Address
	TransactionHash ir.Hash
	// FromBlock and ToBlock bound the block range, both inclusive.
	FromBlock *uint64
	ToBlock   *uint64
	Order     queryir.Order
	Limit     int
	// After is an exclusive cursor in the requested order: for descending
	// lists it selects entities before the position.
	After *ir.Position
}

// Page is one page of a list.
type Page struct {
	Entities []ir.Entity `json:"entities"`
	// Next is the cursor for the following page, set when this page is full.
	Next *ir.Position `json:"next,omitempty"`
	// Cursor is Next in the text form the HTTP "after" parameter takes.
	Cursor string `json:"cursor,omitempty"`
	Head   *Head  `json:"head"`
}

// List returns entities matching p in position order.
func (s *Service) List(ctx context.Context, p ListParams) (Page, error) {
	q := p.query()
	sql, args, err := querysql.Compile(q)
	if err != nil {
		return Page{}, err
	}
	entities, err := s.st.ListEntities(ctx, sql, args...)
	if err != nil {
		return Page{}, fmt.Errorf("list: %w", err)
	}
	head, err := s.head(ctx)
	if err != nil {
		return Page{}, err
	}

	page := Page{Entities: entities, Head: head}
	if len(entities) == q.EffectiveLimit() {
		next := entities[len(entities)-1].Position
		page.Next = &next
		page.Cursor = next.String()
	}
	return page, nil
}

func (p ListParams) query() queryir.ListQuery {
	var preds []queryir.Predicate
	if !p.ContractAddress.IsZero() {
		preds = append(preds, queryir.Equals{Field: queryir.FieldContractAddress, Value: p.ContractAddress.String()})
	}
	if !p.Parent.IsZero() {
		preds = append(preds, queryir.Equals{Field: queryir.FieldParent, Value: p.Parent.String()})
	}
	if !p.TransactionHash.IsZero() {
		preds = append(preds, queryir.Equals{Field: queryir.FieldTransactionHash, Value: p.TransactionHash.String()})
	}
	if p.FromBlock != nil || p.ToBlock != nil {
		r := queryir.BlockRange{To: math.MaxInt64}
		if p.FromBlock != nil {
			r.From = *p.FromBlock
		}
		if p.ToBlock != nil {
			r.To = *p.ToBlock
		}
		preds = append(preds, r)
	}
	if p.After != nil {
		if p.Order == queryir.Descending {
			preds = append(preds, queryir.Before{Position: *p.After})
		} else {
			preds = append(preds, queryir.After{Position: *p.After})
		}
	}

	q := queryir.ListQuery{Kind: p.Kind, Order: p.Order, Limit: p.Limit}
	switch len(preds) {
	case 0:
	case 1:
		q.Filter = preds[0]
	default:
		q.Filter = queryir.And{Predicates: preds}
	}
	return q
}

// Latest returns up to n entities of kind, newest first.
func (s *Service) Latest(ctx context.Context, kind ir.EventKind, n int) ([]ir.Entity, error) {
	page, err := s.List(ctx, ListParams{Kind: kind, Order: queryir.Descending, Limit: n})
	if err != nil {
		return nil, err
	}
	return page.Entities, nil
}

// each visits every entity matching p in ascending order, a page at a time.
func (s *Service) each(ctx context.Context, p ListParams, fn func(ir.Entity) error) error {
	p.Order = queryir.Ascending
	p.Limit = queryir.MaxLimit
	for {
		page, err := s.List(ctx, p)
		if err != nil {
			return err
		}
		for _, e := range page.Entities {
			if err := fn(e); err != nil {
				return err
			}
		}
		if page.Next == nil {
			return nil
		}
		p.After = page.Next
	}
}

func (s *Service) head(ctx context.Context) (*Head, error) {
	cp, found, err := s.st.Checkpoint(ctx)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &Head{SourceID: cp.SourceID, Block: cp.Block, Hash: cp.Hash}, nil
}

// Status describes how much has been indexed.
type Status struct {
	Head   *Head                  `json:"head"`
	Total  int64                  `json:"total"`
	Counts map[ir.EventKind]int64 `json:"counts"`
}

// Status reports the indexed head and per-kind entity counts.
func (s *Service) Status(ctx context.Context) (Status, error) {
	head, err := s.head(ctx)
	if err != nil {
		return Status{}, err
	}
	st := Status{Head: head, Counts: make(map[ir.EventKind]int64, len(ir.EventKinds))}
	for _, kind := range ir.EventKinds {
		n, err := s.st.CountEntities(ctx, kind)
		if err != nil {
			return Status{}, fmt.Errorf("status: %w", err)
		}
		st.Counts[kind] = n
		st.Total += n
	}
	return st, nil
}

// Ping checks that the store answers.
func (s *Service) Ping(ctx context.Context) error {
	return s.st.Ping(ctx)
}
