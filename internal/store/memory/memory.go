// Package memory is an in-process store.Store over items supplied by a loader,
// used for local development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/DeafMist/diet-digest/backend/internal/keys"
	"github.com/DeafMist/diet-digest/backend/internal/store"
)

// Loader supplies the items of the store. It is called until it succeeds.
type Loader interface {
	Items(ctx context.Context) ([]store.Item, error)
}

type partition []store.Item

// Store answers Get and Query from sorted in-memory partitions. Items only
// appear in an index when they carry both its partition and sort attributes.
type Store struct {
	loader Loader
	schema keys.Schema

	mu      sync.Mutex
	loaded  bool
	primary map[keys.Key]store.Item
	indexes map[string]map[string]partition
}

// New builds a Store. Nothing is read until the first call.
func New(loader Loader, schema keys.Schema) *Store {
	return &Store{loader: loader, schema: schema}
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, key keys.Key) (store.Item, bool, error) {
	if err := s.load(ctx); err != nil {
		return nil, false, err
	}
	item, ok := s.primary[key]
	if !ok {
		return nil, false, nil
	}
	return clone(item), true, nil
}

// Query implements store.Store. The cursor is the offset of the next item.
func (s *Store) Query(ctx context.Context, in store.QueryInput) (*store.Page, error) {
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	parts, ok := s.indexes[in.Index]
	if !ok {
		return nil, fmt.Errorf("query %q: unknown index", in.Index)
	}
	items := parts[in.Partition]

	n := len(items)
	if in.Limit > 0 && in.Limit < n {
		n = in.Limit
	}
	page := &store.Page{Items: make([]store.Item, 0, n)}
	for i := 0; i < n; i++ {
		idx := i
		if !in.Forward {
			idx = len(items) - 1 - i
		}
		page.Items = append(page.Items, clone(items[idx]))
	}
	if n < len(items) {
		page.Cursor = strconv.Itoa(n)
	}
	return page, nil
}

func (s *Store) load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return nil
	}
	if s.loader == nil {
		return store.Unavailable("memory load", fmt.Errorf("no loader configured"))
	}

	items, err := s.loader.Items(ctx)
	if err != nil {
		return store.Unavailable("memory load", err)
	}

	specs := map[string]keys.IndexSpec{"": s.schema.Table}
	for name, spec := range s.schema.Indexes {
		specs[name] = spec
	}

	s.primary = make(map[keys.Key]store.Item, len(items))
	s.indexes = make(map[string]map[string]partition, len(specs))
	for name := range specs {
		s.indexes[name] = map[string]partition{}
	}
	for _, item := range items {
		pk, sk := item.String(s.schema.Table.PartitionAttr), item.String(s.schema.Table.SortAttr)
		if pk == "" || sk == "" {
			continue
		}
		s.primary[keys.Key{PK: pk, SK: sk}] = item
		for name, spec := range specs {
			p, okP := item[spec.PartitionAttr].(string)
			_, okS := item[spec.SortAttr].(string)
			if !okP || !okS {
				continue
			}
			s.indexes[name][p] = append(s.indexes[name][p], item)
		}
	}

	tablePK := s.schema.Table.PartitionAttr
	for name, parts := range s.indexes {
		sortAttr := specs[name].SortAttr
		for _, p := range parts {
			sort.SliceStable(p, func(i, j int) bool {
				a, b := p[i].String(sortAttr), p[j].String(sortAttr)
				if a != b {
					return a < b
				}
				return p[i].String(tablePK) < p[j].String(tablePK)
			})
		}
	}
	s.loaded = true
	return nil
}

func clone(item store.Item) store.Item {
	out := make(store.Item, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}
