package core

import (
	"context"
	"fmt"
	"sync"
)

// ResourceGroup is the result of a Find: a fixed number of slots, one per
// matching row at the time of the find, filled lazily by Fetch.
type ResourceGroup struct {
	repo    *Repository
	rt      *ResourceType
	filter  *Filter
	sorting *Sorting
	count   int

	mu      sync.RWMutex
	slots   []*Resource
	fetched []bool
}

func newResourceGroup(repo *Repository, rt *ResourceType, filter *Filter, sorting *Sorting, count int) *ResourceGroup {
	return &ResourceGroup{
		repo:    repo,
		rt:      rt,
		filter:  filter,
		sorting: sorting,
		count:   count,
		slots:   make([]*Resource, count),
		fetched: make([]bool, count),
	}
}

// Type returns the resource type of the group
func (g *ResourceGroup) Type() *ResourceType {
	return g.rt
}

// Count returns the number of slots, fixed when the group was created
func (g *ResourceGroup) Count() int {
	return g.count
}

// Fetch loads the slots [offset, offset+limit) from the backend
func (g *ResourceGroup) Fetch(ctx context.Context, offset, limit int) error {
	_, err := g.FetchAsync(offset, limit).Wait(ctx)
	return err
}

// FetchAll loads every slot
func (g *ResourceGroup) FetchAll(ctx context.Context) error {
	return g.Fetch(ctx, 0, g.count)
}

// FetchAsync is the non-blocking form of Fetch. The result is the number of
// rows the backend returned, which is less than limit when rows were
// deleted after the find. Slots of the range left without a row become
// unfetched again.
func (g *ResourceGroup) FetchAsync(offset, limit int) *Operation[int] {
	if offset < 0 || limit < 0 || offset+limit > g.count {
		return Failed[int](Errorf(CodeRange, "fetch [%d, %d) outside group of %d", offset, offset+limit, g.count))
	}
	if limit == 0 {
		return Completed(0, nil)
	}
	query, args, err := selectStatement(g.rt, g.filter, g.sorting, limit, offset)
	if err != nil {
		return Failed[int](err)
	}

	return Schedule(g.repo.adapter, func(ctx context.Context, conn Conn) (int, error) {
		rs, err := conn.Query(ctx, query, args...)
		if err != nil {
			return 0, WrapError(err, CodeQuery, fmt.Sprintf("fetch %s", g.rt.name))
		}

		loaded := make([]*Resource, 0, rs.Len())
		for _, row := range rs.Rows {
			values, err := decodeRow(g.rt, row)
			if err != nil {
				return 0, err
			}
			loaded = append(loaded, g.rt.loaded(g.repo, values))
		}
		if len(loaded) > limit {
			loaded = loaded[:limit]
		}

		g.mu.Lock()
		for i := 0; i < limit; i++ {
			if i < len(loaded) {
				g.slots[offset+i] = loaded[i]
				g.fetched[offset+i] = true
				continue
			}
			// rows deleted since the find leave the tail of the range empty
			g.slots[offset+i] = nil
			g.fetched[offset+i] = false
		}
		g.mu.Unlock()
		return len(loaded), nil
	})
}

// Get returns the instance in slot index
func (g *ResourceGroup) Get(index int) (*Resource, error) {
	if index < 0 || index >= g.count {
		return nil, Errorf(CodeIndex, "index %d outside group of %d", index, g.count)
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.fetched[index] {
		return nil, Errorf(CodeNotFetched, "slot %d has not been fetched", index)
	}
	return g.slots[index], nil
}

// IsFetched reports whether slot index holds a fetched instance
func (g *ResourceGroup) IsFetched(index int) bool {
	if index < 0 || index >= g.count {
		return false
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.fetched[index]
}

// Resources returns every slot. It fails with ErrNotFetched while any slot
// is still unfetched.
func (g *ResourceGroup) Resources() ([]*Resource, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for i, ok := range g.fetched {
		if !ok {
			return nil, Errorf(CodeNotFetched, "slot %d has not been fetched", i)
		}
	}
	out := make([]*Resource, g.count)
	copy(out, g.slots)
	return out, nil
}
