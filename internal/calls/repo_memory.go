package calls

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo is an in-memory Store for tests and local runs.
type MemoryRepo struct {
	mu    sync.Mutex
	order []string
	rows  map[string]Call
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{rows: map[string]Call{}} }

func (r *MemoryRepo) Create(ctx context.Context, c Call) error {
	if err := validateNew(c); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[c.CallID]; ok {
		return ErrDuplicateCallID
	}
	r.rows[c.CallID] = c
	r.order = append(r.order, c.CallID)
	return nil
}

func (r *MemoryRepo) Update(ctx context.Context, callID string, u Update) (Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.rows[callID]
	if !ok {
		return Call{}, ErrNotFound
	}
	next, err := apply(cur, u)
	if err != nil {
		return Call{}, err
	}
	r.rows[callID] = next
	return next, nil
}

func (r *MemoryRepo) Find(ctx context.Context, callID string) (Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[callID]
	if !ok {
		return Call{}, ErrNotFound
	}
	return c, nil
}

func (r *MemoryRepo) List(ctx context.Context, f Filter) ([]Call, error) {
	r.mu.Lock()
	out := make([]Call, 0, len(r.order))
	for _, id := range r.order {
		if c := r.rows[id]; f.match(c) {
			out = append(out, c)
		}
	}
	r.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		if f.Order == OldestFirst {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *MemoryRepo) Count(ctx context.Context, f Filter) (int, error) {
	f.Limit = 0
	rows, err := r.List(ctx, f)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (r *MemoryRepo) Delete(ctx context.Context, callID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[callID]; !ok {
		return ErrNotFound
	}
	delete(r.rows, callID)
	for i, id := range r.order {
		if id == callID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}
