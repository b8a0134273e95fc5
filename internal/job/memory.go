package job

import (
	"context"
	"sync"
)

var _ Repository = (*MemoryRepository)(nil)

// MemoryRepository holds snapshots of the jobs of one batch. Save and the
// finders copy jobs, so a running job can keep mutating its own state.
type MemoryRepository struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]*Job
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[string]*Job)}
}

func (r *MemoryRepository) Save(_ context.Context, job *Job) error {
	snapshot := job.Clone()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, seen := r.byID[snapshot.ID]; !seen {
		r.order = append(r.order, snapshot.ID)
	}
	r.byID[snapshot.ID] = snapshot
	return nil
}

func (r *MemoryRepository) FindByID(_ context.Context, id string) (*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot, ok := r.byID[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return snapshot.Clone(), nil
}

func (r *MemoryRepository) List(_ context.Context) ([]*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	jobs := make([]*Job, len(r.order))
	for i, id := range r.order {
		jobs[i] = r.byID[id].Clone()
	}
	return jobs, nil
}

func (r *MemoryRepository) Tally(_ context.Context) (map[Status]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[Status]int)
	for _, snapshot := range r.byID {
		counts[snapshot.Status]++
	}
	return counts, nil
}
