package project

import (
	"context"
	"sync"

	"github.com/emgroup/sitesync/internal/repository"
)

// MemoryRepository keeps projects in process memory, in creation order.
type MemoryRepository struct {
	mu       sync.RWMutex
	order    []string
	projects map[string]Project
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{projects: make(map[string]Project)}
}

func (r *MemoryRepository) Create(ctx context.Context, proj *Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.projects[proj.ID]; exists {
		return repository.ErrConflict
	}
	r.order = append(r.order, proj.ID)
	r.projects[proj.ID] = *proj
	return nil
}

func (r *MemoryRepository) Get(ctx context.Context, id string) (*Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	proj, ok := r.projects[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &proj, nil
}

func (r *MemoryRepository) List(ctx context.Context) ([]Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Project, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.projects[id])
	}
	return out, nil
}

func (r *MemoryRepository) Update(ctx context.Context, proj *Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.projects[proj.ID]; !ok {
		return repository.ErrNotFound
	}
	r.projects[proj.ID] = *proj
	return nil
}

var _ Repository = (*MemoryRepository)(nil)
