package profile

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository is the record store for profiles, keyed by user id.
// Implementations set UpdatedAt on every mutation and wrap transport
// failures with ErrNetwork.
type Repository interface {
	// Get returns the profile or ErrNotFound.
	Get(ctx context.Context, userID string) (*Profile, error)

	// Create inserts a profile with every optional field empty. A second
	// call for the same user fails with ErrConflict.
	Create(ctx context.Context, userID, email string) (*Profile, error)

	// Update applies the set fields of patch and returns the full record,
	// or ErrNotFound.
	Update(ctx context.Context, userID string, patch Patch) (*Profile, error)

	// Delete removes the profile. Deleting a missing profile is not an error.
	Delete(ctx context.Context, userID string) error
}

// MemoryRepository is an in-process Repository.
type MemoryRepository struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
	now      func() time.Time
}

// MemoryOption configures a MemoryRepository.
type MemoryOption func(*MemoryRepository)

// WithMemoryClock overrides the time source used for timestamps.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(r *MemoryRepository) {
		if now != nil {
			r.now = now
		}
	}
}

func NewMemoryRepository(opts ...MemoryOption) *MemoryRepository {
	r := &MemoryRepository{
		profiles: make(map[string]*Profile),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *MemoryRepository) Get(ctx context.Context, userID string) (*Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrapNetwork(err)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

func (r *MemoryRepository) Create(ctx context.Context, userID, email string) (*Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrapNetwork(err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.profiles[userID]; ok {
		return nil, ErrConflict
	}
	now := r.now().UTC()
	p := &Profile{
		ID:        uuid.New(),
		UserID:    userID,
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.profiles[userID] = p
	return p.Clone(), nil
}

func (r *MemoryRepository) Update(ctx context.Context, userID string, patch Patch) (*Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrapNetwork(err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	patch.ApplyTo(p)
	p.UpdatedAt = r.now().UTC()
	return p.Clone(), nil
}

func (r *MemoryRepository) Delete(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return wrapNetwork(err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.profiles, userID)
	return nil
}

// Len reports the number of stored profiles.
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.profiles)
}
