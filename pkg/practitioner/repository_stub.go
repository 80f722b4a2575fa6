package practitioner

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"
	"time"
)

type RepositoryStub struct {
	txMu          sync.Mutex
	mu            sync.RWMutex
	practitioners map[int]Practitioner
	nextId        int
}

func NewRepositoryStub() *RepositoryStub {
	return &RepositoryStub{
		practitioners: make(map[int]Practitioner),
		nextId:        1,
	}
}

func (r *RepositoryStub) WithTransaction(ctx context.Context, fn func(repo Repository) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()

	r.mu.RLock()
	original := maps.Clone(r.practitioners)
	originalNextId := r.nextId
	r.mu.RUnlock()

	if err := fn(r); err != nil {
		r.mu.Lock()
		r.practitioners = original
		r.nextId = originalNextId
		r.mu.Unlock()
		return err
	}
	return nil
}

func (r *RepositoryStub) Lock(ctx context.Context, id int) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.practitioners[id]; !ok {
		return ErrPractitionerNotFound
	}
	return nil
}

func (r *RepositoryStub) usernameTaken(username string, exceptId int) bool {
	if username == "" {
		return false
	}
	for id, p := range r.practitioners {
		if id != exceptId && p.Username == username {
			return true
		}
	}
	return false
}

func (r *RepositoryStub) Create(ctx context.Context, practitioner Practitioner) (Practitioner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.usernameTaken(practitioner.Username, 0) {
		return Practitioner{}, ErrUsernameTaken
	}
	practitioner.Id = r.nextId
	r.nextId++
	practitioner.CreatedAt = time.Now()
	r.practitioners[practitioner.Id] = practitioner
	return practitioner, nil
}

func (r *RepositoryStub) Get(ctx context.Context, id int) (Practitioner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	practitioner, ok := r.practitioners[id]
	if !ok {
		return Practitioner{}, ErrPractitionerNotFound
	}
	return practitioner, nil
}

func (r *RepositoryStub) GetByUsername(ctx context.Context, username string) (Practitioner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.practitioners {
		if username != "" && p.Username == username {
			return p, nil
		}
	}
	return Practitioner{}, ErrPractitionerNotFound
}

func (r *RepositoryStub) List(ctx context.Context) ([]Practitioner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := slices.Collect(maps.Values(r.practitioners))
	slices.SortFunc(result, func(a, b Practitioner) int {
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.Id, b.Id)
	})
	if result == nil {
		result = make([]Practitioner, 0)
	}
	return result, nil
}

func (r *RepositoryStub) Update(ctx context.Context, practitioner Practitioner) (Practitioner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.practitioners[practitioner.Id]
	if !ok {
		return Practitioner{}, ErrPractitionerNotFound
	}
	if r.usernameTaken(practitioner.Username, practitioner.Id) {
		return Practitioner{}, ErrUsernameTaken
	}
	practitioner.CreatedAt = existing.CreatedAt
	r.practitioners[practitioner.Id] = practitioner
	return practitioner, nil
}

func (r *RepositoryStub) Delete(ctx context.Context, id int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.practitioners[id]; !ok {
		return false, nil
	}
	delete(r.practitioners, id)
	return true, nil
}
