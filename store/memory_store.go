package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"places-server/models"
)

// MemoryStore keeps documents in process memory. It honours the same
// transactional contract as MongoStore: staged writes are checked and applied
// under one lock on Commit, or not at all.
type MemoryStore struct {
	mu     sync.RWMutex
	places map[string]models.Place
	users  map[string]models.User
	emails map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		places: make(map[string]models.Place),
		users:  make(map[string]models.User),
		emails: make(map[string]string),
	}
}

func (s *MemoryStore) FindPlace(_ context.Context, placeID string) (models.Place, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	place, ok := s.places[placeID]
	if !ok {
		return models.Place{}, ErrNotFound
	}
	return place, nil
}

func (s *MemoryStore) FindPlacesByCreator(_ context.Context, userID string) ([]models.Place, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	places := []models.Place{}
	for _, p := range s.places {
		if p.Creator == userID {
			places = append(places, p)
		}
	}
	sort.Slice(places, func(i, j int) bool { return places[i].ID < places[j].ID })
	return places, nil
}

func (s *MemoryStore) ReplacePlace(_ context.Context, place models.Place) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.places[place.ID]; !ok {
		return ErrNotFound
	}
	s.places[place.ID] = place
	return nil
}

func (s *MemoryStore) FindUser(_ context.Context, userID string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[userID]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return copyUser(user), nil
}

func (s *MemoryStore) FindUserByEmail(_ context.Context, email string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.emails[email]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return copyUser(s.users[id]), nil
}

func (s *MemoryStore) FindUserWithPlaces(_ context.Context, userID string) (models.User, []models.Place, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[userID]
	if !ok {
		return models.User{}, nil, ErrNotFound
	}
	places := make([]models.Place, 0, len(user.Places))
	for _, id := range user.Places {
		if p, ok := s.places[id]; ok {
			places = append(places, p)
		}
	}
	return copyUser(user), places, nil
}

func (s *MemoryStore) ListUsers(_ context.Context) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, copyUser(u))
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (s *MemoryStore) InsertUser(_ context.Context, user models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.emails[user.Email]; ok {
		return fmt.Errorf("%w: email %q", ErrDuplicateKey, user.Email)
	}
	if _, ok := s.users[user.ID]; ok {
		return fmt.Errorf("%w: user id %q", ErrDuplicateKey, user.ID)
	}
	user = copyUser(user)
	if user.Places == nil {
		user.Places = []string{}
	}
	s.users[user.ID] = user
	s.emails[user.Email] = user.ID
	return nil
}

func (s *MemoryStore) Begin(_ context.Context) (Tx, error) {
	return &memoryTx{store: s}, nil
}

type memoryOp func(s *MemoryStore) error

type memoryTx struct {
	store *MemoryStore
	// checks run before any apply; applies cannot fail.
	checks  []memoryOp
	applies []func(s *MemoryStore)
	done    bool
}

func (t *memoryTx) InsertPlace(_ context.Context, place models.Place) error {
	if t.done {
		return fmt.Errorf("transaction already finished")
	}
	t.checks = append(t.checks, func(s *MemoryStore) error {
		if _, ok := s.places[place.ID]; ok {
			return fmt.Errorf("%w: place id %q", ErrDuplicateKey, place.ID)
		}
		return nil
	})
	t.applies = append(t.applies, func(s *MemoryStore) {
		s.places[place.ID] = place
	})
	return nil
}

func (t *memoryTx) DeletePlace(_ context.Context, placeID string) error {
	if t.done {
		return fmt.Errorf("transaction already finished")
	}
	t.checks = append(t.checks, func(s *MemoryStore) error {
		if _, ok := s.places[placeID]; !ok {
			return ErrNotFound
		}
		return nil
	})
	t.applies = append(t.applies, func(s *MemoryStore) {
		delete(s.places, placeID)
	})
	return nil
}

func (t *memoryTx) ReplaceUserPlaces(_ context.Context, userID string, places []string, expectedVersion int64) error {
	if t.done {
		return fmt.Errorf("transaction already finished")
	}
	staged := append([]string{}, places...)
	t.checks = append(t.checks, func(s *MemoryStore) error {
		user, ok := s.users[userID]
		if !ok || user.Version != expectedVersion {
			return ErrConflict
		}
		return nil
	})
	t.applies = append(t.applies, func(s *MemoryStore) {
		user := s.users[userID]
		user.Places = staged
		user.Version++
		s.users[userID] = user
	})
	return nil
}

func (t *memoryTx) Commit(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	if err := ctx.Err(); err != nil {
		return err
	}
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, check := range t.checks {
		if err := check(s); err != nil {
			return err
		}
	}
	for _, apply := range t.applies {
		apply(s)
	}
	return nil
}

func (t *memoryTx) Abort(_ context.Context) error {
	t.done = true
	t.checks = nil
	t.applies = nil
	return nil
}

func copyUser(u models.User) models.User {
	if u.Places != nil {
		u.Places = append([]string{}, u.Places...)
	}
	return u
}
