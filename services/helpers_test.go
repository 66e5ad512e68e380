package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"places-server/models"
	"places-server/store"

	"github.com/stretchr/testify/require"
)

var empireState = models.Location{Lat: 40.7484, Lng: -73.9857}

type fakeGeocoder struct {
	mu    sync.Mutex
	loc   models.Location
	err   error
	delay time.Duration
	calls int
}

func (g *fakeGeocoder) Resolve(ctx context.Context, address string) (models.Location, error) {
	g.mu.Lock()
	g.calls++
	loc, err, delay := g.loc, g.err, g.delay
	g.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return models.Location{}, ctx.Err()
		}
	}
	return loc, err
}

func (g *fakeGeocoder) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// countingStore counts every call into the wrapped store and can force the
// next commits to fail.
type countingStore struct {
	store.Store
	calls      atomic.Int64
	failCommit error
}

func (s *countingStore) count() { s.calls.Add(1) }

func (s *countingStore) FindPlace(ctx context.Context, id string) (models.Place, error) {
	s.count()
	return s.Store.FindPlace(ctx, id)
}

func (s *countingStore) FindUser(ctx context.Context, id string) (models.User, error) {
	s.count()
	return s.Store.FindUser(ctx, id)
}

func (s *countingStore) FindUserByEmail(ctx context.Context, email string) (models.User, error) {
	s.count()
	return s.Store.FindUserByEmail(ctx, email)
}

func (s *countingStore) FindUserWithPlaces(ctx context.Context, id string) (models.User, []models.Place, error) {
	s.count()
	return s.Store.FindUserWithPlaces(ctx, id)
}

func (s *countingStore) ReplacePlace(ctx context.Context, place models.Place) error {
	s.count()
	return s.Store.ReplacePlace(ctx, place)
}

func (s *countingStore) InsertUser(ctx context.Context, user models.User) error {
	s.count()
	return s.Store.InsertUser(ctx, user)
}

func (s *countingStore) ListUsers(ctx context.Context) ([]models.User, error) {
	s.count()
	return s.Store.ListUsers(ctx)
}

func (s *countingStore) Begin(ctx context.Context) (store.Tx, error) {
	s.count()
	tx, err := s.Store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &failingTx{Tx: tx, failCommit: s.failCommit}, nil
}

type failingTx struct {
	store.Tx
	failCommit error
}

func (t *failingTx) Commit(ctx context.Context) error {
	if t.failCommit != nil {
		_ = t.Tx.Abort(ctx)
		return t.failCommit
	}
	return t.Tx.Commit(ctx)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events map[string][]PlaceEvent
}

func (p *recordingPublisher) Publish(_ context.Context, subject string, event PlaceEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.events == nil {
		p.events = map[string][]PlaceEvent{}
	}
	p.events[subject] = append(p.events[subject], event)
	return nil
}

type testEnv struct {
	mem      *store.MemoryStore
	store    *countingStore
	geocoder *fakeGeocoder
	events   *recordingPublisher
	places   *PlaceService
	users    *UserService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mem := store.NewMemoryStore()
	st := &countingStore{Store: mem}
	geo := &fakeGeocoder{loc: empireState}
	events := &recordingPublisher{}
	users := NewUserService(st, NewTokenIssuer("test-secret", time.Hour))
	users.bcryptCost = 4
	return &testEnv{
		mem:      mem,
		store:    st,
		geocoder: geo,
		events:   events,
		places:   NewPlaceService(st, geo, events, time.Second, time.Second),
		users:    users,
	}
}

// seedUser inserts a user straight into the store and returns it.
func (e *testEnv) seedUser(t *testing.T, id, email string) models.User {
	t.Helper()
	user := models.User{ID: id, Name: "Test User", Email: email, PasswordHash: "x", Image: "uploads/images/u.png", Places: []string{}}
	require.NoError(t, e.mem.InsertUser(context.Background(), user))
	return user
}

func (e *testEnv) createRequest(creatorID string) CreatePlaceRequest {
	return CreatePlaceRequest{
		Title:       "Empire State Building",
		Description: "One of the most famous sky scrapers in the world!",
		Address:     "20 W 34th St., New York, NY 10001",
		CreatorID:   creatorID,
		ImagePath:   "uploads/images/empire.png",
	}
}

var errCommitFailed = errors.New("commit failed")
