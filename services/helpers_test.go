package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"campus-server/models"
	"campus-server/store"
	"campus-server/utils/logger"
)

type testEnv struct {
	store     *store.MemoryStore
	cache     *store.MemoryCache
	events    *RecordingPublisher
	users     *UserService
	monuments *MonumentService
	badges    *BadgeService
	ledger    *InteractionLedger
	graph     *SocialGraph
	selector  *RecommendationSelector
	clock     *fakeClock
}

// fakeClock advances one second per reading so creation order is visible in
// timestamps.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := logger.Discard()
	docs := store.NewMemoryStore()
	cache := store.NewMemoryCache()
	events := &RecordingPublisher{}
	clock := &fakeClock{t: time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)}

	users := NewUserService(docs, cache, UserServiceConfig{CacheTTL: time.Hour, JWTSecret: "test-secret", TokenTTL: time.Hour}, log)
	users.now = clock.Now
	monuments := NewMonumentService(docs, cache, time.Hour, log)
	badges := NewBadgeService(docs, users, monuments, log)
	badges.now = clock.Now
	ledger := NewInteractionLedger(docs, users, events, log)
	ledger.now = clock.Now
	graph := NewSocialGraph(docs, store.NewKeyedMutex(), users, events, log)
	graph.now = clock.Now

	return &testEnv{
		store:     docs,
		cache:     cache,
		events:    events,
		users:     users,
		monuments: monuments,
		badges:    badges,
		ledger:    ledger,
		graph:     graph,
		selector:  NewRecommendationSelector(graph, monuments, users),
		clock:     clock,
	}
}

// addUser inserts an account directly, skipping password hashing.
func (e *testEnv) addUser(t *testing.T, id string, private bool) models.User {
	t.Helper()
	u := models.User{
		ID:             id,
		Username:       "user-" + id,
		Private:        private,
		Following:      []string{},
		Followers:      []string{},
		FollowRequests: []string{},
		Wishlist:       []string{},
		CreatedAt:      e.clock.Now(),
	}
	if err := e.store.Insert(context.Background(), store.Users, u); err != nil {
		t.Fatal(err)
	}
	return u
}

func (e *testEnv) user(t *testing.T, id string) models.User {
	t.Helper()
	var u models.User
	if err := e.store.Get(context.Background(), store.Users, id, &u); err != nil {
		t.Fatal(err)
	}
	return u
}

func (e *testEnv) addBadge(t *testing.T, owner string) models.Badge {
	t.Helper()
	b, err := e.badges.Submit(context.Background(), owner, BadgeSubmission{
		FrontImage:   "front.jpg",
		BackImage:    "back.jpg",
		LocationText: "Memorial Mall",
	})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func (e *testEnv) badge(t *testing.T, id string) models.Badge {
	t.Helper()
	b, err := e.badges.Get(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func (e *testEnv) seedMonuments(t *testing.T) {
	t.Helper()
	n, err := e.monuments.Seed(context.Background(), "../data/monuments.json")
	if err != nil {
		t.Fatal(err)
	}
	if n == 0 {
		t.Fatal("no monuments seeded")
	}
}
