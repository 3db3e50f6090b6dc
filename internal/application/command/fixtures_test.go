package command

import (
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/studyplan/studyplan-pvp/internal/domain/match"
	"github.com/studyplan/studyplan-pvp/internal/domain/shared"
	"github.com/studyplan/studyplan-pvp/internal/infrastructure/persistence/memory"
	"github.com/studyplan/studyplan-pvp/pkg/logger"
)

// 12:00 in Seoul.
var t0 = time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC)

const (
	testSeasonID  = int64(1)
	testProblemID = int64(100)
	testAnswer    = "Photosynthesis"
	testBaseScore = 40
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *recordingPublisher) Publish(e shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) resolved() []shared.MatchResolvedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []shared.MatchResolvedEvent
	for _, e := range p.events {
		if r, ok := e.(shared.MatchResolvedEvent); ok {
			out = append(out, r)
		}
	}
	return out
}

func (p *recordingPublisher) count(t shared.EventType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.EventType() == t {
			n++
		}
	}
	return n
}

type testEnv struct {
	store     *memory.Store
	queue     *memory.Queue
	cache     *memory.RankingCache
	clock     *testClock
	publisher *recordingPublisher
	faker     *gofakeit.Faker

	resolver *Resolver
	create   *CreateMatchHandler
	submit   *SubmitAnswerHandler
	forfeit  *ForfeitHandler
	sweep    *SweepTimeoutsHandler
	join     *JoinQueueHandler
	leave    *LeaveQueueHandler
	snapshot *SnapshotRankingsHandler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	clock := &testClock{now: t0}
	store := memory.NewStore(memory.Options{Now: clock.Now})
	catalog := store.Catalog()
	pub := &recordingPublisher{}
	log := logger.Nop()

	store.AddSeason(shared.Season{ID: testSeasonID, Name: "2026-spring", IsActive: true})
	store.AddProblem(match.Problem{
		ID:       testProblemID,
		SeasonID: testSeasonID,
		Title:    "Plants",
		Content:  "How do plants turn light into energy?",
		Subject:  "수학",
		Answer:   testAnswer,
		Score:    testBaseScore,
	})

	env := &testEnv{
		store:     store,
		queue:     memory.NewQueue(10*time.Minute, clock.Now),
		cache:     memory.NewRankingCache(time.Minute, clock.Now),
		clock:     clock,
		publisher: pub,
		faker:     gofakeit.New(42),
	}

	env.resolver = NewResolver(store.Matches(), store, catalog, catalog, pub, DefaultResolverConfig(), nil, log, clock.Now)
	env.create = NewCreateMatchHandler(store.Matches(), catalog, catalog, catalog, env.resolver, pub,
		CreateMatchHandlerConfig{}, nil, log, clock.Now, nil)
	env.submit = NewSubmitAnswerHandler(store.Matches(), catalog, env.resolver, pub, nil, log, clock.Now)
	env.forfeit = NewForfeitHandler(store.Matches(), env.resolver, log)
	env.sweep = NewSweepTimeoutsHandler(store.Matches(), env.resolver, nil, log, clock.Now)
	env.join = NewJoinQueueHandler(env.queue, env.create, pub, nil, log)
	env.leave = NewLeaveQueueHandler(env.queue)
	env.snapshot = NewSnapshotRankingsHandler(catalog, store.Scores(), store.Snapshots(), env.cache, pub,
		SnapshotRankingsHandlerConfig{Retention: 24 * time.Hour}, log, clock.Now, nil)
	return env
}

// addUsers seeds users with the science diploma "IT" and returns their IDs.
func (e *testEnv) addUsers(ids ...int64) {
	for _, id := range ids {
		e.store.AddUser(memory.User{ID: id, Username: e.faker.Username(), Diploma: "IT"})
	}
}

func intPtr(v int) *int { return &v }
