package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyplan/studyplan-pvp/config"
	"github.com/studyplan/studyplan-pvp/internal/application/command"
	"github.com/studyplan/studyplan-pvp/internal/application/query"
	"github.com/studyplan/studyplan-pvp/internal/domain/match"
	"github.com/studyplan/studyplan-pvp/internal/domain/shared"
	"github.com/studyplan/studyplan-pvp/internal/infrastructure/persistence/memory"
	"github.com/studyplan/studyplan-pvp/internal/interface/http/handlers"
	"github.com/studyplan/studyplan-pvp/pkg/logger"
)

// 12:00 in Seoul.
var t0 = time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC)

const testAnswer = "Photosynthesis"

type recordedRequest struct {
	route  string
	method string
	status int
}

type fakeHTTPMetrics struct {
	mu       sync.Mutex
	requests []recordedRequest
}

func (m *fakeHTTPMetrics) ObserveHTTP(route, method string, status int, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, recordedRequest{route, method, status})
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
	Meta    *ResponseMeta   `json:"meta"`
}

type testServer struct {
	handler http.Handler
	metrics *fakeHTTPMetrics
	store   *memory.Store
}

func newTestServer(t *testing.T, health handlers.HealthChecker) *testServer {
	t.Helper()
	return newTestServerWithFeatures(t, health, nil)
}

func newTestServerWithFeatures(t *testing.T, health handlers.HealthChecker, features *config.FeatureFlags) *testServer {
	t.Helper()
	cfg := DefaultConfig()
	cfg.RateLimit = RateLimitConfig{}
	return newTestServerWithConfig(t, cfg, health, features)
}

func newTestServerWithConfig(t *testing.T, cfg Config, health handlers.HealthChecker, features *config.FeatureFlags) *testServer {
	t.Helper()

	now := func() time.Time { return t0 }
	log := logger.Nop()
	store := memory.NewStore(memory.Options{Now: now})
	catalog := store.Catalog()

	store.AddSeason(shared.Season{ID: 1, Name: "2026-spring", IsActive: true})
	store.AddProblem(match.Problem{
		ID:       100,
		SeasonID: 1,
		Title:    "Plants",
		Content:  "How do plants turn light into energy?",
		Subject:  "과학",
		Answer:   testAnswer,
		Score:    40,
	})
	for id := int64(1); id <= 6; id++ {
		store.AddUser(memory.User{ID: id, Username: "user" + strconv.FormatInt(id, 10), Diploma: "IT"})
	}

	cache := memory.NewRankingCache(time.Minute, now)
	queue := memory.NewQueue(10*time.Minute, now)
	resolver := command.NewResolver(store.Matches(), store, catalog, catalog, nil, command.DefaultResolverConfig(), nil, log, now)
	create := command.NewCreateMatchHandler(store.Matches(), catalog, catalog, catalog, resolver, nil,
		command.CreateMatchHandlerConfig{}, nil, log, now, nil)
	loader := query.NewRankingLoader(store.Scores(), store.Snapshots(), catalog, cache,
		query.RankingLoaderConfig{RankChange: true}, log, now)

	metrics := &fakeHTTPMetrics{}
	srv := NewServer(cfg, Dependencies{
		CreateMatch:     create,
		JoinQueue:       command.NewJoinQueueHandler(queue, create, nil, nil, log),
		LeaveQueue:      command.NewLeaveQueueHandler(queue),
		SubmitAnswer:    command.NewSubmitAnswerHandler(store.Matches(), catalog, resolver, nil, nil, log, now),
		Forfeit:         command.NewForfeitHandler(store.Matches(), resolver, log),
		GetMatch:        query.NewGetMatchHandler(store.Matches(), catalog, resolver),
		GetPvpStats:     query.NewGetPvpStatsHandler(store.Ratings(), 1200),
		GetRankings:     query.NewGetRankingsHandler(loader),
		UserRank:        query.NewUserRankHandler(loader),
		GetScoreHistory: query.NewGetScoreHistoryHandler(store.Scores(), catalog),
		Features:        features,
		Logger:          log,
		HealthChecker:   health,
		Metrics:         metrics,
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("# metrics\n"))
		}),
	})
	return &testServer{handler: srv.Handler(), metrics: metrics, store: store}
}

func (ts *testServer) do(t *testing.T, method, path string, userID int64, body interface{}) (int, envelope, string) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID > 0 {
		req.Header.Set("X-User-ID", strconv.FormatInt(userID, 10))
	}

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	var env envelope
	raw := rec.Body.String()
	if rec.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), raw)
	}
	return rec.Code, env, raw
}

func (ts *testServer) createMatch(t *testing.T, player, opponent int64) query.MatchView {
	t.Helper()
	code, env, raw := ts.do(t, http.MethodPost, "/api/v1/pvp/matches", player, map[string]int64{"opponent_id": opponent})
	require.Equal(t, http.StatusCreated, code, raw)

	var view query.MatchView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	return view
}

func TestServer_RequiresCallerIdentity(t *testing.T) {
	ts := newTestServer(t, nil)

	code, env, _ := ts.do(t, http.MethodGet, "/api/v1/pvp/stats", 0, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.False(t, env.Success)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/pvp/stats", nil)
	req.Header.Set("X-User-ID", "abc")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_CreateMatch(t *testing.T) {
	ts := newTestServer(t, nil)

	view := ts.createMatch(t, 1, 2)
	assert.Equal(t, "IN_PROGRESS", view.Status)
	assert.Equal(t, int64(1), view.Player1.UserID)
	assert.Equal(t, int64(2), view.Player2.UserID)
	require.NotNil(t, view.Problem)
	assert.Equal(t, int64(100), view.Problem.ID)

	_, _, raw := ts.do(t, http.MethodGet, "/api/v1/pvp/matches/"+view.ID, 1, nil)
	assert.NotContains(t, raw, testAnswer, "the correct answer is never sent")

	code, env, _ := ts.do(t, http.MethodPost, "/api/v1/pvp/matches", 2, map[string]int64{"opponent_id": 3})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "already_in_match", env.Error.Code)

	code, env, _ = ts.do(t, http.MethodPost, "/api/v1/pvp/matches", 4, map[string]int64{"opponent_id": 4})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "validation_error", env.Error.Code)

	code, env, _ = ts.do(t, http.MethodPost, "/api/v1/pvp/matches", 4, map[string]int64{})
	assert.Equal(t, http.StatusBadRequest, code, "opponent_id is required")
	assert.Equal(t, "validation_error", env.Error.Code)

	code, _, _ = ts.do(t, http.MethodPost, "/api/v1/pvp/matches", 4, map[string]int64{"opponent_id": 99})
	assert.Equal(t, http.StatusNotFound, code)
}

func TestServer_SubmitAnswers(t *testing.T) {
	ts := newTestServer(t, nil)
	view := ts.createMatch(t, 1, 2)
	path := "/api/v1/pvp/matches/" + view.ID + "/answers"

	code, env, _ := ts.do(t, http.MethodPost, path, 1, map[string]interface{}{"answer": testAnswer, "elapsed_seconds": 45})
	require.Equal(t, http.StatusOK, code)
	var first submitAnswerResponse
	require.NoError(t, json.Unmarshal(env.Data, &first))
	assert.True(t, first.Accepted)
	assert.False(t, first.MatchComplete)

	code, env, _ = ts.do(t, http.MethodPost, path, 1, map[string]interface{}{"answer": "again", "elapsed_seconds": 50})
	require.Equal(t, http.StatusOK, code, "a duplicate is a normal response")
	var dup submitAnswerResponse
	require.NoError(t, json.Unmarshal(env.Data, &dup))
	assert.False(t, dup.Accepted)
	assert.Equal(t, command.RejectDuplicateSubmission, dup.RejectReason)

	code, env, _ = ts.do(t, http.MethodPost, path, 2, map[string]interface{}{"answer": "no idea", "elapsed_seconds": 60})
	require.Equal(t, http.StatusOK, code)
	var second submitAnswerResponse
	require.NoError(t, json.Unmarshal(env.Data, &second))
	assert.True(t, second.Accepted)
	assert.True(t, second.MatchComplete)
	assert.Equal(t, "PLAYER1_WIN", second.Match.Result)
	require.NotNil(t, second.Match.Player1.Answer, "answers are revealed after completion")
	assert.Equal(t, testAnswer, *second.Match.Player1.Answer)

	code, env, _ = ts.do(t, http.MethodPost, path, 2, map[string]interface{}{"answer": "late"})
	require.Equal(t, http.StatusOK, code)
	var late submitAnswerResponse
	require.NoError(t, json.Unmarshal(env.Data, &late))
	assert.False(t, late.Accepted)
	assert.Equal(t, command.RejectAlreadyResolved, late.RejectReason)

	code, env, _ = ts.do(t, http.MethodPost, path, 3, map[string]interface{}{"answer": "x"})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "not_a_player", env.Error.Code)

	code, _, _ = ts.do(t, http.MethodPost, path, 1, map[string]interface{}{"answer": "x", "elapsed_seconds": -1})
	assert.Equal(t, http.StatusBadRequest, code)

	code, env, _ = ts.do(t, http.MethodGet, "/api/v1/pvp/matches/missing", 1, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "match_not_found", env.Error.Code)

	code, env, _ = ts.do(t, http.MethodGet, "/api/v1/pvp/stats", 1, nil)
	require.Equal(t, http.StatusOK, code)
	var stats query.PvpStatsDTO
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, 1216, stats.Rating)
	assert.Equal(t, 1, stats.Wins)

	code, env, _ = ts.do(t, http.MethodGet, "/api/v1/rankings/season", 5, nil)
	require.Equal(t, http.StatusOK, code)
	var rankings query.GetRankingsResult
	require.NoError(t, json.Unmarshal(env.Data, &rankings))
	require.NotEmpty(t, rankings.Entries)
	assert.Equal(t, int64(1), rankings.Entries[0].UserID)

	code, _, _ = ts.do(t, http.MethodGet, "/api/v1/rankings/season/me", 1, nil)
	assert.Equal(t, http.StatusOK, code)
	code, _, _ = ts.do(t, http.MethodGet, "/api/v1/rankings/season/me", 5, nil)
	assert.Equal(t, http.StatusNotFound, code, "a user without points is not ranked")

	code, env, _ = ts.do(t, http.MethodGet, "/api/v1/scores/history", 1, nil)
	require.Equal(t, http.StatusOK, code)
	var history query.ScoreHistoryResult
	require.NoError(t, json.Unmarshal(env.Data, &history))
	assert.Positive(t, history.TotalScore)
}

func TestServer_Forfeit(t *testing.T) {
	ts := newTestServer(t, nil)
	view := ts.createMatch(t, 1, 2)

	code, env, _ := ts.do(t, http.MethodPost, "/api/v1/pvp/matches/"+view.ID+"/forfeit", 2, nil)
	require.Equal(t, http.StatusOK, code)
	var res forfeitResponse
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.True(t, res.Forfeited)
	assert.Equal(t, "PLAYER1_WIN", res.Match.Result)

	// both players are free again
	ts.createMatch(t, 2, 1)
}

func TestServer_Queue(t *testing.T) {
	ts := newTestServer(t, nil)

	code, env, _ := ts.do(t, http.MethodPost, "/api/v1/pvp/queue", 3, nil)
	require.Equal(t, http.StatusAccepted, code)
	var waiting queueResponse
	require.NoError(t, json.Unmarshal(env.Data, &waiting))
	assert.True(t, waiting.Waiting)

	code, env, _ = ts.do(t, http.MethodPost, "/api/v1/pvp/queue", 4, nil)
	require.Equal(t, http.StatusCreated, code)
	var paired queueResponse
	require.NoError(t, json.Unmarshal(env.Data, &paired))
	require.NotNil(t, paired.Match)
	assert.ElementsMatch(t, []int64{3, 4}, []int64{paired.Match.Player1.UserID, paired.Match.Player2.UserID})

	_, _, _ = ts.do(t, http.MethodPost, "/api/v1/pvp/queue", 5, nil)
	code, env, _ = ts.do(t, http.MethodDelete, "/api/v1/pvp/queue", 5, nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"removed":true}`, string(env.Data))
}

func TestServer_FeatureFlags(t *testing.T) {
	flags := config.LoadFeatureFlags()
	require.NoError(t, flags.DisableFeature(config.FeaturePVPRandomQueue))
	flags.SetUserOverride(2, config.FeaturePVPTargetedMatch, false)
	ts := newTestServerWithFeatures(t, nil, flags)

	code, env, _ := ts.do(t, http.MethodPost, "/api/v1/pvp/queue", 3, nil)
	assert.Equal(t, http.StatusForbidden, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "feature_disabled", env.Error.Code)

	code, _, _ = ts.do(t, http.MethodPost, "/api/v1/pvp/matches", 2, map[string]int64{"opponent_id": 1})
	assert.Equal(t, http.StatusForbidden, code)

	ts.createMatch(t, 1, 2)
}

func TestServer_Rankings(t *testing.T) {
	ts := newTestServer(t, nil)

	code, env, _ := ts.do(t, http.MethodGet, "/api/v1/rankings/weekly", 1, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "validation_error", env.Error.Code)

	code, _, _ = ts.do(t, http.MethodGet, "/api/v1/rankings/daily?date=yesterday", 1, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, env, _ = ts.do(t, http.MethodGet, "/api/v1/rankings/daily?date=2026-03-02&limit=5", 1, nil)
	require.Equal(t, http.StatusOK, code)
	var res query.GetRankingsResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, "2026-03-02", res.Date)
	assert.Empty(t, res.Entries)

	code, _, _ = ts.do(t, http.MethodGet, "/api/v1/rankings/season/statistics", 1, nil)
	assert.Equal(t, http.StatusOK, code)

	code, env, _ = ts.do(t, http.MethodGet, "/api/v1/pvp/stats/77", 1, nil)
	require.Equal(t, http.StatusOK, code)
	var stats query.PvpStatsDTO
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, 1200, stats.Rating, "unknown players get the initial rating")
	assert.Zero(t, stats.TotalMatches)
}

func TestServer_RecordsRouteMetrics(t *testing.T) {
	ts := newTestServer(t, nil)
	view := ts.createMatch(t, 1, 2)
	ts.do(t, http.MethodGet, "/api/v1/pvp/matches/"+view.ID, 1, nil)

	ts.metrics.mu.Lock()
	defer ts.metrics.mu.Unlock()
	require.Len(t, ts.metrics.requests, 2)
	assert.Equal(t, recordedRequest{"/api/v1/pvp/matches/{matchID}", http.MethodGet, http.StatusOK}, ts.metrics.requests[1])
}

func TestServer_Ops(t *testing.T) {
	checker := handlers.NewCompositeHealthChecker("test")
	checker.AddOptionalCheck("redis", func(context.Context) error { return errors.New("refused") })
	ts := newTestServer(t, checker)

	code, env, _ := ts.do(t, http.MethodGet, "/health", 0, nil)
	assert.Equal(t, http.StatusOK, code, "an optional dependency only degrades")
	var status handlers.HealthStatus
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.False(t, status.Healthy)
	assert.True(t, status.Ready)

	checker.AddCheck("postgres", func(context.Context) error { return errors.New("down") })
	code, _, _ = ts.do(t, http.MethodGet, "/ready", 0, nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)

	code, _, _ = ts.do(t, http.MethodGet, "/live", 0, nil)
	assert.Equal(t, http.StatusOK, code)

	code, _, raw := ts.do(t, http.MethodGet, "/metrics", 0, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, raw, "# metrics")

	code, env, _ = ts.do(t, http.MethodGet, "/nope", 0, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", env.Error.Code)
}
