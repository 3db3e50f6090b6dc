package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/studyplan/studyplan-pvp/internal/application/query"
	"github.com/studyplan/studyplan-pvp/internal/domain/leaderboard"
	"github.com/studyplan/studyplan-pvp/internal/domain/shared"
	"github.com/studyplan/studyplan-pvp/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RANKING HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// rankingRequest reads scope, season_id, date and diploma.
func rankingRequest(r *http.Request) (query.RankingRequest, error) {
	scope, err := leaderboard.ParseScope(chi.URLParam(r, "scope"))
	if err != nil {
		return query.RankingRequest{}, err
	}
	seasonID, err := getQueryParamInt64(r, "season_id")
	if err != nil {
		return query.RankingRequest{}, err
	}

	req := query.RankingRequest{
		Scope:    scope,
		SeasonID: seasonID,
		Diploma:  leaderboard.DiplomaFilter(r.URL.Query().Get("diploma")),
	}
	if v := r.URL.Query().Get("date"); v != "" {
		day, err := timeutil.ParseDayKey(v)
		if err != nil {
			return query.RankingRequest{}, shared.NewDomainError("http", "Query", shared.ErrInvalidInput, "date must be YYYY-MM-DD")
		}
		req.Date = day
	}
	return req, nil
}

// handleGetRankings handles GET /api/v1/rankings/{scope}
func (s *Server) handleGetRankings(w http.ResponseWriter, r *http.Request) {
	req, err := rankingRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, err := getQueryParamInt(r, "limit", 20)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	offset, err := getQueryParamInt(r, "offset", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.deps.GetRankings.Handle(r.Context(), query.GetRankingsQuery{
		RankingRequest: req,
		Limit:          limit,
		Offset:         offset,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSONWithMeta(w, r, http.StatusOK, result, &ResponseMeta{
		TotalCount: result.TotalCount,
		Limit:      result.Limit,
		Offset:     result.Offset,
		HasMore:    result.Offset+len(result.Entries) < result.TotalCount,
	})
}

// handleGetOwnRank handles GET /api/v1/rankings/{scope}/me
func (s *Server) handleGetOwnRank(w http.ResponseWriter, r *http.Request) {
	req, err := rankingRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	result, err := s.deps.UserRank.Rank(r.Context(), query.GetUserRankQuery{
		RankingRequest: req,
		UserID:         callerID(r.Context()),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// handleGetAround handles GET /api/v1/rankings/{scope}/around
func (s *Server) handleGetAround(w http.ResponseWriter, r *http.Request) {
	req, err := rankingRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rng, err := getQueryParamInt(r, "range", query.DefaultAroundRange)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	result, err := s.deps.UserRank.Around(r.Context(), query.GetAroundQuery{
		RankingRequest: req,
		UserID:         callerID(r.Context()),
		Range:          rng,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// handleGetStatistics handles GET /api/v1/rankings/{scope}/statistics
func (s *Server) handleGetStatistics(w http.ResponseWriter, r *http.Request) {
	req, err := rankingRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	result, err := s.deps.UserRank.Statistics(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// handleGetScoreHistory handles GET /api/v1/scores/history
func (s *Server) handleGetScoreHistory(w http.ResponseWriter, r *http.Request) {
	seasonID, err := getQueryParamInt64(r, "season_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, err := getQueryParamInt(r, "limit", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	result, err := s.deps.GetScoreHistory.Handle(r.Context(), query.GetScoreHistoryQuery{
		UserID:   callerID(r.Context()),
		SeasonID: seasonID,
		Limit:    limit,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}
