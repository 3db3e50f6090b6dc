package http

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/studyplan/studyplan-pvp/config"
	"github.com/studyplan/studyplan-pvp/internal/application/command"
	"github.com/studyplan/studyplan-pvp/internal/application/query"
	"github.com/studyplan/studyplan-pvp/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST / RESPONSE DTOs
// ══════════════════════════════════════════════════════════════════════════════

type createMatchRequest struct {
	OpponentID int64 `json:"opponent_id" validate:"required,gt=0"`
}

type submitAnswerRequest struct {
	Answer         string `json:"answer" validate:"max=1000"`
	ElapsedSeconds *int   `json:"elapsed_seconds,omitempty" validate:"omitempty,gte=0"`
}

type queueResponse struct {
	Waiting bool             `json:"waiting"`
	Match   *query.MatchView `json:"match,omitempty"`
}

type submitAnswerResponse struct {
	Accepted      bool             `json:"accepted"`
	RejectReason  string           `json:"reject_reason,omitempty"`
	MatchComplete bool             `json:"match_complete"`
	Match         *query.MatchView `json:"match"`
}

type forfeitResponse struct {
	Forfeited bool             `json:"forfeited"`
	Match     *query.MatchView `json:"match"`
}

// ══════════════════════════════════════════════════════════════════════════════
// MATCH HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// featureGate rejects the request with 403 when the feature is off for the
// caller.
func (s *Server) featureGate(w http.ResponseWriter, r *http.Request, feature string) bool {
	if s.deps.Features.EnabledFor(feature, callerID(r.Context())) {
		return true
	}
	writeJSONError(w, http.StatusForbidden, "feature_disabled", "This feature is not available")
	return false
}

// handleCreateMatch handles POST /api/v1/pvp/matches
func (s *Server) handleCreateMatch(w http.ResponseWriter, r *http.Request) {
	if !s.featureGate(w, r, config.FeaturePVPTargetedMatch) {
		return
	}
	var req createMatchRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	caller := callerID(r.Context())
	res, err := s.deps.CreateMatch.Handle(r.Context(), command.CreateMatchCommand{
		PlayerID:   caller,
		OpponentID: req.OpponentID,
		Source:     command.SourceTargeted,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, query.NewMatchView(res.Match, caller, res.Problem))
}

// handleGetMatch handles GET /api/v1/pvp/matches/{matchID}
func (s *Server) handleGetMatch(w http.ResponseWriter, r *http.Request) {
	view, err := s.deps.GetMatch.Handle(r.Context(), query.GetMatchQuery{
		MatchID:  chi.URLParam(r, "matchID"),
		ViewerID: callerID(r.Context()),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, view)
}

// handleSubmitAnswer handles POST /api/v1/pvp/matches/{matchID}/answers
// Losing a race is not an error: the response carries accepted=false.
func (s *Server) handleSubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var req submitAnswerRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	caller := callerID(r.Context())
	res, err := s.deps.SubmitAnswer.Handle(r.Context(), command.SubmitAnswerCommand{
		MatchID:        chi.URLParam(r, "matchID"),
		UserID:         caller,
		Answer:         req.Answer,
		ElapsedSeconds: req.ElapsedSeconds,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, submitAnswerResponse{
		Accepted:      res.Accepted,
		RejectReason:  res.RejectReason,
		MatchComplete: res.MatchComplete,
		Match:         query.NewMatchView(res.Match, caller, nil),
	})
}

// handleForfeit handles POST /api/v1/pvp/matches/{matchID}/forfeit
func (s *Server) handleForfeit(w http.ResponseWriter, r *http.Request) {
	caller := callerID(r.Context())
	res, err := s.deps.Forfeit.Handle(r.Context(), command.ForfeitCommand{
		MatchID: chi.URLParam(r, "matchID"),
		UserID:  caller,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, forfeitResponse{
		Forfeited: res.Forfeited,
		Match:     query.NewMatchView(res.Match, caller, nil),
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// QUEUE HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleJoinQueue handles POST /api/v1/pvp/queue
func (s *Server) handleJoinQueue(w http.ResponseWriter, r *http.Request) {
	if !s.featureGate(w, r, config.FeaturePVPRandomQueue) {
		return
	}
	caller := callerID(r.Context())
	res, err := s.deps.JoinQueue.Handle(r.Context(), command.JoinQueueCommand{UserID: caller})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if res.Waiting || res.Created == nil {
		writeJSON(w, r, http.StatusAccepted, queueResponse{Waiting: true})
		return
	}
	writeJSON(w, r, http.StatusCreated, queueResponse{
		Match: query.NewMatchView(res.Created.Match, caller, res.Created.Problem),
	})
}

// handleLeaveQueue handles DELETE /api/v1/pvp/queue
func (s *Server) handleLeaveQueue(w http.ResponseWriter, r *http.Request) {
	removed, err := s.deps.LeaveQueue.Handle(r.Context(), command.LeaveQueueCommand{UserID: callerID(r.Context())})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]bool{"removed": removed})
}

// ══════════════════════════════════════════════════════════════════════════════
// STATS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetOwnStats handles GET /api/v1/pvp/stats
func (s *Server) handleGetOwnStats(w http.ResponseWriter, r *http.Request) {
	s.writeStats(w, r, callerID(r.Context()))
}

// handleGetStats handles GET /api/v1/pvp/stats/{userID}
func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || userID <= 0 {
		s.writeError(w, r, shared.ErrInvalidUserID)
		return
	}
	s.writeStats(w, r, userID)
}

func (s *Server) writeStats(w http.ResponseWriter, r *http.Request, userID int64) {
	stats, err := s.deps.GetPvpStats.Handle(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, stats)
}

// handleGetRatingLeaders handles GET /api/v1/pvp/leaders
func (s *Server) handleGetRatingLeaders(w http.ResponseWriter, r *http.Request) {
	limit, err := getQueryParamInt(r, "limit", 20)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	top, err := s.deps.GetPvpStats.Top(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, top, &ResponseMeta{TotalCount: len(top), Limit: limit})
}
