package memory

import (
	"context"
	"sort"
	"time"

	"github.com/studyplan/studyplan-pvp/internal/domain/match"
	"github.com/studyplan/studyplan-pvp/internal/domain/shared"
)

// MatchRepository implements match.Repository.
type MatchRepository struct {
	v view
}

// Create stores a new match unless either player already has an active one.
func (r *MatchRepository) Create(_ context.Context, m *match.Match) error {
	return r.v.with(func(st *state) error {
		if _, exists := st.matches[m.ID]; exists {
			return shared.NewDomainError("pvp", "Create", shared.ErrAlreadyExists, "match id already used")
		}
		for _, other := range st.matches {
			if !other.Status.IsActive() {
				continue
			}
			if other.IsPlayer(m.Player1ID) || other.IsPlayer(m.Player2ID) {
				return shared.ErrAlreadyInMatch
			}
		}
		st.matches[m.ID] = m.Clone()
		return nil
	})
}

// FindByID returns a copy of the match.
func (r *MatchRepository) FindByID(_ context.Context, id string) (*match.Match, error) {
	var out *match.Match
	err := r.v.with(func(st *state) error {
		m, ok := st.matches[id]
		if !ok {
			return shared.ErrMatchNotFound
		}
		out = m.Clone()
		return nil
	})
	return out, err
}

// FindActiveByUser returns the user's WAITING or IN_PROGRESS match.
func (r *MatchRepository) FindActiveByUser(_ context.Context, userID int64) (*match.Match, error) {
	var out *match.Match
	err := r.v.with(func(st *state) error {
		for _, m := range st.matches {
			if m.Status.IsActive() && m.IsPlayer(userID) {
				out = m.Clone()
				return nil
			}
		}
		return shared.ErrMatchNotFound
	})
	return out, err
}

// SetSlot writes the slot iff it is unset and the match is IN_PROGRESS.
func (r *MatchRepository) SetSlot(_ context.Context, id string, p match.Player, slot match.Slot) (bool, error) {
	var written bool
	err := r.v.with(func(st *state) error {
		m, ok := st.matches[id]
		if !ok {
			return shared.ErrMatchNotFound
		}
		if m.Status != match.StatusInProgress || m.SlotOf(p) != nil {
			return nil
		}
		s := slot
		if slot.Answer != nil {
			a := *slot.Answer
			s.Answer = &a
		}
		if p == match.Player1 {
			m.Player1 = &s
		} else {
			m.Player2 = &s
		}
		written = true
		return nil
	})
	return written, err
}

// Complete applies res iff the match is IN_PROGRESS and the slots res fills
// are still unset.
func (r *MatchRepository) Complete(_ context.Context, id string, res match.Resolution) (bool, error) {
	var done bool
	err := r.v.with(func(st *state) error {
		m, ok := st.matches[id]
		if !ok {
			return shared.ErrMatchNotFound
		}
		if m.Status != match.StatusInProgress {
			return nil
		}
		if (res.Fill1 != nil && m.Player1 != nil) || (res.Fill2 != nil && m.Player2 != nil) {
			return nil
		}
		if err := m.Apply(res); err != nil {
			return err
		}
		done = true
		return nil
	})
	return done, err
}

// ListExpired returns IN_PROGRESS matches past their deadline, oldest first.
func (r *MatchRepository) ListExpired(_ context.Context, now time.Time, limit int) ([]*match.Match, error) {
	var out []*match.Match
	err := r.v.with(func(st *state) error {
		for _, m := range st.matches {
			if m.Status == match.StatusInProgress && m.IsExpired(now) {
				out = append(out, m.Clone())
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CountActive returns the number of WAITING or IN_PROGRESS matches.
func (r *MatchRepository) CountActive(_ context.Context) (int, error) {
	n := 0
	err := r.v.with(func(st *state) error {
		for _, m := range st.matches {
			if m.Status.IsActive() {
				n++
			}
		}
		return nil
	})
	return n, err
}
