package leaderboard

import (
	"fmt"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// SEASON SNAPSHOT
// ══════════════════════════════════════════════════════════════════════════════

// SnapshotEntry - позиция игрока на момент снапшота.
type SnapshotEntry struct {
	UserID int64
	Rank   Rank
	Score  int
}

// Snapshot фиксирует сезонный рейтинг в момент времени. Используется
// только как "предыдущее состояние" для RankChange сезонного рейтинга.
type Snapshot struct {
	ID           string
	SeasonID     int64
	SnapshotAt   time.Time
	Participants int
	TotalScore   int64
	Entries      []SnapshotEntry

	byID map[int64]int
}

// NewSnapshot создаёт снапшот из отсортированного Ranking.
func NewSnapshot(id string, seasonID int64, ranking *Ranking, at time.Time) *Snapshot {
	s := &Snapshot{
		ID:         id,
		SeasonID:   seasonID,
		SnapshotAt: at.UTC(),
		Entries:    make([]SnapshotEntry, 0),
	}
	if ranking != nil {
		for _, e := range ranking.All() {
			s.Entries = append(s.Entries, SnapshotEntry{UserID: e.UserID, Rank: e.Rank, Score: e.Score})
			s.TotalScore += int64(e.Score)
		}
	}
	s.Participants = len(s.Entries)
	s.RebuildIndex()
	return s
}

// GetRank возвращает ранг игрока или 0, если его не было в снапшоте.
func (s *Snapshot) GetRank(userID int64) Rank {
	if s.byID == nil {
		s.RebuildIndex()
	}
	if i, ok := s.byID[userID]; ok {
		return s.Entries[i].Rank
	}
	return 0
}

// Contains проверяет наличие игрока в снапшоте.
func (s *Snapshot) Contains(userID int64) bool {
	return s.GetRank(userID) != 0
}

// Ranks возвращает карту UserID -> Rank для ApplyPrevious.
func (s *Snapshot) Ranks() map[int64]Rank {
	out := make(map[int64]Rank, len(s.Entries))
	for _, e := range s.Entries {
		out[e.UserID] = e.Rank
	}
	return out
}

// IsEmpty возвращает true, если снапшот пуст.
func (s *Snapshot) IsEmpty() bool {
	return len(s.Entries) == 0
}

// RebuildIndex восстанавливает индекс после загрузки из хранилища.
func (s *Snapshot) RebuildIndex() {
	s.byID = make(map[int64]int, len(s.Entries))
	for i, e := range s.Entries {
		s.byID[e.UserID] = i
	}
}

// String возвращает строковое представление для логирования.
func (s *Snapshot) String() string {
	return fmt.Sprintf("Snapshot{ID: %s, Season: %d, Participants: %d, At: %s}",
		s.ID, s.SeasonID, s.Participants, s.SnapshotAt.Format(time.RFC3339))
}
