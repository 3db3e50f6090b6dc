package match

import (
	"time"

	"github.com/studyplan/studyplan-pvp/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// Status определяет стадию жизненного цикла матча.
type Status string

const (
	// StatusWaiting - матч создан, но игроки ещё не получили задачу.
	StatusWaiting Status = "WAITING"
	// StatusInProgress - часы идут, игроки отвечают.
	StatusInProgress Status = "IN_PROGRESS"
	// StatusCompleted - результат определён, терминальное состояние.
	StatusCompleted Status = "COMPLETED"
)

// IsValid проверяет, что статус корректен.
func (s Status) IsValid() bool {
	switch s {
	case StatusWaiting, StatusInProgress, StatusCompleted:
		return true
	default:
		return false
	}
}

// IsActive возвращает true, пока матч занимает игроков.
func (s Status) IsActive() bool {
	return s == StatusWaiting || s == StatusInProgress
}

// CanTransitionTo проверяет, что статус только растёт.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusWaiting:
		return next == StatusInProgress
	case StatusInProgress:
		return next == StatusCompleted
	default:
		return false
	}
}

// Result - итог матча.
type Result string

const (
	ResultPlayer1Win Result = "PLAYER1_WIN"
	ResultPlayer2Win Result = "PLAYER2_WIN"
	ResultDraw       Result = "DRAW"
)

// IsValid проверяет, что результат корректен.
func (r Result) IsValid() bool {
	return r == ResultPlayer1Win || r == ResultPlayer2Win || r == ResultDraw
}

// ResolutionReason объясняет, что завершило матч.
type ResolutionReason string

const (
	// ReasonAnswered - оба игрока ответили вовремя.
	ReasonAnswered ResolutionReason = "ANSWERED"
	// ReasonTimeout - хотя бы один слот закрыт по истечении лимита.
	ReasonTimeout ResolutionReason = "TIMEOUT"
	// ReasonForfeit - один из игроков сдался.
	ReasonForfeit ResolutionReason = "FORFEIT"
)

// Player - позиция игрока в матче.
type Player int

const (
	Player1 Player = 1
	Player2 Player = 2
)

// Other возвращает позицию соперника.
func (p Player) Other() Player {
	if p == Player1 {
		return Player2
	}
	return Player1
}

// DefaultTimeLimitSeconds - лимит времени на ответ.
const DefaultTimeLimitSeconds = 300

// ══════════════════════════════════════════════════════════════════════════════
// SLOT
// ══════════════════════════════════════════════════════════════════════════════

// Slot - ответ одного игрока. Слот пишется не более одного раза.
type Slot struct {
	// Answer - текст ответа, nil если игрок так и не ответил.
	Answer         *string
	ElapsedSeconds int
	Correct        bool
	TimedOut       bool
	SubmittedAt    time.Time
}

// Answered возвращает true, если игрок прислал ответ (пусть и поздний).
func (s Slot) Answered() bool {
	return s.Answer != nil
}

// Outcome возвращает то, что нужно резолверу.
func (s Slot) Outcome() SlotOutcome {
	return SlotOutcome{
		Correct:        s.Correct && !s.TimedOut,
		ElapsedSeconds: s.ElapsedSeconds,
	}
}

// NewAnsweredSlot проверяет ответ и строит слот.
// Время сверх лимита обрезается до лимита, а ответ считается неверным.
func NewAnsweredSlot(given, expected string, elapsed, limit int, at time.Time) Slot {
	clamped, timedOut := ClampElapsed(elapsed, limit)
	answer := given
	return Slot{
		Answer:         &answer,
		ElapsedSeconds: clamped,
		Correct:        !timedOut && IsCorrectAnswer(given, expected),
		TimedOut:       timedOut,
		SubmittedAt:    at,
	}
}

// NewTimeoutSlot строит слот игрока, который не ответил вовремя.
func NewTimeoutSlot(limit int, at time.Time) Slot {
	return Slot{
		ElapsedSeconds: limit,
		TimedOut:       true,
		SubmittedAt:    at,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: MATCH
// ══════════════════════════════════════════════════════════════════════════════

// Match - PVP-матч двух игроков над одной задачей.
type Match struct {
	ID        string
	Player1ID int64
	Player2ID int64
	ProblemID int64
	SeasonID  int64

	Player1 *Slot
	Player2 *Slot

	Status      Status
	Result      Result
	WinnerID    *int64
	Reason      ResolutionReason
	ForfeitedBy *int64

	TimeLimitSeconds int
	StartedAt        time.Time
	EndedAt          *time.Time
	CreatedAt        time.Time
}

// NewMatchParams - параметры для создания матча.
type NewMatchParams struct {
	ID               string
	Player1ID        int64
	Player2ID        int64
	ProblemID        int64
	SeasonID         int64
	TimeLimitSeconds int
	Now              time.Time
}

// NewMatch создаёт матч сразу в статусе IN_PROGRESS: часы стартуют с Now.
func NewMatch(p NewMatchParams) (*Match, error) {
	if p.ID == "" {
		return nil, shared.NewDomainError("pvp", "NewMatch", shared.ErrEmptyValue, "match id is required")
	}
	if p.Player1ID <= 0 || p.Player2ID <= 0 {
		return nil, shared.ErrInvalidUserID
	}
	if p.Player1ID == p.Player2ID {
		return nil, shared.ErrSelfMatch
	}
	if p.ProblemID <= 0 {
		return nil, shared.NewDomainError("pvp", "NewMatch", shared.ErrInvalidID, "invalid problem id")
	}
	if p.TimeLimitSeconds <= 0 {
		p.TimeLimitSeconds = DefaultTimeLimitSeconds
	}
	if p.Now.IsZero() {
		p.Now = time.Now()
	}

	return &Match{
		ID:               p.ID,
		Player1ID:        p.Player1ID,
		Player2ID:        p.Player2ID,
		ProblemID:        p.ProblemID,
		SeasonID:         p.SeasonID,
		Status:           StatusInProgress,
		TimeLimitSeconds: p.TimeLimitSeconds,
		StartedAt:        p.Now,
		CreatedAt:        p.Now,
	}, nil
}

// PlayerOf возвращает позицию пользователя в матче.
func (m *Match) PlayerOf(userID int64) (Player, bool) {
	switch userID {
	case m.Player1ID:
		return Player1, true
	case m.Player2ID:
		return Player2, true
	default:
		return 0, false
	}
}

// IsPlayer проверяет, участвует ли пользователь в матче.
func (m *Match) IsPlayer(userID int64) bool {
	_, ok := m.PlayerOf(userID)
	return ok
}

// PlayerID возвращает ID пользователя на позиции.
func (m *Match) PlayerID(p Player) int64 {
	if p == Player1 {
		return m.Player1ID
	}
	return m.Player2ID
}

// SlotOf возвращает слот позиции (nil, если пуст).
func (m *Match) SlotOf(p Player) *Slot {
	if p == Player1 {
		return m.Player1
	}
	return m.Player2
}

// OpponentOf возвращает ID соперника пользователя.
func (m *Match) OpponentOf(userID int64) int64 {
	if userID == m.Player1ID {
		return m.Player2ID
	}
	return m.Player1ID
}

// Deadline - момент истечения лимита.
func (m *Match) Deadline() time.Time {
	return m.StartedAt.Add(time.Duration(m.TimeLimitSeconds) * time.Second)
}

// IsExpired возвращает true, если лимит истёк.
func (m *Match) IsExpired(now time.Time) bool {
	return !now.Before(m.Deadline())
}

// ElapsedAt возвращает число целых секунд с начала матча по часам сервера.
func (m *Match) ElapsedAt(now time.Time) int {
	d := now.Sub(m.StartedAt)
	if d < 0 {
		return 0
	}
	return int(d / time.Second)
}

// BothSubmitted возвращает true, когда оба слота заполнены.
func (m *Match) BothSubmitted() bool {
	return m.Player1 != nil && m.Player2 != nil
}

// IsCompleted возвращает true для терминального статуса.
func (m *Match) IsCompleted() bool {
	return m.Status == StatusCompleted
}

// WinnerFor переводит результат в ID победителя (nil для ничьей).
func (m *Match) WinnerFor(r Result) *int64 {
	var id int64
	switch r {
	case ResultPlayer1Win:
		id = m.Player1ID
	case ResultPlayer2Win:
		id = m.Player2ID
	default:
		return nil
	}
	return &id
}

// AnswerVisibleTo решает, видит ли зритель ответ в слоте позиции.
// Свой ответ виден всегда, ответ соперника - только после завершения.
func (m *Match) AnswerVisibleTo(viewerID int64, p Player) bool {
	if m.PlayerID(p) == viewerID {
		return true
	}
	return m.IsCompleted()
}

// ══════════════════════════════════════════════════════════════════════════════
// RESOLUTION
// ══════════════════════════════════════════════════════════════════════════════

// Resolution - решение о завершении матча, которое хранилище применяет
// атомарно. Fill1/Fill2 - слоты, которые дописываются только если позиция
// всё ещё пуста; если за это время пришёл ответ, CAS не проходит.
type Resolution struct {
	Result      Result
	WinnerID    *int64
	Reason      ResolutionReason
	ForfeitedBy *int64
	EndedAt     time.Time
	Fill1       *Slot
	Fill2       *Slot
}

// Fill возвращает дописываемый слот позиции.
func (r Resolution) Fill(p Player) *Slot {
	if p == Player1 {
		return r.Fill1
	}
	return r.Fill2
}

// Decide вычисляет итог по текущему состоянию матча.
// forfeiter != nil означает сдачу этого игрока: побеждает соперник.
// Без сдачи матч решается, когда оба ответили или истёк лимит;
// пустые слоты после лимита становятся таймаутами.
func (m *Match) Decide(now time.Time, forfeiter *int64) (Resolution, error) {
	if m.IsCompleted() {
		return Resolution{}, shared.ErrMatchAlreadyResolved
	}

	if forfeiter != nil {
		p, ok := m.PlayerOf(*forfeiter)
		if !ok {
			return Resolution{}, shared.ErrNotAPlayer
		}
		by := *forfeiter
		res := Resolution{
			Result:      ResolveForfeit(p),
			Reason:      ReasonForfeit,
			ForfeitedBy: &by,
			EndedAt:     now,
		}
		if m.SlotOf(p) == nil {
			slot := NewTimeoutSlot(m.TimeLimitSeconds, now)
			res.setFill(p, &slot)
		}
		res.WinnerID = m.WinnerFor(res.Result)
		return res, nil
	}

	res := Resolution{Reason: ReasonAnswered, EndedAt: now}
	if !m.BothSubmitted() {
		if !m.IsExpired(now) {
			return Resolution{}, shared.ErrMatchStillRunning
		}
		res.Reason = ReasonTimeout
		for _, p := range []Player{Player1, Player2} {
			if m.SlotOf(p) == nil {
				slot := NewTimeoutSlot(m.TimeLimitSeconds, now)
				res.setFill(p, &slot)
			}
		}
	}

	s1 := m.effectiveSlot(Player1, res)
	s2 := m.effectiveSlot(Player2, res)
	if s1.TimedOut || s2.TimedOut {
		res.Reason = ReasonTimeout
	}
	res.Result = Resolve(s1.Outcome(), s2.Outcome())
	res.WinnerID = m.WinnerFor(res.Result)
	return res, nil
}

// Apply переводит матч в COMPLETED. Используется хранилищами, которые
// держат матч в памяти; SQL-хранилище выполняет то же условным UPDATE.
func (m *Match) Apply(res Resolution) error {
	if !m.Status.CanTransitionTo(StatusCompleted) {
		return shared.ErrMatchAlreadyResolved
	}
	if (res.Fill1 != nil && m.Player1 != nil) || (res.Fill2 != nil && m.Player2 != nil) {
		return shared.ErrSlotChanged
	}
	if res.Fill1 != nil {
		s := *res.Fill1
		m.Player1 = &s
	}
	if res.Fill2 != nil {
		s := *res.Fill2
		m.Player2 = &s
	}

	ended := res.EndedAt
	m.Status = StatusCompleted
	m.Result = res.Result
	m.WinnerID = res.WinnerID
	m.Reason = res.Reason
	m.ForfeitedBy = res.ForfeitedBy
	m.EndedAt = &ended
	return nil
}

// Clone возвращает глубокую копию матча.
func (m *Match) Clone() *Match {
	c := *m
	c.Player1 = cloneSlot(m.Player1)
	c.Player2 = cloneSlot(m.Player2)
	if m.WinnerID != nil {
		w := *m.WinnerID
		c.WinnerID = &w
	}
	if m.ForfeitedBy != nil {
		f := *m.ForfeitedBy
		c.ForfeitedBy = &f
	}
	if m.EndedAt != nil {
		e := *m.EndedAt
		c.EndedAt = &e
	}
	return &c
}

func (r *Resolution) setFill(p Player, s *Slot) {
	if p == Player1 {
		r.Fill1 = s
	} else {
		r.Fill2 = s
	}
}

func (m *Match) effectiveSlot(p Player, res Resolution) Slot {
	if s := m.SlotOf(p); s != nil {
		return *s
	}
	if s := res.Fill(p); s != nil {
		return *s
	}
	return NewTimeoutSlot(m.TimeLimitSeconds, res.EndedAt)
}

func cloneSlot(s *Slot) *Slot {
	if s == nil {
		return nil
	}
	c := *s
	if s.Answer != nil {
		a := *s.Answer
		c.Answer = &a
	}
	return &c
}
