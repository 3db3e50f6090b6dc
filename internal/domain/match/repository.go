package match

import (
	"context"
	"time"

	"github.com/studyplan/studyplan-pvp/internal/domain/leaderboard"
	"github.com/studyplan/studyplan-pvp/internal/domain/rating"
	"github.com/studyplan/studyplan-pvp/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// Repository хранит матчи. Все изменения состояния - условные обновления:
// хранилище само решает, кто выиграл гонку, без блокировок в процессе.
type Repository interface {
	// Create сохраняет новый матч. Если у любого из игроков уже есть
	// активный матч, возвращает shared.ErrAlreadyInMatch.
	Create(ctx context.Context, m *Match) error

	// FindByID возвращает матч или shared.ErrMatchNotFound.
	FindByID(ctx context.Context, id string) (*Match, error)

	// FindActiveByUser возвращает активный матч игрока или shared.ErrMatchNotFound.
	FindActiveByUser(ctx context.Context, userID int64) (*Match, error)

	// SetSlot записывает слот, только если он пуст и матч IN_PROGRESS.
	// false означает, что запись проиграла гонку; причину вызывающий
	// выясняет повторным чтением.
	SetSlot(ctx context.Context, id string, p Player, slot Slot) (bool, error)

	// Complete переводит матч в COMPLETED, только если он всё ещё
	// IN_PROGRESS и слоты из res.Fill1/Fill2 всё ещё пусты.
	// true получает ровно один вызывающий на матч.
	Complete(ctx context.Context, id string, res Resolution) (bool, error)

	// ListExpired возвращает IN_PROGRESS матчи, чей лимит истёк к now.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*Match, error)

	// CountActive возвращает количество активных матчей.
	CountActive(ctx context.Context) (int, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// UNIT OF WORK
// ══════════════════════════════════════════════════════════════════════════════

// TxRepositories - репозитории, привязанные к одной транзакции.
type TxRepositories struct {
	Matches Repository
	Ratings rating.Repository
	Scores  leaderboard.ScoreRepository
}

// UnitOfWork выполняет fn в одной транзакции хранилища. Если fn вернула
// ошибку, все изменения откатываются: переход в COMPLETED, рейтинг и очки
// либо фиксируются вместе, либо не фиксируются вовсе.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, tx TxRepositories) error) error
}

// ══════════════════════════════════════════════════════════════════════════════
// EXTERNAL COLLABORATORS (read-only)
// ══════════════════════════════════════════════════════════════════════════════

// Problem - задача из банка задач. Answer никогда не отдаётся клиенту.
type Problem struct {
	ID       int64
	SeasonID int64
	Title    string
	Content  string
	Choices  []string
	Subject  string
	Answer   string
	Score    int
}

// ProblemSource выбирает задачи активного сезона.
type ProblemSource interface {
	// RandomProblem возвращает случайную задачу сезона
	// или shared.ErrNoProblemsAvailable.
	RandomProblem(ctx context.Context, seasonID int64) (*Problem, error)

	// FindProblem возвращает задачу по ID.
	FindProblem(ctx context.Context, id int64) (*Problem, error)
}

// SeasonSource знает активный сезон.
type SeasonSource interface {
	// ActiveSeason возвращает активный сезон или shared.ErrNoActiveSeason.
	ActiveSeason(ctx context.Context) (*shared.Season, error)
}

// UserDirectory подтверждает существование пользователей.
type UserDirectory interface {
	UserExists(ctx context.Context, userID int64) (bool, error)
}

// Profile - то, что движку нужно знать об игроке для начисления очков.
type Profile struct {
	UserID   int64
	Username string
	Diploma  string
	// CompletedPlan - игрок выполнил все задачи своего плана за день.
	CompletedPlan bool
}

// ProfileSource отдаёт профиль игрока. day - календарный день, за который
// проверяется выполнение плана (для бонуса за завершение).
type ProfileSource interface {
	Profile(ctx context.Context, userID int64, day time.Time) (*Profile, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// MATCHMAKING QUEUE
// ══════════════════════════════════════════════════════════════════════════════

// Queue - очередь случайного подбора соперника. Общая для всех инстансов
// сервиса, поэтому выбор пары выполняется атомарно в самом хранилище.
type Queue interface {
	// PairOrEnqueue забирает самого давнего ожидающего игрока (не userID)
	// или ставит userID в очередь. Возвращает соперника и true, если пара
	// найдена. Повторный вызов ожидающего игрока ничего не меняет.
	PairOrEnqueue(ctx context.Context, userID int64) (int64, bool, error)

	// Enqueue возвращает игрока в голову очереди; если он уже ждёт,
	// ничего не меняет. Используется, когда найденная пара не состоялась.
	Enqueue(ctx context.Context, userID int64) error

	// Remove убирает игрока из очереди. false - игрока в очереди не было.
	Remove(ctx context.Context, userID int64) (bool, error)

	// Size возвращает число ожидающих игроков.
	Size(ctx context.Context) (int, error)
}
