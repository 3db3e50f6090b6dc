// Package match содержит доменную модель PVP-матча StudyPlan.
//
// Матч - это гонка двух игроков над одной задачей: каждый отвечает один раз,
// побеждает тот, кто ответил верно, а при двух верных ответах - тот, кто
// ответил быстрее. Пакет определяет:
//
//   - Сущности: Match, Slot, Resolution
//   - Value Objects: Status, Result, ResolutionReason, SlotOutcome
//   - Чистые правила: Resolve, ResolveForfeit, IsCorrectAnswer, ClampElapsed
//   - Интерфейсы: Repository, ProblemSource, SeasonSource, UserDirectory,
//     ProfileSource, UnitOfWork
//
// # Жизненный цикл
//
// Матч создаётся сразу в статусе IN_PROGRESS, отсчёт времени начинается
// с StartedAt. Статус только растёт:
//
//	WAITING -> IN_PROGRESS -> COMPLETED
//
// COMPLETED - терминальное состояние. Переход в него выполняется ровно один
// раз через условное обновление хранилища (compare-and-swap "если статус
// IN_PROGRESS"). Только победитель CAS пересчитывает рейтинг и начисляет
// очки, поэтому двойной отправки и гонки с таймаутом не бывает.
//
// # Слоты
//
// Ответ игрока записывается в его слот условным обновлением "если слот пуст".
// Второй писатель получает ErrDuplicateSubmission, а не перезаписывает ответ.
//
//	m, _ := NewMatch(NewMatchParams{...})
//	slot := NewAnsweredSlot("42", problem.Answer, 45, m.TimeLimitSeconds, now)
//	res, _ := m.Decide(now, nil)
//
// Пакет не зависит от инфраструктуры: хранилища реализуются в
// internal/infrastructure/persistence.
package match
