// Package shared содержит общие для доменов PVP, рейтинга, очков и
// лидерборда типы: ошибки, события и value objects. Внешних зависимостей
// у пакета нет.
package shared

import (
	"errors"
	"fmt"
)

// Базовые виды ошибок. Конкретные ошибки ниже оборачивают один из них,
// поэтому транспорт проверяет вид через errors.Is.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrForbidden     = errors.New("forbidden")
	ErrConflict      = errors.New("conflict")
	ErrInvalidState  = errors.New("invalid state")

	ErrInvalidInput    = errors.New("invalid input")
	ErrInvalidID       = errors.New("invalid ID")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")
)

// validationKinds превращаются в 400 Bad Request.
var validationKinds = []error{ErrInvalidInput, ErrInvalidID, ErrEmptyValue, ErrNegativeValue, ErrValueOutOfRange}

// DomainError несёт место ошибки (Domain.Op), её вид и сообщение,
// которое можно показать клиенту.
type DomainError struct {
	Domain  string
	Op      string
	Kind    error
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	msg := e.Domain + "." + e.Op + ": " + e.Message
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap отдаёт и вид, и причину, так что errors.Is находит любой из них.
func (e *DomainError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message}
}

// WrapError то же, что NewDomainError, но с исходной ошибкой.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message, Err: err}
}

// PVP
var (
	ErrAlreadyInMatch       = NewDomainError("pvp", "CreateMatch", ErrAlreadyExists, "player already has an active match")
	ErrNoProblemsAvailable  = NewDomainError("pvp", "CreateMatch", ErrNotFound, "no problems available for the active season")
	ErrNoActiveSeason       = NewDomainError("pvp", "CreateMatch", ErrNotFound, "no active season")
	ErrSelfMatch            = NewDomainError("pvp", "CreateMatch", ErrInvalidInput, "cannot start a match against yourself")
	ErrNotAPlayer           = NewDomainError("pvp", "Authorize", ErrForbidden, "user is not a player of this match")
	ErrMatchNotFound        = NewDomainError("pvp", "Find", ErrNotFound, "match not found")
	ErrMatchAlreadyResolved = NewDomainError("pvp", "Submit", ErrConflict, "match already resolved")
	ErrDuplicateSubmission  = NewDomainError("pvp", "Submit", ErrAlreadyExists, "answer already submitted")
	ErrNegativeElapsed      = NewDomainError("pvp", "Submit", ErrNegativeValue, "elapsed time cannot be negative")
	ErrMatchStillRunning    = NewDomainError("pvp", "Resolve", ErrInvalidState, "match is still running")
	ErrSlotChanged          = NewDomainError("pvp", "Complete", ErrConflict, "slot changed during resolution")
)

// Пользователи, рейтинг, лидерборд
var (
	ErrUserNotFound  = NewDomainError("user", "Find", ErrNotFound, "user not found")
	ErrInvalidUserID = NewDomainError("user", "Validate", ErrInvalidID, "invalid user ID")

	ErrRatingNotFound = NewDomainError("rating", "Find", ErrNotFound, "rating record not found")

	ErrInvalidScope     = NewDomainError("leaderboard", "Validate", ErrInvalidInput, "invalid ranking scope")
	ErrSnapshotNotFound = NewDomainError("leaderboard", "FindSnapshot", ErrNotFound, "snapshot not found")
	ErrNotRanked        = NewDomainError("leaderboard", "FindRank", ErrNotFound, "user has no ranking entry")
)

func IsNotFound(err error) bool      { return errors.Is(err, ErrNotFound) }
func IsAlreadyExists(err error) bool { return errors.Is(err, ErrAlreadyExists) }
func IsForbidden(err error) bool     { return errors.Is(err, ErrForbidden) }

// IsValidation сообщает, что виноват запрос клиента.
func IsValidation(err error) bool {
	for _, kind := range validationKinds {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
