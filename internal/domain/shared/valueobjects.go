package shared

import (
	"strconv"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// UserID identifies a study planner user. Identities are issued by the
// upstream account service; the engine only reads them.
type UserID int64

// IsValid checks if the user ID is valid (positive number).
func (u UserID) IsValid() bool {
	return u > 0
}

// Int64 returns the underlying int64 value.
func (u UserID) Int64() int64 {
	return int64(u)
}

// String returns the string representation.
func (u UserID) String() string {
	return strconv.FormatInt(int64(u), 10)
}

// NewUserID creates a new UserID with validation.
func NewUserID(id int64) (UserID, error) {
	if id <= 0 {
		return 0, ErrInvalidUserID
	}
	return UserID(id), nil
}

// ParseUserID parses a decimal user ID as it arrives in headers and paths.
func ParseUserID(s string) (UserID, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, WrapError("user", "Parse", ErrInvalidID, "invalid user ID", err)
	}
	return NewUserID(id)
}

// ═══════════════════════════════════════════════════════════════════════════
// Season
// ═══════════════════════════════════════════════════════════════════════════

// Season is a competition period. Exactly one season is active at a time;
// problems and scores are scoped to it.
type Season struct {
	ID        int64
	Name      string
	StartDate time.Time
	EndDate   time.Time
	IsActive  bool
}

// Contains reports whether the date falls inside the season.
func (s Season) Contains(t time.Time) bool {
	if !s.StartDate.IsZero() && t.Before(s.StartDate) {
		return false
	}
	if !s.EndDate.IsZero() && t.After(s.EndDate) {
		return false
	}
	return true
}

// ═══════════════════════════════════════════════════════════════════════════
// Time Range Value Object
// ═══════════════════════════════════════════════════════════════════════════

// TimeRange represents a time period.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// IsValid checks if the time range is valid.
func (t TimeRange) IsValid() bool {
	return !t.From.IsZero() && !t.To.IsZero() && !t.To.Before(t.From)
}

// Contains checks if a time is within the range.
func (t TimeRange) Contains(tm time.Time) bool {
	return !tm.Before(t.From) && !tm.After(t.To)
}

// ═══════════════════════════════════════════════════════════════════════════
// Pagination Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Pagination represents limit/offset pagination parameters.
type Pagination struct {
	Limit  int
	Offset int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// NewPagination creates a new Pagination with defaults applied.
func NewPagination(limit, offset int) Pagination {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return Pagination{Limit: limit, Offset: offset}
}

// DefaultPagination returns default pagination.
func DefaultPagination() Pagination {
	return NewPagination(DefaultPageSize, 0)
}
