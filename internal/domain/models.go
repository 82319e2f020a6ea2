package domain

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle marker the gateway manages for a quiz session.
type SessionStatus string

const (
	StatusInProgress SessionStatus = "IN_PROGRESS"
	StatusCompleted  SessionStatus = "COMPLETED"

	// StatusNotStarted appears in older client payloads. It is never accepted.
	StatusNotStarted SessionStatus = "NOT_STARTED"
)

// ProgressSnapshot describes a session at the moment a status decision is made.
type ProgressSnapshot struct {
	SessionID         int  `json:"sessionId"`
	TotalQuestions    int  `json:"totalQuestions"`
	AnsweredQuestions int  `json:"answeredQuestions"`
	IsExiting         bool `json:"exiting"`
}

// Partial reports whether some but not all questions have been answered.
func (p ProgressSnapshot) Partial() bool {
	return p.AnsweredQuestions > 0 && p.AnsweredQuestions < p.TotalQuestions
}

// UpdateOutcome is the result of one status update attempt.
type UpdateOutcome struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ValidationResult collects every violation found in a progress snapshot.
type ValidationResult struct {
	IsValid bool     `json:"isValid"`
	Errors  []string `json:"errors"`
}

// PendingStatus is a status write that failed remotely and waits for replay.
type PendingStatus struct {
	ID        uuid.UUID     `json:"id"`
	SessionID int           `json:"sessionId"`
	Status    SessionStatus `json:"status"`
	Attempts  int           `json:"attempts"`
	LastError string        `json:"lastError,omitempty"`
	FailedAt  time.Time     `json:"failedAt"`
}

// NoticeLevel grades a user-facing advisory.
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice is a non-blocking advisory shown to the user (a toast in the UI).
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Title   string      `json:"title"`
	Message string      `json:"message"`
}
