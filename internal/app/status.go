package app

import (
	"fmt"

	"quiz-status-gateway/internal/domain"
)

// DetermineStatus derives the target status from progress alone.
// Answering every question always completes the session, even while exiting.
func DetermineStatus(totalQuestions, answeredQuestions int, isExiting bool) domain.SessionStatus {
	if totalQuestions > 0 && answeredQuestions == totalQuestions {
		return domain.StatusCompleted
	}
	return domain.StatusInProgress
}

// IsValidStatus reports whether value is one of the two statuses the gateway accepts.
func IsValidStatus(value string) bool {
	switch domain.SessionStatus(value) {
	case domain.StatusInProgress, domain.StatusCompleted:
		return true
	}
	return false
}

// ValidateSessionData checks a progress snapshot and reports every violation, not just the first.
func ValidateSessionData(sessionID, totalQuestions, answeredQuestions int) domain.ValidationResult {
	errs := make([]string, 0)
	if sessionID <= 0 {
		errs = append(errs, fmt.Sprintf("sessionId must be a positive integer, got %d", sessionID))
	}
	if totalQuestions <= 0 {
		errs = append(errs, fmt.Sprintf("totalQuestions must be a positive integer, got %d", totalQuestions))
	}
	if answeredQuestions < 0 {
		errs = append(errs, fmt.Sprintf("answeredQuestions must be non-negative, got %d", answeredQuestions))
	}
	if answeredQuestions > totalQuestions {
		errs = append(errs, fmt.Sprintf("answeredQuestions (%d) cannot exceed totalQuestions (%d)", answeredQuestions, totalQuestions))
	}
	return domain.ValidationResult{IsValid: len(errs) == 0, Errors: errs}
}
