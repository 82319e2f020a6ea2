package app

import (
	"context"

	"quiz-status-gateway/internal/domain"
	"github.com/hashicorp/go-hclog"
)

const unknownError = "Unknown error"

// RemoteSessionAPI is the REST backend that owns quiz session state. It runs its
// own retry loop, making up to retryCount additional attempts after the first.
type RemoteSessionAPI interface {
	UpdateStatusWithRetry(ctx context.Context, sessionID int, status domain.SessionStatus, retryCount int) (domain.UpdateOutcome, error)
}

// StatusUpdater pushes a status to the session API and normalizes every failure
// into an UpdateOutcome.
type StatusUpdater struct {
	api RemoteSessionAPI
	log hclog.Logger
}

func NewStatusUpdater(api RemoteSessionAPI, logger hclog.Logger) *StatusUpdater {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &StatusUpdater{api: api, log: logger}
}

// Update sends status for sessionID. silent only mutes the warning log.
func (u *StatusUpdater) Update(ctx context.Context, sessionID int, status domain.SessionStatus, retryCount int, silent bool) domain.UpdateOutcome {
	if retryCount < 0 {
		retryCount = 0
	}

	outcome, err := u.api.UpdateStatusWithRetry(ctx, sessionID, status, retryCount)
	if err == nil && outcome.Success {
		return domain.UpdateOutcome{Success: true}
	}

	msg := unknownError
	if err != nil {
		if err.Error() != "" {
			msg = err.Error()
		}
	} else if outcome.Error != "" {
		msg = outcome.Error
	}

	if !silent {
		u.log.Warn("status update failed",
			"session_id", sessionID,
			"status", status,
			"retry_count", retryCount,
			"error", msg)
	}
	return domain.UpdateOutcome{Success: false, Error: msg}
}
