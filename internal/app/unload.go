package app

import (
	"encoding/json"
	"strconv"
	"strings"

	"quiz-status-gateway/internal/domain"
	"github.com/hashicorp/go-hclog"
)

// Beacon is a one-way delivery primitive. Send queues payload for a POST to url
// and returns immediately; false means the payload was not accepted.
type Beacon interface {
	Send(url string, payload []byte) bool
}

type statusPayload struct {
	Status domain.SessionStatus `json:"status"`
}

// StatusURL is the session API endpoint that receives status writes.
func StatusURL(baseURL string, sessionID int) string {
	return strings.TrimRight(baseURL, "/") + "/quiz-sessions/" + strconv.Itoa(sessionID) + "/status"
}

// UnloadNotifier reports a half-finished session when its client goes away.
// Delivery is best effort: nothing waits for it and it may never arrive.
type UnloadNotifier struct {
	beacon   Beacon
	baseURL  string
	fallback func(sessionID int)
	log      hclog.Logger
}

// NewUnloadNotifier builds a notifier. beacon may be nil, in which case every
// notification goes through fallback.
func NewUnloadNotifier(beacon Beacon, baseURL string, fallback func(sessionID int), logger hclog.Logger) *UnloadNotifier {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &UnloadNotifier{beacon: beacon, baseURL: baseURL, fallback: fallback, log: logger}
}

// NotifyBeforeUnload sends IN_PROGRESS for sessions with partial progress.
// It never blocks on the network and never panics on bad input.
func (n *UnloadNotifier) NotifyBeforeUnload(sessionID, totalQuestions, answeredQuestions int) {
	if sessionID <= 0 || totalQuestions <= 0 || answeredQuestions < 0 {
		n.log.Warn("skipping unload notification, invalid session data",
			"session_id", sessionID,
			"total_questions", totalQuestions,
			"answered_questions", answeredQuestions)
		return
	}
	// Completed sessions are reported by the normal path; untouched ones are not worth reporting.
	if answeredQuestions == 0 || answeredQuestions >= totalQuestions {
		return
	}

	payload, err := json.Marshal(statusPayload{Status: domain.StatusInProgress})
	if err != nil {
		n.log.Warn("encode unload payload", "session_id", sessionID, "error", err)
		return
	}

	if n.beacon != nil && n.beacon.Send(StatusURL(n.baseURL, sessionID), payload) {
		n.log.Debug("unload beacon queued", "session_id", sessionID)
		return
	}

	n.log.Warn("beacon unavailable, falling back to status update", "session_id", sessionID)
	if n.fallback != nil {
		n.fallback(sessionID)
	}
}
