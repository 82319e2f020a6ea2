package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"quiz-status-gateway/internal/domain"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
)

// DefaultRetryCount is used when callers take DefaultUpdateOptions.
const DefaultRetryCount = 3

const unloadFallbackTimeout = 10 * time.Second

// Notifier delivers user-facing advisories, e.g. to a websocket client.
type Notifier interface {
	Notify(ctx context.Context, notice domain.Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, notice domain.Notice)

func (f NotifierFunc) Notify(ctx context.Context, notice domain.Notice) { f(ctx, notice) }

// PendingStore keeps status writes that could not reach the session API so they
// can be replayed later. There is at most one entry per session; Save overwrites it.
// Get and Delete return domain.ErrPendingNotFound when no entry exists.
type PendingStore interface {
	Get(ctx context.Context, sessionID int) (domain.PendingStatus, error)
	Save(ctx context.Context, pending domain.PendingStatus) error
	List(ctx context.Context) ([]domain.PendingStatus, error)
	Delete(ctx context.Context, sessionID int) error
}

// UpdateOptions tunes a single status update.
type UpdateOptions struct {
	RetryCount int
	// Silent mutes failure logs from the updater.
	Silent bool
	// Trigger labels what caused the update in logs ("answer", "exit", ...).
	Trigger string
	// Notifier receives failure advisories. nil means no advisory.
	Notifier Notifier
}

// DefaultUpdateOptions returns the options used by interactive callers.
func DefaultUpdateOptions(notifier Notifier) UpdateOptions {
	return UpdateOptions{RetryCount: DefaultRetryCount, Notifier: notifier}
}

// ManagerConfig wires the collaborators of a StatusManager.
type ManagerConfig struct {
	API RemoteSessionAPI
	// Beacon is optional; without it unload notifications use a regular update.
	Beacon Beacon
	// BaseURL is the session API root used to build beacon URLs.
	BaseURL string
	// Store is optional; without it failed updates are only logged.
	Store  PendingStore
	Logger hclog.Logger
}

// StatusManager is the entry point for every session status change.
type StatusManager struct {
	updater *StatusUpdater
	pending *PendingUpdates
	unload  *UnloadNotifier
	store   PendingStore
	log     hclog.Logger
	now     func() time.Time

	background sync.WaitGroup
}

func NewStatusManager(cfg ManagerConfig) *StatusManager {
	logger := cfg.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	m := &StatusManager{
		updater: NewStatusUpdater(cfg.API, logger.Named("updater")),
		pending: NewPendingUpdates(),
		store:   cfg.Store,
		log:     logger.Named("status"),
		now:     time.Now,
	}
	m.unload = NewUnloadNotifier(cfg.Beacon, cfg.BaseURL, m.unloadFallback, logger.Named("unload"))
	return m
}

// SetInProgress marks the session as in progress.
func (m *StatusManager) SetInProgress(ctx context.Context, sessionID int, opts UpdateOptions) bool {
	return m.setStatus(ctx, sessionID, domain.StatusInProgress, opts)
}

// SetCompleted marks the session as completed.
func (m *StatusManager) SetCompleted(ctx context.Context, sessionID int, opts UpdateOptions) bool {
	return m.setStatus(ctx, sessionID, domain.StatusCompleted, opts)
}

// DetermineStatus exposes the pure status rule.
func (m *StatusManager) DetermineStatus(totalQuestions, answeredQuestions int, isExiting bool) domain.SessionStatus {
	return DetermineStatus(totalQuestions, answeredQuestions, isExiting)
}

// UpdateBasedOnCompletion validates the snapshot, derives the status and sends it.
func (m *StatusManager) UpdateBasedOnCompletion(ctx context.Context, sessionID, totalQuestions, answeredQuestions int, isExiting bool, opts UpdateOptions) bool {
	trigger := opts.Trigger
	if trigger == "" {
		trigger = "update"
		if isExiting {
			trigger = "exit"
		}
	}

	validation := ValidateSessionData(sessionID, totalQuestions, answeredQuestions)
	if !validation.IsValid {
		m.log.Warn("invalid session data, status not updated",
			"session_id", sessionID,
			"trigger", trigger,
			"errors", strings.Join(validation.Errors, "; "))
		return false
	}

	status := DetermineStatus(totalQuestions, answeredQuestions, isExiting)
	opts.Trigger = trigger
	var ok bool
	if status == domain.StatusCompleted {
		ok = m.SetCompleted(ctx, sessionID, opts)
	} else {
		ok = m.SetInProgress(ctx, sessionID, opts)
	}

	m.log.Info("session status reconciled",
		"session_id", sessionID,
		"status", status,
		"trigger", trigger,
		"answered", answeredQuestions,
		"total", totalQuestions,
		"ok", ok)
	return ok
}

// HandleBeforeUnload fires a best-effort IN_PROGRESS notification. Returning
// says nothing about delivery.
func (m *StatusManager) HandleBeforeUnload(sessionID, totalQuestions, answeredQuestions int) {
	m.unload.NotifyBeforeUnload(sessionID, totalQuestions, answeredQuestions)
}

// IsValidStatus guards status strings coming from outside.
func (m *StatusManager) IsValidStatus(value string) bool {
	return IsValidStatus(value)
}

// ValidateSessionData reports every problem with a progress snapshot.
func (m *StatusManager) ValidateSessionData(sessionID, totalQuestions, answeredQuestions int) domain.ValidationResult {
	return ValidateSessionData(sessionID, totalQuestions, answeredQuestions)
}

// PendingUpdatesCount is meant for tests and debugging.
func (m *StatusManager) PendingUpdatesCount() int {
	return m.pending.Count()
}

// ClearPendingUpdates resets deduplication state. Meant for tests and teardown.
func (m *StatusManager) ClearPendingUpdates() {
	m.pending.Clear()
}

// Wait blocks until background fallback updates started by HandleBeforeUnload finish.
func (m *StatusManager) Wait() {
	m.background.Wait()
}

func (m *StatusManager) setStatus(ctx context.Context, sessionID int, status domain.SessionStatus, opts UpdateOptions) bool {
	if sessionID <= 0 {
		m.log.Error("refusing status update",
			"session_id", sessionID,
			"status", status,
			"error", domain.ErrInvalidSessionID)
		notify(ctx, opts.Notifier, invalidSessionNotice)
		return false
	}

	val, ran, err := m.pending.do(ctx, sessionID, func(ctx context.Context) (interface{}, error) {
		outcome := m.updater.Update(ctx, sessionID, status, opts.RetryCount, opts.Silent)
		if outcome.Success {
			m.forgetPending(ctx, sessionID, status)
		} else {
			m.rememberPending(ctx, sessionID, status, outcome.Error)
		}
		return sentUpdate{status: status, outcome: outcome}, nil
	})

	var outcome domain.UpdateOutcome
	if err != nil {
		outcome = domain.UpdateOutcome{Success: false, Error: err.Error()}
	} else if sent, ok := val.(sentUpdate); ok {
		outcome = sent.outcome
	}

	// A completion that rode along on someone else's update, or gave up
	// waiting for it, was never sent; keep it for replay.
	if !ran && status == domain.StatusCompleted {
		sent, ok := val.(sentUpdate)
		if err != nil || !ok || sent.status != status {
			reason := "joined in-flight update"
			if ok {
				reason += " for " + string(sent.status)
			}
			if err != nil {
				reason = err.Error()
			}
			m.log.Info("completion not sent, keeping for replay",
				"session_id", sessionID,
				"trigger", opts.Trigger,
				"reason", reason)
			m.rememberPending(ctx, sessionID, status, reason)
		}
	}

	if outcome.Success {
		return true
	}

	if status == domain.StatusCompleted {
		notify(ctx, opts.Notifier, completionFailedNotice)
	} else {
		notify(ctx, opts.Notifier, progressFailedNotice)
	}
	return false
}

// rememberPending records a failed write. A pending COMPLETED is never
// downgraded by a later IN_PROGRESS failure.
func (m *StatusManager) rememberPending(ctx context.Context, sessionID int, status domain.SessionStatus, reason string) {
	if m.store == nil {
		return
	}
	// The caller may have given up already; the record must still be written.
	ctx = context.WithoutCancel(ctx)
	entry := domain.PendingStatus{
		ID:        uuid.New(),
		SessionID: sessionID,
		Status:    status,
		Attempts:  1,
		LastError: reason,
		FailedAt:  m.now(),
	}
	existing, err := m.store.Get(ctx, sessionID)
	switch {
	case err == nil:
		entry.ID = existing.ID
		entry.Attempts = existing.Attempts + 1
		if existing.Status == domain.StatusCompleted {
			entry.Status = domain.StatusCompleted
		}
	case !errors.Is(err, domain.ErrPendingNotFound):
		m.log.Error("load pending status", "session_id", sessionID, "error", err)
	}
	if err := m.store.Save(ctx, entry); err != nil {
		m.log.Error("keep pending status", "session_id", sessionID, "status", entry.Status, "error", err)
	}
}

// forgetPending drops the entry a successful write made obsolete. COMPLETED
// supersedes anything pending; IN_PROGRESS only clears a pending IN_PROGRESS.
func (m *StatusManager) forgetPending(ctx context.Context, sessionID int, status domain.SessionStatus) {
	if m.store == nil {
		return
	}
	existing, err := m.store.Get(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, domain.ErrPendingNotFound) {
			m.log.Error("load pending status", "session_id", sessionID, "error", err)
		}
		return
	}
	if status != domain.StatusCompleted && existing.Status != status {
		return
	}
	if err := m.store.Delete(ctx, sessionID); err != nil && !errors.Is(err, domain.ErrPendingNotFound) {
		m.log.Error("drop pending status", "session_id", sessionID, "error", err)
	}
}

// sentUpdate is what callers sharing one in-flight update see.
type sentUpdate struct {
	status  domain.SessionStatus
	outcome domain.UpdateOutcome
}

func (m *StatusManager) unloadFallback(sessionID int) {
	m.background.Add(1)
	go func() {
		defer m.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), unloadFallbackTimeout)
		defer cancel()
		m.SetInProgress(ctx, sessionID, UpdateOptions{RetryCount: 0, Silent: true, Trigger: "unload"})
	}()
}

func notify(ctx context.Context, notifier Notifier, notice domain.Notice) {
	if notifier != nil {
		notifier.Notify(ctx, notice)
	}
}

var (
	invalidSessionNotice = domain.Notice{
		Level:   domain.NoticeError,
		Title:   "Invalid session",
		Message: "Cannot update a session without a valid id.",
	}
	progressFailedNotice = domain.Notice{
		Level:   domain.NoticeWarning,
		Title:   "Progress not saved",
		Message: "Your progress is safe locally and will sync later.",
	}
	completionFailedNotice = domain.Notice{
		Level:   domain.NoticeWarning,
		Title:   "Completion not recorded",
		Message: "Your answers were submitted, but the session could not be marked complete.",
	}
)
