package app_test

import (
	"context"
	"errors"
	"sync"

	"quiz-status-gateway/internal/domain"
)

type apiCall struct {
	SessionID  int
	Status     domain.SessionStatus
	RetryCount int
}

// fakeAPI records calls and answers with a fixed outcome. When gate is set,
// every call blocks until the gate is closed.
type fakeAPI struct {
	mu      sync.Mutex
	calls   []apiCall
	outcome domain.UpdateOutcome
	err     error
	gate    chan struct{}
	entered chan struct{}
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{outcome: domain.UpdateOutcome{Success: true}}
}

func (f *fakeAPI) UpdateStatusWithRetry(ctx context.Context, sessionID int, status domain.SessionStatus, retryCount int) (domain.UpdateOutcome, error) {
	f.mu.Lock()
	f.calls = append(f.calls, apiCall{SessionID: sessionID, Status: status, RetryCount: retryCount})
	gate, entered := f.gate, f.entered
	outcome, err := f.outcome, f.err
	f.mu.Unlock()

	if entered != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
	}
	if gate != nil {
		<-gate
	}
	return outcome, err
}

func (f *fakeAPI) fail(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcome = domain.UpdateOutcome{}
	f.err = errors.New(msg)
}

func (f *fakeAPI) succeed() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcome = domain.UpdateOutcome{Success: true}
	f.err = nil
}

func (f *fakeAPI) Calls() []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]apiCall(nil), f.calls...)
}

type beaconSend struct {
	URL     string
	Payload string
}

type fakeBeacon struct {
	mu     sync.Mutex
	accept bool
	sends  []beaconSend
}

func (b *fakeBeacon) Send(url string, payload []byte) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sends = append(b.sends, beaconSend{URL: url, Payload: string(payload)})
	return b.accept
}

func (b *fakeBeacon) Sends() []beaconSend {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]beaconSend(nil), b.sends...)
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []domain.Notice
}

func (n *recordingNotifier) Notify(_ context.Context, notice domain.Notice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
}

func (n *recordingNotifier) Notices() []domain.Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.Notice(nil), n.notices...)
}
