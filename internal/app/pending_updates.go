package app

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"quiz-status-gateway/internal/domain"
	"golang.org/x/sync/singleflight"
)

// PendingUpdates allows at most one in-flight status update per session.
// Callers arriving while an update is running share its outcome instead of
// issuing their own request.
type PendingUpdates struct {
	group singleflight.Group

	mu       sync.Mutex
	inFlight map[string]uint64
	seq      uint64
}

func NewPendingUpdates() *PendingUpdates {
	return &PendingUpdates{inFlight: make(map[string]uint64)}
}

// Run executes op for sessionID unless an update for that session is already
// running, in which case it waits for that update. An error from op is returned
// to the caller that ran it; callers that joined receive it as a failed outcome.
// A caller whose ctx ends first stops waiting: a joined caller gets a failed
// outcome, the caller that started the update gets ctx's error. The running
// update is left to finish on its own.
func (p *PendingUpdates) Run(ctx context.Context, sessionID int, op func(context.Context) (domain.UpdateOutcome, error)) (domain.UpdateOutcome, error) {
	val, ran, err := p.do(ctx, sessionID, func(ctx context.Context) (interface{}, error) {
		return op(ctx)
	})
	if err != nil {
		if ran {
			return domain.UpdateOutcome{}, err
		}
		return domain.UpdateOutcome{Success: false, Error: err.Error()}, nil
	}
	outcome, _ := val.(domain.UpdateOutcome)
	return outcome, nil
}

// do is Run without the outcome type. ran reports whether this caller's op was
// the one executed. A panic in op is returned as an error to every waiter.
func (p *PendingUpdates) do(ctx context.Context, sessionID int, op func(context.Context) (interface{}, error)) (val interface{}, ran bool, err error) {
	key := strconv.Itoa(sessionID)
	var executed atomic.Bool

	ch := p.group.DoChan(key, func() (result interface{}, opErr error) {
		executed.Store(true)
		token := p.track(key)
		defer p.untrack(key, token)
		defer func() {
			if r := recover(); r != nil {
				opErr = fmt.Errorf("status update for session %d panicked: %v", sessionID, r)
			}
		}()
		return op(ctx)
	})

	select {
	case res := <-ch:
		return res.Val, executed.Load(), res.Err
	case <-ctx.Done():
		return nil, executed.Load(), ctx.Err()
	}
}

// Count returns the number of sessions with an update in flight.
func (p *PendingUpdates) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inFlight)
}

// Clear drops every in-flight entry. Later callers start fresh updates even if
// earlier ones have not settled yet.
func (p *PendingUpdates) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key := range p.inFlight {
		p.group.Forget(key)
	}
	p.inFlight = make(map[string]uint64)
}

func (p *PendingUpdates) track(key string) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	p.inFlight[key] = p.seq
	return p.seq
}

// untrack only removes the entry it installed; Clear may have replaced it since.
func (p *PendingUpdates) untrack(key string, token uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inFlight[key] == token {
		delete(p.inFlight, key)
	}
}
