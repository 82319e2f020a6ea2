package app

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// ReplayReport summarizes one pass over the pending store.
type ReplayReport struct {
	Attempted int
	Synced    int
	Failed    int
	Dropped   int
}

// ReplayPending re-sends every stored status through the regular update path.
// Entries that sync are removed; the rest stay for the next pass.
func (m *StatusManager) ReplayPending(ctx context.Context, concurrency int) (ReplayReport, error) {
	if m.store == nil {
		return ReplayReport{}, nil
	}
	entries, err := m.store.List(ctx)
	if err != nil {
		return ReplayReport{}, fmt.Errorf("list pending statuses: %w", err)
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	var synced, failed, dropped atomic.Int64
	var g errgroup.Group
	g.SetLimit(concurrency)
	for _, entry := range entries {
		entry := entry
		if !IsValidStatus(string(entry.Status)) || entry.SessionID <= 0 {
			m.log.Warn("dropping unusable pending status", "session_id", entry.SessionID, "status", entry.Status)
			if err := m.store.Delete(ctx, entry.SessionID); err != nil {
				m.log.Error("drop pending status", "session_id", entry.SessionID, "error", err)
			}
			dropped.Add(1)
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				failed.Add(1)
				return nil
			}
			if m.setStatus(ctx, entry.SessionID, entry.Status, UpdateOptions{Silent: true, Trigger: "replay"}) {
				synced.Add(1)
			} else {
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	report := ReplayReport{
		Attempted: len(entries) - int(dropped.Load()),
		Synced:    int(synced.Load()),
		Failed:    int(failed.Load()),
		Dropped:   int(dropped.Load()),
	}
	if report.Attempted > 0 || report.Dropped > 0 {
		m.log.Info("pending statuses replayed",
			"attempted", report.Attempted,
			"synced", report.Synced,
			"failed", report.Failed,
			"dropped", report.Dropped)
	}
	return report, ctx.Err()
}
