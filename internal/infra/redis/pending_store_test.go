package redis

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"quiz-status-gateway/internal/domain"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/redis/go-redis/v9"
)

func TestPendingStoreRoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	store := NewPendingStore(newClient(mr))

	entry := domain.PendingStatus{
		ID:        uuid.New(),
		SessionID: 123,
		Status:    domain.StatusInProgress,
		Attempts:  1,
		LastError: "status 503",
		FailedAt:  time.Date(2024, 11, 22, 9, 30, 0, 0, time.UTC),
	}
	if err := store.Save(ctx, entry); err != nil {
		t.Fatalf("save: %v", err)
	}
	if mr.HGet(pendingKey, "123") == "" {
		t.Fatalf("expected hash field for session 123")
	}

	got, err := store.Get(ctx, 123)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != entry.ID || got.Status != entry.Status || !got.FailedAt.Equal(entry.FailedAt) {
		t.Fatalf("unexpected entry %+v", got)
	}

	if err := store.Delete(ctx, 123); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, 123); !errors.Is(err, domain.ErrPendingNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if err := store.Delete(ctx, 123); !errors.Is(err, domain.ErrPendingNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestPendingStoreListSkipsCorruptEntries(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	var logs bytes.Buffer
	store := NewPendingStore(newClient(mr), WithLogger(hclog.New(&hclog.LoggerOptions{Output: &logs, Level: hclog.Warn})))

	base := time.Now().UTC()
	_ = store.Save(ctx, domain.PendingStatus{SessionID: 2, Status: domain.StatusCompleted, FailedAt: base.Add(time.Second)})
	_ = store.Save(ctx, domain.PendingStatus{SessionID: 1, Status: domain.StatusInProgress, FailedAt: base})
	mr.HSet(pendingKey, "3", "{not json")

	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].SessionID != 1 || list[1].SessionID != 2 {
		t.Fatalf("unexpected list %+v", list)
	}
	if mr.HGet(pendingKey, "3") != "" {
		t.Fatalf("expected corrupt entry to be removed")
	}
	if out := logs.String(); !strings.Contains(out, "dropping corrupt pending status") || !strings.Contains(out, "session_id=3") {
		t.Fatalf("expected the dropped entry to be logged, got %q", out)
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
