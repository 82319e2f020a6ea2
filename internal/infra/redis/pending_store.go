package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"quiz-status-gateway/internal/domain"
	"github.com/hashicorp/go-hclog"
	"github.com/redis/go-redis/v9"
)

const pendingKey = "quiz:status:outbox"

// PendingStore keeps unsynced statuses in a single Redis hash so they survive
// restarts and can be drained by any gateway instance.
// Layout: HSET quiz:status:outbox {sessionID} {json}
type PendingStore struct {
	client *redis.Client
	key    string
	log    hclog.Logger
}

// Option customizes a PendingStore.
type Option func(*PendingStore)

// WithLogger reports entries the store had to discard.
func WithLogger(logger hclog.Logger) Option {
	return func(s *PendingStore) {
		if logger != nil {
			s.log = logger
		}
	}
}

func NewPendingStore(client *redis.Client, opts ...Option) *PendingStore {
	s := &PendingStore{client: client, key: pendingKey, log: hclog.NewNullLogger()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *PendingStore) Get(ctx context.Context, sessionID int) (domain.PendingStatus, error) {
	raw, err := s.client.HGet(ctx, s.key, strconv.Itoa(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.PendingStatus{}, domain.ErrPendingNotFound
	}
	if err != nil {
		return domain.PendingStatus{}, fmt.Errorf("get pending status: %w", err)
	}
	return decodePending(raw)
}

func (s *PendingStore) Save(ctx context.Context, pending domain.PendingStatus) error {
	data, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("encode pending status: %w", err)
	}
	if err := s.client.HSet(ctx, s.key, strconv.Itoa(pending.SessionID), data).Err(); err != nil {
		return fmt.Errorf("save pending status: %w", err)
	}
	return nil
}

func (s *PendingStore) List(ctx context.Context) ([]domain.PendingStatus, error) {
	all, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("list pending statuses: %w", err)
	}
	out := make([]domain.PendingStatus, 0, len(all))
	for field, raw := range all {
		entry, err := decodePending(raw)
		if err != nil {
			// Unreadable entries would block replay forever.
			s.log.Warn("dropping corrupt pending status", "session_id", field, "error", err)
			if derr := s.client.HDel(ctx, s.key, field).Err(); derr != nil {
				return nil, fmt.Errorf("drop corrupt pending status %s: %w", field, derr)
			}
			continue
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].FailedAt.Equal(out[j].FailedAt) {
			return out[i].FailedAt.Before(out[j].FailedAt)
		}
		return out[i].SessionID < out[j].SessionID
	})
	return out, nil
}

func (s *PendingStore) Delete(ctx context.Context, sessionID int) error {
	removed, err := s.client.HDel(ctx, s.key, strconv.Itoa(sessionID)).Result()
	if err != nil {
		return fmt.Errorf("delete pending status: %w", err)
	}
	if removed == 0 {
		return domain.ErrPendingNotFound
	}
	return nil
}

func decodePending(raw string) (domain.PendingStatus, error) {
	var entry domain.PendingStatus
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return domain.PendingStatus{}, fmt.Errorf("decode pending status: %w", err)
	}
	return entry, nil
}
