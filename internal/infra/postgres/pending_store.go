package postgres

import (
	"context"
	"errors"
	"fmt"

	"quiz-status-gateway/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// PendingStore keeps unsynced statuses in the session_status_outbox table.
type PendingStore struct {
	pool *pgxpool.Pool
}

func NewPendingStore(pool *pgxpool.Pool) *PendingStore {
	return &PendingStore{pool: pool}
}

const selectPending = `SELECT id, session_id, status, attempts, last_error, failed_at FROM session_status_outbox`

func (s *PendingStore) Get(ctx context.Context, sessionID int) (domain.PendingStatus, error) {
	row := s.pool.QueryRow(ctx, selectPending+` WHERE session_id=$1`, sessionID)
	entry, err := scanPending(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PendingStatus{}, domain.ErrPendingNotFound
	}
	if err != nil {
		return domain.PendingStatus{}, fmt.Errorf("get pending status: %w", err)
	}
	return entry, nil
}

func (s *PendingStore) Save(ctx context.Context, pending domain.PendingStatus) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO session_status_outbox (id, session_id, status, attempts, last_error, failed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_id) DO UPDATE SET
			id = EXCLUDED.id,
			status = EXCLUDED.status,
			attempts = EXCLUDED.attempts,
			last_error = EXCLUDED.last_error,
			failed_at = EXCLUDED.failed_at`,
		pending.ID.String(), pending.SessionID, string(pending.Status), pending.Attempts, pending.LastError, pending.FailedAt)
	if err != nil {
		return fmt.Errorf("save pending status: %w", err)
	}
	return nil
}

func (s *PendingStore) List(ctx context.Context) ([]domain.PendingStatus, error) {
	rows, err := s.pool.Query(ctx, selectPending+` ORDER BY failed_at, session_id`)
	if err != nil {
		return nil, fmt.Errorf("list pending statuses: %w", err)
	}
	defer rows.Close()

	var out []domain.PendingStatus
	for rows.Next() {
		entry, err := scanPending(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending status: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (s *PendingStore) Delete(ctx context.Context, sessionID int) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM session_status_outbox WHERE session_id=$1`, sessionID)
	if err != nil {
		return fmt.Errorf("delete pending status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPendingNotFound
	}
	return nil
}

func scanPending(row pgx.Row) (domain.PendingStatus, error) {
	var (
		entry  domain.PendingStatus
		id     string
		status string
	)
	if err := row.Scan(&id, &entry.SessionID, &status, &entry.Attempts, &entry.LastError, &entry.FailedAt); err != nil {
		return domain.PendingStatus{}, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return domain.PendingStatus{}, fmt.Errorf("parse pending id: %w", err)
	}
	entry.ID = parsed
	entry.Status = domain.SessionStatus(status)
	return entry, nil
}
