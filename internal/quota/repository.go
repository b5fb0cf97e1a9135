package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no quota record exists for a user.
var ErrNotFound = errors.New("quota record not found")

// Repository is the narrow persistence interface the scheduler consumes.
// FetchDue pushes the due filter down to the store so a run only touches
// the due set; ApplyReset must be atomic per record.
type Repository interface {
	FetchDue(ctx context.Context, now time.Time) ([]UsageQuotaRecord, error)
	ApplyReset(ctx context.Context, userID uuid.UUID, newNextResetAt time.Time) error
}

// PostgresRepository handles usage_quotas PostgreSQL operations.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new quota PostgresRepository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// FetchDue returns every record whose next_reset_at has arrived.
func (r *PostgresRepository) FetchDue(ctx context.Context, now time.Time) ([]UsageQuotaRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id, quota_limit, quota_used, cycle_anchor, next_reset_at, updated_at
		 FROM usage_quotas
		 WHERE next_reset_at <= $1
		 ORDER BY next_reset_at`, now)
	if err != nil {
		return nil, fmt.Errorf("querying due quotas: %w", err)
	}
	defer rows.Close()

	var records []UsageQuotaRecord
	for rows.Next() {
		var rec UsageQuotaRecord
		if err := rows.Scan(&rec.UserID, &rec.QuotaLimit, &rec.QuotaUsed,
			&rec.CycleAnchor, &rec.NextResetAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning quota record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating due quotas: %w", err)
	}
	return records, nil
}

// ApplyReset zeroes usage and advances the reset time in a single statement,
// so a partial write is never observable.
func (r *PostgresRepository) ApplyReset(ctx context.Context, userID uuid.UUID, newNextResetAt time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE usage_quotas
		 SET quota_used = 0,
		     next_reset_at = $2,
		     updated_at = NOW()
		 WHERE user_id = $1`, userID, newNextResetAt)
	if err != nil {
		return fmt.Errorf("applying quota reset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Get returns a single user's quota record.
func (r *PostgresRepository) Get(ctx context.Context, userID uuid.UUID) (*UsageQuotaRecord, error) {
	var rec UsageQuotaRecord
	err := r.pool.QueryRow(ctx,
		`SELECT user_id, quota_limit, quota_used, cycle_anchor, next_reset_at, updated_at
		 FROM usage_quotas WHERE user_id = $1`, userID,
	).Scan(&rec.UserID, &rec.QuotaLimit, &rec.QuotaUsed,
		&rec.CycleAnchor, &rec.NextResetAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching quota record: %w", err)
	}
	return &rec, nil
}

// Upsert creates or replaces a user's quota limit and cycle anchor. The
// first reset lands one cycle after the anchor; in-cycle usage is kept on
// update.
func (r *PostgresRepository) Upsert(ctx context.Context, userID uuid.UUID, quotaLimit int, cycleAnchor time.Time, cycle time.Duration) error {
	nextReset := cycleAnchor.Add(cycle)
	_, err := r.pool.Exec(ctx,
		`INSERT INTO usage_quotas (user_id, quota_limit, quota_used, cycle_anchor, next_reset_at)
		 VALUES ($1, $2, 0, $3, $4)
		 ON CONFLICT (user_id) DO UPDATE
		 SET quota_limit = EXCLUDED.quota_limit,
		     cycle_anchor = EXCLUDED.cycle_anchor,
		     next_reset_at = EXCLUDED.next_reset_at,
		     updated_at = NOW()`,
		userID, quotaLimit, cycleAnchor, nextReset)
	if err != nil {
		return fmt.Errorf("upserting quota record: %w", err)
	}
	return nil
}

// Delete removes a user's quota record.
func (r *PostgresRepository) Delete(ctx context.Context, userID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM usage_quotas WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("deleting quota record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
