package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/dharsanguruparan/imagesigner/internal/model"
	"github.com/dharsanguruparan/imagesigner/internal/storage"
)

// DB is the subset of pgxpool.Pool the repository uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// IssuanceRepository persists issuances in PostgreSQL.
type IssuanceRepository struct {
	db DB
}

// NewIssuanceRepository constructs a repository.
func NewIssuanceRepository(db DB) *IssuanceRepository {
	return &IssuanceRepository{db: db}
}

// Create inserts a new issuance.
func (r *IssuanceRepository) Create(ctx context.Context, rec *model.Issuance) error {
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	_, err := r.db.Exec(ctx, `
		INSERT INTO issuances (id, resource_id, expires_at, status, manifest_key, message, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, rec.ID, rec.ResourceID, nullTime(rec.ExpiresAt), rec.Status, nullString(rec.ManifestKey), nullString(rec.Message), rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert issuance: %w", err)
	}
	return nil
}

// Get returns an issuance by id. Unknown ids yield storage.ErrNotFound so
// callers can treat both ledgers alike.
func (r *IssuanceRepository) Get(ctx context.Context, id string) (*model.Issuance, error) {
	var (
		rec         model.Issuance
		expiresAt   pgtype.Timestamptz
		manifestKey pgtype.Text
		message     pgtype.Text
	)
	row := r.db.QueryRow(ctx, `
		SELECT id, resource_id, expires_at, status, manifest_key, message, created_at, updated_at
		FROM issuances WHERE id=$1
	`, id)
	if err := row.Scan(&rec.ID, &rec.ResourceID, &expiresAt, &rec.Status, &manifestKey, &message, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("issuance %s: %w", id, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("select issuance: %w", err)
	}
	if expiresAt.Valid {
		rec.ExpiresAt = expiresAt.Time
	}
	rec.ManifestKey = manifestKey.String
	rec.Message = message.String
	return &rec, nil
}

// MarkIssued stores the signed expiry and manifest location.
func (r *IssuanceRepository) MarkIssued(ctx context.Context, id string, expiresAt time.Time, manifestKey string) error {
	return r.update(ctx, id, model.StatusIssued, nullTime(expiresAt), nullString(manifestKey), nil)
}

// MarkFailed records the failure message.
func (r *IssuanceRepository) MarkFailed(ctx context.Context, id string, msg string) error {
	return r.update(ctx, id, model.StatusFailed, nil, nil, &msg)
}

func (r *IssuanceRepository) update(ctx context.Context, id string, status model.IssuanceStatus, expiresAt *time.Time, manifestKey *string, msg *string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE issuances
		SET status=$1,
			expires_at = COALESCE($2, expires_at),
			manifest_key = COALESCE($3, manifest_key),
			message = $4,
			updated_at=$5
		WHERE id=$6
	`, status, expiresAt, manifestKey, msg, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update issuance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("issuance %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
