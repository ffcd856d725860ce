package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/greut/aio-iiif/internal/model"
)

// RequestRepository is the ledger of answered requests.
type RequestRepository interface {
	Record(ctx context.Context, rec *model.RequestRecord) error
	Count(ctx context.Context) (int64, error)
	CountByOutcome(ctx context.Context, outcome model.Outcome) (int64, error)
	Recent(ctx context.Context, limit int) ([]model.RequestRecord, error)
}

type sqliteRequestRepository struct {
	db *sqlx.DB
}

// NewRequestRepository creates a new SQLite-backed RequestRepository.
func NewRequestRepository(db *sqlx.DB) RequestRepository {
	return &sqliteRequestRepository{db: db}
}

func (r *sqliteRequestRepository) Record(ctx context.Context, rec *model.RequestRecord) error {
	result, err := r.db.NamedExecContext(ctx, `
		INSERT INTO requests (request_id, kind, identifier, path, status, outcome, error, bytes, duration_ms)
		VALUES (:request_id, :kind, :identifier, :path, :status, :outcome, :error, :bytes, :duration_ms)
	`, rec)
	if err != nil {
		return fmt.Errorf("recording request: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	rec.ID = id
	return nil
}

func (r *sqliteRequestRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM requests")
	return count, err
}

func (r *sqliteRequestRepository) CountByOutcome(ctx context.Context, outcome model.Outcome) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM requests WHERE outcome = ?", outcome)
	return count, err
}

// Recent returns up to limit records, newest first.
func (r *sqliteRequestRepository) Recent(ctx context.Context, limit int) ([]model.RequestRecord, error) {
	var records []model.RequestRecord
	err := r.db.SelectContext(ctx, &records,
		"SELECT * FROM requests ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("listing recent requests: %w", err)
	}
	return records, nil
}
