package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"scoutout/internal/property"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS predictions (
	id UUID PRIMARY KEY,
	avg_area_income DOUBLE PRECISION NOT NULL,
	avg_area_house_age DOUBLE PRECISION NOT NULL,
	avg_area_number_of_rooms DOUBLE PRECISION NOT NULL,
	avg_area_number_of_bedrooms DOUBLE PRECISION NOT NULL,
	area_population DOUBLE PRECISION NOT NULL,
	predicted_price DOUBLE PRECISION NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	investment_score DOUBLE PRECISION NOT NULL,
	appreciation_potential DOUBLE PRECISION NOT NULL,
	risk_score DOUBLE PRECISION NOT NULL,
	address TEXT NOT NULL DEFAULT '',
	batch_job_id TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS price_projections (
	id BIGSERIAL PRIMARY KEY,
	prediction_id UUID NOT NULL REFERENCES predictions(id) ON DELETE CASCADE,
	year INTEGER NOT NULL,
	projected_price DOUBLE PRECISION NOT NULL,
	confidence_level DOUBLE PRECISION NOT NULL,
	market_factors JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (prediction_id, year)
);

CREATE TABLE IF NOT EXISTS batch_jobs (
	id UUID PRIMARY KEY,
	file_name TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'processing',
	total_records INTEGER NOT NULL DEFAULT 0,
	processed_records INTEGER NOT NULL DEFAULT 0,
	error TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS predictions_created_at_idx ON predictions (created_at DESC);
CREATE INDEX IF NOT EXISTS batch_jobs_created_at_idx ON batch_jobs (created_at DESC);
`

const predictionColumns = `id, avg_area_income, avg_area_house_age, avg_area_number_of_rooms,
	avg_area_number_of_bedrooms, area_population, predicted_price, confidence, investment_score,
	appreciation_potential, risk_score, address, batch_job_id, created_at`

const batchJobColumns = `id, file_name, status, total_records, processed_records, error, created_at, completed_at`

// PostgresStore keeps prediction history in PostgreSQL.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore connects to dsn and creates the schema if needed.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromDB wraps an existing connection without touching the schema.
func NewPostgresStoreFromDB(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) CreatePrediction(ctx context.Context, p *PredictionRecord) error {
	assignID(&p.ID, &p.CreatedAt)
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO predictions (`+predictionColumns+`)
		VALUES (:id, :avg_area_income, :avg_area_house_age, :avg_area_number_of_rooms,
			:avg_area_number_of_bedrooms, :area_population, :predicted_price, :confidence, :investment_score,
			:appreciation_potential, :risk_score, :address, :batch_job_id, :created_at)
	`, p)
	if err != nil {
		return fmt.Errorf("insert prediction: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPrediction(ctx context.Context, id string) (*PredictionRecord, error) {
	var p PredictionRecord
	err := s.db.GetContext(ctx, &p, `SELECT `+predictionColumns+` FROM predictions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("prediction %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStore) ListPredictions(ctx context.Context, limit int) ([]PredictionRecord, error) {
	query := `SELECT ` + predictionColumns + ` FROM predictions ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	var out []PredictionRecord
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) SaveProjections(ctx context.Context, predictionID string, points []property.ProjectionPoint) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, p := range points {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO price_projections (prediction_id, year, projected_price, confidence_level, market_factors)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (prediction_id, year) DO UPDATE
			SET projected_price = EXCLUDED.projected_price,
				confidence_level = EXCLUDED.confidence_level,
				market_factors = EXCLUDED.market_factors
		`, predictionID, p.Year, p.ProjectedPrice, p.ConfidenceLevel, MarketFactors(p.MarketFactors))
		if err != nil {
			return fmt.Errorf("insert projection %d: %w", p.Year, err)
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) GetProjections(ctx context.Context, predictionID string) ([]property.ProjectionPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT year, projected_price, confidence_level, market_factors
		FROM price_projections
		WHERE prediction_id = $1
		ORDER BY year
	`, predictionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	points := []property.ProjectionPoint{}
	for rows.Next() {
		var p property.ProjectionPoint
		var factors MarketFactors
		if err := rows.Scan(&p.Year, &p.ProjectedPrice, &p.ConfidenceLevel, &factors); err != nil {
			return nil, err
		}
		p.MarketFactors = factors
		points = append(points, p)
	}
	return points, rows.Err()
}

func (s *PostgresStore) CreateBatchJob(ctx context.Context, job *BatchJob) error {
	assignID(&job.ID, &job.CreatedAt)
	if job.Status == "" {
		job.Status = JobProcessing
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO batch_jobs (`+batchJobColumns+`)
		VALUES (:id, :file_name, :status, :total_records, :processed_records, :error, :created_at, :completed_at)
	`, job)
	if err != nil {
		return fmt.Errorf("insert batch job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetBatchJob(ctx context.Context, id string) (*BatchJob, error) {
	var job BatchJob
	err := s.db.GetContext(ctx, &job, `SELECT `+batchJobColumns+` FROM batch_jobs WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("batch job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *PostgresStore) UpdateBatchJob(ctx context.Context, job *BatchJob) error {
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE batch_jobs
		SET status = :status, total_records = :total_records, processed_records = :processed_records,
			error = :error, completed_at = :completed_at
		WHERE id = :id
	`, job)
	if err != nil {
		return fmt.Errorf("update batch job: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("batch job %s: %w", job.ID, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) ListBatchJobs(ctx context.Context, limit int) ([]BatchJob, error) {
	query := `SELECT ` + batchJobColumns + ` FROM batch_jobs ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	var out []BatchJob
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, err
	}
	return out, nil
}
