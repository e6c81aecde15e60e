package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"ghstats/models"
)

// PostgresStore keeps repo stats and run-info documents as JSONB rows.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS repo_stats (
			id TEXT PRIMARY KEY,
			repo TEXT NOT NULL,
			doc JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS run_info (
			id BIGINT NOT NULL,
			date TEXT NOT NULL,
			doc JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (id, date)
		);

		CREATE INDEX IF NOT EXISTS idx_repo_stats_repo ON repo_stats(repo, created_at);`)
	return err
}

// =============================================================================
// Repo Stats
// =============================================================================

func (s *PostgresStore) CreateRepoStat(ctx context.Context, record *models.RepoStatRecord) (string, error) {
	doc, err := json.Marshal(record)
	if err != nil {
		return "", err
	}

	var repo string
	err = s.pool.QueryRow(ctx, `
		INSERT INTO repo_stats (id, repo, doc) VALUES ($1, $2, $3)
		RETURNING doc->>'repo'`,
		record.ID, record.Repo, doc,
	).Scan(&repo)
	if isUniqueViolation(err) {
		return "", fmt.Errorf("repo stat %s: %w", record.ID, ErrConflict)
	}
	if err != nil {
		return "", fmt.Errorf("insert repo stat %s: %w", record.ID, err)
	}
	return repo, nil
}

// =============================================================================
// Run Info
// =============================================================================

func (s *PostgresStore) CreateRunRecord(ctx context.Context, run *models.RunRecord) (*models.RunRecord, error) {
	doc, err := json.Marshal(run)
	if err != nil {
		return nil, err
	}

	var stored []byte
	err = s.pool.QueryRow(ctx, `
		INSERT INTO run_info (id, date, doc) VALUES ($1, $2, $3)
		RETURNING doc`,
		run.ID, run.Date, doc,
	).Scan(&stored)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("run %d: %w", run.ID, ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("insert run %d: %w", run.ID, err)
	}
	return decodeRun(stored)
}

func (s *PostgresStore) GetRunRecord(ctx context.Context, id int64, date string) (*models.RunRecord, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT doc FROM run_info WHERE id = $1 AND date = $2`, id, date).Scan(&doc)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeRun(doc)
}

func (s *PostgresStore) ReplaceRunRecord(ctx context.Context, run *models.RunRecord) error {
	doc, err := json.Marshal(run)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE run_info SET doc = $3, updated_at = NOW()
		WHERE id = $1 AND date = $2`,
		run.ID, run.Date, doc)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %d/%s: %w", run.ID, run.Date, ErrNotFound)
	}
	return nil
}

func decodeRun(doc []byte) (*models.RunRecord, error) {
	var run models.RunRecord
	if err := json.Unmarshal(doc, &run); err != nil {
		return nil, fmt.Errorf("decode run: %w", err)
	}
	return &run, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
