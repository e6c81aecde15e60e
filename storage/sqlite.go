package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"ghstats/models"
)

var (
	// ErrNotFound is returned when a replace targets a document that does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrConflict marks a create whose id is already stored.
	ErrConflict = errors.New("document already exists")
)

// SQLiteStore is the local document store and the operational journal: runs,
// run logs and the command queue.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	store, err := NewSQLiteStoreWithDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLiteStoreWithDB wraps an open handle and applies the schema.
func NewSQLiteStoreWithDB(db *sql.DB) (*SQLiteStore, error) {
	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS repo_stats (
		id TEXT PRIMARY KEY,
		repo TEXT NOT NULL,
		data JSON NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS run_info (
		id INTEGER NOT NULL,
		date TEXT NOT NULL,
		data JSON NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (id, date)
	);

	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY,
		date TEXT,
		started_at DATETIME,
		finished_at DATETIME,
		status TEXT,
		received INTEGER DEFAULT 0,
		created INTEGER DEFAULT 0,
		failed INTEGER DEFAULT 0,
		error TEXT DEFAULT '',
		report JSON,
		archived BOOLEAN DEFAULT FALSE
	);

	CREATE TABLE IF NOT EXISTS run_logs (
		id INTEGER PRIMARY KEY,
		run_id INTEGER,
		timestamp DATETIME,
		level TEXT,
		message TEXT
	);

	CREATE TABLE IF NOT EXISTS commands (
		id INTEGER PRIMARY KEY,
		command TEXT,
		params JSON,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		processed_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_commands_pending ON commands(processed_at) WHERE processed_at IS NULL;
	CREATE INDEX IF NOT EXISTS idx_logs_run ON run_logs(run_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_runs_archive ON runs(archived, status);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// Documents
// =============================================================================

func (s *SQLiteStore) CreateRepoStat(ctx context.Context, record *models.RepoStatRecord) (string, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return "", err
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO repo_stats (id, repo, data) VALUES (?, ?, ?)`,
		record.ID, record.Repo, string(data))
	if isConstraintViolation(err) {
		return "", fmt.Errorf("repo stat %s: %w", record.ID, ErrConflict)
	}
	if err != nil {
		return "", fmt.Errorf("insert repo stat %s: %w", record.ID, err)
	}
	return record.Repo, nil
}

func (s *SQLiteStore) CreateRunRecord(ctx context.Context, run *models.RunRecord) (*models.RunRecord, error) {
	data, err := json.Marshal(run)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO run_info (id, date, data) VALUES (?, ?, ?)`,
		run.ID, run.Date, string(data))
	if isConstraintViolation(err) {
		return nil, fmt.Errorf("run %d: %w", run.ID, ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("insert run %d: %w", run.ID, err)
	}

	stored := *run
	return &stored, nil
}

func (s *SQLiteStore) GetRunRecord(ctx context.Context, id int64, date string) (*models.RunRecord, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM run_info WHERE id = ? AND date = ?`, id, date).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var run models.RunRecord
	if err := json.Unmarshal([]byte(data), &run); err != nil {
		return nil, fmt.Errorf("decode run %d: %w", id, err)
	}
	return &run, nil
}

func (s *SQLiteStore) ReplaceRunRecord(ctx context.Context, run *models.RunRecord) error {
	data, err := json.Marshal(run)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE run_info SET data = ?, updated_at = ? WHERE id = ? AND date = ?`,
		string(data), time.Now(), run.ID, run.Date)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run %d/%s: %w", run.ID, run.Date, ErrNotFound)
	}
	return nil
}

func isConstraintViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

// =============================================================================
// Journal
// =============================================================================

func (s *SQLiteStore) StartRun(run *models.JournalRun) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO runs (id, date, started_at, status, received, created, failed, error, archived)
		VALUES (?, ?, ?, ?, 0, 0, 0, '', FALSE)`,
		run.ID, run.Date, run.StartedAt, run.Status)
	return err
}

func (s *SQLiteStore) FinishRun(run *models.JournalRun) error {
	_, err := s.db.Exec(`
		UPDATE runs SET finished_at = ?, status = ?, received = ?, created = ?, failed = ?,
			error = ?, report = ?
		WHERE id = ?`,
		run.FinishedAt, run.Status, run.Received, run.Created, run.Failed, run.Error, string(run.Report), run.ID)
	return err
}

func (s *SQLiteStore) Log(runID *int64, level models.LogLevel, message string) error {
	_, err := s.db.Exec(`
		INSERT INTO run_logs (run_id, timestamp, level, message)
		VALUES (?, ?, ?, ?)`,
		runID, time.Now(), level, message)
	return err
}

func (s *SQLiteStore) GetRun(id int64) (*models.JournalRun, error) {
	row := s.db.QueryRow(`
		SELECT id, date, started_at, finished_at, status, received, created, failed, error, report, archived
		FROM runs WHERE id = ?`, id)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

// GetUnarchivedRuns returns finished runs whose report has not been archived, oldest first.
func (s *SQLiteStore) GetUnarchivedRuns(limit int) ([]models.JournalRun, error) {
	rows, err := s.db.Query(`
		SELECT id, date, started_at, finished_at, status, received, created, failed, error, report, archived
		FROM runs
		WHERE archived = FALSE AND status != ? AND finished_at IS NOT NULL
		ORDER BY started_at LIMIT ?`, models.RunStatusRunning, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []models.JournalRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) MarkRunArchived(id int64) error {
	_, err := s.db.Exec(`UPDATE runs SET archived = TRUE WHERE id = ?`, id)
	return err
}

func (s *SQLiteStore) GetRunLogs(runID int64) ([]models.RunLog, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, timestamp, level, message
		FROM run_logs WHERE run_id = ? ORDER BY timestamp, id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.RunLog
	for rows.Next() {
		var l models.RunLog
		if err := rows.Scan(&l.ID, &l.RunID, &l.Timestamp, &l.Level, &l.Message); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*models.JournalRun, error) {
	var (
		run    models.JournalRun
		report sql.NullString
	)
	err := row.Scan(&run.ID, &run.Date, &run.StartedAt, &run.FinishedAt, &run.Status,
		&run.Received, &run.Created, &run.Failed, &run.Error, &report, &run.Archived)
	if err != nil {
		return nil, err
	}
	if report.Valid {
		run.Report = []byte(report.String)
	}
	return &run, nil
}

// =============================================================================
// Commands
// =============================================================================

func (s *SQLiteStore) CreateCommand(cmd models.CommandType, params json.RawMessage) (int64, error) {
	var p any
	if len(params) > 0 {
		p = string(params)
	}
	result, err := s.db.Exec(`INSERT INTO commands (command, params) VALUES (?, ?)`, cmd, p)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *SQLiteStore) GetPendingCommands() ([]models.Command, error) {
	rows, err := s.db.Query(`
		SELECT id, command, params, created_at, processed_at
		FROM commands WHERE processed_at IS NULL ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cmds []models.Command
	for rows.Next() {
		var cmd models.Command
		var params sql.NullString
		if err := rows.Scan(&cmd.ID, &cmd.Command, &params, &cmd.CreatedAt, &cmd.ProcessedAt); err != nil {
			return nil, err
		}
		if params.Valid {
			cmd.Params = json.RawMessage(params.String)
		}
		cmds = append(cmds, cmd)
	}
	return cmds, rows.Err()
}

func (s *SQLiteStore) MarkCommandProcessed(id int64) error {
	_, err := s.db.Exec(`UPDATE commands SET processed_at = ? WHERE id = ?`, time.Now(), id)
	return err
}
