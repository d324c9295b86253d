// Package runlog persists run history in SQLite so operators can answer
// "when did the mirror last rebuild, with which seed, and what failed" after
// the process is gone.
package runlog

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"git.home.luguber.info/inful/sitemirage/internal/corpus"
)

// Run is one recorded pipeline run.
type Run struct {
	ID            string
	Started       time.Time
	Finished      time.Time
	Seed          uint64
	Files         int
	Words         int
	WordsMutated  int
	ImageRefs     int
	ImagesTotal   int
	ImagesPlanned int
	Failed        int
	Complete      bool
}

// FileRecord is one file outcome within a run. Only non-copied outcomes are
// stored; a clean run over a large tree should not bloat the database with
// one row per asset.
type FileRecord struct {
	RunID   string
	Path    string
	Kind    string
	Outcome string
	Words   int
	Mutated int
	Error   string
}

// Store implements run history on SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewStore opens (and if needed creates) the run history database.
// Use ":memory:" for an in-memory database, or a file path for persistence.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	store := &Store{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return store, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		started INTEGER NOT NULL,
		finished INTEGER NOT NULL,
		seed TEXT NOT NULL,
		files INTEGER NOT NULL,
		words INTEGER NOT NULL,
		words_mutated INTEGER NOT NULL,
		image_refs INTEGER NOT NULL,
		images_total INTEGER NOT NULL,
		images_planned INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		complete INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS run_files (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		path TEXT NOT NULL,
		kind TEXT NOT NULL,
		outcome TEXT NOT NULL,
		words INTEGER NOT NULL,
		mutated INTEGER NOT NULL,
		error TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started);
	CREATE INDEX IF NOT EXISTS idx_run_files_run_id ON run_files(run_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record stores a completed run and its noteworthy file outcomes, returning
// the generated run ID.
func (s *Store) Record(ctx context.Context, started time.Time, report *corpus.Report) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	runID := uuid.New().String()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Seeds are stored as decimal strings; SQLite INTEGER is signed 64-bit
	// and would mangle seeds above 1<<63.
	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, started, finished, seed, files, words, words_mutated,
			image_refs, images_total, images_planned, failed, complete)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, started.Unix(), time.Now().Unix(), fmt.Sprintf("%d", report.Seed),
		report.Files, report.Words, report.WordsMutated, report.ImageRefs,
		report.ImagesTotal, report.ImagesPlanned, report.Failed, boolInt(report.Complete()))
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	for _, res := range report.Results {
		if res.Outcome == corpus.OutcomeCopied {
			continue
		}
		errText := ""
		if res.Err != nil {
			errText = res.Err.Error()
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO run_files (run_id, path, kind, outcome, words, mutated, error)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			runID, res.Path, res.Kind.String(), string(res.Outcome),
			res.Stats.Words, res.Stats.Mutated, errText)
		if err != nil {
			return "", fmt.Errorf("insert run file: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit run: %w", err)
	}
	return runID, nil
}

// Recent returns the most recent runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, started, finished, seed, files, words, words_mutated,
			image_refs, images_total, images_planned, failed, complete
		 FROM runs ORDER BY started DESC, run_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started, finished int64
		var seed string
		var complete int
		if err := rows.Scan(&r.ID, &started, &finished, &seed, &r.Files, &r.Words,
			&r.WordsMutated, &r.ImageRefs, &r.ImagesTotal, &r.ImagesPlanned,
			&r.Failed, &complete); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Started = time.Unix(started, 0)
		r.Finished = time.Unix(finished, 0)
		if _, err := fmt.Sscanf(seed, "%d", &r.Seed); err != nil {
			return nil, fmt.Errorf("parse seed %q: %w", seed, err)
		}
		r.Complete = complete != 0
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// Files returns the stored file outcomes for one run.
func (s *Store) Files(ctx context.Context, runID string) ([]FileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, path, kind, outcome, words, mutated, error
		 FROM run_files WHERE run_id = ? ORDER BY path`, runID)
	if err != nil {
		return nil, fmt.Errorf("query run files: %w", err)
	}
	defer rows.Close()

	var records []FileRecord
	for rows.Next() {
		var fr FileRecord
		var errText sql.NullString
		if err := rows.Scan(&fr.RunID, &fr.Path, &fr.Kind, &fr.Outcome,
			&fr.Words, &fr.Mutated, &errText); err != nil {
			return nil, fmt.Errorf("scan run file: %w", err)
		}
		fr.Error = errText.String
		records = append(records, fr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run files: %w", err)
	}
	return records, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
