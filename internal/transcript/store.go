// Package transcript keeps a SQLite-backed log of finished
// transcriptions so dictated text survives the process.
package transcript

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/praatlabs/dikteer/internal/config"
	"github.com/praatlabs/dikteer/internal/pipeline"
)

// Entry is one archived transcription outcome.
type Entry struct {
	ID          int64
	SessionID   string
	Model       string
	Language    string
	Text        string
	Err         string
	Artifact    string
	AudioMS     int64
	InferenceMS int64
	CreatedAt   time.Time
}

// Store wraps the transcription log. A disabled store is inert: every
// operation is a no-op.
type Store struct {
	db    *sql.DB
	cfg   config.TranscriptConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the transcript store according to config.
func Open(ctx context.Context, cfg config.TranscriptConfig, log *slog.Logger) (*Store, error) {
	if !cfg.Enabled {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.Prune(ctx); err != nil {
		log.Warn("transcript prune on start failed", slog.String("error", err.Error()))
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS transcriptions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    model TEXT,
    language TEXT,
    text TEXT,
    error TEXT,
    artifact TEXT,
    audio_ms INTEGER,
    inference_ms INTEGER,
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transcriptions_created ON transcriptions(created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Archive writes one finished result into the log.
func (s *Store) Archive(ctx context.Context, r pipeline.Result) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transcriptions(session_id, model, language, text, error, artifact, audio_ms, inference_ms, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.SessionID, r.Model, r.Language, r.Text, r.Err, r.Artifact,
		r.Audio.Milliseconds(), r.Inference.Milliseconds(), s.clock().UTC())
	if err != nil {
		return fmt.Errorf("insert transcription: %w", err)
	}
	return nil
}

// List retrieves up to limit entries, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, model, language, text, error, artifact, audio_ms, inference_ms, created_at
		 FROM transcriptions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var created string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Model, &e.Language, &e.Text, &e.Err, &e.Artifact, &e.AudioMS, &e.InferenceMS, &created); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			e.CreatedAt = ts
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ArtifactPaths returns the distinct artifact paths the log still
// references, for reconciling against the recordings directory.
func (s *Store) ArtifactPaths(ctx context.Context) ([]string, error) {
	if s.db == nil {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT artifact FROM transcriptions WHERE artifact != ''`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// Prune trims the log down to max_rows, dropping the oldest entries.
func (s *Store) Prune(ctx context.Context) error {
	if s.db == nil || s.cfg.MaxRows <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM transcriptions WHERE id NOT IN (
		     SELECT id FROM transcriptions ORDER BY id DESC LIMIT ?
		 )`, s.cfg.MaxRows)
	if err != nil {
		return fmt.Errorf("prune transcriptions: %w", err)
	}
	return nil
}
