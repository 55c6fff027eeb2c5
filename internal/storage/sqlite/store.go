// Package sqlite persists post-call feedback. It is the concrete sink
// behind the call core's fire-and-forget feedback hand-off.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/medline/teleconsult/internal/domain"
)

// Store wraps a SQLite database holding feedback rows.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database under dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, "feedback.db"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL mode for concurrent readers while the relay keeps writing.
	if _, err := db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS feedback (
			id             TEXT PRIMARY KEY,
			appointment_id TEXT NOT NULL,
			author_id      TEXT NOT NULL,
			rating         INTEGER NOT NULL,
			comment        TEXT DEFAULT '',
			created_at     DATETIME NOT NULL
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create feedback table: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// SaveFeedback implements app.FeedbackSink.
func (s *Store) SaveFeedback(ctx context.Context, fb domain.Feedback) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feedback (id, appointment_id, author_id, rating, comment, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(),
		string(fb.Appointment),
		string(fb.Author),
		fb.Rating,
		fb.Comment,
		fb.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}
	return nil
}

// Recent returns up to limit feedback entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]domain.Feedback, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT appointment_id, author_id, rating, comment, created_at
		FROM feedback ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query feedback: %w", err)
	}
	defer rows.Close()

	var out []domain.Feedback
	for rows.Next() {
		var fb domain.Feedback
		if err := rows.Scan(&fb.Appointment, &fb.Author, &fb.Rating, &fb.Comment, &fb.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan feedback: %w", err)
		}
		out = append(out, fb)
	}
	return out, rows.Err()
}
