// internal/storage/gallery_store.go
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/senushidinara/DreamStruct/internal/models"
)

// GalleryFileName is the archive database inside the data directory.
const GalleryFileName = "gallery.db"

const gallerySchema = `
CREATE TABLE IF NOT EXISTS gallery (
	id          TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL,
	theme       TEXT NOT NULL,
	prompt      TEXT NOT NULL,
	name        TEXT NOT NULL,
	description TEXT NOT NULL,
	structure   TEXT NOT NULL,
	analysis    TEXT,
	created_at  TEXT NOT NULL,
	analyzed_at TEXT
);
CREATE INDEX IF NOT EXISTS gallery_created_at ON gallery (created_at DESC);
`

// GalleryStore archives every successful design in SQLite.
type GalleryStore struct {
	db *sql.DB
}

// OpenGallery opens or creates the archive at dataDir/gallery.db.
func OpenGallery(dataDir string) (*GalleryStore, error) {
	return OpenGalleryAt(filepath.Join(dataDir, GalleryFileName))
}

// OpenGalleryAt opens or creates the archive at path.
func OpenGalleryAt(path string) (*GalleryStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open gallery: %w", err)
	}
	// one writer at a time keeps sqlite free of SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(gallerySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create gallery schema: %w", err)
	}
	return &GalleryStore{db: db}, nil
}

// Close releases the database.
func (g *GalleryStore) Close() error {
	return g.db.Close()
}

// Save inserts a new entry.
func (g *GalleryStore) Save(ctx context.Context, e models.GalleryEntry) error {
	structure, err := json.Marshal(e.Design.Structure)
	if err != nil {
		return fmt.Errorf("encode structure: %w", err)
	}

	var analysis, analyzedAt sql.NullString
	if e.Analysis != nil {
		raw, err := json.Marshal(e.Analysis)
		if err != nil {
			return fmt.Errorf("encode analysis: %w", err)
		}
		analysis = sql.NullString{String: string(raw), Valid: true}
	}
	if e.AnalyzedAt != nil {
		analyzedAt = sql.NullString{String: formatTime(*e.AnalyzedAt), Valid: true}
	}

	_, err = g.db.ExecContext(ctx,
		`INSERT INTO gallery (id, session_id, theme, prompt, name, description, structure, analysis, created_at, analyzed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SessionID, string(e.Theme), e.Prompt, e.Design.Name, e.Design.Description,
		string(structure), analysis, formatTime(e.CreatedAt), analyzedAt,
	)
	if err != nil {
		return fmt.Errorf("insert gallery entry: %w", err)
	}
	return nil
}

// UpdateAnalysis attaches an analysis to an existing entry.
func (g *GalleryStore) UpdateAnalysis(ctx context.Context, id string, a models.AnalysisResult, at time.Time) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode analysis: %w", err)
	}

	res, err := g.db.ExecContext(ctx,
		`UPDATE gallery SET analysis = ?, analyzed_at = ? WHERE id = ?`,
		string(raw), formatTime(at), id,
	)
	if err != nil {
		return fmt.Errorf("update gallery entry: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("gallery entry %s: %w", id, ErrNotFound)
	}
	return nil
}

// Get returns one entry.
func (g *GalleryStore) Get(ctx context.Context, id string) (models.GalleryEntry, error) {
	row := g.db.QueryRowContext(ctx,
		`SELECT id, session_id, theme, prompt, name, description, structure, analysis, created_at, analyzed_at
		 FROM gallery WHERE id = ?`, id)

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.GalleryEntry{}, fmt.Errorf("gallery entry %s: %w", id, ErrNotFound)
	}
	return e, err
}

// Page sizes for List.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// List returns up to limit entries, newest first. limit is clamped to
// [1, MaxListLimit]; non-positive means DefaultListLimit.
func (g *GalleryStore) List(ctx context.Context, limit int) ([]models.GalleryEntry, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	limit = min(limit, MaxListLimit)

	rows, err := g.db.QueryContext(ctx,
		`SELECT id, session_id, theme, prompt, name, description, structure, analysis, created_at, analyzed_at
		 FROM gallery ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query gallery: %w", err)
	}
	defer rows.Close()

	entries := []models.GalleryEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (models.GalleryEntry, error) {
	var (
		e                    models.GalleryEntry
		theme, structure     string
		createdAt            string
		analysis, analyzedAt sql.NullString
	)

	err := s.Scan(&e.ID, &e.SessionID, &theme, &e.Prompt, &e.Design.Name, &e.Design.Description,
		&structure, &analysis, &createdAt, &analyzedAt)
	if err != nil {
		return models.GalleryEntry{}, err
	}

	e.Theme = models.Theme(theme)
	if err := json.Unmarshal([]byte(structure), &e.Design.Structure); err != nil {
		return models.GalleryEntry{}, fmt.Errorf("decode structure of %s: %w", e.ID, err)
	}
	if analysis.Valid {
		var a models.AnalysisResult
		if err := json.Unmarshal([]byte(analysis.String), &a); err != nil {
			return models.GalleryEntry{}, fmt.Errorf("decode analysis of %s: %w", e.ID, err)
		}
		e.Analysis = &a
	}
	if e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return models.GalleryEntry{}, fmt.Errorf("decode created_at of %s: %w", e.ID, err)
	}
	if analyzedAt.Valid {
		at, err := time.Parse(time.RFC3339Nano, analyzedAt.String)
		if err != nil {
			return models.GalleryEntry{}, fmt.Errorf("decode analyzed_at of %s: %w", e.ID, err)
		}
		e.AnalyzedAt = &at
	}
	return e, nil
}

// formatTime uses a fixed-width UTC layout so text order matches time order.
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
}
