// Package docstore keeps named snapshots of the block document in a SQLite
// database inside the workspace.
package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/alantheprice/sitebuilder/pkg/blocks"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// DefaultPath is the database location relative to the workspace root.
const DefaultPath = ".sitebuilder/documents.db"

var (
	ErrNotFound    = errors.New("document not found")
	ErrInvalidName = errors.New("invalid document name")
)

var validName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	name        TEXT PRIMARY KEY,
	body        TEXT NOT NULL,
	block_count INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL
)`

// Summary describes a stored document without its body.
type Summary struct {
	Name      string    `json:"name"`
	Blocks    int       `json:"blocks"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is a handle on the snapshot database.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// OpenWorkspace opens the database at root/DefaultPath.
func OpenWorkspace(root string, logger *zap.Logger) (*Store, error) {
	return Open(filepath.Join(root, filepath.FromSlash(DefaultPath)), logger)
}

// Open opens or creates the database at path.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open document database: %w", err)
	}
	// One writer at a time; SQLite serialises anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialise document database: %w", err)
	}

	logger.Debug("document store opened", zap.String("path", path))
	return &Store{db: db, logger: logger, now: time.Now}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores forest under name, replacing any previous snapshot.
func (s *Store) Save(ctx context.Context, name string, forest []blocks.Block) error {
	if !validName.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if forest == nil {
		forest = []blocks.Block{}
	}
	body, err := json.Marshal(forest)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	count := 0
	blocks.Walk(forest, func(blocks.Block) bool { count++; return true })

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (name, body, block_count, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET body = excluded.body, block_count = excluded.block_count, updated_at = excluded.updated_at`,
		name, string(body), count, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save document %s: %w", name, err)
	}

	s.logger.Info("document saved", zap.String("name", name), zap.Int("blocks", count))
	return nil
}

// Load returns the forest stored under name.
func (s *Store) Load(ctx context.Context, name string) ([]blocks.Block, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM documents WHERE name = ?`, name).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document %s: %w", name, err)
	}

	var forest []blocks.Block
	if err := json.Unmarshal([]byte(body), &forest); err != nil {
		return nil, fmt.Errorf("document %s is corrupt: %w", name, err)
	}
	return forest, nil
}

// List returns every stored document, most recently saved first.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, block_count, updated_at FROM documents ORDER BY updated_at DESC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	summaries := []Summary{}
	for rows.Next() {
		var sum Summary
		var updated int64
		if err := rows.Scan(&sum.Name, &sum.Blocks, &updated); err != nil {
			return nil, fmt.Errorf("failed to read document row: %w", err)
		}
		sum.UpdatedAt = time.UnixMilli(updated).UTC()
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// Delete removes the snapshot stored under name.
func (s *Store) Delete(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete document %s: %w", name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return nil
}
