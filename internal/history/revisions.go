// Package history keeps a revision log of saved workspace documents in an
// embedded DuckDB database, so editors can list and restore earlier saves.
package history

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/marcboeker/go-duckdb"
)

// Revision is one saved state of a workspace.
type Revision struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"sessionId"`
	Name       string    `json:"name"`
	SavedAt    time.Time `json:"savedAt"`
	BlockCount int       `json:"blockCount"`
	Document   []byte    `json:"-"`
}

// RevisionStore appends and queries workspace revisions.
type RevisionStore struct {
	db     *sql.DB
	dbPath string
}

// NewRevisionStore opens (or creates) the revision database under dir.
func NewRevisionStore(dir string) (*RevisionStore, error) {
	dbPath := filepath.Join(dir, "revisions.duckdb")
	fmt.Printf("[History] Opening revision database at: %s\n", dbPath)

	connector, err := duckdb.NewConnector(dbPath, func(execer driver.ExecerContext) error {
		pragmas := []string{
			"PRAGMA memory_limit='256MB'",
			"PRAGMA threads=2",
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("creating DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS revisions (
			id          VARCHAR PRIMARY KEY,
			session_id  VARCHAR NOT NULL,
			name        VARCHAR NOT NULL,
			saved_at    BIGINT NOT NULL,
			block_count INTEGER NOT NULL,
			document    VARCHAR NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating revisions table: %w", err)
	}

	return &RevisionStore{db: db, dbPath: dbPath}, nil
}

// Append records a new revision and returns it with its assigned id.
func (s *RevisionStore) Append(sessionID, name string, blockCount int, document []byte) (*Revision, error) {
	rev := &Revision{
		ID:         uuid.New().String(),
		SessionID:  sessionID,
		Name:       name,
		SavedAt:    time.Now(),
		BlockCount: blockCount,
		Document:   document,
	}
	_, err := s.db.Exec(
		`INSERT INTO revisions (id, session_id, name, saved_at, block_count, document) VALUES (?, ?, ?, ?, ?, ?)`,
		rev.ID, rev.SessionID, rev.Name, rev.SavedAt.UnixMilli(), rev.BlockCount, string(rev.Document),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting revision: %w", err)
	}
	return rev, nil
}

// Recent lists the newest revisions for a session, without payloads.
func (s *RevisionStore) Recent(sessionID string, limit int) ([]*Revision, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT id, session_id, name, saved_at, block_count
		 FROM revisions WHERE session_id = ? ORDER BY saved_at DESC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying revisions: %w", err)
	}
	defer rows.Close()

	var out []*Revision
	for rows.Next() {
		var rev Revision
		var savedAt int64
		if err := rows.Scan(&rev.ID, &rev.SessionID, &rev.Name, &savedAt, &rev.BlockCount); err != nil {
			return nil, fmt.Errorf("scanning revision: %w", err)
		}
		rev.SavedAt = time.UnixMilli(savedAt)
		out = append(out, &rev)
	}
	return out, rows.Err()
}

// Get returns a full revision, payload included.
func (s *RevisionStore) Get(id string) (*Revision, error) {
	row := s.db.QueryRow(
		`SELECT id, session_id, name, saved_at, block_count, document FROM revisions WHERE id = ?`, id,
	)
	var rev Revision
	var savedAt int64
	var document string
	if err := row.Scan(&rev.ID, &rev.SessionID, &rev.Name, &savedAt, &rev.BlockCount, &document); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("revision not found: %s", id)
		}
		return nil, fmt.Errorf("loading revision: %w", err)
	}
	rev.SavedAt = time.UnixMilli(savedAt)
	rev.Document = []byte(document)
	return &rev, nil
}

// Count returns the total number of stored revisions.
func (s *RevisionStore) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM revisions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting revisions: %w", err)
	}
	return n, nil
}

// Close releases the database.
func (s *RevisionStore) Close() error {
	return s.db.Close()
}
