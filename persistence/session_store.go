// Package persistence stores conversation sessions between runs. Named
// snapshots live in a SQLite database under the workspace; transcripts are
// plain JSON files for sharing and inspection.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/lexcodex/aicode/framework"
)

// ErrNotFound reports that no session with the requested name exists.
var ErrNotFound = errors.New("session not found")

// SessionSnapshot is the persisted form of a conversation: the full message
// sequence plus the endpoint and model it was running against.
type SessionSnapshot struct {
	Name     string              `json:"name"`
	Endpoint string              `json:"endpoint"`
	Model    string              `json:"model"`
	Turns    int                 `json:"turns"`
	SavedAt  time.Time           `json:"saved_at"`
	Messages []framework.Message `json:"messages"`
}

// SessionInfo summarizes a stored session for listings.
type SessionInfo struct {
	Name     string    `json:"name"`
	Model    string    `json:"model"`
	Turns    int       `json:"turns"`
	Messages int       `json:"messages"`
	SavedAt  time.Time `json:"saved_at"`
}

// SessionStore persists snapshots between runs.
type SessionStore interface {
	Save(ctx context.Context, snapshot *SessionSnapshot) error
	Load(ctx context.Context, name string) (*SessionSnapshot, error)
	List(ctx context.Context) ([]SessionInfo, error)
	Delete(ctx context.Context, name string) error
	Close() error
}

// SQLiteSessionStore keeps sessions in a single database file, one row per
// session and one row per message.
type SQLiteSessionStore struct {
	db *sql.DB
}

// NewSQLiteSessionStore opens/creates the database at dbPath, making parent
// directories as needed.
func NewSQLiteSessionStore(dbPath string) (*SQLiteSessionStore, error) {
	if dbPath == "" {
		return nil, errors.New("session store path required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, err
	}
	store := &SQLiteSessionStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteSessionStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		name TEXT PRIMARY KEY,
		endpoint TEXT NOT NULL,
		model TEXT NOT NULL,
		turns INTEGER NOT NULL DEFAULT 0,
		saved_at TIMESTAMP NOT NULL
	);
	CREATE TABLE IF NOT EXISTS messages (
		session_name TEXT NOT NULL,
		seq INTEGER NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		tool TEXT NOT NULL DEFAULT '',
		images TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP,
		PRIMARY KEY (session_name, seq),
		FOREIGN KEY (session_name) REFERENCES sessions(name) ON DELETE CASCADE
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close releases the underlying database handle.
func (s *SQLiteSessionStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save upserts the snapshot under its name, replacing any previously stored
// message sequence in one transaction.
func (s *SQLiteSessionStore) Save(ctx context.Context, snapshot *SessionSnapshot) error {
	if snapshot == nil {
		return errors.New("nil snapshot")
	}
	if snapshot.Name == "" {
		return errors.New("session name required")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	snapshot.SavedAt = time.Now().UTC()
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	if err := saveSnapshot(tx, snapshot); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func saveSnapshot(tx *sql.Tx, snapshot *SessionSnapshot) error {
	if _, err := tx.Exec(`INSERT INTO sessions (name, endpoint, model, turns, saved_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			endpoint=excluded.endpoint,
			model=excluded.model,
			turns=excluded.turns,
			saved_at=excluded.saved_at`,
		snapshot.Name, snapshot.Endpoint, snapshot.Model, snapshot.Turns, snapshot.SavedAt,
	); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM messages WHERE session_name = ?`, snapshot.Name); err != nil {
		return err
	}
	if len(snapshot.Messages) == 0 {
		return nil
	}
	stmt, err := tx.Prepare(`INSERT INTO messages (session_name, seq, role, content, tool, images, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, msg := range snapshot.Messages {
		var imagesJSON string
		if len(msg.Images) > 0 {
			raw, err := json.Marshal(msg.Images)
			if err != nil {
				return err
			}
			imagesJSON = string(raw)
		}
		if _, err := stmt.Exec(snapshot.Name, i, string(msg.Role), msg.Content, msg.Tool, imagesJSON, msg.Timestamp); err != nil {
			return err
		}
	}
	return nil
}

// Load retrieves a snapshot by name, including its full message sequence.
func (s *SQLiteSessionStore) Load(ctx context.Context, name string) (*SessionSnapshot, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	snapshot := &SessionSnapshot{Name: name}
	row := s.db.QueryRow(`SELECT endpoint, model, turns, saved_at FROM sessions WHERE name = ?`, name)
	if err := row.Scan(&snapshot.Endpoint, &snapshot.Model, &snapshot.Turns, &snapshot.SavedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session %q: %w", name, ErrNotFound)
		}
		return nil, err
	}
	rows, err := s.db.Query(`SELECT role, content, tool, images, created_at FROM messages
		WHERE session_name = ? ORDER BY seq`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	messages, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	snapshot.Messages = messages
	return snapshot, nil
}

func scanMessages(rows *sql.Rows) ([]framework.Message, error) {
	var messages []framework.Message
	for rows.Next() {
		var msg framework.Message
		var role, imagesJSON string
		if err := rows.Scan(&role, &msg.Content, &msg.Tool, &imagesJSON, &msg.Timestamp); err != nil {
			return nil, err
		}
		msg.Role = framework.Role(role)
		if imagesJSON != "" {
			if err := json.Unmarshal([]byte(imagesJSON), &msg.Images); err != nil {
				return nil, err
			}
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// List returns summaries for every stored session, most recently saved first.
func (s *SQLiteSessionStore) List(ctx context.Context) ([]SessionInfo, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	rows, err := s.db.Query(`SELECT s.name, s.model, s.turns, s.saved_at, COUNT(m.seq)
		FROM sessions s
		LEFT JOIN messages m ON m.session_name = s.name
		GROUP BY s.name
		ORDER BY s.saved_at DESC, s.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := make([]SessionInfo, 0)
	for rows.Next() {
		var info SessionInfo
		if err := rows.Scan(&info.Name, &info.Model, &info.Turns, &info.SavedAt, &info.Messages); err != nil {
			return nil, err
		}
		result = append(result, info)
	}
	return result, rows.Err()
}

// Delete removes a session and its messages.
func (s *SQLiteSessionStore) Delete(ctx context.Context, name string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	res, err := s.db.Exec(`DELETE FROM sessions WHERE name = ?`, name)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("session %q: %w", name, ErrNotFound)
	}
	return nil
}
