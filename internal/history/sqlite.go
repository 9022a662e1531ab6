// Package history persists conversation threads and messages in a local
// SQLite database. It is the concrete Persister the binaries plug into the
// thread controller; the controller itself only sees the interface.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/gosandol/ansimssi/internal/stream"
)

const schema = `
CREATE TABLE IF NOT EXISTS threads (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	id         TEXT PRIMARY KEY,
	thread_id  TEXT NOT NULL REFERENCES threads(id) ON DELETE CASCADE,
	role       TEXT NOT NULL,
	content    TEXT NOT NULL,
	sources    TEXT,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(thread_id, created_at);
`

const titleLimit = 40

type Thread struct {
	ID        string
	Title     string
	CreatedAt time.Time
}

type Message struct {
	ID        string
	ThreadID  string
	Role      string
	Content   string
	Sources   []stream.Source
	CreatedAt time.Time
}

// Store is a SQLite-backed history store. Safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path and applies the schema.
// Use ":memory:" for a throwaway store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	// modernc.org/sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY on concurrent turns.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// CreateThread starts a new thread titled after its first query.
func (s *Store) CreateThread(ctx context.Context, id, title string) (Thread, error) {
	if id == "" {
		id = uuid.NewString()
	}
	th := Thread{ID: id, Title: clipTitle(title), CreatedAt: time.Now().UTC()}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO threads (id, title, created_at) VALUES (?, ?, ?)`,
		th.ID, th.Title, th.CreatedAt)
	if err != nil {
		return Thread{}, fmt.Errorf("history: create thread: %w", err)
	}
	return th, nil
}

// AddMessage appends one message to a thread.
func (s *Store) AddMessage(ctx context.Context, threadID, role, content string, sources []stream.Source) (Message, error) {
	m := Message{
		ID:        uuid.NewString(),
		ThreadID:  threadID,
		Role:      role,
		Content:   content,
		Sources:   sources,
		CreatedAt: time.Now().UTC(),
	}
	var srcJSON sql.NullString
	if len(sources) > 0 {
		b, err := json.Marshal(sources)
		if err != nil {
			return Message{}, fmt.Errorf("history: encode sources: %w", err)
		}
		srcJSON = sql.NullString{String: string(b), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, thread_id, role, content, sources, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.ThreadID, m.Role, m.Content, srcJSON, m.CreatedAt)
	if err != nil {
		return Message{}, fmt.Errorf("history: add message: %w", err)
	}
	return m, nil
}

// SaveTurn records one completed turn: the user query and the assistant
// answer with its sources. The thread row is created on the first turn.
func (s *Store) SaveTurn(ctx context.Context, threadID, query, answer string, sources []stream.Source) error {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM threads WHERE id = ?`, threadID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("history: check thread: %w", err)
	}
	if exists == 0 {
		if _, err := s.CreateThread(ctx, threadID, query); err != nil {
			return err
		}
	}
	if _, err := s.AddMessage(ctx, threadID, "user", query, nil); err != nil {
		return err
	}
	if _, err := s.AddMessage(ctx, threadID, "assistant", answer, sources); err != nil {
		return err
	}
	return nil
}

// History lists threads, newest first.
func (s *Store) History(ctx context.Context) ([]Thread, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, created_at FROM threads ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("history: list threads: %w", err)
	}
	defer rows.Close()

	var out []Thread
	for rows.Next() {
		var th Thread
		if err := rows.Scan(&th.ID, &th.Title, &th.CreatedAt); err != nil {
			return nil, fmt.Errorf("history: scan thread: %w", err)
		}
		out = append(out, th)
	}
	return out, rows.Err()
}

// Messages returns a thread's messages in insertion order.
func (s *Store) Messages(ctx context.Context, threadID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, thread_id, role, content, sources, created_at
		 FROM messages WHERE thread_id = ? ORDER BY created_at, id`, threadID)
	if err != nil {
		return nil, fmt.Errorf("history: list messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var srcJSON sql.NullString
		if err := rows.Scan(&m.ID, &m.ThreadID, &m.Role, &m.Content, &srcJSON, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("history: scan message: %w", err)
		}
		if srcJSON.Valid {
			if err := json.Unmarshal([]byte(srcJSON.String), &m.Sources); err != nil {
				return nil, fmt.Errorf("history: decode sources: %w", err)
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// DeleteThread removes a thread and its messages.
func (s *Store) DeleteThread(ctx context.Context, threadID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE thread_id = ?`, threadID); err != nil {
		return fmt.Errorf("history: delete messages: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM threads WHERE id = ?`, threadID); err != nil {
		return fmt.Errorf("history: delete thread: %w", err)
	}
	return nil
}

func clipTitle(s string) string {
	r := []rune(s)
	if len(r) <= titleLimit {
		return s
	}
	return string(r[:titleLimit])
}
