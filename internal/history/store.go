package history

import (
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/unkn0wn-root/wscls/internal/errdef"
)

// Entry is one finished exchange: an HTTP request/response cycle or a
// whole WebSocket connection.
type Entry struct {
	ID            string        `json:"id"`
	ExecutedAt    time.Time     `json:"executedAt"`
	Configuration string        `json:"configuration"`
	Context       string        `json:"context"`
	Method        string        `json:"method"`
	URL           string        `json:"url"`
	Status        string        `json:"status"`
	StatusCode    int           `json:"statusCode"`
	Duration      time.Duration `json:"duration"`
	BodySnippet   string        `json:"bodySnippet"`
	RequestText   string        `json:"requestText"`
	FramesSent    uint64        `json:"framesSent,omitempty"`
	FramesRecv    uint64        `json:"framesRecv,omitempty"`
	CloseCode     int           `json:"closeCode,omitempty"`
	Error         string        `json:"error,omitempty"`
}

const snippetLimit = 4096

const schema = `
CREATE TABLE IF NOT EXISTS history (
	id TEXT PRIMARY KEY,
	executed_at INTEGER NOT NULL,
	configuration TEXT NOT NULL DEFAULT '',
	context TEXT NOT NULL DEFAULT '',
	method TEXT NOT NULL,
	url TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT '',
	status_code INTEGER NOT NULL DEFAULT 0,
	duration_ns INTEGER NOT NULL DEFAULT 0,
	body_snippet TEXT NOT NULL DEFAULT '',
	request_text TEXT NOT NULL DEFAULT '',
	frames_sent INTEGER NOT NULL DEFAULT 0,
	frames_recv INTEGER NOT NULL DEFAULT 0,
	close_code INTEGER NOT NULL DEFAULT 0,
	error TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_history_executed_at ON history(executed_at DESC);
CREATE INDEX IF NOT EXISTS idx_history_configuration ON history(configuration);
`

const selectColumns = `id, executed_at, configuration, context, method, url, status,
	status_code, duration_ns, body_snippet, request_text, frames_sent, frames_recv,
	close_code, error`

// Store keeps the newest maxEntries entries in a SQLite database.
type Store struct {
	path       string
	maxEntries int
	db         *sql.DB
	mu         sync.Mutex
}

func NewStore(path string, maxEntries int) (*Store, error) {
	if maxEntries <= 0 {
		maxEntries = 500
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, errdef.Wrap(errdef.CodeHistory, err, "create history dir")
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeHistory, err, "open history database")
	}
	// one connection keeps :memory: databases shared and serialises writers
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errdef.Wrap(errdef.CodeHistory, err, "initialise history schema")
	}
	return &Store{path: path, maxEntries: maxEntries, db: db}, nil
}

func (s *Store) Path() string { return s.path }

func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return errdef.Wrap(errdef.CodeHistory, err, "close history database")
	}
	return nil
}

// Append stores entry, assigning an ID and timestamp when missing, and
// prunes everything beyond the newest maxEntries rows.
func (s *Store) Append(entry Entry) (Entry, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.ExecutedAt.IsZero() {
		entry.ExecutedAt = time.Now()
	}
	entry.BodySnippet = truncate(entry.BodySnippet, snippetLimit)
	entry.RequestText = truncate(entry.RequestText, snippetLimit)

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return Entry{}, errdef.Wrap(errdef.CodeHistory, err, "begin history append")
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`INSERT OR REPLACE INTO history (`+selectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.ExecutedAt.UnixNano(),
		entry.Configuration,
		entry.Context,
		entry.Method,
		entry.URL,
		entry.Status,
		entry.StatusCode,
		int64(entry.Duration),
		entry.BodySnippet,
		entry.RequestText,
		int64(entry.FramesSent),
		int64(entry.FramesRecv),
		entry.CloseCode,
		entry.Error,
	)
	if err != nil {
		return Entry{}, errdef.Wrap(errdef.CodeHistory, err, "insert history entry")
	}

	_, err = tx.Exec(`DELETE FROM history WHERE id NOT IN (
		SELECT id FROM history ORDER BY executed_at DESC, id DESC LIMIT ?)`, s.maxEntries)
	if err != nil {
		return Entry{}, errdef.Wrap(errdef.CodeHistory, err, "prune history")
	}
	if err := tx.Commit(); err != nil {
		return Entry{}, errdef.Wrap(errdef.CodeHistory, err, "commit history append")
	}
	return entry, nil
}

// Entries returns every entry, newest first.
func (s *Store) Entries() ([]Entry, error) {
	return s.query(`SELECT ` + selectColumns + ` FROM history ORDER BY executed_at DESC, id DESC`)
}

// ByConfiguration returns the entries recorded under one configuration name.
func (s *Store) ByConfiguration(name string) ([]Entry, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	return s.query(`SELECT `+selectColumns+` FROM history WHERE configuration = ?
		ORDER BY executed_at DESC, id DESC`, name)
}

func (s *Store) Delete(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(`DELETE FROM history WHERE id = ?`, id)
	if err != nil {
		return false, errdef.Wrap(errdef.CodeHistory, err, "delete history entry")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errdef.Wrap(errdef.CodeHistory, err, "delete history entry")
	}
	return n > 0, nil
}

func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(`DELETE FROM history`); err != nil {
		return errdef.Wrap(errdef.CodeHistory, err, "clear history")
	}
	return nil
}

func (s *Store) query(q string, args ...any) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeHistory, err, "query history")
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e          Entry
			executedAt int64
			duration   int64
			sent, recv int64
		)
		if err := rows.Scan(
			&e.ID, &executedAt, &e.Configuration, &e.Context, &e.Method, &e.URL,
			&e.Status, &e.StatusCode, &duration, &e.BodySnippet, &e.RequestText,
			&sent, &recv, &e.CloseCode, &e.Error,
		); err != nil {
			return nil, errdef.Wrap(errdef.CodeHistory, err, "scan history entry")
		}
		e.ExecutedAt = time.Unix(0, executedAt)
		e.Duration = time.Duration(duration)
		e.FramesSent = uint64(sent)
		e.FramesRecv = uint64(recv)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errdef.Wrap(errdef.CodeHistory, err, "read history rows")
	}
	return entries, nil
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	// back off to a rune boundary
	for cut > 0 && s[cut]&0xC0 == 0x80 {
		cut--
	}
	return s[:cut]
}
