package session

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/docuvault/ragcore/internal/common"
)

// Journal persists conversation turns outside the bounded in-memory window.
// The manager treats it as best effort: a failing journal never blocks chat.
type Journal interface {
	Record(threadID string, turn Turn) error
	Clear(threadID string) error
	ClearAll() error
	Close() error
}

const journalSchema = `
CREATE TABLE IF NOT EXISTS transcript (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    thread_id TEXT NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transcript_thread ON transcript(thread_id, id);
`

// SQLiteJournal is a write-through transcript log backed by SQLite.
type SQLiteJournal struct {
	db *sqlx.DB
}

func OpenJournal(path string) (*SQLiteJournal, error) {
	if path == "" {
		return nil, fmt.Errorf("session: journal path required")
	}
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("session: open journal: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(journalSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("session: init journal schema: %w", err)
	}
	common.Logger().Info("session: transcript journal opened", "path", path)
	return &SQLiteJournal{db: db}, nil
}

func (j *SQLiteJournal) Record(threadID string, turn Turn) error {
	ts := turn.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := j.db.Exec(
		`INSERT INTO transcript (thread_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		threadID, turn.Role, turn.Content, ts,
	)
	return err
}

func (j *SQLiteJournal) Clear(threadID string) error {
	_, err := j.db.Exec(`DELETE FROM transcript WHERE thread_id = ?`, threadID)
	return err
}

func (j *SQLiteJournal) ClearAll() error {
	_, err := j.db.Exec(`DELETE FROM transcript`)
	return err
}

// Transcript returns the full persisted history for a thread, oldest first,
// including turns already trimmed from memory.
func (j *SQLiteJournal) Transcript(threadID string) ([]Turn, error) {
	rows := []struct {
		Role      string    `db:"role"`
		Content   string    `db:"content"`
		CreatedAt time.Time `db:"created_at"`
	}{}
	err := j.db.Select(&rows,
		`SELECT role, content, created_at FROM transcript WHERE thread_id = ? ORDER BY id`,
		threadID,
	)
	if err != nil {
		return nil, err
	}
	turns := make([]Turn, 0, len(rows))
	for _, row := range rows {
		turns = append(turns, Turn{Role: row.Role, Content: row.Content, Timestamp: row.CreatedAt})
	}
	return turns, nil
}

func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}
