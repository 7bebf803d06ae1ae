// Package leads captures inbound channel messages as leads for the CRM.
package leads

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Lead is one captured inbound contact.
type Lead struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Channel   string    `json:"channel"`
	Contact   string    `json:"contact"` // remote sender id (phone/JID)
	Name      string    `json:"name,omitempty"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Sink receives leads produced by the webhook receiver.
type Sink interface {
	Capture(lead *Lead) error
	RecentByOwner(ownerID string, limit int) ([]Lead, error)
}

// SQLiteSink implements Sink backed by a local SQLite database.
type SQLiteSink struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteSink opens (or creates) the lead database at the given path.
func NewSQLiteSink(dbPath string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &SQLiteSink{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	slog.Info("lead sink opened", "path", dbPath)
	return s, nil
}

func (s *SQLiteSink) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS leads (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			channel TEXT NOT NULL DEFAULT 'whatsapp',
			contact TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			message TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_leads_owner ON leads(owner_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_leads_contact ON leads(contact)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Capture stores an inbound message as a lead.
func (s *SQLiteSink) Capture(lead *Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lead.ID == uuid.Nil {
		lead.ID = uuid.Must(uuid.NewV7())
	}
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = time.Now()
	}

	_, err := s.db.Exec(
		`INSERT INTO leads (id, owner_id, channel, contact, name, message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		lead.ID.String(), lead.OwnerID, lead.Channel, lead.Contact,
		lead.Name, lead.Message, lead.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert lead: %w", err)
	}
	return nil
}

// RecentByOwner returns the newest leads for an owner.
func (s *SQLiteSink) RecentByOwner(ownerID string, limit int) ([]Lead, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(
		`SELECT id, owner_id, channel, contact, name, message, created_at
		 FROM leads WHERE owner_id = ? ORDER BY created_at DESC LIMIT ?`,
		ownerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query leads: %w", err)
	}
	defer rows.Close()

	var result []Lead
	for rows.Next() {
		var l Lead
		var id string
		var createdAt int64
		if err := rows.Scan(&id, &l.OwnerID, &l.Channel, &l.Contact, &l.Name, &l.Message, &createdAt); err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		l.ID, _ = uuid.Parse(id)
		l.CreatedAt = time.UnixMilli(createdAt)
		result = append(result, l)
	}
	return result, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
