// Package store handles SQLite persistence for decks, cards, sessions, the
// mutation queue and scalar sync state. The store exclusively owns durable
// state; the in-memory Collections are a cache rebuilt from it at startup.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tomascarey/cardbox/internal/domain"
	_ "modernc.org/sqlite" // Registers the sqlite driver
)

// Well-known meta keys.
const (
	MetaLastPullAt   = "last_pull_at"
	MetaLastError    = "last_error"
	MetaQueueChanged = "queue_changed"
)

// batchSize bounds how many rows a single PutCards transaction writes.
const batchSize = 200

// Store wraps the SQL database connection.
type Store struct {
	conn *sql.DB
}

// Open creates a new database connection and ensures the schema is up to
// date.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// A single writer keeps every call atomic without busy retries.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{conn: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// PutDeck inserts or replaces a deck.
func (s *Store) PutDeck(ctx context.Context, deck *domain.Deck) error {
	data, err := json.Marshal(deck)
	if err != nil {
		return fmt.Errorf("failed to encode deck %s: %w", deck.ID, err)
	}
	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO decks (id, data, modified_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, modified_at = excluded.modified_at
	`, deck.ID, data, deck.ModifiedAt)
	if err != nil {
		return fmt.Errorf("failed to put deck %s: %w", deck.ID, err)
	}
	return nil
}

// DeleteDeck removes a deck row. Cards are cascaded by the caller so the
// in-memory collections stay in step.
func (s *Store) DeleteDeck(ctx context.Context, id string) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM decks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete deck %s: %w", id, err)
	}
	return nil
}

// GetAllDecks retrieves every stored deck.
func (s *Store) GetAllDecks(ctx context.Context) ([]*domain.Deck, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT data FROM decks`)
	if err != nil {
		return nil, fmt.Errorf("failed to get decks: %w", err)
	}
	defer rows.Close()

	var decks []*domain.Deck
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan deck row: %w", err)
		}
		var d domain.Deck
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("failed to decode deck: %w", err)
		}
		decks = append(decks, &d)
	}
	return decks, rows.Err()
}

// PutCard inserts or replaces a card.
func (s *Store) PutCard(ctx context.Context, card *domain.Card) error {
	data, err := json.Marshal(card)
	if err != nil {
		return fmt.Errorf("failed to encode card %s: %w", card.ID, err)
	}
	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO cards (id, deck_id, data, modified_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET deck_id = excluded.deck_id, data = excluded.data, modified_at = excluded.modified_at
	`, card.ID, card.DeckID, data, card.ModifiedAt)
	if err != nil {
		return fmt.Errorf("failed to put card %s: %w", card.ID, err)
	}
	return nil
}

// PutCards writes cards in batched transactions, yielding between batches so
// a large pull cannot hold the writer for its whole duration.
func (s *Store) PutCards(ctx context.Context, cards []*domain.Card) error {
	for start := 0; start < len(cards); start += batchSize {
		end := min(start+batchSize, len(cards))
		if err := s.putCardBatch(ctx, cards[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) putCardBatch(ctx context.Context, cards []*domain.Card) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin card batch: %w", err)
	}
	defer tx.Rollback()

	for _, card := range cards {
		data, err := json.Marshal(card)
		if err != nil {
			return fmt.Errorf("failed to encode card %s: %w", card.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO cards (id, deck_id, data, modified_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET deck_id = excluded.deck_id, data = excluded.data, modified_at = excluded.modified_at
		`, card.ID, card.DeckID, data, card.ModifiedAt); err != nil {
			return fmt.Errorf("failed to put card %s: %w", card.ID, err)
		}
	}
	return tx.Commit()
}

// DeleteCard removes a card row.
func (s *Store) DeleteCard(ctx context.Context, id string) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM cards WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete card %s: %w", id, err)
	}
	return nil
}

// GetAllCards retrieves every stored card.
func (s *Store) GetAllCards(ctx context.Context) ([]*domain.Card, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT data FROM cards`)
	if err != nil {
		return nil, fmt.Errorf("failed to get cards: %w", err)
	}
	defer rows.Close()

	var cards []*domain.Card
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan card row: %w", err)
		}
		var c domain.Card
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("failed to decode card: %w", err)
		}
		cards = append(cards, &c)
	}
	return cards, rows.Err()
}

// PutSession inserts or replaces the session.
func (s *Store) PutSession(ctx context.Context, sess *domain.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", sess.ID, err)
	}
	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO sessions (id, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, sess.ID, data, sess.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to put session %s: %w", sess.ID, err)
	}
	return nil
}

// DeleteSession removes a session row.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}

// GetSessions retrieves all persisted sessions; normally zero or one.
func (s *Store) GetSessions(ctx context.Context) ([]*domain.Session, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT data FROM sessions`)
	if err != nil {
		return nil, fmt.Errorf("failed to get sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*domain.Session
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		var sess domain.Session
		if err := json.Unmarshal(data, &sess); err != nil {
			return nil, fmt.Errorf("failed to decode session: %w", err)
		}
		sessions = append(sessions, &sess)
	}
	return sessions, rows.Err()
}

// GetMeta returns the value for a meta key, or "" when absent.
func (s *Store) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.conn.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get meta %s: %w", key, err)
	}
	return value, nil
}

// SetMeta stores a scalar value under a meta key.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set meta %s: %w", key, err)
	}
	return nil
}

// DeleteMeta removes a meta key.
func (s *Store) DeleteMeta(ctx context.Context, key string) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM meta WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete meta %s: %w", key, err)
	}
	return nil
}

// MetaTime reads a meta key as an RFC 3339 timestamp. A missing or
// malformed value yields the zero time.
func (s *Store) MetaTime(ctx context.Context, key string) (time.Time, error) {
	v, err := s.GetMeta(ctx, key)
	if err != nil || v == "" {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, nil
	}
	return t, nil
}

// SetMetaTime stores a timestamp under a meta key.
func (s *Store) SetMetaTime(ctx context.Context, key string, t time.Time) error {
	return s.SetMeta(ctx, key, t.Format(time.RFC3339Nano))
}
