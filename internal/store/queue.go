package store

import (
	"context"
	"fmt"

	"github.com/tomascarey/cardbox/internal/domain"
)

// AppendMutation appends a mutation to the durable queue and returns it with
// its assigned id.
func (s *Store) AppendMutation(ctx context.Context, m domain.Mutation) (domain.Mutation, error) {
	res, err := s.conn.ExecContext(ctx, `
		INSERT INTO mutations (type, entity_id, payload, retries, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, string(m.Type), m.EntityID, []byte(m.Payload), m.Retries, m.CreatedAt)
	if err != nil {
		return domain.Mutation{}, fmt.Errorf("failed to append mutation for %s: %w", m.EntityID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Mutation{}, fmt.Errorf("failed to get mutation id for %s: %w", m.EntityID, err)
	}
	m.ID = id
	return m, nil
}

// RemoveMutation deletes a queue entry by id.
func (s *Store) RemoveMutation(ctx context.Context, id int64) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM mutations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to remove mutation %d: %w", id, err)
	}
	return nil
}

// RemoveMutationsFor deletes pending entries matching an entity id and type.
// Used to supersede an earlier upsert and to let a delete cancel one.
func (s *Store) RemoveMutationsFor(ctx context.Context, entityID string, t domain.MutationType) error {
	if _, err := s.conn.ExecContext(ctx,
		`DELETE FROM mutations WHERE entity_id = ? AND type = ?`, entityID, string(t)); err != nil {
		return fmt.Errorf("failed to remove mutations for %s/%s: %w", entityID, t, err)
	}
	return nil
}

// ListMutations returns the queue in creation order.
func (s *Store) ListMutations(ctx context.Context) ([]domain.Mutation, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, type, entity_id, payload, retries, created_at
		FROM mutations ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list mutations: %w", err)
	}
	defer rows.Close()

	var muts []domain.Mutation
	for rows.Next() {
		var m domain.Mutation
		var typ string
		var payload []byte
		if err := rows.Scan(&m.ID, &typ, &m.EntityID, &payload, &m.Retries, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan mutation row: %w", err)
		}
		m.Type = domain.MutationType(typ)
		m.Payload = payload
		muts = append(muts, m)
	}
	return muts, rows.Err()
}

// UpdateMutationRetries persists a mutation's retry counter after a failed
// push attempt.
func (s *Store) UpdateMutationRetries(ctx context.Context, id int64, retries int) error {
	if _, err := s.conn.ExecContext(ctx,
		`UPDATE mutations SET retries = ? WHERE id = ?`, retries, id); err != nil {
		return fmt.Errorf("failed to update retries for mutation %d: %w", id, err)
	}
	return nil
}

// UpdateMutationEntity rewrites the entity id and payload of a queued
// mutation. Used by the ID-remapping pass after a remote create.
func (s *Store) UpdateMutationEntity(ctx context.Context, id int64, entityID string, payload []byte) error {
	if _, err := s.conn.ExecContext(ctx,
		`UPDATE mutations SET entity_id = ?, payload = ? WHERE id = ?`, entityID, payload, id); err != nil {
		return fmt.Errorf("failed to rewrite mutation %d: %w", id, err)
	}
	return nil
}
