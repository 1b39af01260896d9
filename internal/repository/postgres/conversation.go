package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Rrens/streamchat/internal/domain"
)

// ConversationRepository implements domain.ConversationRepository
type ConversationRepository struct {
	pool *pgxpool.Pool
}

// NewConversationRepository creates a new conversation repository
func NewConversationRepository(pool *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{pool: pool}
}

func (r *ConversationRepository) Create(ctx context.Context, userID domain.ID, title string) (*domain.Conversation, error) {
	uid, ok := rowID(userID)
	if !ok {
		return nil, fmt.Errorf("invalid user id %q", userID)
	}

	query := `
		INSERT INTO conversations (user_id, title)
		VALUES ($1, $2)
		RETURNING id
	`
	var id int64
	if err := r.pool.QueryRow(ctx, query, uid, title).Scan(&id); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return &domain.Conversation{ID: apiID(id), Title: title}, nil
}

// ListByUser returns the user's conversations, oldest first
func (r *ConversationRepository) ListByUser(ctx context.Context, userID domain.ID) ([]domain.Conversation, error) {
	uid, ok := rowID(userID)
	if !ok {
		return []domain.Conversation{}, nil
	}

	query := `
		SELECT id, title
		FROM conversations
		WHERE user_id = $1
		ORDER BY created_at ASC, id ASC
	`
	rows, err := r.pool.Query(ctx, query, uid)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	conversations := []domain.Conversation{}
	for rows.Next() {
		var (
			id int64
			c  domain.Conversation
		)
		if err := rows.Scan(&id, &c.Title); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		c.ID = apiID(id)
		conversations = append(conversations, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return conversations, nil
}

func (r *ConversationRepository) Exists(ctx context.Context, id domain.ID) (bool, error) {
	cid, ok := rowID(id)
	if !ok {
		return false, nil
	}
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM conversations WHERE id = $1)`, cid).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check conversation: %w", err)
	}
	return exists, nil
}

// Delete removes the conversation; its messages go with it
func (r *ConversationRepository) Delete(ctx context.Context, id domain.ID) error {
	cid, ok := rowID(id)
	if !ok {
		return domain.ErrConversationNotFound
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, cid)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConversationNotFound
	}
	return nil
}
