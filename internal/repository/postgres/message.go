package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Rrens/streamchat/internal/domain"
)

// MessageRepository implements domain.MessageRepository
type MessageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

// Create inserts a message into a conversation
func (r *MessageRepository) Create(ctx context.Context, conversationID domain.ID, input domain.MessageCreate) (*domain.StoredMessage, error) {
	cid, ok := rowID(conversationID)
	if !ok {
		return nil, domain.ErrConversationNotFound
	}
	uid, ok := rowID(input.UserID)
	if !ok {
		return nil, fmt.Errorf("invalid user id %q", input.UserID)
	}

	query := `
		INSERT INTO messages (conversation_id, user_id, content, sender_type)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	var (
		id        int64
		createdAt time.Time
	)
	if err := r.pool.QueryRow(ctx, query, cid, uid, input.Content, string(input.SenderType)).Scan(&id, &createdAt); err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}

	return &domain.StoredMessage{
		ID:         apiID(id),
		Content:    input.Content,
		SenderType: input.SenderType,
		CreatedAt:  domain.Timestamp{Time: createdAt},
	}, nil
}

// ListByConversation returns messages in the order they were saved
func (r *MessageRepository) ListByConversation(ctx context.Context, conversationID domain.ID) ([]domain.StoredMessage, error) {
	cid, ok := rowID(conversationID)
	if !ok {
		return []domain.StoredMessage{}, nil
	}

	query := `
		SELECT id, content, sender_type, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC, id ASC
	`
	rows, err := r.pool.Query(ctx, query, cid)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages := []domain.StoredMessage{}
	for rows.Next() {
		var (
			id        int64
			sender    string
			createdAt time.Time
			m         domain.StoredMessage
		)
		if err := rows.Scan(&id, &m.Content, &sender, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.ID = apiID(id)
		m.SenderType = domain.Sender(sender)
		m.CreatedAt = domain.Timestamp{Time: createdAt}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}
