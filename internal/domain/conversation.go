package domain

import "context"

// Conversation represents one independent chat thread owned by a user
type Conversation struct {
	ID    ID     `json:"id"`
	Title string `json:"title"`
}

// ConversationRepository defines the interface for conversation storage.
// It is implemented by the development backend's repositories.
type ConversationRepository interface {
	Create(ctx context.Context, userID ID, title string) (*Conversation, error)
	ListByUser(ctx context.Context, userID ID) ([]Conversation, error)
	Exists(ctx context.Context, id ID) (bool, error)
	Delete(ctx context.Context, id ID) error
}
