package domain

import "context"

// User represents an authenticated chat user
type User struct {
	ID       ID     `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

// UserCreate represents user registration data
type UserCreate struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=72"`
	Email    string `json:"email" validate:"required,email,max=255"`
}

// UserLogin represents login credentials
type UserLogin struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// SessionStore keeps the current user between client runs
type SessionStore interface {
	// Load returns the stored user, or nil when nobody is logged in
	Load(ctx context.Context) (*User, error)
	Save(ctx context.Context, user *User) error
	Clear(ctx context.Context) error
}

// UserRepository defines the interface for user storage on the backend side
type UserRepository interface {
	Create(ctx context.Context, user *User, passwordHash string) error
	GetByUsername(ctx context.Context, username string) (*User, string, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	EmailExists(ctx context.Context, email string) (bool, error)
}
