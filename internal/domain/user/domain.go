package user

import (
	"context"
	"time"
)

type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Reader is the only access the engine needs to accounts.
type Reader interface {
	GetByID(ctx context.Context, id int64) (*User, error)
}
