package repository

import (
	"time"

	"chat_web/internal/storage"
)

type Repositories struct {
	Message MessageRepository
}

func NewRepositories(db *storage.PostgresDB, timeout time.Duration) *Repositories {
	return &Repositories{
		Message: NewMessageRepository(db, timeout),
	}
}
