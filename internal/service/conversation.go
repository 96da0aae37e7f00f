package service

import (
	"context"
	"errors"

	"github.com/samber/lo"

	"chat_web/internal/models"
	"chat_web/internal/repository"
)

var ErrInvalidContact = errors.New("無效的聯絡人")

// ConversationService 提供 HTTP 端的對話紀錄查詢
type ConversationService struct {
	store repository.MessageRepository
}

func NewConversationService(store repository.MessageRepository) *ConversationService {
	return &ConversationService{store: store}
}

// Open 回傳由舊到新的完整對話，並把對方傳給 me 的消息標為已讀
func (s *ConversationService) Open(ctx context.Context, me, contact uint) ([]MessagePayload, error) {
	if contact == 0 {
		return nil, ErrInvalidContact
	}
	history, err := s.store.History(ctx, me, contact, 0)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.MarkRead(ctx, contact, me); err != nil {
		return nil, err
	}

	return lo.Map(lo.Reverse(history), func(m models.Message, _ int) MessagePayload {
		return NewMessagePayload(&m)
	}), nil
}

// Unread 回傳 contact 傳給 me 的未讀數
func (s *ConversationService) Unread(ctx context.Context, me, contact uint) (int64, error) {
	if contact == 0 {
		return 0, ErrInvalidContact
	}
	return s.store.CountUnread(ctx, contact, me)
}
