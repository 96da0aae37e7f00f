package service

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"chat_web/internal/assistant"
	"chat_web/internal/events"
	"chat_web/internal/metrics"
	"chat_web/internal/models"
	"chat_web/internal/repository"
)

const defaultHistorySize = 10

// Replier 產生回覆，永遠有文字
type Replier interface {
	Reply(ctx context.Context, turns []assistant.Turn) assistant.Reply
}

// ReplyOrchestrator 以對話另一方的身分產生並送出 AI 回覆
type ReplyOrchestrator struct {
	store       repository.MessageRepository
	assistant   Replier
	router      *Router
	events      events.Publisher
	historySize int
	log         *zap.Logger
}

func NewReplyOrchestrator(store repository.MessageRepository, replier Replier, router *Router,
	publisher events.Publisher, historySize int, log *zap.Logger) *ReplyOrchestrator {
	if historySize <= 0 {
		historySize = defaultHistorySize
	}
	return &ReplyOrchestrator{
		store:       store,
		assistant:   replier,
		router:      router,
		events:      publisher,
		historySize: historySize,
		log:         log,
	}
}

// MaybeReply 讀取最近的對話，產生回覆後以 counterpart 為發送者儲存並廣播
func (o *ReplyOrchestrator) MaybeReply(ctx context.Context, human, counterpart uint) (*models.Message, error) {
	history, err := o.store.History(ctx, human, counterpart, o.historySize)
	if err != nil {
		return nil, fmt.Errorf("load reply context: %w", err)
	}

	reply := o.assistant.Reply(ctx, BuildTurns(human, lo.Reverse(history)))
	metrics.Replies.WithLabelValues(replySource(reply)).Inc()

	message := models.NewSyntheticMessage(counterpart, human, reply.Text)
	if err := o.store.Append(ctx, message); err != nil {
		return nil, fmt.Errorf("store reply: %w", err)
	}
	if err := o.events.MessageSent(ctx, message); err != nil {
		o.log.Warn("publish message event failed", zap.Uint("message_id", message.ID), zap.Error(err))
	}

	o.router.PublishPair(human, counterpart, NewEnvelope(EventNewMessage, NewMessagePayload(message)))
	return message, nil
}

// BuildTurns 把由舊到新的消息轉成對話輪次，human 以外的發送者一律視為 assistant
func BuildTurns(human uint, oldestFirst []models.Message) []assistant.Turn {
	return lo.Map(oldestFirst, func(m models.Message, _ int) assistant.Turn {
		role := assistant.RoleAssistant
		if m.SenderID == human {
			role = assistant.RoleUser
		}
		return assistant.Turn{Role: role, Content: m.Content}
	})
}

func replySource(reply assistant.Reply) string {
	if reply.Fallback {
		return "fallback"
	}
	return "provider"
}
