package service

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"chat_web/internal/events"
	"chat_web/internal/metrics"
	"chat_web/internal/models"
	"chat_web/internal/moderation"
	"chat_web/internal/repository"
)

const (
	blockedMessage     = "Message contains inappropriate content"
	storeFailedMessage = "Message could not be saved, please try again"
)

// Outcome 是一次 pipeline 執行的終止狀態
type Outcome string

const (
	OutcomeMalformed        Outcome = "malformed"
	OutcomeBlocked          Outcome = "blocked"
	OutcomeStoreUnavailable Outcome = "store_unavailable"
	OutcomeDelivered        Outcome = "delivered"
	OutcomeReplying         Outcome = "replying"
)

// Moderator 判斷文字是否違規，永遠回傳結果
type Moderator interface {
	Moderate(ctx context.Context, text string) moderation.Verdict
}

// Pipeline 處理一則送出的消息：檢查、審核、儲存、廣播，必要時產生回覆
type Pipeline struct {
	moderator Moderator
	store     repository.MessageRepository
	router    *Router
	replies   *ReplyOrchestrator
	events    events.Publisher
	validator *requestValidator
	log       *zap.Logger

	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
}

func NewPipeline(moderator Moderator, store repository.MessageRepository, router *Router,
	replies *ReplyOrchestrator, publisher events.Publisher, maxContentLength int, log *zap.Logger) *Pipeline {
	return &Pipeline{
		moderator: moderator,
		store:     store,
		router:    router,
		replies:   replies,
		events:    publisher,
		validator: newRequestValidator(maxContentLength),
		log:       log,
	}
}

// Run 在呼叫者的 goroutine 中執行；被阻擋或失敗時只通知 client 本身
func (p *Pipeline) Run(ctx context.Context, client *Client, req SendMessageRequest) (Outcome, error) {
	if err := p.validator.SendMessage(req); err != nil {
		client.Send(NewEnvelope(EventError, ErrorPayload{Message: err.Error()}))
		return p.finish(OutcomeMalformed), err
	}

	verdict := p.moderator.Moderate(ctx, req.Content)
	if verdict.Flagged {
		client.Send(NewEnvelope(EventMessageBlocked, BlockedPayload{Message: blockedMessage, Reason: verdict.Reason}))
		return p.finish(OutcomeBlocked), fmt.Errorf("%w: %s", ErrModerationBlocked, verdict.Reason)
	}

	message := models.NewTextMessage(client.UserID, req.ReceiverID, req.Content, models.MessageType(req.Type))
	if err := p.store.Append(ctx, message); err != nil {
		p.log.Error("append message failed", zap.Uint("sender_id", client.UserID), zap.Error(err))
		client.Send(NewEnvelope(EventError, ErrorPayload{Message: storeFailedMessage}))
		return p.finish(OutcomeStoreUnavailable), err
	}
	if err := p.events.MessageSent(ctx, message); err != nil {
		p.log.Warn("publish message event failed", zap.Uint("message_id", message.ID), zap.Error(err))
	}

	p.router.PublishPair(message.SenderID, message.ReceiverID, NewEnvelope(EventNewMessage, NewMessagePayload(message)))
	if !req.AIResponse || p.replies == nil {
		return p.finish(OutcomeDelivered), nil
	}

	// 回覆不受發送者斷線影響
	replyCtx := context.WithoutCancel(ctx)
	p.mu.Lock()
	if p.closing {
		p.mu.Unlock()
		p.log.Info("shutting down, reply skipped", zap.Uint("message_id", message.ID))
		return p.finish(OutcomeDelivered), nil
	}
	p.wg.Add(1)
	p.mu.Unlock()
	go func() {
		defer p.wg.Done()
		if _, err := p.replies.MaybeReply(replyCtx, message.SenderID, message.ReceiverID); err != nil {
			p.log.Warn("reply aborted",
				zap.Uint("human", message.SenderID), zap.Uint("counterpart", message.ReceiverID), zap.Error(err))
		}
	}()
	return p.finish(OutcomeReplying), nil
}

// Wait 等待所有進行中的回覆完成
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// Close 之後不再產生新的回覆，並等待進行中的回覆完成
func (p *Pipeline) Close() {
	p.mu.Lock()
	p.closing = true
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pipeline) finish(outcome Outcome) Outcome {
	metrics.PipelineRuns.WithLabelValues(string(outcome)).Inc()
	return outcome
}
