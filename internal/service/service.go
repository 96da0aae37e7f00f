package service

import (
	"go.uber.org/zap"

	"chat_web/internal/events"
	"chat_web/internal/repository"
)

// Dependencies 是建立 Services 所需的外部元件
type Dependencies struct {
	Repos            *repository.Repositories
	Moderator        Moderator
	Assistant        Replier
	Events           events.Publisher
	HistorySize      int
	MaxContentLength int
	Limits           ClientLimits
	Log              *zap.Logger
}

type Services struct {
	Router        *Router
	Replies       *ReplyOrchestrator
	Pipeline      *Pipeline
	WebSocket     *WebSocketService
	Conversations *ConversationService
}

func NewServices(deps Dependencies) *Services {
	publisher := deps.Events
	if publisher == nil {
		publisher = events.NopPublisher{}
	}

	router := NewRouter(deps.Log.Named("router"))
	replies := NewReplyOrchestrator(deps.Repos.Message, deps.Assistant, router, publisher,
		deps.HistorySize, deps.Log.Named("reply"))
	pipeline := NewPipeline(deps.Moderator, deps.Repos.Message, router, replies, publisher,
		deps.MaxContentLength, deps.Log.Named("pipeline"))

	return &Services{
		Router:        router,
		Replies:       replies,
		Pipeline:      pipeline,
		WebSocket:     NewWebSocketService(router, pipeline, deps.Limits, deps.Log.Named("websocket")),
		Conversations: NewConversationService(deps.Repos.Message),
	}
}
