// Package relay 透過 Redis pub/sub 把房間廣播轉送給其他實例。
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"chat_web/internal/models"
	"chat_web/internal/service"
)

// frame 是在 channel 上傳遞的內容，Origin 用來略過自己發出的廣播
type frame struct {
	Origin   string           `json:"origin"`
	Rooms    []models.RoomID  `json:"rooms"`
	Envelope service.Envelope `json:"envelope"`
}

const (
	outboxSize     = 256
	publishTimeout = 2 * time.Second
)

type Relay struct {
	client  *redis.Client
	channel string
	origin  string
	router  *service.Router
	outbox  chan []byte
	log     *zap.Logger
}

func New(client *redis.Client, prefix string, router *service.Router, log *zap.Logger) *Relay {
	return &Relay{
		client:  client,
		channel: fmt.Sprintf("%s:rooms", prefix),
		origin:  uuid.NewString(),
		router:  router,
		outbox:  make(chan []byte, outboxSize),
		log:     log,
	}
}

// Forward 實作 service.Relay，只放入 outbox 不會阻塞；outbox 滿時丟棄並記錄
func (r *Relay) Forward(_ context.Context, rooms []models.RoomID, env service.Envelope) {
	payload, err := json.Marshal(frame{Origin: r.origin, Rooms: rooms, Envelope: env})
	if err != nil {
		r.log.Error("relay encode failed", zap.Error(err))
		return
	}
	select {
	case r.outbox <- payload:
	default:
		r.log.Warn("relay outbox full, dropping broadcast", zap.String("channel", r.channel))
	}
}

// Run 發送 outbox 並訂閱 channel，把其他實例的廣播交給本地 Router，直到 ctx 結束
func (r *Relay) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go r.publishLoop(ctx)

	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	// 確認訂閱成功後才開始接收
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.handle(msg.Payload)
		}
	}
}

func (r *Relay) publishLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-r.outbox:
			pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
			if err := r.client.Publish(pubCtx, r.channel, payload).Err(); err != nil {
				r.log.Warn("relay publish failed", zap.String("channel", r.channel), zap.Error(err))
			}
			cancel()
		}
	}
}

func (r *Relay) handle(payload string) {
	var f frame
	if err := json.Unmarshal([]byte(payload), &f); err != nil {
		r.log.Warn("relay decode failed", zap.Error(err))
		return
	}
	if f.Origin == r.origin {
		return
	}
	r.router.DeliverLocal(f.Rooms, f.Envelope)
}
