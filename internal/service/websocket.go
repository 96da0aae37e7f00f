package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxFrameSize   = 64 * 1024
	greetingString = "Connected to chat server"
)

// Client 代表一個 WebSocket 客戶端連接
type Client struct {
	ID       string
	UserID   uint
	Conn     *websocket.Conn // 測試時可為 nil
	SendChan chan Envelope   // 消息發送通道，用於異步傳送消息

	limiter *rate.Limiter
	mu      sync.Mutex
	closed  bool
}

// NewClient 建立客戶端，limiter 為 nil 時不限速
func NewClient(conn *websocket.Conn, userID uint, buffer int, limiter *rate.Limiter) *Client {
	if buffer <= 0 {
		buffer = 256
	}
	return &Client{
		ID:       uuid.NewString(),
		UserID:   userID,
		Conn:     conn,
		SendChan: make(chan Envelope, buffer),
		limiter:  limiter,
	}
}

// Send 不會阻塞，隊列已滿或已關閉時回傳 false
func (c *Client) Send(env Envelope) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.SendChan <- env:
		return true
	default:
		return false
	}
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.SendChan)
	}
}

func (c *Client) Allow() bool {
	return c.limiter == nil || c.limiter.Allow()
}

// WebSocketService 把 WebSocket frame 轉成 Router 訂閱與 Pipeline 呼叫
type WebSocketService struct {
	router   *Router
	pipeline *Pipeline
	limits   ClientLimits
	log      *zap.Logger
}

// ClientLimits 是每條連線的發送隊列與速率限制
type ClientLimits struct {
	SendBuffer    int
	RatePerSecond float64
	RateBurst     int
}

func NewWebSocketService(router *Router, pipeline *Pipeline, limits ClientLimits, log *zap.Logger) *WebSocketService {
	return &WebSocketService{
		router:   router,
		pipeline: pipeline,
		limits:   limits,
		log:      log,
	}
}

func (s *WebSocketService) NewClient(conn *websocket.Conn, userID uint) *Client {
	var limiter *rate.Limiter
	if s.limits.RatePerSecond > 0 {
		burst := s.limits.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(s.limits.RatePerSecond), burst)
	}
	return NewClient(conn, userID, s.limits.SendBuffer, limiter)
}

// HandleConnection 處理新的 WebSocket 連接，直到連線關閉才返回
func (s *WebSocketService) HandleConnection(ctx context.Context, conn *websocket.Conn, userID uint) {
	client := s.NewClient(conn, userID)
	if !s.router.Register(client) {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		conn.Close()
		return
	}
	log := s.log.With(zap.String("conn_id", client.ID), zap.Uint("user_id", userID))
	log.Info("client connected")

	// 確保連接關閉時清理資源
	defer func() {
		s.router.Disconnect(client)
		conn.Close()
		log.Info("client disconnected")
	}()

	client.Send(NewEnvelope(EventConnected, ConnectedPayload{Data: greetingString, UserID: userID}))

	go s.writePump(client, log)
	s.readPump(ctx, client, log)
}

// readPump 持續監聽並處理從客戶端接收的消息
func (s *WebSocketService) readPump(ctx context.Context, client *Client, log *zap.Logger) {
	client.Conn.SetReadLimit(maxFrameSize)
	client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	client.Conn.SetPongHandler(func(string) error {
		client.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, frame, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn("websocket unexpected close", zap.Error(err))
			}
			return
		}
		s.Dispatch(ctx, client, frame)
	}
}

// writePump 處理向客戶端發送消息的邏輯
func (s *WebSocketService) writePump(client *Client, log *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn.Close()
	}()

	for {
		select {
		case env, ok := <-client.SendChan:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.Conn.WriteJSON(env); err != nil {
				log.Debug("websocket write failed", zap.Error(err))
				return
			}

		case <-ticker.C:
			// 發送心跳包
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Dispatch 依事件名稱處理一個入站 frame，錯誤只回報給該連線
func (s *WebSocketService) Dispatch(ctx context.Context, client *Client, frame []byte) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil || env.Event == "" {
		s.replyError(client, ErrMalformedRequest)
		return
	}

	switch env.Event {
	case EventPing:
		client.Send(NewEnvelope(EventPong, nil))

	case EventJoinChat, EventLeaveChat:
		var req JoinChatRequest
		if err := decodeData(env.Data, &req); err != nil {
			s.replyError(client, err)
			return
		}
		room := req.Room(client.UserID)
		if env.Event == EventJoinChat {
			s.router.Subscribe(client, room)
			client.Send(NewEnvelope(EventJoinedRoom, RoomPayload{Room: room}))
			return
		}
		s.router.Unsubscribe(client, room)
		client.Send(NewEnvelope(EventLeftRoom, RoomPayload{Room: room}))

	case EventSendMessage:
		if !client.Allow() {
			s.replyError(client, ErrRateLimited)
			return
		}
		var req SendMessageRequest
		if err := decodeData(env.Data, &req); err != nil {
			s.replyError(client, err)
			return
		}
		s.pipeline.Run(ctx, client, req)

	default:
		s.replyError(client, ErrUnknownEvent)
	}
}

func (s *WebSocketService) replyError(client *Client, err error) {
	client.Send(NewEnvelope(EventError, ErrorPayload{Message: err.Error()}))
}

func decodeData(data json.RawMessage, v interface{}) error {
	if len(data) == 0 || string(data) == "null" {
		data = json.RawMessage("{}")
	}
	if err := json.Unmarshal(data, v); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return fmt.Errorf("%w: invalid field %s", ErrMalformedRequest, typeErr.Field)
		}
		return fmt.Errorf("%w: %w", ErrMalformedRequest, err)
	}
	return nil
}
