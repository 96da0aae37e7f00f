package service

import (
	"context"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"chat_web/internal/metrics"
	"chat_web/internal/models"
)

// Relay 把廣播轉送到其他實例上的 Router
type Relay interface {
	Forward(ctx context.Context, rooms []models.RoomID, env Envelope)
}

// Router 管理房間與連線的對應，並把事件投遞到每個訂閱者的發送隊列
type Router struct {
	rooms      map[models.RoomID]map[*Client]struct{} // roomID -> client
	clients    map[*Client]map[models.RoomID]struct{} // client -> 已訂閱的房間
	clientsMux sync.RWMutex

	closed bool

	relay Relay
	log   *zap.Logger
}

func NewRouter(log *zap.Logger) *Router {
	return &Router{
		rooms:   make(map[models.RoomID]map[*Client]struct{}),
		clients: make(map[*Client]map[models.RoomID]struct{}),
		log:     log,
	}
}

// SetRelay 需在開始接受連線前呼叫
func (r *Router) SetRelay(relay Relay) {
	r.relay = relay
}

// Register 登記新連線，之後才能訂閱房間；Router 關閉後回傳 false
func (r *Router) Register(client *Client) bool {
	r.clientsMux.Lock()
	defer r.clientsMux.Unlock()

	if r.closed {
		return false
	}
	if _, ok := r.clients[client]; ok {
		return true
	}
	r.clients[client] = make(map[models.RoomID]struct{})
	metrics.ConnectionsActive.Inc()
	return true
}

// Close 斷開所有連線並拒絕新的登記，關機時在等待回覆前呼叫
func (r *Router) Close() {
	r.clientsMux.Lock()
	r.closed = true
	clients := lo.Keys(r.clients)
	r.clientsMux.Unlock()

	for _, client := range clients {
		r.Disconnect(client)
	}
}

// Subscribe 重複訂閱同一房間沒有效果；未登記的連線回傳 false
func (r *Router) Subscribe(client *Client, room models.RoomID) bool {
	r.clientsMux.Lock()
	defer r.clientsMux.Unlock()

	subscribed, ok := r.clients[client]
	if !ok {
		return false
	}
	subscribed[room] = struct{}{}
	if r.rooms[room] == nil {
		r.rooms[room] = make(map[*Client]struct{})
	}
	r.rooms[room][client] = struct{}{}
	return true
}

func (r *Router) Unsubscribe(client *Client, room models.RoomID) {
	r.clientsMux.Lock()
	defer r.clientsMux.Unlock()

	if subscribed, ok := r.clients[client]; ok {
		delete(subscribed, room)
	}
	r.leaveLocked(client, room)
}

// Disconnect 移除連線的所有訂閱並關閉其發送隊列
func (r *Router) Disconnect(client *Client) {
	r.clientsMux.Lock()
	subscribed, ok := r.clients[client]
	if ok {
		for room := range subscribed {
			r.leaveLocked(client, room)
		}
		delete(r.clients, client)
		metrics.ConnectionsActive.Dec()
	}
	r.clientsMux.Unlock()

	client.Close()
}

func (r *Router) leaveLocked(client *Client, room models.RoomID) {
	if members, ok := r.rooms[room]; ok {
		delete(members, client)
		// 房間空了就刪除
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
}

// Publish 投遞到單一房間，回傳成功放入隊列的連線數
func (r *Router) Publish(room models.RoomID, env Envelope) int {
	delivered := r.DeliverLocal([]models.RoomID{room}, env)
	r.forward([]models.RoomID{room}, env)
	return delivered
}

// PublishPair 投遞到一對用戶的兩個對話房間，同時訂閱兩個房間的連線只會收到一次
func (r *Router) PublishPair(userA, userB uint, env Envelope) int {
	rooms := models.PairRooms(userA, userB)
	delivered := r.DeliverLocal(rooms[:], env)
	r.forward(rooms[:], env)
	return delivered
}

// DeliverLocal 只投遞給本實例的連線，relay 收到遠端廣播時也走這裡
func (r *Router) DeliverLocal(rooms []models.RoomID, env Envelope) int {
	r.clientsMux.RLock()
	targets := make(map[*Client]struct{})
	for _, room := range rooms {
		for client := range r.rooms[room] {
			targets[client] = struct{}{}
		}
	}
	r.clientsMux.RUnlock()

	delivered := 0
	for client := range targets {
		if client.Send(env) {
			delivered++
			continue
		}
		// 客戶端消息隊列已滿，關閉連接
		r.log.Warn("send queue full, dropping connection",
			zap.String("conn_id", client.ID), zap.Uint("user_id", client.UserID))
		r.Disconnect(client)
	}
	metrics.RouterDeliveries.Add(float64(delivered))
	return delivered
}

func (r *Router) forward(rooms []models.RoomID, env Envelope) {
	if r.relay == nil {
		return
	}
	r.relay.Forward(context.Background(), rooms, env)
}

// RoomSize 獲取指定房間的在線連線數量
func (r *Router) RoomSize(room models.RoomID) int {
	r.clientsMux.RLock()
	defer r.clientsMux.RUnlock()

	return len(r.rooms[room])
}

func (r *Router) Rooms(client *Client) []models.RoomID {
	r.clientsMux.RLock()
	defer r.clientsMux.RUnlock()

	rooms := make([]models.RoomID, 0, len(r.clients[client]))
	for room := range r.clients[client] {
		rooms = append(rooms, room)
	}
	return rooms
}
