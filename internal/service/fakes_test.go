package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chat_web/internal/assistant"
	"chat_web/internal/models"
	"chat_web/internal/moderation"
	"chat_web/internal/repository"
)

type memoryStore struct {
	mu       sync.Mutex
	messages []models.Message
	nextID   uint
	failing  bool
}

func (s *memoryStore) Append(_ context.Context, message *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return fmt.Errorf("%w: append: connection refused", repository.ErrStoreUnavailable)
	}
	s.nextID++
	message.ID = s.nextID
	message.Read = false
	message.Timestamp = time.Unix(0, 0).UTC().Add(time.Duration(s.nextID) * time.Millisecond)
	if message.MessageType == "" {
		message.MessageType = models.MessageTypeText
	}
	s.messages = append(s.messages, *message)
	return nil
}

func (s *memoryStore) History(_ context.Context, a, b uint, limit int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return nil, repository.ErrStoreUnavailable
	}
	key := models.NewConversationKey(a, b)
	var out []models.Message
	for _, m := range s.messages {
		if m.Key() == key {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryStore) MarkRead(_ context.Context, senderID, readerID uint) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for i := range s.messages {
		m := &s.messages[i]
		if m.SenderID == senderID && m.ReceiverID == readerID && !m.Read {
			m.Read = true
			n++
		}
	}
	return n, nil
}

func (s *memoryStore) CountUnread(_ context.Context, senderID, readerID uint) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, m := range s.messages {
		if m.SenderID == senderID && m.ReceiverID == readerID && !m.Read {
			n++
		}
	}
	return n, nil
}

func (s *memoryStore) all() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Message(nil), s.messages...)
}

// keywordModerator 只要包含 term 就判定違規
type keywordModerator struct {
	term string
}

func (m keywordModerator) Moderate(_ context.Context, text string) moderation.Verdict {
	if m.term != "" && strings.Contains(text, m.term) {
		return moderation.Verdict{
			Flagged:        true,
			Categories:     map[string]bool{"sexual": true},
			CategoryScores: map[string]float64{"sexual": 0.9},
			Reason:         moderation.FallbackReason,
			Source:         moderation.SourceFallback,
		}
	}
	return moderation.Verdict{Categories: map[string]bool{}, CategoryScores: map[string]float64{}}
}

type scriptedReplier struct {
	mu    sync.Mutex
	text  string
	turns [][]assistant.Turn
}

func (r *scriptedReplier) Reply(_ context.Context, turns []assistant.Turn) assistant.Reply {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns = append(r.turns, turns)
	if r.text == "" {
		return assistant.Reply{Text: assistant.FallbackReplies[0], Fallback: true}
	}
	return assistant.Reply{Text: r.text}
}

type testEnv struct {
	store    *memoryStore
	replier  *scriptedReplier
	services *Services
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := &memoryStore{}
	replier := &scriptedReplier{text: "hey there"}
	services := NewServices(Dependencies{
		Repos:            &repository.Repositories{Message: store},
		Moderator:        keywordModerator{term: "naked"},
		Assistant:        replier,
		MaxContentLength: 100,
		Limits:           ClientLimits{SendBuffer: 16},
		Log:              zap.NewNop(),
	})
	return &testEnv{store: store, replier: replier, services: services}
}

// join 建立已登記的連線並加入與 contact 的對話房間
func (e *testEnv) join(userID, contact uint) *Client {
	client := e.services.WebSocket.NewClient(nil, userID)
	e.services.Router.Register(client)
	e.services.Router.Subscribe(client, models.ChatRoomID(userID, contact))
	return client
}

func drain(c *Client) []Envelope {
	var out []Envelope
	for {
		select {
		case env, ok := <-c.SendChan:
			if !ok {
				return out
			}
			out = append(out, env)
		default:
			return out
		}
	}
}

func decode[T any](t *testing.T, env Envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}
