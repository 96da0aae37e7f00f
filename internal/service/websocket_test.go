package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"chat_web/internal/models"
)

func TestDispatch_JoinAndLeave(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	ws := env.services.WebSocket
	client := ws.NewClient(nil, 1)
	env.services.Router.Register(client)
	ctx := context.Background()

	ws.Dispatch(ctx, client, []byte(`{"event":"join_chat","data":{"contact_id":2}}`))
	ws.Dispatch(ctx, client, []byte(`{"event":"join_chat"}`))
	events := drain(client)
	req.Len(events, 2)
	req.Equal(EventJoinedRoom, events[0].Event)
	req.Equal(models.RoomID("chat_1_2"), decode[RoomPayload](t, events[0]).Room)
	req.Equal(models.RoomID("user_1"), decode[RoomPayload](t, events[1]).Room)
	req.Equal(1, env.services.Router.RoomSize("chat_1_2"))

	ws.Dispatch(ctx, client, []byte(`{"event":"leave_chat","data":{"contact_id":2}}`))
	events = drain(client)
	req.Len(events, 1)
	req.Equal(EventLeftRoom, events[0].Event)
	req.Zero(env.services.Router.RoomSize("chat_1_2"))
	req.Equal(1, env.services.Router.RoomSize("user_1"))
}

func TestDispatch_SendMessage(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	alice := env.join(1, 2)
	bob := env.join(2, 1)

	env.services.WebSocket.Dispatch(context.Background(), alice,
		[]byte(`{"event":"send_message","data":{"receiver_id":2,"content":"hi","type":"text"}}`))

	req.Len(env.store.all(), 1)
	events := drain(bob)
	req.Len(events, 1)
	req.Equal(EventNewMessage, events[0].Event)
}

func TestDispatch_Errors(t *testing.T) {
	cases := []struct {
		name  string
		frame string
		want  string
	}{
		{"not json", `{"event":`, ErrMalformedRequest.Error()},
		{"no event", `{"data":{}}`, ErrMalformedRequest.Error()},
		{"unknown event", `{"event":"dance"}`, ErrUnknownEvent.Error()},
		{"bad receiver type", `{"event":"send_message","data":{"receiver_id":"two","content":"hi"}}`, "receiver_id"},
		{"negative receiver", `{"event":"send_message","data":{"receiver_id":-1,"content":"hi"}}`, "receiver_id"},
		{"bad contact", `{"event":"join_chat","data":{"contact_id":"x"}}`, "contact_id"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := require.New(t)
			env := newTestEnv(t)
			client := env.join(1, 2)

			env.services.WebSocket.Dispatch(context.Background(), client, []byte(tc.frame))

			events := drain(client)
			req.Len(events, 1)
			req.Equal(EventError, events[0].Event)
			req.Contains(decode[ErrorPayload](t, events[0]).Message, tc.want)
			req.Empty(env.store.all())
		})
	}
}

func TestDispatch_Ping(t *testing.T) {
	env := newTestEnv(t)
	client := env.join(1, 2)
	env.services.WebSocket.Dispatch(context.Background(), client, []byte(`{"event":"ping"}`))

	events := drain(client)
	require.Len(t, events, 1)
	require.Equal(t, EventPong, events[0].Event)
	require.Empty(t, events[0].Data)
}

func TestDispatch_RateLimited(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	client := NewClient(nil, 1, 16, rate.NewLimiter(rate.Limit(0.001), 1))
	env.services.Router.Register(client)
	env.services.Router.Subscribe(client, models.ChatRoomID(1, 2))
	frame := []byte(`{"event":"send_message","data":{"receiver_id":2,"content":"hi"}}`)

	env.services.WebSocket.Dispatch(context.Background(), client, frame)
	env.services.WebSocket.Dispatch(context.Background(), client, frame)

	req.Len(env.store.all(), 1)
	events := drain(client)
	req.Len(events, 2)
	req.Equal(EventNewMessage, events[0].Event)
	req.Equal(EventError, events[1].Event)
	req.Equal(ErrRateLimited.Error(), decode[ErrorPayload](t, events[1]).Message)
}

func TestNewClient_LimitsFromConfig(t *testing.T) {
	ws := NewWebSocketService(NewRouter(zap.NewNop()), nil,
		ClientLimits{SendBuffer: 3, RatePerSecond: 2, RateBurst: 4}, zap.NewNop())
	client := ws.NewClient(nil, 7)
	require.Equal(t, 3, cap(client.SendChan))
	require.NotNil(t, client.limiter)
	require.Equal(t, 4, client.limiter.Burst())
	require.NotEmpty(t, client.ID)

	unlimited := NewWebSocketService(NewRouter(zap.NewNop()), nil, ClientLimits{}, zap.NewNop()).NewClient(nil, 7)
	require.Equal(t, 256, cap(unlimited.SendChan))
	require.True(t, unlimited.Allow())
}
