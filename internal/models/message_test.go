package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConversationKey_IsUnordered(t *testing.T) {
	req := require.New(t)
	req.Equal(NewConversationKey(1, 2), NewConversationKey(2, 1))
	req.Equal("1:2", NewConversationKey(2, 1).String())
	req.NotEqual(NewConversationKey(1, 2), NewConversationKey(1, 3))
}

func TestMessage_Counterpart(t *testing.T) {
	msg := NewTextMessage(1, 2, "hello", "")
	require.Equal(t, uint(2), msg.Counterpart(1))
	require.Equal(t, uint(1), msg.Counterpart(2))
	require.Equal(t, MessageTypeText, msg.MessageType)
	require.False(t, msg.IsAIGenerated)
}

func TestPairRooms(t *testing.T) {
	rooms := PairRooms(1, 2)
	require.Equal(t, RoomID("chat_1_2"), rooms[0])
	require.Equal(t, RoomID("chat_2_1"), rooms[1])
	require.Equal(t, RoomID("user_7"), UserRoomID(7))
}

func TestNewSyntheticMessage(t *testing.T) {
	msg := NewSyntheticMessage(2, 1, "hi")
	require.True(t, msg.IsAIGenerated)
	require.Equal(t, MessageTypeText, msg.MessageType)
	require.False(t, msg.Read)
}
