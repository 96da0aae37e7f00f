package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chat_web/internal/models"
)

func TestEncode_KeyedByConversation(t *testing.T) {
	req := require.New(t)
	msg := models.NewTextMessage(9, 4, "secret body", models.MessageTypeImage)
	msg.ID = 12
	msg.Timestamp = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	encoded, err := Encode(msg)
	req.NoError(err)
	req.Equal("4:9", string(encoded.Key))
	req.Len(encoded.Headers, 1)
	req.Equal(EventMessageSent, string(encoded.Headers[0].Value))

	var event MessageSent
	req.NoError(json.Unmarshal(encoded.Value, &event))
	req.Equal(uint(12), event.MessageID)
	req.Equal("4:9", event.ConversationKey)
	req.Equal("image", event.MessageType)
	req.True(event.Timestamp.Equal(msg.Timestamp))
	req.NotContains(string(encoded.Value), "secret body")

	reverse := models.NewTextMessage(4, 9, "x", "")
	encodedReverse, err := Encode(reverse)
	req.NoError(err)
	req.Equal(encoded.Key, encodedReverse.Key)
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	require.NoError(t, p.MessageSent(context.Background(), models.NewTextMessage(1, 2, "x", "")))
	require.NoError(t, p.Close())
}
