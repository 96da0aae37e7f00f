// Package events 把已儲存的消息以 message.sent 事件寫到 Kafka，供下游服務消費。
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"chat_web/internal/models"
)

const EventMessageSent = "message.sent"

// MessageSent 是寫入 Kafka 的事件內容，不含消息本文
type MessageSent struct {
	Event           string    `json:"event"`
	MessageID       uint      `json:"message_id"`
	SenderID        uint      `json:"sender_id"`
	ReceiverID      uint      `json:"receiver_id"`
	ConversationKey string    `json:"conversation_key"`
	MessageType     string    `json:"message_type"`
	IsAIGenerated   bool      `json:"is_ai_generated"`
	Timestamp       time.Time `json:"timestamp"`
}

type Publisher interface {
	MessageSent(ctx context.Context, message *models.Message) error
	Close() error
}

// NopPublisher 在未啟用 Kafka 時使用
type NopPublisher struct{}

func (NopPublisher) MessageSent(context.Context, *models.Message) error { return nil }
func (NopPublisher) Close() error                                       { return nil }

type KafkaPublisher struct {
	writer *kafka.Writer
	log    *zap.Logger
}

// NewKafkaPublisher 使用非同步寫入，同一對話的事件以 conversation key 分到同一個 partition
func NewKafkaPublisher(brokers []string, topic string, log *zap.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				log.Warn("kafka write failed", zap.Int("count", len(messages)), zap.Error(err))
			}
		},
	}
	return &KafkaPublisher{writer: writer, log: log}
}

func (p *KafkaPublisher) MessageSent(ctx context.Context, message *models.Message) error {
	msg, err := Encode(message)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Encode 把消息轉成 Kafka message
func Encode(message *models.Message) (kafka.Message, error) {
	key := message.Key().String()
	value, err := json.Marshal(MessageSent{
		Event:           EventMessageSent,
		MessageID:       message.ID,
		SenderID:        message.SenderID,
		ReceiverID:      message.ReceiverID,
		ConversationKey: key,
		MessageType:     string(message.MessageType),
		IsAIGenerated:   message.IsAIGenerated,
		Timestamp:       message.Timestamp.UTC(),
	})
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal %s: %w", EventMessageSent, err)
	}
	return kafka.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(EventMessageSent)},
		},
	}, nil
}
