package models

import (
	"fmt"
	"time"
)

// MessageType 定義消息內容的種類
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeAudio MessageType = "audio"
	MessageTypeVideo MessageType = "video"
)

// Message 代表兩位用戶之間的一條消息，除了 Read 以外建立後不可變
type Message struct {
	ID            uint        `gorm:"primaryKey;autoIncrement" json:"id"`
	SenderID      uint        `gorm:"not null;index:idx_pair" json:"sender_id"`
	ReceiverID    uint        `gorm:"not null;index:idx_pair" json:"receiver_id"`
	Content       string      `gorm:"type:text;not null" json:"content"`
	MessageType   MessageType `gorm:"type:varchar(20);not null;default:text" json:"message_type"`
	Timestamp     time.Time   `gorm:"not null;index" json:"timestamp"`
	Read          bool        `gorm:"not null;default:false" json:"read"`
	IsAIGenerated bool        `gorm:"not null;default:false" json:"is_ai_generated"`
}

// ConversationKey 是兩位參與者的無序配對
type ConversationKey struct {
	Low  uint
	High uint
}

// NewConversationKey 不論傳入順序都回傳相同的 key
func NewConversationKey(a, b uint) ConversationKey {
	if a > b {
		a, b = b, a
	}
	return ConversationKey{Low: a, High: b}
}

func (k ConversationKey) String() string {
	return fmt.Sprintf("%d:%d", k.Low, k.High)
}

// Key 回傳消息所屬的對話
func (m *Message) Key() ConversationKey {
	return NewConversationKey(m.SenderID, m.ReceiverID)
}

// Counterpart 回傳對話中 userID 以外的另一方
func (m *Message) Counterpart(userID uint) uint {
	if m.SenderID == userID {
		return m.ReceiverID
	}
	return m.SenderID
}

// NewTextMessage 創建一條由真人發送的消息
func NewTextMessage(senderID, receiverID uint, content string, messageType MessageType) *Message {
	if messageType == "" {
		messageType = MessageTypeText
	}
	return &Message{
		SenderID:    senderID,
		ReceiverID:  receiverID,
		Content:     content,
		MessageType: messageType,
	}
}

// NewSyntheticMessage 創建一條 AI 以對方身份回覆的消息
func NewSyntheticMessage(senderID, receiverID uint, content string) *Message {
	return &Message{
		SenderID:      senderID,
		ReceiverID:    receiverID,
		Content:       content,
		MessageType:   MessageTypeText,
		IsAIGenerated: true,
	}
}
