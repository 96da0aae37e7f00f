package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"

	"chat_web/internal/models"
)

// 客戶端送來的事件
const (
	EventSendMessage = "send_message"
	EventJoinChat    = "join_chat"
	EventLeaveChat   = "leave_chat"
	EventPing        = "ping"
)

// 伺服器送出的事件
const (
	EventConnected      = "connected"
	EventNewMessage     = "new_message"
	EventMessageBlocked = "message_blocked"
	EventError          = "error"
	EventJoinedRoom     = "joined_room"
	EventLeftRoom       = "left_room"
	EventPong           = "pong"
)

// Envelope 是 WebSocket 上每個 frame 的格式
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope 預先序列化 payload，讓所有訂閱者共用同一份 bytes
func NewEnvelope(event string, payload interface{}) Envelope {
	if payload == nil {
		return Envelope{Event: event}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		// payload 都是固定的 struct，這裡只會在程式錯誤時發生
		data, _ = json.Marshal(ErrorPayload{Message: "internal encoding error"})
		return Envelope{Event: EventError, Data: data}
	}
	return Envelope{Event: event, Data: data}
}

// SendMessageRequest 對應 send_message 事件
type SendMessageRequest struct {
	ReceiverID uint   `json:"receiver_id" validate:"required"`
	Content    string `json:"content" validate:"required,notblank"`
	Type       string `json:"type" validate:"omitempty,oneof=text image audio video"`
	AIResponse bool   `json:"ai_response"`
}

// JoinChatRequest 對應 join_chat / leave_chat 事件，沒有 contact_id 時使用私人房間
type JoinChatRequest struct {
	ContactID *uint `json:"contact_id"`
}

// Room 依照請求決定房間
func (r JoinChatRequest) Room(userID uint) models.RoomID {
	if r.ContactID == nil {
		return models.UserRoomID(userID)
	}
	return models.ChatRoomID(userID, *r.ContactID)
}

// MessagePayload 是 new_message 事件與歷史紀錄的消息格式
type MessagePayload struct {
	ID            uint   `json:"id"`
	SenderID      uint   `json:"sender_id"`
	ReceiverID    uint   `json:"receiver_id"`
	Content       string `json:"content"`
	MessageType   string `json:"message_type"`
	Timestamp     string `json:"timestamp"`
	Read          bool   `json:"read"`
	IsAIGenerated bool   `json:"is_ai_generated"`
}

func NewMessagePayload(m *models.Message) MessagePayload {
	return MessagePayload{
		ID:            m.ID,
		SenderID:      m.SenderID,
		ReceiverID:    m.ReceiverID,
		Content:       m.Content,
		MessageType:   string(m.MessageType),
		Timestamp:     m.Timestamp.UTC().Format(time.RFC3339Nano),
		Read:          m.Read,
		IsAIGenerated: m.IsAIGenerated,
	}
}

type BlockedPayload struct {
	Message string `json:"message"`
	Reason  string `json:"reason"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type RoomPayload struct {
	Room models.RoomID `json:"room"`
}

type ConnectedPayload struct {
	Data   string `json:"data"`
	UserID uint   `json:"user_id"`
}

// requestValidator 在消息進入 pipeline 前檢查欄位
type requestValidator struct {
	validate         *validator.Validate
	maxContentLength int
}

func newRequestValidator(maxContentLength int) *requestValidator {
	v := validator.New()
	_ = v.RegisterValidation("notblank", validators.NotBlank)
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	return &requestValidator{validate: v, maxContentLength: maxContentLength}
}

func (v *requestValidator) SendMessage(req SendMessageRequest) error {
	if err := v.validate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			if fe.Tag() == "required" || fe.Tag() == "notblank" {
				return fmt.Errorf("%w: missing required field %s", ErrMalformedRequest, fe.Field())
			}
			return fmt.Errorf("%w: invalid field %s", ErrMalformedRequest, fe.Field())
		}
		return fmt.Errorf("%w: %w", ErrMalformedRequest, err)
	}
	if v.maxContentLength > 0 && utf8.RuneCountInString(req.Content) > v.maxContentLength {
		return fmt.Errorf("%w: content exceeds %d characters", ErrMalformedRequest, v.maxContentLength)
	}
	return nil
}
