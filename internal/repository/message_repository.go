package repository

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"chat_web/internal/models"
	"chat_web/internal/storage"
)

// ErrStoreUnavailable 表示持久化後端無法完成讀寫
var ErrStoreUnavailable = errors.New("store unavailable")

// MessageRepository 是只能追加的對話紀錄，以無序配對查詢
type MessageRepository interface {
	// Append 指派 ID 與時間戳並寫入，成功後 message 即為已儲存的紀錄
	Append(ctx context.Context, message *models.Message) error
	// History 回傳最新在前的最多 limit 條消息，limit <= 0 表示不限
	History(ctx context.Context, userA, userB uint, limit int) ([]models.Message, error)
	// MarkRead 將 senderID 發給 readerID 的未讀消息標為已讀，回傳更新的筆數
	MarkRead(ctx context.Context, senderID, readerID uint) (int64, error)
	CountUnread(ctx context.Context, senderID, readerID uint) (int64, error)
}

type messageRepository struct {
	db      *storage.PostgresDB
	timeout time.Duration
	clock   *storeClock
}

func NewMessageRepository(db *storage.PostgresDB, timeout time.Duration) MessageRepository {
	return &messageRepository{
		db:      db,
		timeout: timeout,
		clock:   newStoreClock(time.Now),
	}
}

func (r *messageRepository) Append(ctx context.Context, message *models.Message) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	message.ID = 0
	message.Read = false
	if message.MessageType == "" {
		message.MessageType = models.MessageTypeText
	}

	// 以對話中已儲存的最新時間戳為下限，不同實例的時鐘不一致時順序仍然正確
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var latest []models.Message
		err := pairScope(tx, message.SenderID, message.ReceiverID).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "timestamp").
			Order("timestamp DESC").
			Limit(1).
			Find(&latest).Error
		if err != nil {
			return err
		}

		var floor time.Time
		if len(latest) > 0 {
			floor = latest[0].Timestamp
		}
		message.Timestamp = r.clock.NextAfter(floor)
		return tx.Create(message).Error
	})
	if err != nil {
		return unavailable("append", err)
	}
	return nil
}

func (r *messageRepository) History(ctx context.Context, userA, userB uint, limit int) ([]models.Message, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := pairScope(r.db.WithContext(ctx), userA, userB).
		Order("timestamp DESC").
		Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var messages []models.Message
	if err := query.Find(&messages).Error; err != nil {
		return nil, unavailable("history", err)
	}
	return messages, nil
}

func (r *messageRepository) MarkRead(ctx context.Context, senderID, readerID uint) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	result := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("sender_id = ? AND receiver_id = ? AND read = ?", senderID, readerID, false).
		Update("read", true)
	if result.Error != nil {
		return 0, unavailable("mark read", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *messageRepository) CountUnread(ctx context.Context, senderID, readerID uint) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("sender_id = ? AND receiver_id = ? AND read = ?", senderID, readerID, false).
		Count(&count).Error
	if err != nil {
		return 0, unavailable("count unread", err)
	}
	return count, nil
}

func (r *messageRepository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

func pairScope(db *gorm.DB, userA, userB uint) *gorm.DB {
	return db.Model(&models.Message{}).
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
			userA, userB, userB, userA)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}

// storeClock 產生單調不遞減、微秒精度的 UTC 時間戳，與 PostgreSQL 的精度一致
type storeClock struct {
	last atomic.Int64
	now  func() time.Time
}

func newStoreClock(now func() time.Time) *storeClock {
	return &storeClock{now: now}
}

func (c *storeClock) Next() time.Time {
	return c.NextAfter(time.Time{})
}

// NextAfter 同 Next，但結果不早於 floor
func (c *storeClock) NextAfter(floor time.Time) time.Time {
	for {
		last := c.last.Load()
		next := c.now().UnixMicro()
		if next < last {
			next = last
		}
		if !floor.IsZero() && next < floor.UnixMicro() {
			next = floor.UnixMicro()
		}
		if c.last.CompareAndSwap(last, next) {
			return time.UnixMicro(next).UTC()
		}
	}
}
