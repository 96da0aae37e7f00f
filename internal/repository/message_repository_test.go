package repository

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"chat_web/internal/models"
	"chat_web/internal/storage"
)

func newTestDB(t *testing.T) *storage.PostgresDB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "chat.db") + "?_pragma=busy_timeout(5000)"
	db, err := storage.Open(sqlite.Open(dsn))
	require.NoError(t, err)
	sqlDB, err := db.DB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.Message{}))
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestRepo(t *testing.T) (MessageRepository, *storage.PostgresDB) {
	t.Helper()
	db := newTestDB(t)
	return NewMessageRepository(db, time.Second), db
}

func contents(messages []models.Message) []string {
	return lo.Map(messages, func(m models.Message, _ int) string { return m.Content })
}

func TestAppend_AssignsIDAndTimestamp(t *testing.T) {
	req := require.New(t)
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	msg := models.NewTextMessage(1, 2, "hello", "")
	msg.Read = true
	req.NoError(repo.Append(ctx, msg))

	req.NotZero(msg.ID)
	req.False(msg.Timestamp.IsZero())
	req.False(msg.Read, "read flag always starts false")
	req.Equal(models.MessageTypeText, msg.MessageType)

	second := models.NewTextMessage(2, 1, "hi", models.MessageTypeImage)
	req.NoError(repo.Append(ctx, second))
	req.Greater(second.ID, msg.ID)
	req.False(second.Timestamp.Before(msg.Timestamp))
}

func TestHistory_MostRecentFirstForBothOrderings(t *testing.T) {
	req := require.New(t)
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	req.NoError(repo.Append(ctx, models.NewTextMessage(1, 2, "m1", "")))
	req.NoError(repo.Append(ctx, models.NewTextMessage(2, 1, "m2", "")))
	req.NoError(repo.Append(ctx, models.NewTextMessage(1, 3, "other conversation", "")))

	ab, err := repo.History(ctx, 1, 2, 10)
	req.NoError(err)
	ba, err := repo.History(ctx, 2, 1, 10)
	req.NoError(err)

	req.Equal([]string{"m2", "m1"}, contents(ab))
	req.Equal(lo.Map(ab, func(m models.Message, _ int) uint { return m.ID }),
		lo.Map(ba, func(m models.Message, _ int) uint { return m.ID }))
}

func TestHistory_Limit(t *testing.T) {
	req := require.New(t)
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	for _, content := range []string{"a", "b", "c", "d"} {
		req.NoError(repo.Append(ctx, models.NewTextMessage(1, 2, content, "")))
	}

	limited, err := repo.History(ctx, 1, 2, 2)
	req.NoError(err)
	req.Equal([]string{"d", "c"}, contents(limited))

	all, err := repo.History(ctx, 2, 1, 0)
	req.NoError(err)
	req.Len(all, 4)

	empty, err := repo.History(ctx, 5, 6, 10)
	req.NoError(err)
	req.Empty(empty)
}

func TestMarkRead_IsIdempotent(t *testing.T) {
	req := require.New(t)
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	req.NoError(repo.Append(ctx, models.NewTextMessage(1, 2, "one", "")))
	req.NoError(repo.Append(ctx, models.NewTextMessage(1, 2, "two", "")))
	req.NoError(repo.Append(ctx, models.NewTextMessage(2, 1, "reply", "")))

	updated, err := repo.MarkRead(ctx, 1, 2)
	req.NoError(err)
	req.Equal(int64(2), updated)

	after := func() []bool {
		history, err := repo.History(ctx, 1, 2, 0)
		req.NoError(err)
		return lo.Map(history, func(m models.Message, _ int) bool { return m.Read })
	}
	first := after()

	updated, err = repo.MarkRead(ctx, 1, 2)
	req.NoError(err)
	req.Zero(updated)
	req.Equal(first, after())
	req.Equal([]bool{false, true, true}, first)

	unread, err := repo.CountUnread(ctx, 2, 1)
	req.NoError(err)
	req.Equal(int64(1), unread)
}

func TestAppend_ConcurrentWritersKeepTotalOrder(t *testing.T) {
	req := require.New(t)
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	const writers = 20
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sender, receiver := uint(1), uint(2)
			if i%2 == 0 {
				sender, receiver = receiver, sender
			}
			errs <- repo.Append(ctx, models.NewTextMessage(sender, receiver, "concurrent", ""))
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		req.NoError(err)
	}

	history, err := repo.History(ctx, 1, 2, 0)
	req.NoError(err)
	req.Len(history, writers)
	for i := 1; i < len(history); i++ {
		req.False(history[i].Timestamp.After(history[i-1].Timestamp))
	}
	req.Len(lo.UniqBy(history, func(m models.Message) uint { return m.ID }), writers)
}

func TestStoreUnavailable(t *testing.T) {
	req := require.New(t)
	repo, db := newTestRepo(t)
	ctx := context.Background()
	req.NoError(db.Close())

	err := repo.Append(ctx, models.NewTextMessage(1, 2, "lost", ""))
	req.ErrorIs(err, ErrStoreUnavailable)

	_, err = repo.History(ctx, 1, 2, 10)
	req.ErrorIs(err, ErrStoreUnavailable)

	_, err = repo.MarkRead(ctx, 1, 2)
	req.ErrorIs(err, ErrStoreUnavailable)
}

func TestAppend_LaggingInstanceClockKeepsAppendOrder(t *testing.T) {
	req := require.New(t)
	db := newTestDB(t)
	ctx := context.Background()

	ahead := &messageRepository{db: db, timeout: time.Second, clock: newStoreClock(time.Now)}
	behind := &messageRepository{db: db, timeout: time.Second, clock: newStoreClock(func() time.Time {
		return time.Now().Add(-50 * time.Millisecond)
	})}

	first := models.NewTextMessage(1, 2, "m1", "")
	req.NoError(ahead.Append(ctx, first))
	second := models.NewTextMessage(2, 1, "m2", "")
	req.NoError(behind.Append(ctx, second))
	req.False(second.Timestamp.Before(first.Timestamp))

	history, err := behind.History(ctx, 1, 2, 10)
	req.NoError(err)
	req.Equal([]string{"m2", "m1"}, contents(history))
}

func TestStoreClock_NextAfterFloor(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := newStoreClock(func() time.Time { return base })

	floor := base.Add(time.Second)
	require.Equal(t, floor, clock.NextAfter(floor))
	require.Equal(t, floor, clock.Next(), "clock never returns below a floor it has issued")
}

func TestStoreClock_NeverGoesBackwards(t *testing.T) {
	req := require.New(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ticks := []time.Time{base, base.Add(-time.Second), base.Add(time.Millisecond)}
	i := 0
	clock := newStoreClock(func() time.Time {
		now := ticks[i]
		i++
		return now
	})

	first := clock.Next()
	second := clock.Next()
	third := clock.Next()
	req.Equal(base, first)
	req.Equal(first, second, "wall clock stepping back is clamped")
	req.Equal(base.Add(time.Millisecond), third)
}
