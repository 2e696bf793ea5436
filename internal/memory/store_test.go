package memory_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"assistant-backend/internal/database"
	"assistant-backend/internal/memory"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) (*memory.Store, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.GetMigrator(db).Migrate())

	t.Cleanup(func() {
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})
	return memory.NewStore(memory.NewDatabaseTier(db)), db
}

func newChat(t *testing.T, db *gorm.DB) uuid.UUID {
	t.Helper()

	now := time.Now().UTC()
	user := database.User{Id: uuid.New(), Username: "Guest", IsGuest: true, CreatedAt: now, LastSeen: now}
	require.NoError(t, db.Create(&user).Error)

	chat := database.Chat{Id: uuid.New(), UserId: user.Id, Name: "test chat", Created: now, Updated: now}
	require.NoError(t, db.Create(&chat).Error)
	return chat.Id
}

func TestGetAllEmpty(t *testing.T) {
	store, db := newTestStore(t)

	values, err := store.GetAll(context.Background(), newChat(t, db))
	require.NoError(t, err)
	assert.Empty(t, values)
}

func TestUpdateLastWriteWins(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()
	chatId := newChat(t, db)

	require.NoError(t, store.Update(ctx, chatId, "k", "v1"))
	require.NoError(t, store.Update(ctx, chatId, "k", "v2"))

	values, err := store.GetAll(ctx, chatId)
	require.NoError(t, err)
	assert.JSONEq(t, `"v2"`, string(values["k"]))
}

func TestMemoryIsolatedPerChat(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()
	first := newChat(t, db)
	second := newChat(t, db)

	require.NoError(t, store.Update(ctx, first, "name", "Ada"))

	values, err := store.GetAll(ctx, second)
	require.NoError(t, err)
	assert.NotContains(t, values, "name")
}

func TestNestedValueRoundTrip(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()
	chatId := newChat(t, db)

	original := map[string]any{
		"color": "blue",
		"qty":   float64(7),
		"tags":  []any{"a", "b"},
		"meta":  map[string]any{"depth": float64(2)},
	}
	require.NoError(t, store.Update(ctx, chatId, "doc", original))

	raw, ok, err := store.Get(ctx, chatId, "doc")
	require.NoError(t, err)
	require.True(t, ok)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, original, decoded)
}

func TestAppendToListSequential(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()
	chatId := newChat(t, db)

	require.NoError(t, store.AppendToList(ctx, chatId, memory.KeyLessons, "a"))
	require.NoError(t, store.AppendToList(ctx, chatId, memory.KeyLessons, "b"))

	raw, ok, err := store.Get(ctx, chatId, memory.KeyLessons)
	require.NoError(t, err)
	require.True(t, ok)

	var lessons []string
	require.NoError(t, json.Unmarshal(raw, &lessons))
	assert.Equal(t, []string{"a", "b"}, lessons)
}

func TestAppendToListConcurrent(t *testing.T) {
	store, db := newTestStore(t)
	chatId := newChat(t, db)

	const callers = 50
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := store.AppendToList(context.Background(), chatId, memory.KeyLessons, fmt.Sprintf("lesson %d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	raw, ok, err := store.Get(context.Background(), chatId, memory.KeyLessons)
	require.NoError(t, err)
	require.True(t, ok)

	var lessons []string
	require.NoError(t, json.Unmarshal(raw, &lessons))
	assert.Len(t, lessons, callers)
}

func TestAddAPIRecordConcurrent(t *testing.T) {
	store, db := newTestStore(t)
	chatId := newChat(t, db)

	const callers = 50
	var wg sync.WaitGroup
	keys := make([]string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			record := memory.APIRecord{URL: fmt.Sprintf("https://example.com/%d", i), FetchedAt: time.Now().UTC()}
			key, err := store.AddAPIRecord(context.Background(), chatId, record)
			assert.NoError(t, err)
			keys[i] = key
		}(i)
	}
	wg.Wait()

	// Every fetch got its own key, so no record was overwritten.
	seen := make(map[string]bool, callers)
	for _, key := range keys {
		assert.False(t, seen[key], "key %s assigned twice", key)
		seen[key] = true
	}

	raw, ok, err := store.Get(context.Background(), chatId, memory.KeyAPIs)
	require.NoError(t, err)
	require.True(t, ok)

	var apis map[string]memory.APIRecord
	require.NoError(t, json.Unmarshal(raw, &apis))
	assert.Len(t, apis, callers)
}

func TestUpdateMapEntry(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()
	chatId := newChat(t, db)

	require.NoError(t, store.AddFile(ctx, chatId, "notes.txt", memory.FileRecord{Type: "text", Content: "hello"}))
	require.NoError(t, store.AddFile(ctx, chatId, "data.json", memory.FileRecord{Type: "json", Content: `{"x":1}`}))

	raw, ok, err := store.Get(ctx, chatId, memory.KeyFiles)
	require.NoError(t, err)
	require.True(t, ok)

	var files map[string]memory.FileRecord
	require.NoError(t, json.Unmarshal(raw, &files))
	require.Len(t, files, 2)
	assert.Equal(t, "hello", files["notes.txt"].Content)
}

func TestClear(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()
	chatId := newChat(t, db)

	require.NoError(t, store.Update(ctx, chatId, "name", "Ada"))
	require.NoError(t, store.Clear(ctx, chatId))

	values, err := store.GetAll(ctx, chatId)
	require.NoError(t, err)
	assert.Empty(t, values)
}

func TestApplyFacts(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()
	chatId := newChat(t, db)

	require.NoError(t, store.Apply(ctx, chatId, memory.Fact{Kind: memory.FactName, Payload: "Ada"}))
	require.NoError(t, store.Apply(ctx, chatId, memory.Fact{Kind: memory.FactLesson, Payload: "prefers short answers"}))

	values, err := store.GetAll(ctx, chatId)
	require.NoError(t, err)
	assert.JSONEq(t, `"Ada"`, string(values[memory.KeyName]))
	assert.JSONEq(t, `["prefers short answers"]`, string(values[memory.KeyLessons]))
}
