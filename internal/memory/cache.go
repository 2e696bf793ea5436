package memory

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

type cacheEntry struct {
	values       map[string]json.RawMessage
	lastAccessed time.Time
}

// sessionCache is the transient tier: it holds recently written entries so
// reads can see a write before the durable tier has caught up. When full, the
// least recently accessed chat is evicted; evictions only lose the masking
// effect, never data.
type sessionCache struct {
	lock    sync.Mutex
	chats   map[uuid.UUID]*cacheEntry
	maxSize int
}

func newSessionCache(maxSize int) *sessionCache {
	return &sessionCache{
		chats:   make(map[uuid.UUID]*cacheEntry, maxSize),
		maxSize: maxSize,
	}
}

func (c *sessionCache) get(chatId uuid.UUID) map[string]json.RawMessage {
	c.lock.Lock()
	defer c.lock.Unlock()

	entry, exists := c.chats[chatId]
	if !exists {
		return nil
	}
	entry.lastAccessed = time.Now()

	values := make(map[string]json.RawMessage, len(entry.values))
	for k, v := range entry.values {
		values[k] = v
	}
	return values
}

func (c *sessionCache) put(chatId uuid.UUID, key string, value json.RawMessage) {
	c.lock.Lock()
	defer c.lock.Unlock()

	entry, exists := c.chats[chatId]
	if !exists {
		if len(c.chats) >= c.maxSize {
			oldestChatId := uuid.Nil
			var oldestTime time.Time
			for id, e := range c.chats {
				if oldestChatId == uuid.Nil || e.lastAccessed.Before(oldestTime) {
					oldestChatId = id
					oldestTime = e.lastAccessed
				}
			}
			delete(c.chats, oldestChatId)
		}

		entry = &cacheEntry{values: make(map[string]json.RawMessage)}
		c.chats[chatId] = entry
	}

	entry.values[key] = value
	entry.lastAccessed = time.Now()
}

func (c *sessionCache) drop(chatId uuid.UUID) {
	c.lock.Lock()
	defer c.lock.Unlock()
	delete(c.chats, chatId)
}
