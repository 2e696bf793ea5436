package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// BadgerTier is a flat-file durable tier for deployments without a relational
// store. Entries live under "<chatId>/<key>" with JSON values, so nested
// types round-trip exactly.
type BadgerTier struct {
	db *badger.DB
}

func NewBadgerTier(dirPath string) (*BadgerTier, error) {
	opts := badger.DefaultOptions(dirPath).
		WithLoggingLevel(badger.ERROR)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open memory database: %w", err)
	}

	return &BadgerTier{db: db}, nil
}

func (t *BadgerTier) Close() error {
	if t.db != nil {
		return t.db.Close()
	}
	return nil
}

func entryKey(chatId uuid.UUID, key string) []byte {
	return []byte(chatId.String() + "/" + key)
}

func chatPrefix(chatId uuid.UUID) []byte {
	return []byte(chatId.String() + "/")
}

func (t *BadgerTier) Load(ctx context.Context, chatId uuid.UUID) (map[string]json.RawMessage, error) {
	values := make(map[string]json.RawMessage)

	err := t.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		prefix := chatPrefix(chatId)
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := string(bytes.TrimPrefix(item.Key(), prefix))

			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			values[key] = json.RawMessage(value)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading memory entries: %w", err)
	}
	return values, nil
}

func (t *BadgerTier) Store(ctx context.Context, chatId uuid.UUID, key string, value json.RawMessage) error {
	err := t.db.Update(func(txn *badger.Txn) error {
		return txn.Set(entryKey(chatId, key), value)
	})
	if err != nil {
		return fmt.Errorf("storing memory entry %q: %w", key, err)
	}
	return nil
}

func (t *BadgerTier) Clear(ctx context.Context, chatId uuid.UUID) error {
	// Collect keys under a read transaction first; deleting while iterating
	// the same transaction invalidates the iterator.
	var keys [][]byte
	err := t.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = chatPrefix(chatId)
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("listing memory entries: %w", err)
	}

	err = t.db.Update(func(txn *badger.Txn) error {
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("clearing memory entries: %w", err)
	}
	return nil
}
