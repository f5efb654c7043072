package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore is a Redis-backed event log for distributed deployments.
// Each conversation keeps an ordered list of entry ids plus a hash of
// entry payloads; a global hash maps entry id back to its conversation so
// Delete works from the id alone.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisStore verifies connectivity and returns a store over client.
func NewRedisStore(client *redis.Client, keyPrefix string) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("client cannot be nil")
	}
	if keyPrefix == "" {
		keyPrefix = "flowline:"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisStore{client: client, keyPrefix: keyPrefix + "log:"}, nil
}

func (s *RedisStore) orderKey(conversationID string) string {
	return s.keyPrefix + "order:" + conversationID
}

func (s *RedisStore) dataKey(conversationID string) string {
	return s.keyPrefix + "data:" + conversationID
}

func (s *RedisStore) indexKey() string {
	return s.keyPrefix + "conv_by_entry"
}

// Append implements Store.
func (s *RedisStore) Append(ctx context.Context, entry *Entry) (string, error) {
	if entry == nil || entry.ConversationID == "" {
		return "", ErrInvalidInput
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("marshal log entry: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, s.orderKey(entry.ConversationID), entry.ID)
	pipe.HSet(ctx, s.dataKey(entry.ConversationID), entry.ID, data)
	pipe.HSet(ctx, s.indexKey(), entry.ID, entry.ConversationID)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("append log entry: %w", err)
	}
	return entry.ID, nil
}

// ListForConversation implements Store, oldest first.
func (s *RedisStore) ListForConversation(ctx context.Context, conversationID string) ([]*Entry, error) {
	ids, err := s.client.LRange(ctx, s.orderKey(conversationID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list log entry ids: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	raw, err := s.client.HMGet(ctx, s.dataKey(conversationID), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("fetch log entries: %w", err)
	}

	out := make([]*Entry, 0, len(raw))
	for _, v := range raw {
		str, ok := v.(string)
		if !ok {
			// Deleted entry whose id is still in the order list.
			continue
		}
		var entry Entry
		if err := json.Unmarshal([]byte(str), &entry); err != nil {
			return nil, fmt.Errorf("unmarshal log entry: %w", err)
		}
		out = append(out, &entry)
	}
	return out, nil
}

// Delete implements Store. The id stays in the order list; reads skip
// entries whose payload is gone.
func (s *RedisStore) Delete(ctx context.Context, entryID string) error {
	conversationID, err := s.client.HGet(ctx, s.indexKey(), entryID).Result()
	if err == redis.Nil {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("resolve log entry conversation: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.HDel(ctx, s.dataKey(conversationID), entryID)
	pipe.HDel(ctx, s.indexKey(), entryID)
	pipe.LRem(ctx, s.orderKey(conversationID), 1, entryID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete log entry: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
