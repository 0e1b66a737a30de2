package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
)

// DocumentStatus is the cached snapshot served by the status endpoint while
// an async ingestion is in flight. The registry row stays authoritative; the
// short TTL bounds how stale a hit can be.
type DocumentStatus struct {
	DocumentID   string     `json:"document_id"`
	OwnerID      string     `json:"owner_id"`
	Filename     string     `json:"filename"`
	Status       string     `json:"status"`
	ChunkCount   int        `json:"chunk_count"`
	UploadDate   time.Time  `json:"upload_date"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

type StatusCache struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewStatusCache(client *redisv9.Client, ttl time.Duration) *StatusCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &StatusCache{client: client, ttl: ttl}
}

func (c *StatusCache) Get(ctx context.Context, documentID string) (*DocumentStatus, bool, error) {
	raw, err := c.client.Get(ctx, c.key(documentID)).Result()
	if err == redisv9.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get document status failed: %w", err)
	}

	var status DocumentStatus
	if err := json.Unmarshal([]byte(raw), &status); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached document status failed: %w", err)
	}
	return &status, true, nil
}

func (c *StatusCache) Set(ctx context.Context, status DocumentStatus) error {
	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshal document status failed: %w", err)
	}
	if err := c.client.Set(ctx, c.key(status.DocumentID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set document status failed: %w", err)
	}
	return nil
}

// Invalidate drops the cached snapshot after a status transition or delete
// so the next read goes back to the registry.
func (c *StatusCache) Invalidate(ctx context.Context, documentID string) error {
	if err := c.client.Del(ctx, c.key(documentID)).Err(); err != nil {
		return fmt.Errorf("redis delete document status failed: %w", err)
	}
	return nil
}

func (c *StatusCache) key(documentID string) string {
	return fmt.Sprintf("rag:doc:status:%s", documentID)
}
