package redisctrl

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"ragmix/src/log"
)

// NewClient connects to redis and verifies the connection with a ping.
func NewClient(ctx context.Context, addr, password string, db int) (*redisv9.Client, error) {
	client := redisv9.NewClient(&redisv9.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis failed: %w", err)
	}

	return client, nil
}

// EmbeddingCache stores query embeddings keyed by model and text hash.
// Cache failures never surface to callers; a broken cache degrades to
// recomputing embeddings.
type EmbeddingCache struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewEmbeddingCache(client *redisv9.Client, ttl time.Duration) *EmbeddingCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &EmbeddingCache{
		client: client,
		ttl:    ttl,
	}
}

func (c *EmbeddingCache) Get(ctx context.Context, model, text string) ([]float32, bool) {
	raw, err := c.client.Get(ctx, c.key(model, text)).Result()
	if err == redisv9.Nil {
		return nil, false
	}
	if err != nil {
		log.Debug("embedding cache get failed", "error", err)
		return nil, false
	}

	var vec []float32
	if err := json.Unmarshal([]byte(raw), &vec); err != nil {
		log.Debug("embedding cache entry corrupt", "error", err)
		return nil, false
	}
	return vec, true
}

func (c *EmbeddingCache) Set(ctx context.Context, model, text string, embedding []float32) {
	payload, err := json.Marshal(embedding)
	if err != nil {
		log.Debug("embedding cache marshal failed", "error", err)
		return
	}
	if err := c.client.Set(ctx, c.key(model, text), payload, c.ttl).Err(); err != nil {
		log.Debug("embedding cache set failed", "error", err)
	}
}

func (c *EmbeddingCache) key(model, text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("emb:%s:%x", model, sum)
}
