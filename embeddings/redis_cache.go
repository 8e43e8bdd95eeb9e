// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/geekhive/toolfinder/logger"
)

const cacheKeyPrefix = "toolfinder:embedding:"

// RedisCache is an EmbeddingProvider that memoizes another provider's vectors
// in Redis. Keys include the model identity so vectors from different models
// never mix. Cache errors are logged and the wrapped provider is used instead.
type RedisCache struct {
	provider EmbeddingProvider
	client   redis.UniversalClient
	model    string
	ttl      time.Duration
	logger   logger.Logger
}

func NewRedisCache(provider EmbeddingProvider, client redis.UniversalClient, model string, ttl time.Duration, log logger.Logger) *RedisCache {
	return &RedisCache{
		provider: provider,
		client:   client,
		model:    model,
		ttl:      ttl,
		logger:   log,
	}
}

func (c *RedisCache) Dimensions() int {
	return c.provider.Dimensions()
}

func (c *RedisCache) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		if vector, decodeErr := decodeVector(data); decodeErr == nil {
			return vector, nil
		}
		c.logger.Warn("Discarding undecodable cached embedding", "key", key)
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("Embedding cache lookup failed", "error", err)
	}

	vector, err := c.provider.CreateEmbedding(ctx, text)
	if err != nil {
		return nil, err
	}

	if err := c.client.Set(ctx, key, encodeVector(vector), c.ttl).Err(); err != nil {
		c.logger.Warn("Embedding cache write failed", "error", err)
	}
	return vector, nil
}

func (c *RedisCache) BatchCreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	keys := make([]string, len(texts))
	for i, text := range texts {
		keys[i] = c.key(text)
	}

	vectors := make([][]float32, len(texts))
	cached, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		c.logger.Warn("Embedding cache lookup failed", "error", err)
		cached = nil
	}
	for i, value := range cached {
		s, ok := value.(string)
		if !ok {
			continue
		}
		if vector, decodeErr := decodeVector([]byte(s)); decodeErr == nil {
			vectors[i] = vector
		}
	}

	var missingIdx []int
	var missingTexts []string
	for i, vector := range vectors {
		if vector == nil {
			missingIdx = append(missingIdx, i)
			missingTexts = append(missingTexts, texts[i])
		}
	}
	if len(missingTexts) == 0 {
		return vectors, nil
	}

	fresh, err := c.provider.BatchCreateEmbeddings(ctx, missingTexts)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missingTexts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrMalformedResponse, len(fresh), len(missingTexts))
	}

	pipe := c.client.Pipeline()
	for j, i := range missingIdx {
		vectors[i] = fresh[j]
		pipe.Set(ctx, keys[i], encodeVector(fresh[j]), c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("Embedding cache write failed", "error", err)
	}

	return vectors, nil
}

func (c *RedisCache) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return cacheKeyPrefix + c.model + ":" + hex.EncodeToString(sum[:])
}

func encodeVector(vector []float32) []byte {
	buf := make([]byte, 4*len(vector))
	for i, v := range vector {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(data []byte) ([]float32, error) {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid encoded vector length %d", len(data))
	}
	vector := make([]float32, len(data)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vector, nil
}
