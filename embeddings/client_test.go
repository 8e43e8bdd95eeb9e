// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package embeddings

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geekhive/toolfinder/logger"
	"github.com/geekhive/toolfinder/metrics"
)

// scriptedProvider fails the first failures calls and then delegates to the
// mock provider, unless respond is set.
type scriptedProvider struct {
	failures int32
	calls    atomic.Int32
	dims     int
	respond  func(texts []string) ([][]float32, error)
	block    bool
}

func (p *scriptedProvider) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	out, err := p.BatchCreateEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (p *scriptedProvider) BatchCreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	n := p.calls.Add(1)
	if p.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if n <= p.failures {
		return nil, errors.New("connection refused")
	}
	if p.respond != nil {
		return p.respond(texts)
	}
	return NewMockEmbeddingProvider(p.dims).BatchCreateEmbeddings(ctx, texts)
}

func (p *scriptedProvider) Dimensions() int {
	return p.dims
}

func newTestClient(p EmbeddingProvider, cfg ClientConfig) *Client {
	if cfg.Model == "" {
		cfg.Model = "test-model"
	}
	return NewClient(p, cfg, logger.NewNop(), &metrics.NoopMetrics{})
}

func TestClientEmbed(t *testing.T) {
	ctx := context.Background()

	t.Run("returns provider vector", func(t *testing.T) {
		c := newTestClient(&scriptedProvider{dims: 8}, ClientConfig{})
		vector, err := c.Embed(ctx, "video editing")
		require.NoError(t, err)
		assert.Len(t, vector, 8)
		assert.Equal(t, "test-model", c.Model())
	})

	t.Run("empty text fails without calling provider", func(t *testing.T) {
		p := &scriptedProvider{dims: 8}
		c := newTestClient(p, ClientConfig{})
		_, err := c.Embed(ctx, "   ")
		require.Error(t, err)
		assert.True(t, IsServiceError(err))
		assert.ErrorIs(t, err, ErrEmptyText)
		assert.Equal(t, int32(0), p.calls.Load())
	})

	t.Run("retries transient failures", func(t *testing.T) {
		p := &scriptedProvider{dims: 8, failures: 2}
		c := newTestClient(p, ClientConfig{MaxRetries: 2})
		_, err := c.Embed(ctx, "retry me")
		require.NoError(t, err)
		assert.Equal(t, int32(3), p.calls.Load())
	})

	t.Run("unreachable provider surfaces service error", func(t *testing.T) {
		p := &scriptedProvider{dims: 8, failures: 100}
		c := newTestClient(p, ClientConfig{MaxRetries: 1})
		_, err := c.Embed(ctx, "never works")
		require.Error(t, err)
		assert.True(t, IsServiceError(err))
		assert.Equal(t, int32(2), p.calls.Load())
	})

	t.Run("wrong dimensions are malformed and not retried", func(t *testing.T) {
		p := &scriptedProvider{dims: 8, respond: func(texts []string) ([][]float32, error) {
			return [][]float32{{1, 2}}, nil
		}}
		c := newTestClient(p, ClientConfig{MaxRetries: 3})
		_, err := c.Embed(ctx, "short vector")
		require.ErrorIs(t, err, ErrMalformedResponse)
		assert.Equal(t, int32(1), p.calls.Load())
	})

	t.Run("non finite values are malformed", func(t *testing.T) {
		p := &scriptedProvider{respond: func(texts []string) ([][]float32, error) {
			return [][]float32{{1, float32(math.NaN())}}, nil
		}}
		c := newTestClient(p, ClientConfig{})
		_, err := c.Embed(ctx, "nan")
		require.ErrorIs(t, err, ErrMalformedResponse)
	})

	t.Run("stalled provider times out", func(t *testing.T) {
		p := &scriptedProvider{dims: 8, block: true}
		c := newTestClient(p, ClientConfig{Timeout: 20 * time.Millisecond})
		start := time.Now()
		_, err := c.Embed(ctx, "slow")
		require.Error(t, err)
		assert.True(t, IsServiceError(err))
		assert.Less(t, time.Since(start), 2*time.Second)
	})
}

func TestClientEmbedMany(t *testing.T) {
	ctx := context.Background()

	t.Run("preserves order across batches", func(t *testing.T) {
		p := &scriptedProvider{dims: 16}
		c := newTestClient(p, ClientConfig{BatchSize: 2})
		texts := []string{"alpha", "beta", "gamma", "delta", "epsilon"}

		vectors, err := c.EmbedMany(ctx, texts)
		require.NoError(t, err)
		require.Len(t, vectors, len(texts))
		assert.Equal(t, int32(3), p.calls.Load())

		for i, text := range texts {
			single, err := c.Embed(ctx, text)
			require.NoError(t, err)
			assert.Equal(t, single, vectors[i])
		}
	})

	t.Run("count mismatch is malformed", func(t *testing.T) {
		p := &scriptedProvider{respond: func(texts []string) ([][]float32, error) {
			return [][]float32{{1}}, nil
		}}
		c := newTestClient(p, ClientConfig{})
		_, err := c.EmbedMany(ctx, []string{"a", "b"})
		require.ErrorIs(t, err, ErrMalformedResponse)
		assert.True(t, IsServiceError(err))
	})

	t.Run("any empty text is rejected", func(t *testing.T) {
		c := newTestClient(&scriptedProvider{dims: 4}, ClientConfig{})
		_, err := c.EmbedMany(ctx, []string{"ok", ""})
		require.ErrorIs(t, err, ErrEmptyText)
	})

	t.Run("no texts no calls", func(t *testing.T) {
		p := &scriptedProvider{dims: 4}
		c := newTestClient(p, ClientConfig{})
		vectors, err := c.EmbedMany(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, vectors)
		assert.Equal(t, int32(0), p.calls.Load())
	})
}
