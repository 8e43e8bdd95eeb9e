// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package embeddings

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"

	"github.com/geekhive/toolfinder/logger"
	"github.com/geekhive/toolfinder/metrics"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultBatchSize = 96
)

type ClientConfig struct {
	// Model identifies the embedding model. Vectors are only compared with
	// vectors produced by the same model.
	Model string
	// Timeout bounds each provider call.
	Timeout time.Duration
	// MaxRetries is the number of additional attempts after a failed call.
	MaxRetries int
	// RequestsPerSecond throttles outgoing provider calls. Zero disables it.
	RequestsPerSecond float64
	BatchSize         int
}

// Client wraps an EmbeddingProvider with input validation, per-call
// timeouts, retries and response checks. Every failure it returns is an
// *EmbeddingServiceError.
type Client struct {
	provider EmbeddingProvider
	cfg      ClientConfig
	limiter  *rate.Limiter
	logger   logger.Logger
	metrics  metrics.Metrics
}

func NewClient(provider EmbeddingProvider, cfg ClientConfig, log logger.Logger, m metrics.Metrics) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if m == nil {
		m = &metrics.NoopMetrics{}
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Client{
		provider: provider,
		cfg:      cfg,
		limiter:  limiter,
		logger:   log,
		metrics:  m,
	}
}

// Model returns the identity of the model producing this client's vectors.
func (c *Client) Model() string {
	return c.cfg.Model
}

func (c *Client) Dimensions() int {
	return c.provider.Dimensions()
}

// Embed converts one text into a vector.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &EmbeddingServiceError{Op: "embed", Err: ErrEmptyText}
	}

	start := time.Now()
	vector, err := retry(ctx, c, "embed", func(callCtx context.Context) ([]float32, error) {
		vector, err := c.provider.CreateEmbedding(callCtx, text)
		if err != nil {
			return nil, err
		}
		if err := c.checkVector(vector); err != nil {
			return nil, backoff.Permanent(err)
		}
		return vector, nil
	})
	c.metrics.ObserveEmbeddingRequest("embed", err != nil, time.Since(start).Seconds())
	if err != nil {
		return nil, &EmbeddingServiceError{Op: "embed", Err: err}
	}

	return vector, nil
}

// EmbedMany converts texts into vectors, preserving input order. Large inputs
// are sent to the provider in batches.
func (c *Client) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, &EmbeddingServiceError{Op: "embed_many", Err: fmt.Errorf("text %d: %w", i, ErrEmptyText)}
		}
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.cfg.BatchSize {
		end := min(start+c.cfg.BatchSize, len(texts))
		batch := texts[start:end]

		began := time.Now()
		batchVectors, err := retry(ctx, c, "embed_many", func(callCtx context.Context) ([][]float32, error) {
			out, err := c.provider.BatchCreateEmbeddings(callCtx, batch)
			if err != nil {
				return nil, err
			}
			if len(out) != len(batch) {
				return nil, backoff.Permanent(fmt.Errorf("%w: got %d vectors for %d texts", ErrMalformedResponse, len(out), len(batch)))
			}
			for i, vector := range out {
				if err := c.checkVector(vector); err != nil {
					return nil, backoff.Permanent(fmt.Errorf("vector %d: %w", start+i, err))
				}
			}
			return out, nil
		})
		c.metrics.ObserveEmbeddingRequest("embed_many", err != nil, time.Since(began).Seconds())
		if err != nil {
			return nil, &EmbeddingServiceError{Op: "embed_many", Err: err}
		}
		vectors = append(vectors, batchVectors...)
	}

	return vectors, nil
}

func (c *Client) checkVector(vector []float32) error {
	if len(vector) == 0 {
		return fmt.Errorf("%w: empty vector", ErrMalformedResponse)
	}
	if dims := c.provider.Dimensions(); dims > 0 && len(vector) != dims {
		return fmt.Errorf("%w: expected %d dimensions, got %d", ErrMalformedResponse, dims, len(vector))
	}
	for _, v := range vector {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: non-finite value", ErrMalformedResponse)
		}
	}
	return nil
}

// retry runs call with a fresh timeout per attempt, backing off between
// failed attempts. Permanent errors and parent cancellation stop it early.
func retry[T any](ctx context.Context, c *Client, op string, call func(context.Context) (T, error)) (T, error) {
	attempt := func() (T, error) {
		var zero T
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return zero, backoff.Permanent(err)
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()

		result, err := call(callCtx)
		if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return zero, fmt.Errorf("provider call timed out after %s: %w", c.cfg.Timeout, err)
		}
		return result, err
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 200 * time.Millisecond
	expBackoff.MaxInterval = 2 * time.Second

	return backoff.Retry(ctx, attempt,
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(uint(c.cfg.MaxRetries+1)), // #nosec G115 -- includes the initial attempt
		backoff.WithNotify(func(err error, wait time.Duration) {
			if c.logger != nil {
				c.logger.Warn("Embedding request failed, retrying", "op", op, "error", err, "backoff", wait.String())
			}
		}),
	)
}
