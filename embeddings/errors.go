// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package embeddings

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyText is the cause reported when asked to embed blank text.
	ErrEmptyText = errors.New("text is empty")
	// ErrMalformedResponse is the cause reported when the provider answers
	// with vectors that cannot be used.
	ErrMalformedResponse = errors.New("malformed embedding response")
)

// EmbeddingServiceError reports that text could not be embedded, because the
// provider failed, timed out, answered with malformed data, or the input was empty.
type EmbeddingServiceError struct {
	Op  string
	Err error
}

func (e *EmbeddingServiceError) Error() string {
	return fmt.Sprintf("embedding service: %s: %v", e.Op, e.Err)
}

func (e *EmbeddingServiceError) Unwrap() error {
	return e.Err
}

// IsServiceError reports whether err is, or wraps, an EmbeddingServiceError.
func IsServiceError(err error) bool {
	var serviceErr *EmbeddingServiceError
	return errors.As(err, &serviceErr)
}
