// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// DecodeOutcome tags how a Decoded value was produced.
type DecodeOutcome int

const (
	// Parsed means the model output decoded and validated.
	Parsed DecodeOutcome = iota
	// Fallback means the output was unusable and the value is a default.
	Fallback
)

func (o DecodeOutcome) String() string {
	if o == Parsed {
		return "parsed"
	}
	return "fallback"
}

// Decoded is the result of turning model output into a structured value.
// When Outcome is Fallback, Cause explains why the output was rejected.
type Decoded[T any] struct {
	Value   T
	Outcome DecodeOutcome
	Cause   error
}

func (d Decoded[T]) IsFallback() bool {
	return d.Outcome == Fallback
}

// ParsedValue wraps a successfully decoded value.
func ParsedValue[T any](value T) Decoded[T] {
	return Decoded[T]{Value: value, Outcome: Parsed}
}

// FallbackValue wraps a default used in place of unusable output.
func FallbackValue[T any](value T, cause error) Decoded[T] {
	return Decoded[T]{Value: value, Outcome: Fallback, Cause: cause}
}

var ErrNoJSON = errors.New("no JSON value found in model output")

// DecodeJSON extracts the JSON value from raw model output, decodes it into T
// and runs validate on it. Any failure yields fallback() tagged as Fallback.
func DecodeJSON[T any](raw string, validate func(*T) error, fallback func() T) Decoded[T] {
	payload, err := ExtractJSON(raw)
	if err != nil {
		return FallbackValue(fallback(), err)
	}

	var value T
	if err := json.Unmarshal([]byte(payload), &value); err != nil {
		return FallbackValue(fallback(), fmt.Errorf("decode: %w", err))
	}

	if validate != nil {
		if err := validate(&value); err != nil {
			return FallbackValue(fallback(), fmt.Errorf("validate: %w", err))
		}
	}

	return ParsedValue(value)
}

// ExtractJSON strips markdown code fences and surrounding prose from model
// output and returns the outermost JSON object or array.
func ExtractJSON(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", ErrNoJSON
	}

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if newline := strings.IndexByte(text, '\n'); newline >= 0 {
			text = text[newline+1:]
		}
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
		text = strings.TrimSpace(text)
	}

	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return "", ErrNoJSON
	}
	closer := byte('}')
	if text[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(text, closer)
	if end < start {
		return "", ErrNoJSON
	}

	return text[start : end+1], nil
}
