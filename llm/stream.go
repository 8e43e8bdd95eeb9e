// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package llm

import "strings"

// EventType represents the type of event in the text stream
type EventType int

const (
	// EventTypeText represents a text chunk event
	EventTypeText EventType = iota
	// EventTypeEnd represents the end of the stream
	EventTypeEnd
	// EventTypeError represents an error event
	EventTypeError
	// EventTypeUsage represents token usage data
	EventTypeUsage
)

// TokenUsage represents token usage statistics for an LLM request
type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// TextStreamEvent represents an event in the text stream
type TextStreamEvent struct {
	Type  EventType
	Value any
}

// TextStreamResult represents a stream of text events
type TextStreamResult struct {
	Stream <-chan TextStreamEvent
}

func NewStreamFromString(text string) *TextStreamResult {
	stream := make(chan TextStreamEvent, 2)

	stream <- TextStreamEvent{
		Type:  EventTypeText,
		Value: text,
	}
	stream <- TextStreamEvent{
		Type:  EventTypeEnd,
		Value: nil,
	}
	close(stream)

	return &TextStreamResult{
		Stream: stream,
	}
}

// NewStreamWithUsage is NewStreamFromString preceded by a usage event.
func NewStreamWithUsage(text string, usage TokenUsage) *TextStreamResult {
	stream := make(chan TextStreamEvent, 3)
	stream <- TextStreamEvent{Type: EventTypeUsage, Value: usage}
	stream <- TextStreamEvent{Type: EventTypeText, Value: text}
	stream <- TextStreamEvent{Type: EventTypeEnd}
	close(stream)
	return &TextStreamResult{Stream: stream}
}

// ReadAll drains the stream and returns the concatenated text, or the first
// error event. The stream is always drained so producers never block.
func (t *TextStreamResult) ReadAll() (string, error) {
	var result strings.Builder
	var firstErr error
	for event := range t.Stream {
		switch event.Type {
		case EventTypeText:
			if textChunk, ok := event.Value.(string); ok && firstErr == nil {
				result.WriteString(textChunk)
			}
		case EventTypeError:
			if err, ok := event.Value.(error); ok && firstErr == nil {
				firstErr = err
			}
		}
	}

	if firstErr != nil {
		return "", firstErr
	}
	return result.String(), nil
}
