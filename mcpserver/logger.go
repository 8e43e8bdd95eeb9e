// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package mcpserver

import (
	"context"
	"log/slog"

	"github.com/geekhive/toolfinder/logger"
)

// slogHandler routes the MCP SDK's slog output into our logger.
type slogHandler struct {
	logger logger.Logger
	attrs  []any
	group  string
}

func newSlogHandler(log logger.Logger) *slogHandler {
	return &slogHandler{logger: log}
}

func (h *slogHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

func (h *slogHandler) Handle(_ context.Context, r slog.Record) error {
	keyValuePairs := make([]any, 0, len(h.attrs)+2*r.NumAttrs())
	keyValuePairs = append(keyValuePairs, h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		keyValuePairs = append(keyValuePairs, h.key(a.Key), a.Value.Resolve().Any())
		return true
	})

	switch {
	case r.Level >= slog.LevelError:
		h.logger.Error(r.Message, keyValuePairs...)
	case r.Level >= slog.LevelWarn:
		h.logger.Warn(r.Message, keyValuePairs...)
	default:
		// The SDK reports session lifecycle at info.
		h.logger.Debug(r.Message, keyValuePairs...)
	}
	return nil
}

func (h *slogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := &slogHandler{
		logger: h.logger,
		attrs:  append([]any(nil), h.attrs...),
		group:  h.group,
	}
	for _, a := range attrs {
		next.attrs = append(next.attrs, h.key(a.Key), a.Value.Resolve().Any())
	}
	return next
}

func (h *slogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &slogHandler{
		logger: h.logger,
		attrs:  h.attrs,
		group:  h.key(name),
	}
}

func (h *slogHandler) key(k string) string {
	if h.group == "" {
		return k
	}
	return h.group + "." + k
}
