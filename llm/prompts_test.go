// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package llm

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTemplates() fstest.MapFS {
	return fstest.MapFS{
		"v1/greet.tmpl":  {Data: []byte("Hello {name}, answer as {{\"ok\": true}}\n")},
		"v1/notes.txt":   {Data: []byte("ignored")},
		"v2/greet.tmpl":  {Data: []byte("Hi {name}")},
		"v1/other.tmpl":  {Data: []byte("static")},
		"bad/greet.tmpl": {Data: []byte("Hello {missing}")},
	}
}

func TestPrompts(t *testing.T) {
	t.Run("renders placeholders and escaped braces", func(t *testing.T) {
		p, err := NewPrompts(testTemplates(), "v1", map[string][]string{"greet": {"name"}})
		require.NoError(t, err)
		assert.Equal(t, "v1", p.Version())

		out, err := p.Format("greet", map[string]any{"name": "Ada"})
		require.NoError(t, err)
		assert.Equal(t, `Hello Ada, answer as {"ok": true}`, out)
	})

	t.Run("versions are independent", func(t *testing.T) {
		p, err := NewPrompts(testTemplates(), "v2", nil)
		require.NoError(t, err)
		out, err := p.Format("greet", map[string]any{"name": "Ada"})
		require.NoError(t, err)
		assert.Equal(t, "Hi Ada", out)
	})

	t.Run("unknown template", func(t *testing.T) {
		p, err := NewPrompts(testTemplates(), "v1", nil)
		require.NoError(t, err)
		_, err = p.Format("notes", nil)
		require.Error(t, err)
	})

	t.Run("missing required template", func(t *testing.T) {
		_, err := NewPrompts(testTemplates(), "v2", map[string][]string{"other": nil})
		require.Error(t, err)
	})

	t.Run("template with undeclared placeholder", func(t *testing.T) {
		_, err := NewPrompts(testTemplates(), "bad", map[string][]string{"greet": {"name"}})
		require.Error(t, err)
	})

	t.Run("unknown version", func(t *testing.T) {
		_, err := NewPrompts(testTemplates(), "v9", nil)
		require.Error(t, err)
	})
}
