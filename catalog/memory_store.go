// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package catalog

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"
	"sync"
	"time"
)

type memoryEntry struct {
	seq  int64
	tool Tool
}

// MemoryStore is an in-process Store used for tests, local development and
// the MCP server when no database is configured.
type MemoryStore struct {
	mu         sync.RWMutex
	nextSeq    int64
	tools      map[string]*memoryEntry
	categories map[string]Category
	tags       map[string]Tag
	now        func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tools:      make(map[string]*memoryEntry),
		categories: make(map[string]Category),
		tags:       make(map[string]Tag),
		now:        time.Now,
	}
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

func (s *MemoryStore) UpsertCategory(_ context.Context, category Category) error {
	if category.ID == "" {
		return fmt.Errorf("category id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories[category.ID] = category
	return nil
}

func (s *MemoryStore) UpsertTag(_ context.Context, tag Tag) error {
	if tag.ID == "" {
		return fmt.Errorf("tag id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tags[tag.ID] = tag
	return nil
}

func (s *MemoryStore) UpsertTool(_ context.Context, tool Tool) error {
	if tool.ID == "" {
		return fmt.Errorf("tool id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	categories, err := s.resolveCategories(tool.CategoryIDs())
	if err != nil {
		return err
	}
	tags, err := s.resolveTags(tool.TagIDs())
	if err != nil {
		return err
	}

	tool = cloneTool(tool)
	tool.Categories = categories
	tool.Tags = tags
	tool.CanonicalText = ""
	tool.Embedding = nil
	tool.EmbeddingModel = ""
	tool.UpdatedAt = s.now()

	if existing, ok := s.tools[tool.ID]; ok {
		tool.CreatedAt = existing.tool.CreatedAt
		tool.Revision = existing.tool.Revision + 1
		existing.tool = tool
		return nil
	}

	if tool.CreatedAt.IsZero() {
		tool.CreatedAt = tool.UpdatedAt
	}
	tool.Revision = 1
	s.nextSeq++
	s.tools[tool.ID] = &memoryEntry{seq: s.nextSeq, tool: tool}
	return nil
}

func (s *MemoryStore) UpdateEmbedding(_ context.Context, toolID string, revision int64, canonicalText string, embedding []float32, model string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.tools[toolID]
	if !ok {
		return fmt.Errorf("tool %s: %w", toolID, ErrNotFound)
	}
	if entry.tool.Revision != revision {
		return fmt.Errorf("tool %s at revision %d, not %d: %w", toolID, entry.tool.Revision, revision, ErrStaleRevision)
	}
	entry.tool.CanonicalText = canonicalText
	entry.tool.Embedding = slices.Clone(embedding)
	entry.tool.EmbeddingModel = model
	return nil
}

func (s *MemoryStore) GetTools(_ context.Context, ids []string) ([]Tool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tools := make([]Tool, 0, len(ids))
	for _, id := range ids {
		if entry, ok := s.tools[id]; ok {
			tools = append(tools, cloneTool(entry.tool))
		}
	}
	return tools, nil
}

func (s *MemoryStore) GetCategories(_ context.Context, ids []string) ([]Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	categories := make([]Category, 0, len(ids))
	for _, id := range ids {
		if c, ok := s.categories[id]; ok {
			categories = append(categories, c)
		}
	}
	return categories, nil
}

func (s *MemoryStore) ListToolIDs(_ context.Context, status Status) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]*memoryEntry, 0, len(s.tools))
	for _, entry := range s.tools {
		if status == "" || entry.tool.Status == status {
			entries = append(entries, entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	ids := make([]string, len(entries))
	for i, entry := range entries {
		ids[i] = entry.tool.ID
	}
	return ids, nil
}

// RankByVector narrows the catalog with filters first and only then computes
// distances over what is left.
func (s *MemoryStore) RankByVector(_ context.Context, query []float32, topK int, filters Filters) ([]RankedID, error) {
	if topK <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		seq        int64
		id         string
		similarity float64
	}

	eligible := make([]scored, 0, len(s.tools))
	for _, entry := range s.tools {
		if len(entry.tool.Embedding) == 0 || len(entry.tool.Embedding) != len(query) {
			continue
		}
		if !filters.Matches(&entry.tool) {
			continue
		}
		eligible = append(eligible, scored{
			seq:        entry.seq,
			id:         entry.tool.ID,
			similarity: CosineSimilarity(query, entry.tool.Embedding),
		})
	}

	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].similarity != eligible[j].similarity {
			return eligible[i].similarity > eligible[j].similarity
		}
		return eligible[i].seq < eligible[j].seq
	})

	if len(eligible) > topK {
		eligible = eligible[:topK]
	}

	ranked := make([]RankedID, len(eligible))
	for i, e := range eligible {
		ranked[i] = RankedID{ID: e.id, Similarity: ClampSimilarity(e.similarity)}
	}
	return ranked, nil
}

func (s *MemoryStore) resolveCategories(ids []string) ([]Category, error) {
	categories := make([]Category, 0, len(ids))
	for _, id := range ids {
		c, ok := s.categories[id]
		if !ok {
			return nil, fmt.Errorf("category %s: %w", id, ErrNotFound)
		}
		categories = append(categories, c)
	}
	return categories, nil
}

func (s *MemoryStore) resolveTags(ids []string) ([]Tag, error) {
	tags := make([]Tag, 0, len(ids))
	for _, id := range ids {
		t, ok := s.tags[id]
		if !ok {
			return nil, fmt.Errorf("tag %s: %w", id, ErrNotFound)
		}
		tags = append(tags, t)
	}
	return tags, nil
}

func cloneTool(t Tool) Tool {
	t.Strengths = slices.Clone(t.Strengths)
	t.Limitations = slices.Clone(t.Limitations)
	t.UseCasePersonas = slices.Clone(t.UseCasePersonas)
	t.Integrations = slices.Clone(t.Integrations)
	t.Categories = slices.Clone(t.Categories)
	t.Tags = slices.Clone(t.Tags)
	t.Embedding = slices.Clone(t.Embedding)
	return t
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0 when
// the lengths differ or either vector is zero.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// ClampSimilarity maps a cosine similarity into the reported [0,1] range.
func ClampSimilarity(similarity float64) float64 {
	if math.IsNaN(similarity) || similarity < 0 {
		return 0
	}
	if similarity > 1 {
		return 1
	}
	return similarity
}
