// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package catalog

import (
	"fmt"
	"slices"
)

// Filters narrows the set of tools considered by a search. All set fields
// must match. Within a list field any member may match.
type Filters struct {
	// Status defaults to StatusApproved. Any other value is rejected by Normalize.
	Status          Status         `json:"status,omitempty"`
	CategoryIDs     []string       `json:"categoryIds,omitempty"`
	TagIDs          []string       `json:"tagIds,omitempty"`
	PricingModels   []PricingModel `json:"pricingModels,omitempty"`
	APIAvailable    *bool          `json:"apiAvailable,omitempty"`
	EnterpriseReady *bool          `json:"enterpriseReady,omitempty"`

	// EmbeddingModel restricts ranking to tools embedded by this model. It is
	// set by the search engine, not by callers.
	EmbeddingModel string `json:"-"`
}

// Normalize applies the approved status default and validates the filter
// values. It returns a copy; the receiver is not modified.
func (f Filters) Normalize() (Filters, error) {
	if f.Status == "" {
		f.Status = StatusApproved
	}
	if f.Status != StatusApproved {
		return f, fmt.Errorf("%w: got %s", ErrStatusNotRetrievable, f.Status)
	}
	for _, p := range f.PricingModels {
		if !p.IsValid() {
			return f, fmt.Errorf("unknown pricing model %q", p)
		}
	}
	f.CategoryIDs = compact(f.CategoryIDs)
	f.TagIDs = compact(f.TagIDs)
	return f, nil
}

// Matches reports whether tool satisfies every filter predicate. Stores that
// cannot push predicates down evaluate this before ranking.
func (f Filters) Matches(tool *Tool) bool {
	status := f.Status
	if status == "" {
		status = StatusApproved
	}
	if tool.Status != status {
		return false
	}
	if len(f.CategoryIDs) > 0 && !containsAny(tool.CategoryIDs(), f.CategoryIDs) {
		return false
	}
	if len(f.TagIDs) > 0 && !containsAny(tool.TagIDs(), f.TagIDs) {
		return false
	}
	if len(f.PricingModels) > 0 && !slices.Contains(f.PricingModels, tool.PricingModel) {
		return false
	}
	if f.APIAvailable != nil && tool.APIAvailable != *f.APIAvailable {
		return false
	}
	if f.EnterpriseReady != nil && tool.EnterpriseReady != *f.EnterpriseReady {
		return false
	}
	if f.EmbeddingModel != "" && tool.EmbeddingModel != f.EmbeddingModel {
		return false
	}
	return true
}

func containsAny(have, want []string) bool {
	for _, w := range want {
		if slices.Contains(have, w) {
			return true
		}
	}
	return false
}

// compact drops empty and duplicate ids, keeping first occurrence order.
func compact(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
