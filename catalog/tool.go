// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package catalog

import "time"

// PricingModel is how a tool is sold.
type PricingModel string

const (
	PricingFree       PricingModel = "FREE"
	PricingFreemium   PricingModel = "FREEMIUM"
	PricingPaid       PricingModel = "PAID"
	PricingEnterprise PricingModel = "ENTERPRISE"
	PricingUsageBased PricingModel = "USAGE_BASED"
)

// IsValid reports whether p is one of the known pricing models.
func (p PricingModel) IsValid() bool {
	switch p {
	case PricingFree, PricingFreemium, PricingPaid, PricingEnterprise, PricingUsageBased:
		return true
	}
	return false
}

// Status is the moderation state of a tool. Only approved tools are retrievable.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

type Category struct {
	ID          string `json:"id" db:"id"`
	Name        string `json:"name" db:"name"`
	Slug        string `json:"slug" db:"slug"`
	Description string `json:"description,omitempty" db:"description"`
}

type Tag struct {
	ID   string `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
	Slug string `json:"slug" db:"slug"`
}

// Tool is a catalog entry with its resolved categories and tags.
//
// CanonicalText, Embedding and EmbeddingModel are derived from the other
// fields and are only ever written together by the indexer.
type Tool struct {
	ID               string       `json:"id"`
	Name             string       `json:"name"`
	Description      string       `json:"description"`
	ShortDescription string       `json:"shortDescription"`
	Website          string       `json:"website,omitempty"`
	Strengths        []string     `json:"strengths"`
	Limitations      []string     `json:"limitations"`
	UseCasePersonas  []string     `json:"useCasePersonas"`
	Integrations     []string     `json:"integrations"`
	PricingModel     PricingModel `json:"pricingModel"`
	APIAvailable     bool         `json:"apiAvailable"`
	EnterpriseReady  bool         `json:"enterpriseReady"`
	Categories       []Category   `json:"categories"`
	Tags             []Tag        `json:"tags"`
	Status           Status       `json:"status"`
	CanonicalText    string       `json:"canonicalText,omitempty"`
	Embedding        []float32    `json:"-"`
	EmbeddingModel   string       `json:"embeddingModel,omitempty"`
	CreatedAt        time.Time    `json:"createdAt"`
	UpdatedAt        time.Time    `json:"updatedAt"`

	// Revision increases with every UpsertTool. Derived fields are only
	// written for the revision they were built from.
	Revision int64 `json:"revision"`
}

func (t *Tool) CategoryIDs() []string {
	ids := make([]string, len(t.Categories))
	for i, c := range t.Categories {
		ids[i] = c.ID
	}
	return ids
}

func (t *Tool) TagIDs() []string {
	ids := make([]string, len(t.Tags))
	for i, tag := range t.Tags {
		ids[i] = tag.ID
	}
	return ids
}

func (t *Tool) CategoryNames() []string {
	names := make([]string, len(t.Categories))
	for i, c := range t.Categories {
		names[i] = c.Name
	}
	return names
}

func (t *Tool) TagNames() []string {
	names := make([]string, len(t.Tags))
	for i, tag := range t.Tags {
		names[i] = tag.Name
	}
	return names
}

// IsIndexed reports whether the derived search fields are present.
func (t *Tool) IsIndexed() bool {
	return t.CanonicalText != "" && len(t.Embedding) > 0 && t.EmbeddingModel != ""
}

// Candidate is a retrieved tool with its similarity to the query vector.
type Candidate struct {
	Tool       Tool    `json:"tool"`
	Similarity float64 `json:"similarity"`
}

// RankedID is one row of the rank step: an id and its similarity. Rankers
// return these in final order; hydration must preserve it.
type RankedID struct {
	ID         string
	Similarity float64
}
