// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package indexer

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/geekhive/toolfinder/catalog"
)

//go:embed data/catalog.json
var sampleCatalog []byte

// seedNamespace makes seeded ids stable, so seeding twice updates in place.
var seedNamespace = uuid.MustParse("6f1c2a4e-93b7-4d0a-9a51-2f7c3e8d1b60")

type SeedCatalog struct {
	Categories []SeedCategory `json:"categories"`
	Tags       []SeedTag      `json:"tags"`
	Tools      []SeedTool     `json:"tools"`
}

type SeedCategory struct {
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
}

type SeedTag struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type SeedTool struct {
	Name             string               `json:"name"`
	Description      string               `json:"description"`
	ShortDescription string               `json:"shortDescription"`
	Website          string               `json:"website"`
	CategorySlugs    []string             `json:"categorySlugs"`
	TagSlugs         []string             `json:"tagSlugs"`
	Integrations     []string             `json:"integrations"`
	APIAvailable     bool                 `json:"apiAvailable"`
	EnterpriseReady  bool                 `json:"enterpriseReady"`
	PricingModel     catalog.PricingModel `json:"pricingModel"`
	Strengths        []string             `json:"strengths"`
	Limitations      []string             `json:"limitations"`
	UseCasePersonas  []string             `json:"useCasePersonas"`
}

// SampleCatalog returns the bundled demo catalog.
func SampleCatalog() (*SeedCatalog, error) {
	var seed SeedCatalog
	if err := json.Unmarshal(sampleCatalog, &seed); err != nil {
		return nil, fmt.Errorf("failed to decode sample catalog: %w", err)
	}
	return &seed, nil
}

// SeedID derives the stable id of a seeded record from its kind and slug.
func SeedID(kind, slug string) string {
	return uuid.NewSHA1(seedNamespace, []byte(kind+":"+slug)).String()
}

// Seed writes the catalog as approved tools and returns the tool ids in
// seed order. The derived search fields are left empty for the indexer.
func Seed(ctx context.Context, w catalog.Writer, seed *SeedCatalog) ([]string, error) {
	categories := make(map[string]catalog.Category, len(seed.Categories))
	for _, c := range seed.Categories {
		category := catalog.Category{ID: SeedID("category", c.Slug), Name: c.Name, Slug: c.Slug, Description: c.Description}
		if err := w.UpsertCategory(ctx, category); err != nil {
			return nil, fmt.Errorf("failed to seed category %s: %w", c.Slug, err)
		}
		categories[c.Slug] = category
	}

	tags := make(map[string]catalog.Tag, len(seed.Tags))
	for _, t := range seed.Tags {
		tag := catalog.Tag{ID: SeedID("tag", t.Slug), Name: t.Name, Slug: t.Slug}
		if err := w.UpsertTag(ctx, tag); err != nil {
			return nil, fmt.Errorf("failed to seed tag %s: %w", t.Slug, err)
		}
		tags[t.Slug] = tag
	}

	ids := make([]string, 0, len(seed.Tools))
	for _, t := range seed.Tools {
		tool := catalog.Tool{
			ID:               SeedID("tool", t.Name),
			Name:             t.Name,
			Description:      t.Description,
			ShortDescription: t.ShortDescription,
			Website:          t.Website,
			Strengths:        t.Strengths,
			Limitations:      t.Limitations,
			UseCasePersonas:  t.UseCasePersonas,
			Integrations:     t.Integrations,
			PricingModel:     t.PricingModel,
			APIAvailable:     t.APIAvailable,
			EnterpriseReady:  t.EnterpriseReady,
			Status:           catalog.StatusApproved,
		}
		for _, slug := range t.CategorySlugs {
			category, ok := categories[slug]
			if !ok {
				return nil, fmt.Errorf("tool %s references unknown category %s", t.Name, slug)
			}
			tool.Categories = append(tool.Categories, category)
		}
		for _, slug := range t.TagSlugs {
			tag, ok := tags[slug]
			if !ok {
				return nil, fmt.Errorf("tool %s references unknown tag %s", t.Name, slug)
			}
			tool.Tags = append(tool.Tags, tag)
		}

		if err := w.UpsertTool(ctx, tool); err != nil {
			return nil, fmt.Errorf("failed to seed tool %s: %w", t.Name, err)
		}
		ids = append(ids, tool.ID)
	}

	return ids, nil
}
