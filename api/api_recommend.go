// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/geekhive/toolfinder/catalog"
	"github.com/geekhive/toolfinder/recommend"
	"github.com/geekhive/toolfinder/search"
)

type recommendationRequest struct {
	Tasks       string   `json:"tasks"`
	Role        string   `json:"role"`
	CategoryIDs []string `json:"categoryIds"`
}

func (a *API) handleRecommend(c *gin.Context) {
	var req recommendationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.abortWithError(c, fmt.Errorf("%w: %w", errMalformedRequest, err))
		return
	}

	result, err := a.recommender.Recommend(c.Request.Context(), recommend.WorkflowInput{
		Tasks:       req.Tasks,
		Role:        req.Role,
		CategoryIDs: req.CategoryIDs,
	})
	if err != nil {
		a.abortWithError(c, err)
		return
	}

	if len(result.Degraded) > 0 {
		a.requestLogger(c).Info("Served degraded recommendations", "stages", strings.Join(result.Degraded, ","))
	}
	c.JSON(http.StatusOK, result)
}

type searchResponse struct {
	Results []catalog.Candidate `json:"results"`
}

func (a *API) handleSearch(c *gin.Context) {
	query, err := parseSearchQuery(c)
	if err != nil {
		a.abortWithError(c, fmt.Errorf("%w: %w", errMalformedRequest, err))
		return
	}

	results, err := a.searcher.SearchText(c.Request.Context(), query)
	if err != nil {
		a.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, searchResponse{Results: results})
}

// parseSearchQuery reads q, limit and the filter parameters. List filters may
// be repeated or comma separated.
func parseSearchQuery(c *gin.Context) (search.Query, error) {
	query := search.Query{
		Text: c.Query("q"),
		Filters: catalog.Filters{
			CategoryIDs: listParam(c, "categoryId", "categoryIds"),
			TagIDs:      listParam(c, "tagId", "tagIds"),
		},
	}

	for _, p := range listParam(c, "pricingModel", "pricingModels") {
		query.Filters.PricingModels = append(query.Filters.PricingModels, catalog.PricingModel(strings.ToUpper(p)))
	}

	var err error
	if query.Filters.APIAvailable, err = boolParam(c, "apiAvailable"); err != nil {
		return query, err
	}
	if query.Filters.EnterpriseReady, err = boolParam(c, "enterpriseReady"); err != nil {
		return query, err
	}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return query, fmt.Errorf("invalid limit %q", raw)
		}
		query.Limit = limit
	}

	return query, nil
}

func listParam(c *gin.Context, names ...string) []string {
	var values []string
	for _, name := range names {
		for _, raw := range c.QueryArray(name) {
			for _, v := range strings.Split(raw, ",") {
				if v = strings.TrimSpace(v); v != "" {
					values = append(values, v)
				}
			}
		}
	}
	return values
}

func boolParam(c *gin.Context, name string) (*bool, error) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q", name, raw)
	}
	return &v, nil
}
