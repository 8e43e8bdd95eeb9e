// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package api

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/geekhive/toolfinder/indexer"
)

// adminAuthorizationRequired accepts only requests carrying the configured
// token as "Authorization: Bearer <token>".
func (a *API) adminAuthorizationRequired(c *gin.Context) {
	token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if !ok || token == "" {
		c.Header("WWW-Authenticate", "Bearer")
		abortUnauthorized(c, http.StatusUnauthorized, errors.New("missing admin token"))
		return
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(a.adminToken)) != 1 {
		a.requestLogger(c).Warn("Rejected admin request", "path", c.FullPath())
		abortUnauthorized(c, http.StatusForbidden, errors.New("invalid admin token"))
		return
	}
	c.Next()
}

func abortUnauthorized(c *gin.Context, status int, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

// handleReindex rebuilds search fields for stale tools, or for every tool
// when all=true. It blocks until the run completes.
func (a *API) handleReindex(c *gin.Context) {
	if err := a.enforceEmptyBody(c); err != nil {
		a.abortWithError(c, err)
		return
	}

	all := false
	if raw := c.Query("all"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			a.abortWithError(c, fmt.Errorf("%w: invalid all %q", errMalformedRequest, raw))
			return
		}
		all = v
	}

	var (
		report indexer.Report
		err    error
	)
	if all {
		report, err = a.reindexer.ReindexAll(c.Request.Context())
	} else {
		report, err = a.reindexer.ReindexStale(c.Request.Context())
	}
	if err != nil {
		a.abortWithError(c, err)
		return
	}

	a.requestLogger(c).Info("Reindex finished",
		"all", all,
		"indexed", report.Indexed,
		"missing", len(report.Missing),
		"skipped", len(report.Skipped),
	)
	c.JSON(http.StatusOK, report)
}

func (a *API) enforceEmptyBody(c *gin.Context) error {
	if c.Request.ContentLength > 0 {
		return fmt.Errorf("%w: request body must be empty", errMalformedRequest)
	}
	return nil
}
