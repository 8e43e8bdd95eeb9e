// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

// Package api serves recommendations and search over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/geekhive/toolfinder/catalog"
	"github.com/geekhive/toolfinder/embeddings"
	"github.com/geekhive/toolfinder/indexer"
	"github.com/geekhive/toolfinder/logger"
	"github.com/geekhive/toolfinder/metrics"
	"github.com/geekhive/toolfinder/recommend"
	"github.com/geekhive/toolfinder/search"
)

const (
	requestIDHeader = "X-Request-ID"
	contextLogger   = "logger"

	healthCheckTimeout = 2 * time.Second
)

var errMalformedRequest = errors.New("malformed request")

type Recommender interface {
	Recommend(ctx context.Context, input recommend.WorkflowInput) (*recommend.Result, error)
}

type Searcher interface {
	SearchText(ctx context.Context, query search.Query) ([]catalog.Candidate, error)
}

// Reindexer runs the indexing job behind the admin endpoint.
type Reindexer interface {
	ReindexStale(ctx context.Context) (indexer.Report, error)
	ReindexAll(ctx context.Context) (indexer.Report, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Dependencies struct {
	Recommender Recommender
	Searcher    Searcher
	// Reindexer is optional. The admin routes are registered only when both
	// Reindexer and AdminToken are set.
	Reindexer  Reindexer
	AdminToken string
	Pinger     Pinger
	Logger     logger.Logger
	Metrics    metrics.Metrics
}

// API is the HTTP surface of the service.
type API struct {
	recommender Recommender
	searcher    Searcher
	reindexer   Reindexer
	adminToken  string
	pinger      Pinger
	logger      logger.Logger
	metrics     metrics.Metrics

	router *gin.Engine
}

func New(deps Dependencies) *API {
	m := deps.Metrics
	if m == nil {
		m = &metrics.NoopMetrics{}
	}
	a := &API{
		recommender: deps.Recommender,
		searcher:    deps.Searcher,
		reindexer:   deps.Reindexer,
		adminToken:  deps.AdminToken,
		pinger:      deps.Pinger,
		logger:      deps.Logger,
		metrics:     m,
	}
	a.router = a.newRouter()
	return a
}

func (a *API) newRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(a.requestMiddleware)
	router.Use(a.metricsMiddleware)

	router.GET("/healthz", a.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.metrics.GetRegistry(), promhttp.HandlerOpts{})))

	router.POST("/recommendations", a.handleRecommend)
	router.GET("/search", a.handleSearch)

	if a.reindexer != nil && a.adminToken != "" {
		adminRouter := router.Group("/admin")
		adminRouter.Use(a.adminAuthorizationRequired)
		adminRouter.POST("/reindex", a.handleReindex)
	}

	return router
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

// requestMiddleware tags each request with an id and a logger carrying it.
func (a *API) requestMiddleware(c *gin.Context) {
	requestID := c.GetHeader(requestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header(requestIDHeader, requestID)
	c.Set(contextLogger, a.logger.With("request_id", requestID))
	c.Next()
}

func (a *API) metricsMiddleware(c *gin.Context) {
	start := time.Now()
	a.metrics.IncrementHTTPRequests()

	c.Next()

	status := c.Writer.Status()
	if status >= http.StatusInternalServerError {
		a.metrics.IncrementHTTPErrors()
	}
	handler := c.FullPath()
	if handler == "" {
		handler = "unmatched"
	}
	a.metrics.ObserveAPIEndpointDuration(handler, c.Request.Method, strconv.Itoa(status), time.Since(start).Seconds())
}

func (a *API) requestLogger(c *gin.Context) logger.Logger {
	if l, ok := c.Get(contextLogger); ok {
		if log, ok := l.(logger.Logger); ok {
			return log
		}
	}
	return a.logger
}

// abortWithError maps err to a status code and writes {"error": ...}.
// Messages of unclassified failures are not exposed to the client.
func (a *API) abortWithError(c *gin.Context, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	if status >= http.StatusInternalServerError {
		a.requestLogger(c).Error("Request failed", "path", c.FullPath(), "status", status, "error", err)
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errMalformedRequest),
		recommend.IsInputValidation(err),
		errors.Is(err, search.ErrInvalidRequest):
		return http.StatusBadRequest
	case embeddings.IsServiceError(err), catalog.IsUnavailable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) handleHealth(c *gin.Context) {
	if a.pinger == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	if err := a.pinger.Ping(ctx); err != nil {
		a.requestLogger(c).Warn("Health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unavailable",
			"error":  err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
