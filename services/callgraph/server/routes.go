// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// serviceName is the otelgin service name.
const serviceName = "jscg"

var (
	// requestsTotal counts HTTP requests by route and status.
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jscg",
		Subsystem: "server",
		Name:      "requests_total",
		Help:      "HTTP requests by route and status",
	}, []string{"route", "status"})

	// requestDurationSeconds measures HTTP request latency.
	requestDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "jscg",
		Subsystem: "server",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})
)

// RegisterRoutes registers the /v1/callgraph endpoints.
//
// Endpoints:
//
//	GET  /v1/callgraph/health          - Health check
//	POST /v1/callgraph/build           - Build a call graph
//	POST /v1/callgraph/callers         - Edges into functions with a name
//	POST /v1/callgraph/callees         - Edges out of functions with a name
//	GET  /v1/callgraph/graphs/:id      - Exchange-format graph
//	GET  /v1/callgraph/graphs/:id/dead - Functions nothing calls
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	cg := rg.Group("/callgraph")
	{
		cg.GET("/health", handlers.HandleHealth)
		cg.POST("/build", handlers.HandleBuild)
		cg.POST("/callers", handlers.HandleCallers)
		cg.POST("/callees", handlers.HandleCallees)
		cg.GET("/graphs/:id", handlers.HandleGetGraph)
		cg.GET("/graphs/:id/dead", handlers.HandleDeadFunctions)
	}
}

// RequestIDMiddleware stores the client's X-Request-ID, or a new one, on
// the context and echoes it in the response.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// MetricsMiddleware records request counts and latency per route.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		requestsTotal.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
		requestDurationSeconds.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

// NewRouter builds the gin engine with middleware, the API and /metrics.
func NewRouter(svc *Service, debug bool) *gin.Engine {
	if debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(RequestIDMiddleware())
	router.Use(MetricsMiddleware())
	if debug {
		router.Use(gin.Logger())
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	RegisterRoutes(v1, NewHandlers(svc))
	return router
}

// Run serves router on addr until ctx is canceled, then shuts down
// gracefully.
func Run(ctx context.Context, addr string, router http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting jscg server", slog.String("address", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving %s: %w", addr, err)
	case <-ctx.Done():
	}

	logger.Info("shutting down jscg server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}
