// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// ServiceName identifies the HTTP server in traces.
const ServiceName = "forge-service"

// NewRouter builds the gin engine with recovery, tracing and every route.
// A nil gatherer serves the default Prometheus registry.
func NewRouter(h *Handlers, gatherer prometheus.Gatherer) *gin.Engine {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(ServiceName))

	router.GET("/health", h.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	v1 := router.Group("/v1/forge")
	{
		v1.POST("/validate", h.Validate)
		v1.POST("/generate", h.Generate)
		v1.GET("/artifacts", h.ListArtifacts)
		v1.GET("/artifacts/:id", h.GetArtifact)
		v1.GET("/breakers", h.BreakerStats)
		v1.POST("/breakers/reset", h.ResetBreakers)
	}
	return router
}
