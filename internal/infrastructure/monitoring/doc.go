/*
Package monitoring provides Prometheus metrics for the terminal service.

# Overview

Metrics cover the HTTP surface, the session lifecycle (created by mode,
destroyed by reason, fallback transitions), submitted commands by outcome,
one-shot execution latency and truncation, the spawn circuit breaker, and
streaming connections.

# Usage

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)

	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	metrics.RecordCommand("rejected")

A nil *Metrics is accepted everywhere and records nothing.
*/
package monitoring
