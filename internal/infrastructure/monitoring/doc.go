/*
Package monitoring provides metrics collection and the diagnostics sink.

# Overview

Metrics are Prometheus collectors registered on an injected registerer:
HTTP requests, windows, shells, protocol events by direction and action,
absorbed diagnostics by kind, and attached display connections.

Diagnostics implements protocol.DiagnosticSink by logging each absorbed
failure and counting it.

# Usage

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)
	router.Use(monitoring.Middleware(metrics, "/metrics"))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	sink := monitoring.NewDiagnostics(logger, metrics)
*/
package monitoring
