/*
Package monitoring provides Prometheus metrics for the service.

It tracks HTTP requests, streamed chat exchanges (outcomes, durations,
chunk counts), WebSocket connections, and plan generation. Live depths
(active streams, queue depth) are gauge funcs sampled at scrape time.

Usage:

	metrics := monitoring.NewMetrics(nil)
	router.Use(monitoring.Middleware(metrics))
	metrics.RegisterDepthGauges(coord.ActiveStreams, coord.QueueDepth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
*/
package monitoring
