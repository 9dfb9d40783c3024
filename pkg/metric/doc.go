// Package metric provides Prometheus instrumentation for a Thing server.
//
// A single Metrics instance plugs into the dispatcher and the event
// publisher as their observer and into the HTTP gateway as the /metrics
// handler:
//
//	m := metric.NewMetrics()
//	pub := events.NewPublisher(events.Options{Observer: m})
//	d := dispatch.New(pub, dispatch.Options{Observer: m})
//	mux.Handle("/metrics", m.Handler())
package metric
