package poll

import (
	"gitlab.com/tinyland/lab/listpulse/pkg/metrics"
)

var (
	fetchesTotal = metrics.MustRegisterCounterVec("poll", "fetches_total",
		"Collection fetches by outcome.", "collection", "outcome")
	fetchDuration = metrics.MustRegisterHistogramVec("poll", "fetch_duration_seconds",
		"Collection fetch round trip time.", nil, "collection")
	discardedTotal = metrics.MustRegisterCounter("poll", "discarded_total",
		"Fetch results discarded because their stream was torn down.")
	activeStreams = metrics.MustRegisterGauge("poll", "active_streams",
		"Distinct (endpoint, query) streams currently polling.")
	subscribersGauge = metrics.MustRegisterGauge("poll", "subscribers",
		"Subscriptions currently attached to a stream.")
)
