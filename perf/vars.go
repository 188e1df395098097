package perf

import (
	"expvar"
	"net/http"

	"github.com/encodeous/metric"
)

var (
	DispatchLatency     = metric.NewHistogram("1m1s")
	UpdateBatchSize     = metric.NewHistogram("10s1s")
	UpdatesPerSecond    = metric.NewCounter("10s1s")
	DuplicateUpdates    = metric.NewCounter("10s1s")
	BroadcastsPerSecond = metric.NewCounter("10s1s")
	QuotesPerSecond     = metric.NewCounter("10s1s")
	QuoteLatency        = metric.NewHistogram("1m1s")
	SentBytesPerSecond  = metric.NewCounter("10s1s")
	RecvBytesPerSecond  = metric.NewCounter("10s1s")
	RoutesKnown         = expvar.NewInt("ratemesh:RoutesKnown")
	ExpiredDestinations = expvar.NewInt("ratemesh:ExpiredDestinations")
)

func init() {
	http.Handle("/debug/metrics", metric.Handler(metric.Exposed))
	expvar.Publish("ratemesh:UpdateBatchSize", UpdateBatchSize)
	expvar.Publish("ratemesh:Updates/s", UpdatesPerSecond)
	expvar.Publish("ratemesh:DuplicateUpdates/s", DuplicateUpdates)
	expvar.Publish("ratemesh:Broadcasts/s", BroadcastsPerSecond)
	expvar.Publish("ratemesh:Quotes/s", QuotesPerSecond)
	expvar.Publish("ratemesh:QuoteLatency (µs)", QuoteLatency)
	expvar.Publish("ratemesh:SentBytes/s", SentBytesPerSecond)
	expvar.Publish("ratemesh:RecvBytes/s", RecvBytesPerSecond)
	expvar.Publish("ratemesh:DispatchLatency (µs)", DispatchLatency)
}
