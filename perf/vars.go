package perf

import (
	"expvar"
	"maps"
	"net/http"

	"github.com/encodeous/metric"
)

var (
	CycleLatency    = metric.NewHistogram("1m1s")
	AdvertsSent     = metric.NewCounter("10s1s")
	AdvertsSkipped  = metric.NewCounter("10s1s")
	AdvertsReceived = metric.NewCounter("10s1s")
	SendErrors      = metric.NewCounter("10s1s")
	DecodeErrors    = metric.NewCounter("10s1s")
	UnknownSenders  = metric.NewCounter("10s1s")
	InboxDropped    = metric.NewCounter("10s1s")
	TableUpdates    = metric.NewCounter("10s1s")
)

var published = map[string]metric.Metric{
	"dvsim:AdvertsSent/s":     AdvertsSent,
	"dvsim:AdvertsSkipped/s":  AdvertsSkipped,
	"dvsim:AdvertsReceived/s": AdvertsReceived,
	"dvsim:SendErrors/s":      SendErrors,
	"dvsim:DecodeErrors/s":    DecodeErrors,
	"dvsim:UnknownSenders/s":  UnknownSenders,
	"dvsim:InboxDropped/s":    InboxDropped,
	"dvsim:TableUpdates/s":    TableUpdates,
	"dvsim:CycleLatency (µs)": CycleLatency,
}

func init() {
	http.Handle("/debug/metrics", metric.Handler(metric.Exposed))
	for name, m := range published {
		expvar.Publish(name, m)
	}
}

// Snapshot returns every published metric by name.
func Snapshot() map[string]metric.Metric {
	return maps.Clone(published)
}
