package fetch

import "github.com/prometheus/client_golang/prometheus"

var (
	downloadCount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "transit_fetch_downloads_total",
		Help: "Number of responses downloaded with a full body",
	}, []string{"host"})
	notModifiedCount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "transit_fetch_not_modified_total",
		Help: "Number of conditional requests answered with 304 Not Modified",
	}, []string{"host"})
	errorCount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "transit_fetch_errors_total",
		Help: "Number of requests that failed or returned an unexpected status",
	}, []string{"host"})
)

func init() {
	prometheus.MustRegister(downloadCount, notModifiedCount, errorCount)
}
