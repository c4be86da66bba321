package service

import "github.com/prometheus/client_golang/prometheus"

var (
	standingsApplyTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "standings_apply_total",
			Help: "Judged submission events offered to the standings, by result",
		},
		[]string{"result"},
	)

	standingsSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "standings_subscribers",
			Help: "Open live standings subscriptions",
		},
	)
)

// InitMetrics registers standings metrics on reg.
func InitMetrics(reg prometheus.Registerer) {
	reg.MustRegister(standingsApplyTotal, standingsSubscribers)
}
