package service

import (
	"os"

	"github.com/prometheus/client_golang/prometheus"
)

func metricLabels() prometheus.Labels {
	instance := os.Getenv("INSTANCE_ID")
	if instance == "" {
		instance, _ = os.Hostname()
	}
	return prometheus.Labels{"service": "contest-judge", "instance": instance}
}

var (
	judgeSubmissionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "judge_submission_total",
			Help: "Submissions reaching a terminal state, by state and verdict",
		},
		[]string{"state", "verdict"},
	)

	judgeSubmissionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "judge_submission_duration_seconds",
			Help:    "Time from dispatch to terminal state",
			Buckets: prometheus.DefBuckets,
		},
	)

	judgeExecutionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "judge_execution_total",
			Help: "Execution service calls by result",
		},
		[]string{"result"},
	)

	judgeExecutionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "judge_execution_duration_seconds",
			Help:    "Latency of single execution service calls",
			Buckets: prometheus.DefBuckets,
		},
	)

	judgeRetryTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "judge_execution_retry_total",
			Help: "Retried execution calls",
		},
	)

	judgeWatchdogTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "judge_watchdog_expired_total",
			Help: "Submissions failed by the judging watchdog",
		},
	)

	judgeActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "judge_active_submissions",
			Help: "Submissions currently being judged",
		},
	)
)

// InitMetrics registers judge metrics with reg, or the default registerer when nil.
func InitMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg = prometheus.WrapRegistererWith(metricLabels(), reg)
	reg.MustRegister(judgeSubmissionTotal)
	reg.MustRegister(judgeSubmissionDuration)
	reg.MustRegister(judgeExecutionTotal)
	reg.MustRegister(judgeExecutionDuration)
	reg.MustRegister(judgeRetryTotal)
	reg.MustRegister(judgeWatchdogTotal)
	reg.MustRegister(judgeActive)
}
