package services

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the application's Prometheus collectors. A nil *Metrics
// records nothing.
type Metrics struct {
	questionsCreated prometheus.Counter
	answersCreated   prometheus.Counter
	rejections       *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
}

func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		questionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "qanda",
			Name:      "questions_created_total",
			Help:      "Questions stored.",
		}),
		answersCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "qanda",
			Name:      "answers_created_total",
			Help:      "Answers stored.",
		}),
		rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qanda",
			Name:      "validation_rejections_total",
			Help:      "Submissions rejected because the text was empty after trimming.",
		}, []string{"form"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "qanda",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

func (m *Metrics) questionCreated() {
	if m == nil {
		return
	}
	m.questionsCreated.Inc()
}

func (m *Metrics) answerCreated() {
	if m == nil {
		return
	}
	m.answersCreated.Inc()
}

// ValidationRejected counts an empty submission for the named form.
func (m *Metrics) ValidationRejected(form string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(form).Inc()
}

func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
