// Package metrics holds the service's prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	reg *prometheus.Registry

	RequestCounter  *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	QuestionsGraded *prometheus.CounterVec
	BandScores      *prometheus.HistogramVec
	Submissions     *prometheus.CounterVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		RequestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"method", "endpoint"},
		),
		QuestionsGraded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ielts_questions_graded_total",
				Help: "Graded questions by type and outcome",
			},
			[]string{"type", "correct"},
		),
		BandScores: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ielts_band_score",
				Help:    "Band scores of completed attempts",
				Buckets: []float64{1, 2, 3, 4, 5, 6, 7, 8, 9},
			},
			[]string{"module", "variant"},
		),
		Submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ielts_submissions_total",
				Help: "Exam submissions by outcome",
			},
			[]string{"outcome"},
		),
	}
	m.reg.MustRegister(
		m.RequestCounter, m.RequestDuration, m.QuestionsGraded, m.BandScores, m.Submissions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Middleware records request count and latency per route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			endpoint = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.RequestCounter.WithLabelValues(r.Method, endpoint, strconv.Itoa(status)).Inc()
		m.RequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
	})
}

// ObserveGrade counts one graded question.
func (m *Metrics) ObserveGrade(qtype string, correct bool) {
	if m == nil {
		return
	}
	m.QuestionsGraded.WithLabelValues(qtype, strconv.FormatBool(correct)).Inc()
}

func (m *Metrics) ObserveBand(module, variant string, b float64) {
	if m == nil {
		return
	}
	m.BandScores.WithLabelValues(module, variant).Observe(b)
}

func (m *Metrics) ObserveSubmission(outcome string) {
	if m == nil {
		return
	}
	m.Submissions.WithLabelValues(outcome).Inc()
}
