package plugins

import (
	"errors"
	"net/http"

	"dispatch-server/internal/hook"
	"dispatch-server/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics counts calls by API and outcome and records their duration.
type Metrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	calls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "api_calls_total",
		Help:      "Dispatched API calls by outcome.",
	}, []string{"api", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "api_call_duration_seconds",
		Help:      "Wall time between start_at and end_at of API calls.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"api"})

	var err error
	if calls, err = register(reg, calls); err != nil {
		return nil, err
	}
	if duration, err = register(reg, duration); err != nil {
		return nil, err
	}
	return &Metrics{calls: calls, duration: duration}, nil
}

// register returns the already registered collector when an identical one
// exists.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// Hook binds the recorder to api_called.
func (m *Metrics) Hook() hook.Hook {
	return service.APICalled(m.observe)
}

func (m *Metrics) observe(c *service.Context) error {
	api := c.APIName()
	m.calls.WithLabelValues(api, string(service.Classify(c))).Inc()
	m.duration.WithLabelValues(api).Observe(service.Elapsed(c).Seconds())
	return nil
}

// Handler serves g in the prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
