package backend

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metrics counts and times requests per record type and operation
type metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newMetrics(registerer prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autorest",
			Name:      "requests_total",
			Help:      "Number of handled requests by record type, operation, method and status code.",
		}, []string{"resource", "operation", "method", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "autorest",
			Name:      "request_duration_seconds",
			Help:      "Duration of handled requests by record type, operation and method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"resource", "operation", "method"}),
	}
	var err error
	if m.requests, err = register(registerer, m.requests); err != nil {
		return nil, err
	}
	if m.duration, err = register(registerer, m.duration); err != nil {
		return nil, err
	}
	return m, nil
}

// register registers c, or returns the collector registered before by another backend
func register[C prometheus.Collector](registerer prometheus.Registerer, c C) (C, error) {
	if err := registerer.Register(c); err != nil {
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

func (m *metrics) instrument(route Route, h http.Handler) http.Handler {
	resource := route.Type
	if route.Field != "" && route.Operation != OperationInvoke {
		resource += "." + route.Field
	}
	labels := prometheus.Labels{"resource": resource, "operation": route.Operation}
	h = promhttp.InstrumentHandlerCounter(m.requests.MustCurryWith(labels), h)
	return promhttp.InstrumentHandlerDuration(m.duration.MustCurryWith(labels), h)
}
