// Package metrics exports Prometheus counters for the auth flows and HTTP
// traffic. All recording methods are safe to call on a nil *Metrics so
// services can be constructed without metrics in tests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// namespace prefixes every metric name.
const namespace = "campus"

// Outcome label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics holds every collector the service exports.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	OTPSentTotal      *prometheus.CounterVec
	OTPVerifiedTotal  *prometheus.CounterVec
	LoginsTotal       *prometheus.CounterVec
	RegistrationTotal *prometheus.CounterVec
	RefreshTotal      *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers the collectors on reg. Passing a fresh prometheus.Registry
// keeps tests isolated from the global default registry.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		OTPSentTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "otp_sent_total",
				Help:      "Verification codes issued, by delivery result",
			},
			[]string{"result"},
		),
		OTPVerifiedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "otp_verified_total",
				Help:      "Verification attempts, by result (success, mismatch, not_found)",
			},
			[]string{"result"},
		),
		LoginsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "logins_total",
				Help:      "Login attempts by role and result",
			},
			[]string{"role", "result"},
		),
		RegistrationTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "registrations_total",
				Help:      "Accounts created by role and source (self, admin, bootstrap)",
			},
			[]string{"role", "source"},
		),
		RefreshTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "token_refresh_total",
				Help:      "Refresh token exchanges by result",
			},
			[]string{"result"},
		),
		gatherer: reg,
	}
}

// OTPSent records one send attempt.
func (m *Metrics) OTPSent(result string) {
	if m == nil {
		return
	}
	m.OTPSentTotal.WithLabelValues(result).Inc()
}

// OTPVerified records one verification attempt.
func (m *Metrics) OTPVerified(result string) {
	if m == nil {
		return
	}
	m.OTPVerifiedTotal.WithLabelValues(result).Inc()
}

// Login records one login attempt against the expected role.
func (m *Metrics) Login(role, result string) {
	if m == nil {
		return
	}
	m.LoginsTotal.WithLabelValues(role, result).Inc()
}

// Registered records one created account.
func (m *Metrics) Registered(role, source string) {
	if m == nil {
		return
	}
	m.RegistrationTotal.WithLabelValues(role, source).Inc()
}

// Refreshed records one refresh token exchange.
func (m *Metrics) Refreshed(result string) {
	if m == nil {
		return
	}
	m.RefreshTotal.WithLabelValues(result).Inc()
}

// Middleware counts requests and their latency. The route template (e.g.
// "/admin/add-student") is used as the path label so ids never explode
// cardinality; unmatched requests are grouped under "unmatched".
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m == nil {
				return next(c)
			}
			start := time.Now()
			err := next(c)
			if err != nil {
				// Let the error handler write the response so the status is final.
				c.Error(err)
			}

			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			method := c.Request().Method
			status := strconv.Itoa(c.Response().Status)

			m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
			m.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
