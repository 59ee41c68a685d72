// Package metrics holds the Prometheus collectors of the top-up bot and the optional /metrics listener.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/m3rciful/topupbot/core/logger"
)

const namespace = "topupbot"

// Gateway call outcomes.
const (
	OutcomeOK             = "ok"
	OutcomeBusinessError  = "business_error"
	OutcomeTransportError = "transport_error"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	gatewayCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "calls_total",
			Help:      "Payment gateway calls by operation and outcome.",
		},
		[]string{"op", "outcome"},
	)

	gatewayDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "call_duration_seconds",
			Help:      "Latency of payment gateway calls.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 9), // 50ms to ~13s
		},
		[]string{"op"},
	)

	payments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "topup",
			Name:      "payments_total",
			Help:      "Finished top-up attempts by status.",
		},
		[]string{"status"},
	)

	replies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "topup",
			Name:      "replies_total",
			Help:      "Outbound replies by message kind.",
		},
		[]string{"kind"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		gatewayCalls,
		gatewayDuration,
		payments,
		replies,
	)
}

// ObserveGatewayCall records one gateway call.
func ObserveGatewayCall(op, outcome string, took time.Duration) {
	gatewayCalls.WithLabelValues(op, outcome).Inc()
	gatewayDuration.WithLabelValues(op).Observe(took.Seconds())
}

// ObservePayment records the terminal status of a top-up attempt.
func ObservePayment(status string) {
	payments.WithLabelValues(status).Inc()
}

// ObserveReply records an outbound reply of the given kind.
func ObserveReply(kind string) {
	replies.WithLabelValues(kind).Inc()
}

// Handler exposes Registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Serve runs a /metrics listener on addr until ctx is done. A blank addr disables it.
func Serve(ctx context.Context, addr string) error {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.L.Info("metrics listening",
			slog.String("component", "metrics"),
			slog.String("event", "listen"),
			slog.String("listen", addr),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
