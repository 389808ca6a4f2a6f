package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"pipesort.dev/pipesort/logging"
)

func init() {
	prometheus.MustRegister(linkInFlight)
	prometheus.MustRegister(linkSendWait)
}

var (
	// Link level metrics

	linkInFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pipesort_link_in_flight_sends",
			Help: "Current number of senders blocked waiting for their receiver",
		},
		[]string{"link"},
	)

	linkSendWait = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipesort_link_send_wait_seconds",
			Help:    "Time a sender waited for the receiver to accept an element",
			Buckets: []float64{.00001, .0001, .001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"link"},
	)
)

// ObserveSend marks a sender on the named link as blocked. Call the returned
// func once the receiver accepted the element.
func ObserveSend(link string) (done func()) {
	start := time.Now()
	linkInFlight.WithLabelValues(link).Inc()
	return func() {
		linkInFlight.WithLabelValues(link).Dec()
		linkSendWait.WithLabelValues(link).Observe(time.Since(start).Seconds())
	}
}

// Handler writes link metrics from the Prometheus registry followed by the
// stage counters kept in the VictoriaMetrics default set.
func Handler() http.Handler {
	prom := promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		DisableCompression: true,
	})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		prom.ServeHTTP(w, r)
		metrics.WritePrometheus(w, false)
	})
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string) error {
	log := slog.With("instanceID", "metrics")
	mux := http.NewServeMux()
	mux.Handle("/metrics", logging.NewHTTPHandler(Handler(), log))

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	server := &http.Server{Handler: mux}
	go func() {
		<-ctx.Done()
		server.Close()
	}()

	log.Info("serving metrics", "addr", lis.Addr().String())
	if err := server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
