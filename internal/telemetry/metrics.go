// Package telemetry holds the pipe's Prometheus collectors and the optional
// /metrics endpoint.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pixelpipe/internal/logging"
)

var (
	FramesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pixelpipe_frames_total",
		Help: "Frames read from the input stream and emitted.",
	})
	TransformFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pixelpipe_transform_failures_total",
		Help: "Frames forwarded untransformed because the transform failed.",
	}, []string{"reason"})
	BytesOut = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pixelpipe_bytes_out_total",
		Help: "Bytes written to the output stream.",
	})
	FrameDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pixelpipe_frame_duration_seconds",
		Help:    "Time from a complete frame read to its output flush.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	})
)

func init() {
	prometheus.MustRegister(FramesTotal, TransformFailures, BytesOut, FrameDuration)
}

// Expose serves /metrics on port in the background. The returned server is
// shut down by the caller; port <= 0 disables the endpoint and returns nil.
func Expose(port int) *http.Server {
	if port <= 0 {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.L().Error("metrics endpoint stopped", "port", port, "err", err)
		}
	}()
	return srv
}

// Shutdown stops a server returned by Expose. A nil server is a no-op.
func Shutdown(srv *http.Server) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
