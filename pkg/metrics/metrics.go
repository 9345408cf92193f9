// Package metrics exposes the bot's Prometheus collectors.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zhaopengme/statsbot/pkg/logger"
)

var (
	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "statsbot_ingest_queue_depth",
		Help: "Rows waiting in the ingestion queue.",
	})

	RowsWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "statsbot_ingest_rows_written_total",
		Help: "Rows handed to the store sender.",
	})

	RowsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "statsbot_ingest_rows_dropped_total",
		Help: "Rows lost because the store rejected them.",
	}, []string{"reason"})

	Flushes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "statsbot_ingest_flushes_total",
		Help: "Store flushes by trigger.",
	}, []string{"trigger"})

	FlushDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "statsbot_ingest_flush_seconds",
		Help:    "Time spent flushing buffered rows.",
		Buckets: prometheus.DefBuckets,
	})

	PollErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "statsbot_poll_errors_total",
		Help: "Failed getUpdates calls.",
	})

	Updates = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "statsbot_updates_total",
		Help: "Processed updates by dispatch key and outcome.",
	}, []string{"key", "outcome"})

	HandlerDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "statsbot_handler_seconds",
		Help:    "Handler execution time.",
		Buckets: prometheus.DefBuckets,
	}, []string{"key"})
)

func init() {
	prometheus.MustRegister(
		QueueDepth,
		RowsWritten,
		RowsDropped,
		Flushes,
		FlushDuration,
		PollErrors,
		Updates,
		HandlerDuration,
	)
}

// Server serves /metrics until Stop is called.
type Server struct {
	srv *http.Server
}

func NewServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start runs the HTTP listener in the background.
func (s *Server) Start() {
	go func() {
		logger.InfoCF("metrics", "Metrics endpoint listening", map[string]interface{}{
			"addr": s.srv.Addr,
		})
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorCF("metrics", "Metrics endpoint failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
