// Registers:
//
//	#ccgateway_remote_calls_total{operation,outcome}
//	#ccgateway_retries_total{operation}
//	#ccgateway_feed_frames_total{outcome}
//	#ccgateway_candles_published_total{symbol}
//	#ccgateway_used_weight{surface,window}
//	#go_* and process_* system metrics
//
// Exposes them on <listen>/metrics using Prometheus HTTP handler
package metrics

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ccgateway/logger"
)

// Feed frame outcomes.
const (
	FrameCandle    = "candle"
	FrameOpen      = "open_kline"
	FrameUntagged  = "untagged"
	FrameIgnored   = "ignored"
	FrameMalformed = "malformed"
)

var (
	once sync.Once

	remoteCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ccgateway_remote_calls_total",
			Help: "Venue calls by operation and final outcome",
		},
		[]string{"operation", "outcome"},
	)
	retries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ccgateway_retries_total",
			Help: "Failed attempts that were retried",
		},
		[]string{"operation"},
	)
	feedFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ccgateway_feed_frames_total",
			Help: "Stream frames by how the listener handled them",
		},
		[]string{"outcome"},
	)
	candlesPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ccgateway_candles_published_total",
			Help: "Closed candles handed to the publisher",
		},
		[]string{"symbol"},
	)
	usedWeight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ccgateway_used_weight",
			Help: "Request weight used in the current venue window",
		},
		[]string{"surface", "window"},
	)
)

// register adds cs to reg. Collectors that are already registered, such as
// the default Go and process collectors, are not an error.
func register(reg prometheus.Registerer, cs ...prometheus.Collector) int {
	failed := 0
	for _, c := range cs {
		err := reg.Register(c)
		var already prometheus.AlreadyRegisteredError
		if err == nil || errors.As(err, &already) {
			continue
		}
		failed++
		logger.GetLogger().WithComponent("metrics").WithError(err).Error("failed to register collector")
	}
	return failed
}

// Init registers the collectors and serves them on listen. It is safe to call
// more than once; only the first call has an effect.
func Init(listen string) {
	once.Do(func() {
		register(prometheus.DefaultRegisterer,
			remoteCalls, retries, feedFrames, candlesPublished, usedWeight,
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		if listen == "" {
			return
		}
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			srv := &http.Server{Addr: listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.GetLogger().WithComponent("metrics").WithError(err).Error("metrics server failed")
			}
		}()
	})
}

// ObserveCall counts a finished venue call.
func ObserveCall(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		logger.IncrementRemoteFailure()
	}
	remoteCalls.WithLabelValues(operation, outcome).Inc()
}

// ObserveRetry counts a failed attempt that is about to be retried. Its
// signature matches retry.Observer.
func ObserveRetry(operation string, attempt int, err error, delay time.Duration) {
	retries.WithLabelValues(operation).Inc()
	EmitMetric(nil, "retry", "retry_delay", delay.Milliseconds(), "gauge", logger.Fields{
		"operation": operation,
		"unit":      "milliseconds",
	})
}

// RecordFeedFrame counts a stream frame by outcome.
func RecordFeedFrame(outcome string) {
	if !IsFeatureEnabled(FeatureFeedFrames) {
		return
	}
	feedFrames.WithLabelValues(outcome).Inc()
}

// RecordCandlePublished counts a closed candle accepted by the publisher.
func RecordCandlePublished(symbol string) {
	candlesPublished.WithLabelValues(symbol).Inc()
}

// SetUsedWeight stores the latest used weight reported by the venue.
func SetUsedWeight(surface, window string, value float64) {
	if !IsFeatureEnabled(FeatureUsedWeight) {
		return
	}
	usedWeight.WithLabelValues(surface, window).Set(value)
}
