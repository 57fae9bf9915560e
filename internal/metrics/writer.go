package metrics

import "ccgateway/logger"

// WriterStats holds counters of the candle publisher.
type WriterStats struct {
	MessagesWritten int64
	BatchesWritten  int64
	BytesWritten    int64
	ErrorsCount     int64
	Dropped         int64
	BufferLen       int
	BufferCap       int
}

// ReportWriter emits publisher metrics under component.
func ReportWriter(log *logger.Log, component string, stats WriterStats) {
	if log == nil {
		log = logger.GetLogger()
	}
	l := log.WithComponent(component)

	errorRate := float64(0)
	if stats.BatchesWritten+stats.ErrorsCount > 0 {
		errorRate = float64(stats.ErrorsCount) / float64(stats.BatchesWritten+stats.ErrorsCount)
	}

	bufferUse := float64(0)
	if stats.BufferCap > 0 {
		bufferUse = 100 * float64(stats.BufferLen) / float64(stats.BufferCap)
	}

	EmitMetric(log, component, "messages_written", stats.MessagesWritten, "counter", logger.Fields{"unit": "count"})
	EmitMetric(log, component, "bytes_written", stats.BytesWritten, "counter", logger.Fields{"unit": "bytes"})
	EmitMetric(log, component, "errors_count", stats.ErrorsCount, "counter", logger.Fields{"unit": "count"})
	EmitMetric(log, component, "error_rate", errorRate, "gauge", logger.Fields{})
	EmitMetric(log, component, "buffer_usage", bufferUse, "gauge", logger.Fields{"unit": "percent"})

	entry := l.WithFields(logger.Fields{
		"messages_written": stats.MessagesWritten,
		"batches_written":  stats.BatchesWritten,
		"bytes_written":    stats.BytesWritten,
		"errors_count":     stats.ErrorsCount,
		"dropped":          stats.Dropped,
		"error_rate":       errorRate,
		"buffer_len":       stats.BufferLen,
		"buffer_cap":       stats.BufferCap,
	})

	if stats.ErrorsCount > 0 || stats.Dropped > 0 {
		entry.Warn(component + " metrics")
		return
	}

	entry.Info(component + " metrics")
}
