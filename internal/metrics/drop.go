package metrics

import "ccgateway/logger"

// DropMetric identifies the metric name emitted when a message is dropped.
type DropMetric string

const (
	// DropMetricCandleBuffer records closed candles dropped because the
	// publisher buffer was full.
	DropMetricCandleBuffer DropMetric = "candle_messages_dropped"
	// DropMetricCandleWrite records candles lost after a failed broker write.
	DropMetricCandleWrite DropMetric = "candle_writes_dropped"
)

// EmitDropMetric emits a metric for one dropped message. Optional segment,
// symbol and stage values are attached as fields.
func EmitDropMetric(log *logger.Log, metric DropMetric, segment, symbol, stage string) {
	fields := logger.Fields{"unit": "count"}
	if segment != "" {
		fields["segment"] = segment
	}
	if symbol != "" {
		fields["symbol"] = symbol
	}
	if stage != "" {
		fields["stage"] = stage
	}

	EmitMetric(log, "drops", string(metric), 1, "counter", fields)
}
