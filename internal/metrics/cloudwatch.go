package metrics

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"ccgateway/logger"
)

var (
	// cloudWatchPublishInterval bounds how often one metric series is pushed.
	cloudWatchPublishInterval = time.Minute

	timeNow            = time.Now
	publishEnabled     = logger.CloudWatchEnabled
	publishMetricsFunc = logger.PublishMetrics

	throttle = seriesThrottle{last: make(map[string]time.Time)}
)

var cloudWatchUnits = map[string]cwtypes.StandardUnit{
	"count":        cwtypes.StandardUnitCount,
	"percent":      cwtypes.StandardUnitPercent,
	"milliseconds": cwtypes.StandardUnitMilliseconds,
	"ms":           cwtypes.StandardUnitMilliseconds,
	"bytes":        cwtypes.StandardUnitBytes,
}

// seriesThrottle remembers when each series was last published.
type seriesThrottle struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func (t *seriesThrottle) allow(key string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if prev, seen := t.last[key]; seen && now.Sub(prev) < cloudWatchPublishInterval {
		return false
	}
	t.last[key] = now
	return true
}

func resetMetricPublishTimes() {
	throttle.mu.Lock()
	throttle.last = make(map[string]time.Time)
	throttle.mu.Unlock()
}

// EmitMetric logs the metric, hands it to registered handlers and publishes it
// to CloudWatch when a client is configured.
func EmitMetric(log *logger.Log, component string, metric string, value interface{}, metricType string, fields logger.Fields) {
	m, ok := recordMetric(log, component, metric, value, metricType, fields)
	if !ok || !publishEnabled() {
		return
	}

	v, numeric := toFloat64(m.Value)
	if !numeric {
		logger.GetLogger().WithComponent("cloudwatch").WithFields(logger.Fields{"metric": m.Name}).Debug("skipping non-numeric metric")
		return
	}
	if !throttle.allow(seriesKey(m), timeNow()) {
		return
	}
	publishMetricsFunc(context.Background(), []cwtypes.MetricDatum{toDatum(m, v)})
}

// seriesKey identifies a metric series by name, component and string fields.
func seriesKey(m Metric) string {
	return m.Component + "/" + m.Name + "/" + strings.Join(labelPairs(m.Fields), ",")
}

// labelPairs returns the sorted k=v pairs of the non-empty string fields,
// excluding the unit.
func labelPairs(fields logger.Fields) []string {
	pairs := make([]string, 0, len(fields))
	for k, v := range fields {
		if s, ok := v.(string); ok && s != "" && k != "unit" {
			pairs = append(pairs, k+"="+s)
		}
	}
	sort.Strings(pairs)
	return pairs
}

func toDatum(m Metric, value float64) cwtypes.MetricDatum {
	unit := cwtypes.StandardUnitCount
	if s, ok := m.Fields["unit"].(string); ok {
		if u, known := cloudWatchUnits[strings.ToLower(s)]; known {
			unit = u
		}
	}

	dims := []cwtypes.Dimension{{Name: aws.String("component"), Value: aws.String(m.Component)}}
	for _, pair := range labelPairs(m.Fields) {
		k, v, _ := strings.Cut(pair, "=")
		dims = append(dims, cwtypes.Dimension{Name: aws.String(k), Value: aws.String(v)})
	}

	return cwtypes.MetricDatum{
		MetricName: aws.String(m.Name),
		Dimensions: dims,
		Timestamp:  aws.Time(m.Timestamp),
		Unit:       unit,
		Value:      aws.Float64(value),
	}
}

func toFloat64(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}
