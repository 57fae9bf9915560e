package metrics

import (
	"maps"
	"strings"
	"sync"
	"time"

	"ccgateway/config"
	"ccgateway/logger"
)

// Metric is one structured metric event.
type Metric struct {
	Timestamp time.Time
	Component string
	Name      string
	Value     interface{}
	Type      string
	Fields    logger.Fields
}

// MetricHandler consumes metric events, e.g. the status dashboard.
type MetricHandler func(Metric)

type MetricHandlerID uint64

// Feature names a family of metrics that can be switched off in configuration.
type Feature string

const (
	FeatureUsedWeight Feature = "used_weight"
	FeatureFeedFrames Feature = "feed_frames"
)

type handlerRegistry struct {
	mu       sync.RWMutex
	next     MetricHandlerID
	handlers map[MetricHandlerID]MetricHandler
}

func (r *handlerRegistry) add(h MetricHandler) MetricHandlerID {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handlers == nil {
		r.handlers = make(map[MetricHandlerID]MetricHandler)
	}
	r.next++
	r.handlers[r.next] = h
	return r.next
}

func (r *handlerRegistry) remove(id MetricHandlerID) {
	r.mu.Lock()
	delete(r.handlers, id)
	r.mu.Unlock()
}

func (r *handlerRegistry) reset() {
	r.mu.Lock()
	r.handlers, r.next = nil, 0
	r.mu.Unlock()
}

// dispatch calls every handler outside the lock so handlers may register or
// unregister.
func (r *handlerRegistry) dispatch(m Metric) {
	r.mu.RLock()
	hs := make([]MetricHandler, 0, len(r.handlers))
	for _, h := range r.handlers {
		hs = append(hs, h)
	}
	r.mu.RUnlock()

	for _, h := range hs {
		h(m)
	}
}

var (
	registry handlerRegistry

	featuresMu sync.RWMutex
	features   = map[Feature]bool{
		FeatureUsedWeight: true,
		FeatureFeedFrames: true,
	}
)

// Configure applies the metric feature switches from cfg.
func Configure(cfg config.MetricsConfig) {
	featuresMu.Lock()
	features[FeatureUsedWeight] = cfg.UsedWeight
	features[FeatureFeedFrames] = cfg.FeedFrames
	featuresMu.Unlock()
}

// IsFeatureEnabled reports whether metrics of the given family are emitted.
// Unknown features are always on.
func IsFeatureEnabled(f Feature) bool {
	featuresMu.RLock()
	defer featuresMu.RUnlock()
	enabled, ok := features[f]
	return !ok || enabled
}

func featureOf(name string) (Feature, bool) {
	switch {
	case strings.HasPrefix(name, string(FeatureUsedWeight)):
		return FeatureUsedWeight, true
	case strings.HasPrefix(name, "feed_frame"):
		return FeatureFeedFrames, true
	}
	return "", false
}

// RegisterMetricHandler subscribes handler to every emitted metric. A nil
// handler gets the zero id.
func RegisterMetricHandler(handler MetricHandler) MetricHandlerID {
	if handler == nil {
		return 0
	}
	return registry.add(handler)
}

func UnregisterMetricHandler(id MetricHandlerID) {
	if id != 0 {
		registry.remove(id)
	}
}

// recordMetric logs the event at debug and hands it to the registered
// handlers. It reports false for unnamed or disabled metrics.
func recordMetric(log *logger.Log, component, name string, value interface{}, metricType string, fields logger.Fields) (Metric, bool) {
	if name == "" {
		return Metric{}, false
	}
	if f, gated := featureOf(name); gated && !IsFeatureEnabled(f) {
		return Metric{}, false
	}
	if metricType == "" {
		metricType = "counter"
	}
	if log == nil {
		log = logger.GetLogger()
	}

	m := Metric{
		Timestamp: timeNow(),
		Component: component,
		Name:      name,
		Value:     value,
		Type:      metricType,
		Fields:    logger.Fields{},
	}
	maps.Copy(m.Fields, fields)

	log.WithComponent(component).WithFields(m.Fields).WithFields(logger.Fields{
		"metric":      name,
		"metric_type": metricType,
		"value":       value,
	}).Debug("metric")

	registry.dispatch(m)
	return m, true
}
