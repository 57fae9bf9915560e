package dashboard

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"ccgateway/internal/metrics"
	"ccgateway/models"
)

// ring keeps the most recent limit items. It is safe for concurrent use.
type ring[T any] struct {
	mu    sync.RWMutex
	items []T
	limit int
}

func newRing[T any](limit int) *ring[T] {
	if limit <= 0 {
		limit = 200
	}
	return &ring[T]{limit: limit}
}

func (r *ring[T]) add(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, item)
	if len(r.items) > r.limit {
		r.items = append([]T(nil), r.items[len(r.items)-r.limit:]...)
	}
}

func (r *ring[T]) snapshot() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]T, len(r.items))
	copy(out, r.items)
	return out
}

// metricStore retains recent metric events from the registry.
type metricStore struct {
	*ring[metrics.Metric]
}

func newMetricStore(limit int) *metricStore {
	return &metricStore{ring: newRing[metrics.Metric](limit)}
}

func (s *metricStore) handle(m metrics.Metric) { s.add(m) }

type logRecord struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Component string         `json:"component,omitempty"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// logStore is a logrus hook retaining recent entries. Closing it stops
// capture; logrus has no way to remove a hook.
type logStore struct {
	*ring[logRecord]
	enabled atomic.Bool
}

func newLogStore(limit int) *logStore {
	ls := &logStore{ring: newRing[logRecord](limit)}
	ls.enabled.Store(true)
	return ls
}

func (s *logStore) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (s *logStore) Fire(entry *logrus.Entry) error {
	if !s.enabled.Load() {
		return nil
	}
	rec := logRecord{
		Timestamp: entry.Time,
		Level:     entry.Level.String(),
		Message:   entry.Message,
	}
	for k, v := range entry.Data {
		if k == "component" {
			rec.Component, _ = v.(string)
			continue
		}
		if rec.Fields == nil {
			rec.Fields = make(map[string]any, len(entry.Data))
		}
		switch val := v.(type) {
		case error:
			rec.Fields[k] = val.Error()
		case fmt.Stringer:
			rec.Fields[k] = val.String()
		default:
			rec.Fields[k] = val
		}
	}
	s.add(rec)
	return nil
}

func (s *logStore) close() {
	s.enabled.Store(false)
}

// candleRecord is the latest closed candle of one symbol and timeframe.
type candleRecord struct {
	Symbol     string        `json:"symbol"`
	Timeframe  string        `json:"timeframe"`
	Candle     models.Candle `json:"candle"`
	ReceivedAt time.Time     `json:"received_at"`
}

type candleStore struct {
	mu    sync.RWMutex
	items map[string]candleRecord
}

func newCandleStore() *candleStore {
	return &candleStore{items: make(map[string]candleRecord)}
}

func (s *candleStore) observe(ev models.CandleEvent) {
	key := ev.Symbol + "|" + ev.Timeframe
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.items[key]; ok && prev.Candle.OpenTime.After(ev.Candle.OpenTime) {
		return
	}
	s.items[key] = candleRecord{
		Symbol:     ev.Symbol,
		Timeframe:  ev.Timeframe,
		Candle:     ev.Candle,
		ReceivedAt: time.Now().UTC(),
	}
}

// snapshot returns the stored candles ordered by symbol then timeframe. A
// non-empty symbol filters the result.
func (s *candleStore) snapshot(symbol string) []candleRecord {
	s.mu.RLock()
	out := make([]candleRecord, 0, len(s.items))
	for _, rec := range s.items {
		if symbol != "" && rec.Symbol != symbol {
			continue
		}
		out = append(out, rec)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].Timeframe < out[j].Timeframe
	})
	return out
}
