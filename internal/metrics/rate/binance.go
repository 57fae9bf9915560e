// Package rate tracks venue request weight and rate limit events.
package rate

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	futures "github.com/adshao/go-binance/v2/futures"

	"ccgateway/internal/metrics"
	"ccgateway/logger"
)

// FetchRequestWeightLimit queries the exchangeInfo endpoint to retrieve the
// REQUEST_WEIGHT per minute limit. It returns 0 if the limit cannot be
// determined.
func FetchRequestWeightLimit(ctx context.Context, client *futures.Client) (int64, error) {
	info, err := client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return 0, err
	}
	for _, rl := range info.RateLimits {
		if rl.RateLimitType == "REQUEST_WEIGHT" && rl.Interval == "MINUTE" {
			return rl.Limit, nil
		}
	}
	return 0, nil
}

var usedWeightHeaders = []struct {
	key    string
	window string
}{
	{"X-MBX-USED-WEIGHT-1M", "1m"},
	{"X-MBX-USED-WEIGHT", "1m"},
	{"X-MBX-USED-WEIGHT-1S", "1s"},
}

// ReportUsedWeight reads the used-weight headers of a venue response and
// emits a gauge for the first one found. limit, when positive, adds the share
// of the per-minute budget consumed.
func ReportUsedWeight(log *logger.Log, header http.Header, surface string, limit int64) (float64, bool) {
	if log == nil || header == nil {
		return 0, false
	}

	for _, h := range usedWeightHeaders {
		value := header.Get(h.key)
		if value == "" {
			continue
		}

		used, err := strconv.ParseFloat(value, 64)
		if err != nil {
			log.WithComponent("rest_transport").WithFields(logger.Fields{
				"surface": surface,
				"header":  h.key,
				"value":   value,
			}).WithError(err).Debug("failed to parse used weight header")
			continue
		}

		fields := logger.Fields{"surface": surface, "window": h.window}
		metrics.SetUsedWeight(surface, h.window, used)
		metrics.EmitMetric(log, "rest_transport", "used_weight", used, "gauge", fields)
		if limit > 0 && h.window == "1m" {
			metrics.EmitMetric(log, "rest_transport", "used_weight_percent", 100*used/float64(limit), "gauge",
				logger.Fields{"surface": surface, "unit": "percent"})
		}
		return used, true
	}

	return 0, false
}

// WSWeightTracker tracks outgoing websocket messages and connection attempts
// of one stream connection.
type WSWeightTracker struct {
	mu       sync.Mutex
	window   time.Time
	msgs     int
	attempts int
	now      func() time.Time
}

// NewWSWeightTracker creates a new tracker.
func NewWSWeightTracker() *WSWeightTracker {
	return &WSWeightTracker{window: time.Now(), now: time.Now}
}

// RegisterOutgoing records n outgoing client messages (subscriptions, pongs).
func (t *WSWeightTracker) RegisterOutgoing(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	if now.Sub(t.window) >= time.Second {
		t.msgs = 0
		t.window = now
	}
	t.msgs += n
}

// RegisterConnectionAttempt records a websocket handshake attempt.
func (t *WSWeightTracker) RegisterConnectionAttempt() {
	t.mu.Lock()
	t.attempts++
	t.mu.Unlock()
}

// Stats returns the message count within the current one second window and
// the total connection attempts.
func (t *WSWeightTracker) Stats() (msgs int, attempts int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.now().Sub(t.window) >= time.Second {
		return 0, t.attempts
	}
	return t.msgs, t.attempts
}

// ReportWSWeight emits websocket weight metrics for endpoint.
func ReportWSWeight(log *logger.Log, t *WSWeightTracker, endpoint string) {
	msgs, attempts := t.Stats()
	fields := logger.Fields{"endpoint": endpoint}
	metrics.EmitMetric(log, "stream_transport", "outgoing_messages", int64(msgs), "gauge", fields)
	metrics.EmitMetric(log, "stream_transport", "connection_attempts", int64(attempts), "counter", fields)
}
