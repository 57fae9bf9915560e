// Package feed listens to the venue kline stream and emits closed candles.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/adshao/go-binance/v2"

	"ccgateway/internal/metrics"
	"ccgateway/internal/normalizer"
	"ccgateway/internal/symbols"
	"ccgateway/logger"
	"ccgateway/models"
)

// Transport is the streaming connection the listener drives. Implementations
// own dialing, framing and keepalive; the listener only reacts to callbacks.
type Transport interface {
	Connect(endpoint string) error
	Send(msg any) error
	// Start begins the connection loop and returns without blocking.
	Start(ctx context.Context) error
	Stop()
	OnConnected(func())
	OnPacket(func([]byte))
	OnDisconnected(func(error))
}

// State is the connection state of a Listener.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
	Subscribed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Subscribed:
		return "subscribed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Config selects the stream endpoint, the channels subscribed on every
// connect and the segment raw stream symbols belong to.
type Config struct {
	Endpoint string
	Channels []string
	Segment  models.Segment
}

// Handler receives each closed candle exactly once.
type Handler func(models.CandleEvent)

type subscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

type envelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// Listener subscribes to kline channels and forwards closed candles.
type Listener struct {
	transport Transport
	cfg       Config
	handler   Handler
	state     atomic.Int32
	reqID     atomic.Int64
	log       *logger.Entry
}

func New(t Transport, cfg Config, h Handler) (*Listener, error) {
	if t == nil || h == nil {
		return nil, errors.New("feed: transport and handler are required")
	}
	if cfg.Endpoint == "" || len(cfg.Channels) == 0 {
		return nil, errors.New("feed: endpoint and channels are required")
	}
	if _, err := models.ParseSegment(string(cfg.Segment)); err != nil {
		return nil, err
	}
	l := &Listener{
		transport: t,
		cfg:       cfg,
		handler:   h,
		log: logger.GetLogger().WithComponent("feed").WithFields(logger.Fields{
			"endpoint": cfg.Endpoint,
			"segment":  string(cfg.Segment),
		}),
	}
	t.OnConnected(l.onConnected)
	t.OnPacket(l.onPacket)
	t.OnDisconnected(l.onDisconnected)
	return l, nil
}

// State returns the current connection state.
func (l *Listener) State() State {
	return State(l.state.Load())
}

// Start connects the transport and returns once its loop is running.
func (l *Listener) Start(ctx context.Context) error {
	if !l.state.CompareAndSwap(int32(Disconnected), int32(Connecting)) {
		return fmt.Errorf("feed: listener already %s", l.State())
	}
	if err := l.transport.Connect(l.cfg.Endpoint); err != nil {
		l.state.Store(int32(Disconnected))
		return fmt.Errorf("feed: connect: %w", err)
	}
	if err := l.transport.Start(ctx); err != nil {
		l.state.Store(int32(Disconnected))
		return fmt.Errorf("feed: start: %w", err)
	}
	l.log.WithFields(logger.Fields{"channels": l.cfg.Channels}).Info("feed listener started")
	return nil
}

// Stop tears down the connection.
func (l *Listener) Stop() {
	l.transport.Stop()
	l.state.Store(int32(Disconnected))
	l.log.Info("feed listener stopped")
}

func (l *Listener) onConnected() {
	l.state.Store(int32(Connected))

	req := subscribeRequest{
		Method: "SUBSCRIBE",
		Params: l.cfg.Channels,
		ID:     l.reqID.Add(1),
	}
	if err := l.transport.Send(req); err != nil {
		l.log.WithError(err).WithFields(logger.Fields{"id": req.ID}).Warn("subscription request failed")
		return
	}
	l.state.Store(int32(Subscribed))
	l.log.WithFields(logger.Fields{"id": req.ID, "channels": len(req.Params)}).Info("subscribed")
}

// onDisconnected moves a live listener back to connecting; the transport
// redials and onConnected subscribes again.
func (l *Listener) onDisconnected(err error) {
	for {
		cur := l.state.Load()
		if State(cur) == Disconnected {
			return
		}
		if l.state.CompareAndSwap(cur, int32(Connecting)) {
			break
		}
	}
	l.log.WithError(err).Warn("stream disconnected")
}

func (l *Listener) onPacket(frame []byte) {
	logger.IncrementFeedFrame(len(frame))

	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		metrics.RecordFeedFrame(metrics.FrameMalformed)
		l.log.WithError(err).Debug("undecodable frame")
		return
	}
	if env.Stream == "" {
		metrics.RecordFeedFrame(metrics.FrameUntagged)
		return
	}
	if !strings.Contains(env.Stream, "@kline_") {
		metrics.RecordFeedFrame(metrics.FrameIgnored)
		return
	}

	var ev binance.WsKlineEvent
	if err := json.Unmarshal(env.Data, &ev); err != nil {
		metrics.RecordFeedFrame(metrics.FrameMalformed)
		l.log.WithError(err).WithFields(logger.Fields{"stream": env.Stream}).Warn("undecodable kline frame")
		return
	}
	if !ev.Kline.IsFinal {
		metrics.RecordFeedFrame(metrics.FrameOpen)
		return
	}

	event, err := l.candleEvent(ev.Kline)
	if err != nil {
		metrics.RecordFeedFrame(metrics.FrameMalformed)
		l.log.WithError(err).WithFields(logger.Fields{"stream": env.Stream}).Warn("dropping closed kline")
		return
	}
	metrics.RecordFeedFrame(metrics.FrameCandle)
	l.handler(event)
}

func (l *Listener) candleEvent(k binance.WsKline) (models.CandleEvent, error) {
	candle, err := normalizer.StreamCandle(k)
	if err != nil {
		return models.CandleEvent{}, err
	}
	sym, err := symbols.ToCanonical(k.Symbol, l.cfg.Segment)
	if err != nil {
		return models.CandleEvent{}, err
	}
	return models.CandleEvent{Symbol: sym, Timeframe: k.Interval, Candle: candle}, nil
}
