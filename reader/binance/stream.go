package binance

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"ccgateway/config"
	"ccgateway/internal/feed"
	ratemetrics "ccgateway/internal/metrics/rate"
	"ccgateway/logger"
)

const (
	defaultReconnectDelay    = 5 * time.Second
	defaultKeepAlive         = 3 * time.Minute
	defaultMessagesPerSecond = 5
	writeTimeout             = 5 * time.Second
)

var errNotConnected = errors.New("stream not connected")

// Stream is a reconnecting websocket connection to the venue combined stream
// endpoint. Outgoing messages are paced to the venue's per connection limit.
type Stream struct {
	endpoint       string
	dialer         *websocket.Dialer
	reconnectDelay time.Duration
	pingInterval   time.Duration
	limiter        *rate.Limiter
	tracker        *ratemetrics.WSWeightTracker

	mu           sync.Mutex
	conn         *websocket.Conn
	writeMu      sync.Mutex
	ctx          context.Context
	cancel       context.CancelFunc
	done         chan struct{}
	onConnected  func()
	onPacket     func([]byte)
	onDisconnect func(error)

	log *logger.Entry
}

var _ feed.Transport = (*Stream)(nil)

func NewStream(cfg config.FeedConfig) *Stream {
	reconnect := cfg.ReconnectDelay
	if reconnect <= 0 {
		reconnect = defaultReconnectDelay
	}
	ping := cfg.PingInterval
	if ping <= 0 {
		ping = defaultKeepAlive
	}
	mps := cfg.MessagesPerSecond
	if mps <= 0 {
		mps = defaultMessagesPerSecond
	}
	return &Stream{
		dialer:         websocket.DefaultDialer,
		reconnectDelay: reconnect,
		pingInterval:   ping,
		limiter:        rate.NewLimiter(rate.Limit(mps), 1),
		tracker:        ratemetrics.NewWSWeightTracker(),
		log:            logger.GetLogger().WithComponent("stream_transport"),
	}
}

// Connect validates and stores the endpoint used by Start.
func (s *Stream) Connect(endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("parse stream endpoint: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("stream endpoint %q is not a websocket url", endpoint)
	}
	s.mu.Lock()
	s.endpoint = endpoint
	s.mu.Unlock()
	return nil
}

func (s *Stream) OnConnected(fn func())         { s.onConnected = fn }
func (s *Stream) OnPacket(fn func([]byte))      { s.onPacket = fn }
func (s *Stream) OnDisconnected(fn func(error)) { s.onDisconnect = fn }

// Start launches the connection loop. It returns immediately.
func (s *Stream) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.endpoint == "" {
		return errors.New("stream endpoint not set")
	}
	if s.cancel != nil {
		return errors.New("stream already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.run(s.ctx, s.endpoint)
	return nil
}

// Stop closes the connection and waits for the loop to exit.
func (s *Stream) Stop() {
	s.mu.Lock()
	cancel, done, conn := s.cancel, s.done, s.conn
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if conn != nil {
		conn.Close()
	}
	<-done
}

// Send writes msg as JSON on the live connection.
func (s *Stream) Send(msg any) error {
	s.mu.Lock()
	conn, ctx := s.conn, s.ctx
	s.mu.Unlock()
	if conn == nil {
		return errNotConnected
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	if err := conn.WriteJSON(msg); err != nil {
		return err
	}
	s.tracker.RegisterOutgoing(1)
	return nil
}

func (s *Stream) run(ctx context.Context, endpoint string) {
	defer close(s.done)
	log := s.log.WithFields(logger.Fields{"url": endpoint})

	for {
		if ctx.Err() != nil {
			return
		}

		s.tracker.RegisterConnectionAttempt()
		conn, _, err := s.dialer.DialContext(ctx, endpoint, nil)
		if err != nil {
			log.WithError(err).Warn("failed to connect to stream")
			if waitForReconnect(ctx, s.reconnectDelay) {
				return
			}
			continue
		}

		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()
		log.Info("stream connected")
		ratemetrics.ReportWSWeight(logger.GetLogger(), s.tracker, endpoint)

		if s.onConnected != nil {
			s.onConnected()
		}

		pingCancel := startPingLoop(ctx, conn, s.pingInterval, log)
		err = s.readMessages(ctx, conn)
		pingCancel()

		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		conn.Close()

		if ctx.Err() != nil {
			return
		}
		if s.onDisconnect != nil {
			s.onDisconnect(err)
		}
		if waitForReconnect(ctx, s.reconnectDelay) {
			return
		}
	}
}

func (s *Stream) readMessages(ctx context.Context, conn *websocket.Conn) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if s.onPacket != nil {
			s.onPacket(msg)
		}
	}
}

func waitForReconnect(ctx context.Context, delay time.Duration) bool {
	if delay <= 0 {
		delay = defaultReconnectDelay
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return true
	case <-timer.C:
		return false
	}
}

func startPingLoop(ctx context.Context, conn *websocket.Conn, interval time.Duration, log *logger.Entry) context.CancelFunc {
	if interval <= 0 {
		interval = defaultKeepAlive
	}
	pingCtx, cancel := context.WithCancel(ctx)
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-pingCtx.Done():
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
					log.WithError(err).Warn("failed to send websocket ping")
					conn.Close()
					return
				}
			}
		}
	}()
	return cancel
}
