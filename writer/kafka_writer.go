// Package writer publishes closed candles to Kafka.
package writer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	appconfig "ccgateway/config"
	"ccgateway/internal/metrics"
	"ccgateway/logger"
	"ccgateway/models"
)

const (
	component       = "candle_writer"
	defaultBuffer   = 1024
	defaultBatch    = 100
	defaultTimeout  = time.Second
	flushTimeout    = 10 * time.Second
	defaultInterval = time.Minute
)

// messageWriter is the subset of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// candleRecord is the JSON value of a published message.
type candleRecord struct {
	EventID    string        `json:"event_id"`
	Symbol     string        `json:"symbol"`
	Timeframe  string        `json:"timeframe"`
	Candle     models.Candle `json:"candle"`
	ProducedAt time.Time     `json:"produced_at"`
}

// CandleWriter buffers closed candles and writes them to a topic in
// batches. Messages are keyed by symbol so one symbol stays on one
// partition.
type CandleWriter struct {
	out            messageWriter
	events         chan models.CandleEvent
	batchSize      int
	batchTimeout   time.Duration
	reportInterval time.Duration

	messagesWritten atomic.Int64
	batchesWritten  atomic.Int64
	bytesWritten    atomic.Int64
	errorsCount     atomic.Int64
	dropped         atomic.Int64

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	log     *logger.Log
}

// NewCandleWriter creates a publisher backed by a kafka-go writer.
func NewCandleWriter(cfg appconfig.KafkaConfig, reportInterval time.Duration) (*CandleWriter, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errors.New("kafka brokers and topic are required")
	}
	batch, timeout := cfg.BatchSize, cfg.BatchTimeout
	if batch <= 0 {
		batch = defaultBatch
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	kw := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    batch,
		BatchTimeout: timeout,
		RequiredAcks: kafka.RequireOne,
		Transport:    &kafka.Transport{DialTimeout: 10 * time.Second},
	}
	return newCandleWriter(kw, cfg, reportInterval), nil
}

func newCandleWriter(out messageWriter, cfg appconfig.KafkaConfig, reportInterval time.Duration) *CandleWriter {
	size := cfg.BufferSize
	if size <= 0 {
		size = defaultBuffer
	}
	batch, timeout := cfg.BatchSize, cfg.BatchTimeout
	if batch <= 0 {
		batch = defaultBatch
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if reportInterval <= 0 {
		reportInterval = defaultInterval
	}
	return &CandleWriter{
		out:            out,
		events:         make(chan models.CandleEvent, size),
		batchSize:      batch,
		batchTimeout:   timeout,
		reportInterval: reportInterval,
		log:            logger.GetLogger(),
	}
}

// EnsureTopic creates the topic on the first reachable broker. An existing
// topic is not an error.
func EnsureTopic(ctx context.Context, cfg appconfig.KafkaConfig) error {
	var lastErr error
	for _, broker := range cfg.Brokers {
		conn, err := kafka.DialContext(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		err = conn.CreateTopics(kafka.TopicConfig{
			Topic:             cfg.Topic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		})
		conn.Close()
		if err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", cfg.Topic, err)
		}
		return nil
	}
	return fmt.Errorf("dial kafka: %w", lastErr)
}

// Enqueue hands a candle to the publisher without blocking. It reports false
// when the buffer is full and the candle was dropped.
func (w *CandleWriter) Enqueue(ev models.CandleEvent) bool {
	select {
	case w.events <- ev:
		return true
	default:
		w.dropped.Add(1)
		metrics.EmitDropMetric(w.log, metrics.DropMetricCandleBuffer, "", ev.Symbol, "enqueue")
		return false
	}
}

// Start launches the batching worker and the stats reporter.
func (w *CandleWriter) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return errors.New("candle writer already running")
	}
	w.running = true
	ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(2)
	go w.worker(ctx)
	go w.metricsReporter(ctx)

	w.log.WithComponent(component).Info("candle writer started")
	return nil
}

// Stop flushes buffered candles and closes the broker connection.
func (w *CandleWriter) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.cancel()
	w.mu.Unlock()

	w.wg.Wait()
	w.report()
	w.log.WithComponent(component).Info("candle writer stopped")
	return w.out.Close()
}

// Stats returns the current publisher counters.
func (w *CandleWriter) Stats() metrics.WriterStats {
	return metrics.WriterStats{
		MessagesWritten: w.messagesWritten.Load(),
		BatchesWritten:  w.batchesWritten.Load(),
		BytesWritten:    w.bytesWritten.Load(),
		ErrorsCount:     w.errorsCount.Load(),
		Dropped:         w.dropped.Load(),
		BufferLen:       len(w.events),
		BufferCap:       cap(w.events),
	}
}

func (w *CandleWriter) worker(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.batchTimeout)
	defer ticker.Stop()

	batch := make([]models.CandleEvent, 0, w.batchSize)
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case ev := <-w.events:
					batch = append(batch, ev)
				default:
					w.flush(batch)
					return
				}
			}
		case ev := <-w.events:
			batch = append(batch, ev)
			if len(batch) >= w.batchSize {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

func (w *CandleWriter) flush(batch []models.CandleEvent) {
	if len(batch) == 0 {
		return
	}
	msgs := make([]kafka.Message, 0, len(batch))
	var size int64
	now := time.Now().UTC()
	for _, ev := range batch {
		value, err := json.Marshal(candleRecord{
			EventID:    uuid.New().String(),
			Symbol:     ev.Symbol,
			Timeframe:  ev.Timeframe,
			Candle:     ev.Candle,
			ProducedAt: now,
		})
		if err != nil {
			w.errorsCount.Add(1)
			w.log.WithComponent(component).WithError(err).WithFields(logger.Fields{"symbol": ev.Symbol}).Warn("failed to encode candle")
			continue
		}
		msgs = append(msgs, kafka.Message{Key: []byte(ev.Symbol), Value: value, Time: now})
		size += int64(len(value))
	}
	if len(msgs) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	start := time.Now()
	if err := w.out.WriteMessages(ctx, msgs...); err != nil {
		w.errorsCount.Add(1)
		w.dropped.Add(int64(len(msgs)))
		w.log.WithComponent(component).WithError(err).WithFields(logger.Fields{"messages": len(msgs)}).Error("failed to write candles")
		for _, m := range msgs {
			metrics.EmitDropMetric(w.log, metrics.DropMetricCandleWrite, "", string(m.Key), "write")
		}
		return
	}

	w.batchesWritten.Add(1)
	w.messagesWritten.Add(int64(len(msgs)))
	w.bytesWritten.Add(size)
	for _, m := range msgs {
		metrics.RecordCandlePublished(string(m.Key))
		logger.IncrementCandlePublished(len(m.Value))
	}
	logger.LogPerformanceEntry(w.log.WithComponent(component), component, "write_batch", time.Since(start), logger.Fields{
		"messages": len(msgs),
		"bytes":    size,
	})
}

func (w *CandleWriter) metricsReporter(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.reportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.report()
		}
	}
}

func (w *CandleWriter) report() {
	metrics.ReportWriter(w.log, component, w.Stats())
}
