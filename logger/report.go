package logger

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	gnet "github.com/shirou/gopsutil/v3/net"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type channelStat struct {
	messages int64
	bytes    int64
}

var (
	errorsTotal      int64
	warnsTotal       int64
	remoteFailures   int64
	feedFrames       int64
	candlesPublished int64
	componentIssues  sync.Map // map[string]*int64
	channels         sync.Map // map[string]*channelStat
)

func recordWarn(component string) {
	atomic.AddInt64(&warnsTotal, 1)
	recordComponent(component)
}

func recordError(component string) {
	atomic.AddInt64(&errorsTotal, 1)
	recordComponent(component)
}

func recordComponent(component string) {
	v, _ := componentIssues.LoadOrStore(component, new(int64))
	atomic.AddInt64(v.(*int64), 1)
}

// IncrementRemoteFailure counts a remote call that exhausted its attempts.
func IncrementRemoteFailure() {
	atomic.AddInt64(&remoteFailures, 1)
}

// IncrementFeedFrame counts a frame read from the stream.
func IncrementFeedFrame(size int) {
	atomic.AddInt64(&feedFrames, 1)
	recordChannel("feed_ws", size)
}

// IncrementCandlePublished counts a closed candle handed to the publisher.
func IncrementCandlePublished(size int) {
	atomic.AddInt64(&candlesPublished, 1)
	recordChannel("kafka_candles", size)
}

// RecordChannelMessage counts one message of size bytes on a named channel.
func RecordChannelMessage(name string, size int) {
	recordChannel(name, size)
}

func recordChannel(name string, size int) {
	v, _ := channels.LoadOrStore(name, &channelStat{})
	cs := v.(*channelStat)
	atomic.AddInt64(&cs.messages, 1)
	atomic.AddInt64(&cs.bytes, int64(size))
}

// StartReport begins periodic logging of system and gateway statistics until
// ctx is done.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

type reportSnapshot struct {
	errors           int64
	warns            int64
	remoteFailures   int64
	feedFrames       int64
	candlesPublished int64
	components       map[string]int64
	channels         map[string]map[string]int64
}

func snapshotCounters() reportSnapshot {
	s := reportSnapshot{
		errors:           atomic.LoadInt64(&errorsTotal),
		warns:            atomic.LoadInt64(&warnsTotal),
		remoteFailures:   atomic.LoadInt64(&remoteFailures),
		feedFrames:       atomic.LoadInt64(&feedFrames),
		candlesPublished: atomic.LoadInt64(&candlesPublished),
		components:       map[string]int64{},
		channels:         map[string]map[string]int64{},
	}
	componentIssues.Range(func(k, v any) bool {
		s.components[k.(string)] = atomic.LoadInt64(v.(*int64))
		return true
	})
	channels.Range(func(k, v any) bool {
		cs := v.(*channelStat)
		s.channels[k.(string)] = map[string]int64{
			"messages": atomic.LoadInt64(&cs.messages),
			"bytes":    atomic.LoadInt64(&cs.bytes),
		}
		return true
	})
	return s
}

func logReport(ctx context.Context, log *Log) {
	cpuPct := 0.0
	if cpuPercent, err := cpu.Percent(0, false); err == nil && len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}
	memUsed := 0.0
	if memStats, err := mem.VirtualMemory(); err == nil {
		memUsed = float64(memStats.Used) / 1024 / 1024
	}
	var bytesSent, bytesRecv uint64
	if netStats, err := gnet.IOCounters(false); err == nil && len(netStats) > 0 {
		bytesSent = netStats[0].BytesSent
		bytesRecv = netStats[0].BytesRecv
	}

	s := snapshotCounters()
	goroutines := runtime.NumGoroutine()

	log.WithComponent("report").WithFields(Fields{
		"errors":            s.errors,
		"warns":             s.warns,
		"issues":            s.components,
		"remote_failures":   s.remoteFailures,
		"feed_frames":       s.feedFrames,
		"candles_published": s.candlesPublished,
		"goroutines":        goroutines,
		"cpu_percent":       cpuPct,
		"memory_mb":         int64(memUsed),
		"channels":          s.channels,
		"net_bytes_sent":    int64(bytesSent),
		"net_bytes_recv":    int64(bytesRecv),
	}).Info("runtime report")

	count := func(name string, v int64) cwtypes.MetricDatum {
		return cwtypes.MetricDatum{MetricName: aws.String(name), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(v))}
	}
	data := []cwtypes.MetricDatum{
		{MetricName: aws.String("Gateway-CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		{MetricName: aws.String("Gateway-MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(memUsed)},
		{MetricName: aws.String("Gateway-NetBytesSent"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(bytesSent))},
		{MetricName: aws.String("Gateway-NetBytesRecv"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(bytesRecv))},
		count("Gateway-Goroutines", int64(goroutines)),
		count("Gateway-Errors", s.errors),
		count("Gateway-Warns", s.warns),
		count("Gateway-RemoteFailures", s.remoteFailures),
		count("Gateway-FeedFrames", s.feedFrames),
		count("Gateway-CandlesPublished", s.candlesPublished),
	}
	for name, stats := range s.channels {
		dims := []cwtypes.Dimension{{Name: aws.String("Channel"), Value: aws.String(name)}}
		data = append(data,
			cwtypes.MetricDatum{MetricName: aws.String("Gateway-ChannelMessages"), Unit: cwtypes.StandardUnitCount, Dimensions: dims, Value: aws.Float64(float64(stats["messages"]))},
			cwtypes.MetricDatum{MetricName: aws.String("Gateway-ChannelBytes"), Unit: cwtypes.StandardUnitBytes, Dimensions: dims, Value: aws.Float64(float64(stats["bytes"]))},
		)
	}

	PublishMetrics(ctx, data)
}
