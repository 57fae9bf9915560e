package dashboard

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"ccgateway/logger"
)

type usage struct {
	Used    uint64  `json:"used"`
	Total   uint64  `json:"total"`
	Percent float64 `json:"percent"`
}

type resourceSnapshot struct {
	Timestamp  time.Time `json:"timestamp"`
	CPUPercent float64   `json:"cpu_percent"`
	Memory     usage     `json:"memory"`
	Disk       usage     `json:"disk"`
	Goroutines int       `json:"goroutines"`
}

// hostProbe reads host statistics. cpu blocks for the sampling window.
type hostProbe struct {
	cpu    func(ctx context.Context, window time.Duration) (float64, error)
	memory func(ctx context.Context) (usage, error)
	disk   func(ctx context.Context, path string) (usage, error)
}

var systemProbe = hostProbe{
	cpu: func(ctx context.Context, window time.Duration) (float64, error) {
		pct, err := cpu.PercentWithContext(ctx, window, false)
		if err != nil || len(pct) == 0 {
			return 0, err
		}
		return pct[0], nil
	},
	memory: func(ctx context.Context) (usage, error) {
		vm, err := mem.VirtualMemoryWithContext(ctx)
		if err != nil {
			return usage{}, err
		}
		return usage{Used: vm.Used, Total: vm.Total, Percent: vm.UsedPercent}, nil
	},
	disk: func(ctx context.Context, path string) (usage, error) {
		du, err := disk.UsageWithContext(ctx, path)
		if err != nil {
			return usage{}, err
		}
		return usage{Used: du.Used, Total: du.Total, Percent: du.UsedPercent}, nil
	},
}

// resourceSampler keeps the most recent host samples. The cpu probe paces the
// loop, one sample per interval.
type resourceSampler struct {
	*ring[resourceSnapshot]
	probe    hostProbe
	interval time.Duration
	diskPath string
	log      *logger.Entry

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newResourceSampler(limit int, interval time.Duration, diskPath string, log *logger.Log) *resourceSampler {
	if interval <= 0 {
		interval = time.Second
	}
	if diskPath == "" {
		diskPath = "/"
	}
	return &resourceSampler{
		ring:     newRing[resourceSnapshot](limit),
		probe:    systemProbe,
		interval: interval,
		diskPath: diskPath,
		log:      log.WithComponent("resource_sampler"),
	}
}

func (s *resourceSampler) start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.loop(ctx)
}

func (s *resourceSampler) loop(ctx context.Context) {
	defer s.wg.Done()
	for ctx.Err() == nil {
		snap, err := s.sample(ctx)
		if err != nil {
			s.log.WithError(err).Debug("resource sample failed")
			sleepCtx(ctx, s.interval)
			continue
		}
		s.add(snap)
	}
}

func (s *resourceSampler) stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func (s *resourceSampler) sample(ctx context.Context) (snap resourceSnapshot, err error) {
	if snap.CPUPercent, err = s.probe.cpu(ctx, s.interval); err != nil {
		return snap, err
	}
	if snap.Memory, err = s.probe.memory(ctx); err != nil {
		return snap, err
	}
	if snap.Disk, err = s.probe.disk(ctx, s.diskPath); err != nil {
		return snap, err
	}
	snap.Timestamp = time.Now()
	snap.Goroutines = runtime.NumGoroutine()
	return snap, nil
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
