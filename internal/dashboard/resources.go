package dashboard

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"tradesim/internal/metrics"
	"tradesim/logger"
)

type resourceSnapshot struct {
	Timestamp   time.Time `json:"timestamp"`
	CPUPercent  float64   `json:"cpu_percent"`
	MemoryUsed  uint64    `json:"memory_used"`
	MemoryTotal uint64    `json:"memory_total"`
	MemoryPct   float64   `json:"memory_percent"`
	DiskUsed    uint64    `json:"disk_used"`
	DiskTotal   uint64    `json:"disk_total"`
	DiskPct     float64   `json:"disk_percent"`
}

// resourceSampler samples host usage next to the estimator so latency spikes
// can be correlated with CPU or memory pressure.
type resourceSampler struct {
	*history[resourceSnapshot]
	interval time.Duration
	diskPath string
	log      *logger.Log

	cancel  context.CancelFunc
	running atomic.Bool
	wg      sync.WaitGroup
}

var (
	cpuPercentFn = func(ctx context.Context, interval time.Duration) ([]float64, error) {
		return cpu.PercentWithContext(ctx, interval, false)
	}
	memoryStatsFn = mem.VirtualMemoryWithContext
	diskUsageFn   = disk.UsageWithContext
)

func newResourceSampler(limit int, interval time.Duration, diskPath string, log *logger.Log) *resourceSampler {
	if interval <= 0 {
		interval = time.Second
	}
	if diskPath == "" {
		diskPath = "/"
	}
	return &resourceSampler{
		history:  newHistory[resourceSnapshot](limit),
		interval: interval,
		diskPath: diskPath,
		log:      log,
	}
}

func (s *resourceSampler) start(ctx context.Context) {
	if s == nil || s.running.Swap(true) {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)
		s.run(ctx)
	}()
}

func (s *resourceSampler) stop() {
	if s == nil {
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *resourceSampler) run(ctx context.Context) {
	log := s.log.WithComponent("resource_sampler")
	for ctx.Err() == nil {
		// cpu sampling blocks for one interval and paces the loop
		cpuSamples, err := cpuPercentFn(ctx, s.interval)
		if err != nil {
			log.WithError(err).Debug("failed to sample cpu usage")
			if !sleepCtx(ctx, s.interval) {
				return
			}
			continue
		}
		snap := resourceSnapshot{Timestamp: time.Now()}
		if len(cpuSamples) > 0 {
			snap.CPUPercent = cpuSamples[0]
		}

		if vm, err := memoryStatsFn(ctx); err != nil {
			log.WithError(err).Debug("failed to sample memory usage")
		} else {
			snap.MemoryUsed, snap.MemoryTotal, snap.MemoryPct = vm.Used, vm.Total, vm.UsedPercent
		}
		if du, err := diskUsageFn(ctx, s.diskPath); err != nil {
			log.WithError(err).Debug("failed to sample disk usage")
		} else {
			snap.DiskUsed, snap.DiskTotal, snap.DiskPct = du.Used, du.Total, du.UsedPercent
		}

		s.add(snap)
		metrics.EmitMetric(s.log, "resource_sampler", "host_cpu_percent", snap.CPUPercent, "gauge", logger.Fields{"unit": "percent"})
		metrics.EmitMetric(s.log, "resource_sampler", "host_memory_percent", snap.MemoryPct, "gauge", logger.Fields{"unit": "percent"})
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
