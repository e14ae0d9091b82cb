package dashboard

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"optionsflow/logger"
)

// resourceSample is one reading of host utilisation. Disk usage is taken
// for the volume holding the writer output directory.
type resourceSample struct {
	Timestamp   time.Time `json:"timestamp"`
	CPUPercent  float64   `json:"cpu_percent"`
	MemoryUsed  uint64    `json:"memory_used"`
	MemoryTotal uint64    `json:"memory_total"`
	MemoryPct   float64   `json:"memory_percent"`
	DiskUsed    uint64    `json:"disk_used"`
	DiskTotal   uint64    `json:"disk_total"`
	DiskPct     float64   `json:"disk_percent"`
}

// sampleResources blocks for interval while measuring cpu.
var sampleResources = func(ctx context.Context, interval time.Duration, diskPath string) (resourceSample, error) {
	cpuPct, err := cpu.PercentWithContext(ctx, interval, false)
	if err != nil {
		return resourceSample{}, err
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return resourceSample{}, err
	}
	du, err := disk.UsageWithContext(ctx, diskPath)
	if err != nil {
		return resourceSample{}, err
	}
	s := resourceSample{
		Timestamp:   time.Now(),
		MemoryUsed:  vm.Used,
		MemoryTotal: vm.Total,
		MemoryPct:   vm.UsedPercent,
		DiskUsed:    du.Used,
		DiskTotal:   du.Total,
		DiskPct:     du.UsedPercent,
	}
	if len(cpuPct) > 0 {
		s.CPUPercent = cpuPct[0]
	}
	return s, nil
}

type resourceSampler struct {
	samples  *history[resourceSample]
	interval time.Duration
	diskPath string
	log      *logger.Log

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newResourceSampler(limit int, interval time.Duration, diskPath string, log *logger.Log) *resourceSampler {
	if interval <= 0 {
		interval = time.Second
	}
	if diskPath == "" {
		diskPath = "."
	}
	return &resourceSampler{
		samples:  newHistory[resourceSample](limit),
		interval: interval,
		diskPath: diskPath,
		log:      log,
	}
}

func (s *resourceSampler) start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for ctx.Err() == nil {
			sample, err := sampleResources(ctx, s.interval, s.diskPath)
			if err != nil {
				if ctx.Err() == nil {
					s.log.WithComponent("resource_sampler").WithError(err).Debug("failed to sample resources")
					sleep(ctx, s.interval)
				}
				continue
			}
			s.samples.add(sample)
		}
	}()
}

func (s *resourceSampler) stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
