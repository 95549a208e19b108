// Package collector samples host resource usage for job execution records.
package collector

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/dreschagin/pipeline-analytics/internal/application/port"
)

// cpuSampleWindow is how long the CPU percentage is averaged over. Kept
// short because samples are taken inline after each job execution.
const cpuSampleWindow = 200 * time.Millisecond

// RuntimeSampler reads host CPU and memory usage through gopsutil.
// Implements port.RuntimeSampler.
type RuntimeSampler struct{}

// NewRuntimeSampler creates a new runtime sampler
func NewRuntimeSampler() *RuntimeSampler {
	return &RuntimeSampler{}
}

// Sample takes one reading of current resource usage
func (s *RuntimeSampler) Sample(ctx context.Context) (port.RuntimeSample, error) {
	percentages, err := cpu.PercentWithContext(ctx, cpuSampleWindow, false)
	if err != nil {
		return port.RuntimeSample{}, fmt.Errorf("failed to sample cpu: %w", err)
	}

	vmStat, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return port.RuntimeSample{}, fmt.Errorf("failed to sample memory: %w", err)
	}

	sample := port.RuntimeSample{
		MemoryPercent: vmStat.UsedPercent,
		MemoryUsedMB:  float64(vmStat.Used) / 1024 / 1024,
		NumGoroutine:  runtime.NumGoroutine(),
	}
	if len(percentages) > 0 {
		sample.CPUPercent = percentages[0]
	}

	return sample, nil
}
