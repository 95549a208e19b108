package port

import "context"

// RuntimeSample is a point-in-time reading of host resource usage,
// attached to scheduled job executions.
type RuntimeSample struct {
	CPUPercent    float64
	MemoryPercent float64
	MemoryUsedMB  float64
	NumGoroutine  int
}

// RuntimeSampler defines the interface for sampling host resource
// usage (Port). The implementation lives in the Infrastructure layer.
type RuntimeSampler interface {
	// Sample takes one reading of current resource usage
	Sample(ctx context.Context) (RuntimeSample, error)
}
