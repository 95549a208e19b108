package analytics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dreschagin/pipeline-analytics/internal/domain/analyzer"
	"github.com/dreschagin/pipeline-analytics/internal/domain/valueobject"
)

// FullAnalysisRequest runs every analysis type for one pipeline metric.
// SLATarget of zero skips the SLA section.
type FullAnalysisRequest struct {
	PipelineID    string                 `json:"pipeline_id"`
	Metric        valueobject.MetricKind `json:"metric"`
	Method        analyzer.Method        `json:"method"`
	SLATarget     float64                `json:"sla_target"`
	ViolationType analyzer.ViolationType `json:"violation_type"`
	LookbackDays  int                    `json:"lookback_days"`
}

// FullReport aggregates the outcome of all analysis types. Sections that
// failed are nil and their errors are listed in Errors; one failing section
// does not abort the others.
type FullReport struct {
	PipelineID      string                 `json:"pipeline_id"`
	Metric          valueobject.MetricKind `json:"metric"`
	Anomalies       *AnomalyReport         `json:"anomalies,omitempty"`
	Trend           *TrendReport           `json:"trend,omitempty"`
	Benchmark       *BenchmarkReport       `json:"benchmark,omitempty"`
	SLA             *SLAReport             `json:"sla,omitempty"`
	Cost            *CostReport            `json:"cost,omitempty"`
	AlertsGenerated int                    `json:"alerts_generated"`
	Errors          []string               `json:"errors,omitempty"`
	GeneratedAt     time.Time              `json:"generated_at"`
}

// AlertCount sums the alerts raised by the aggregated sections.
func (r *FullReport) AlertCount() int { return r.AlertsGenerated }

// RunFullAnalysis fans the analysis types out concurrently and joins their
// results. Sections with too little data are omitted without error.
func (s *Service) RunFullAnalysis(ctx context.Context, req FullAnalysisRequest) (*FullReport, error) {
	if err := req.Metric.Validate(); err != nil {
		return nil, err
	}

	report := &FullReport{
		PipelineID: req.PipelineID,
		Metric:     req.Metric,
	}

	// The benchmark section compares the latest observation, so the series
	// is loaded once up front before the fan-out.
	points, err := s.loadSeries(ctx, req.PipelineID, req.Metric, req.LookbackDays)
	if err != nil {
		return nil, err
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	fail := func(section string, err error) {
		if errors.Is(err, analyzer.ErrInsufficientData) {
			return
		}
		mu.Lock()
		report.Errors = append(report.Errors, section+": "+err.Error())
		mu.Unlock()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		r, err := s.AnalyzeAnomalies(ctx, AnomalyRequest{
			PipelineID:   req.PipelineID,
			Metric:       req.Metric,
			Method:       req.Method,
			LookbackDays: req.LookbackDays,
		})
		if err != nil {
			fail("anomalies", err)
			return
		}
		mu.Lock()
		report.Anomalies = r
		mu.Unlock()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		r, err := s.AnalyzeTrends(ctx, TrendRequest{
			PipelineID:   req.PipelineID,
			Metric:       req.Metric,
			LookbackDays: req.LookbackDays,
		})
		if err != nil {
			fail("trend", err)
			return
		}
		mu.Lock()
		report.Trend = r
		mu.Unlock()
	}()

	if len(points) > 0 {
		current := points[len(points)-1].Value

		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := s.BenchmarkPerformance(ctx, BenchmarkRequest{
				PipelineID:   req.PipelineID,
				Metric:       req.Metric,
				CurrentValue: current,
				LookbackDays: req.LookbackDays,
			})
			if err != nil {
				fail("benchmark", err)
				return
			}
			mu.Lock()
			report.Benchmark = r
			mu.Unlock()
		}()
	}

	if req.SLATarget > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := s.MonitorSLA(ctx, SLARequest{
				PipelineID:    req.PipelineID,
				Metric:        req.Metric,
				Target:        req.SLATarget,
				ViolationType: req.ViolationType,
				LookbackDays:  req.LookbackDays,
			})
			if err != nil {
				fail("sla", err)
				return
			}
			mu.Lock()
			report.SLA = r
			mu.Unlock()
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		r, err := s.AnalyzeCosts(ctx, CostRequest{
			PipelineID:   req.PipelineID,
			LookbackDays: req.LookbackDays,
		})
		if err != nil {
			fail("cost", err)
			return
		}
		mu.Lock()
		report.Cost = r
		mu.Unlock()
	}()

	wg.Wait()

	if report.Anomalies != nil {
		report.AlertsGenerated += report.Anomalies.AlertsGenerated
	}
	if report.Trend != nil {
		report.AlertsGenerated += report.Trend.AlertsGenerated
	}
	if report.SLA != nil {
		report.AlertsGenerated += report.SLA.AlertsGenerated
	}
	if report.Cost != nil {
		report.AlertsGenerated += report.Cost.AlertsGenerated
	}
	report.GeneratedAt = time.Now()

	return report, nil
}
