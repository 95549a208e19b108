package port

import (
	"context"
	"time"
)

// AnalysisRecord is a persisted analysis outcome. Result holds the
// JSON-serializable payload produced by the analytics service.
type AnalysisRecord struct {
	ID           string
	AnalysisType string
	PipelineID   string
	MetricKind   string
	Result       interface{}
	CreatedAt    time.Time
}

// ResultStore defines the interface for persisting analysis outcomes (Port).
type ResultStore interface {
	// SaveResult persists one analysis record
	SaveResult(ctx context.Context, record AnalysisRecord) error

	// ListResults returns the most recent records for a pipeline and
	// analysis type, newest first
	ListResults(ctx context.Context, pipelineID, analysisType string, limit int) ([]AnalysisRecord, error)
}
