package port

import (
	"context"
	"time"
)

// ReportArchive defines the interface for archiving analysis reports.
type ReportArchive interface {
	// PutReport stores one serialized analysis report and returns a URL
	// for reading it back.
	PutReport(ctx context.Context, pipelineID, analysisType string, generatedAt time.Time, body []byte) (string, error)
}
