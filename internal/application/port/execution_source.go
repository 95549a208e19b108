package port

import (
	"context"

	"github.com/dreschagin/pipeline-analytics/internal/domain/entity"
	"github.com/dreschagin/pipeline-analytics/internal/domain/valueobject"
)

// ExecutionSource defines the interface for reading pipeline execution
// history (Port). The implementation lives in the Infrastructure layer.
type ExecutionSource interface {
	// FindByPipeline returns executions for a pipeline within the range,
	// ordered by start time ascending
	FindByPipeline(ctx context.Context, pipelineID string, tr valueobject.TimeRange) ([]*entity.PipelineExecution, error)

	// FindByEnvironment returns executions for an environment within the range
	FindByEnvironment(ctx context.Context, environment string, tr valueobject.TimeRange) ([]*entity.PipelineExecution, error)

	// Save persists a pipeline execution
	Save(ctx context.Context, execution *entity.PipelineExecution) error
}
