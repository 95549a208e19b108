package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dreschagin/pipeline-analytics/internal/domain/entity"
	"github.com/dreschagin/pipeline-analytics/internal/domain/valueobject"
)

// PostgresExecutionRepository implements port.ExecutionSource for PostgreSQL
type PostgresExecutionRepository struct {
	db *sql.DB
}

// NewPostgresExecutionRepository creates a new PostgreSQL execution repository
func NewPostgresExecutionRepository(db *sql.DB) *PostgresExecutionRepository {
	return &PostgresExecutionRepository{
		db: db,
	}
}

const executionColumns = `id, pipeline_id, status, environment, branch,
		started_at, completed_at, duration_ms,
		cpu_cores, cpu_utilization, memory_gb, memory_utilization, storage_gb, network_gb,
		test_coverage, tests_total, tests_failed, metadata`

// Save upserts one execution. Completion of a running execution updates the
// existing row.
func (r *PostgresExecutionRepository) Save(ctx context.Context, execution *entity.PipelineExecution) error {
	metadata, err := json.Marshal(execution.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	var completedAt sql.NullTime
	if !execution.CompletedAt.IsZero() {
		completedAt = sql.NullTime{Time: execution.CompletedAt, Valid: true}
	}

	query := `
		INSERT INTO pipeline_executions (` + executionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			completed_at = EXCLUDED.completed_at,
			duration_ms = EXCLUDED.duration_ms,
			cpu_utilization = EXCLUDED.cpu_utilization,
			memory_utilization = EXCLUDED.memory_utilization,
			network_gb = EXCLUDED.network_gb,
			test_coverage = EXCLUDED.test_coverage,
			tests_total = EXCLUDED.tests_total,
			tests_failed = EXCLUDED.tests_failed,
			metadata = EXCLUDED.metadata
	`

	_, err = r.db.ExecContext(ctx, query,
		execution.ID,
		execution.PipelineID,
		string(execution.Status),
		execution.Environment,
		execution.Branch,
		execution.StartedAt,
		completedAt,
		execution.Duration.Milliseconds(),
		execution.CPUCores,
		execution.CPUUtilization,
		execution.MemoryGB,
		execution.MemoryUtilization,
		execution.StorageGB,
		execution.NetworkGB,
		execution.TestCoverage,
		execution.TestsTotal,
		execution.TestsFailed,
		metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert execution: %w", err)
	}

	return nil
}

// FindByPipeline returns a pipeline's executions within the range, oldest
// first so the series is ready for analysis.
func (r *PostgresExecutionRepository) FindByPipeline(
	ctx context.Context,
	pipelineID string,
	tr valueobject.TimeRange,
) ([]*entity.PipelineExecution, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM pipeline_executions
		WHERE pipeline_id = $1 AND started_at BETWEEN $2 AND $3
		ORDER BY started_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, pipelineID, tr.Start(), tr.End())
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer rows.Close()

	return r.scanExecutions(rows)
}

// FindByEnvironment returns an environment's executions within the range,
// oldest first.
func (r *PostgresExecutionRepository) FindByEnvironment(
	ctx context.Context,
	environment string,
	tr valueobject.TimeRange,
) ([]*entity.PipelineExecution, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM pipeline_executions
		WHERE environment = $1 AND started_at BETWEEN $2 AND $3
		ORDER BY started_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, environment, tr.Start(), tr.End())
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer rows.Close()

	return r.scanExecutions(rows)
}

// scanExecutions scans result rows into entities
func (r *PostgresExecutionRepository) scanExecutions(rows *sql.Rows) ([]*entity.PipelineExecution, error) {
	var executions []*entity.PipelineExecution

	for rows.Next() {
		var (
			e           entity.PipelineExecution
			status      string
			completedAt sql.NullTime
			durationMs  int64
			metadata    []byte
		)

		err := rows.Scan(
			&e.ID,
			&e.PipelineID,
			&status,
			&e.Environment,
			&e.Branch,
			&e.StartedAt,
			&completedAt,
			&durationMs,
			&e.CPUCores,
			&e.CPUUtilization,
			&e.MemoryGB,
			&e.MemoryUtilization,
			&e.StorageGB,
			&e.NetworkGB,
			&e.TestCoverage,
			&e.TestsTotal,
			&e.TestsFailed,
			&metadata,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution row: %w", err)
		}

		e.Status = entity.ExecutionStatus(status)
		if completedAt.Valid {
			e.CompletedAt = completedAt.Time
		}
		e.Duration = time.Duration(durationMs) * time.Millisecond

		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		if e.Metadata == nil {
			e.Metadata = make(map[string]interface{})
		}

		executions = append(executions, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return executions, nil
}
