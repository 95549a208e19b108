package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dreschagin/pipeline-analytics/internal/application/port"
)

// PostgresResultStore implements port.ResultStore for PostgreSQL. The
// analysis payload is stored as jsonb.
type PostgresResultStore struct {
	db *sql.DB
}

// NewPostgresResultStore creates a new PostgreSQL result store
func NewPostgresResultStore(db *sql.DB) *PostgresResultStore {
	return &PostgresResultStore{
		db: db,
	}
}

// SaveResult persists one analysis record
func (s *PostgresResultStore) SaveResult(ctx context.Context, record port.AnalysisRecord) error {
	payload, err := json.Marshal(record.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal analysis result: %w", err)
	}

	query := `
		INSERT INTO analysis_results (id, analysis_type, pipeline_id, metric_kind, result, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err = s.db.ExecContext(ctx, query,
		record.ID,
		record.AnalysisType,
		record.PipelineID,
		record.MetricKind,
		payload,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert analysis result: %w", err)
	}

	return nil
}

// ListResults returns the most recent records for a pipeline and analysis
// type, newest first
func (s *PostgresResultStore) ListResults(ctx context.Context, pipelineID, analysisType string, limit int) ([]port.AnalysisRecord, error) {
	query := `
		SELECT id, analysis_type, pipeline_id, metric_kind, result, created_at
		FROM analysis_results
		WHERE pipeline_id = $1 AND analysis_type = $2
		ORDER BY created_at DESC
		LIMIT $3
	`

	rows, err := s.db.QueryContext(ctx, query, pipelineID, analysisType, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query analysis results: %w", err)
	}
	defer rows.Close()

	var records []port.AnalysisRecord
	for rows.Next() {
		var (
			record  port.AnalysisRecord
			payload []byte
		)

		if err := rows.Scan(
			&record.ID,
			&record.AnalysisType,
			&record.PipelineID,
			&record.MetricKind,
			&payload,
			&record.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan analysis result: %w", err)
		}

		if len(payload) > 0 {
			var result interface{}
			if err := json.Unmarshal(payload, &result); err != nil {
				return nil, fmt.Errorf("failed to unmarshal analysis result: %w", err)
			}
			record.Result = result
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return records, nil
}
