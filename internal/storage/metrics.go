package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// InsertRepairMetric appends one repair attempt.
func (s *SQLiteStore) InsertRepairMetric(ctx context.Context, m *RepairMetric) error {
	if m == nil {
		return errors.New("repair metric cannot be nil")
	}
	if m.Language == "" {
		return errors.New("language is required")
	}
	if m.RecordedAtUnixMs == 0 {
		m.RecordedAtUnixMs = time.Now().UnixMilli()
	}

	succeeded := 0
	if m.Succeeded {
		succeeded = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO repair_metrics (run_id, language, model, succeeded, duration_ms, recorded_at_unix_ms)
		VALUES (?, ?, ?, ?, ?, ?)
	`, m.RunID, m.Language, m.Model, succeeded, m.DurationMs, m.RecordedAtUnixMs)
	if err != nil {
		return fmt.Errorf("failed to insert repair metric: %w", err)
	}
	return nil
}

// RepairSummary aggregates repair metrics per language, sorted by language.
func (s *SQLiteStore) RepairSummary(ctx context.Context) ([]RepairSummaryRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT language, COUNT(*), SUM(succeeded), AVG(duration_ms)
		FROM repair_metrics
		GROUP BY language
		ORDER BY language
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query repair metrics: %w", err)
	}
	defer rows.Close()

	var out []RepairSummaryRow
	for rows.Next() {
		var r RepairSummaryRow
		if err := rows.Scan(&r.Language, &r.Attempts, &r.Successes, &r.AvgDurationMs); err != nil {
			return nil, fmt.Errorf("failed to scan repair metric: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read repair metrics: %w", err)
	}
	return out, nil
}
