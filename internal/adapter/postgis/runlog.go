package postgis

import (
	"context"
	"fmt"

	"github.com/paulheiniger/storm-event-leads/internal/domain"
)

// Append inserts a run log entry. Entries are never updated or deleted.
func (s *Store) Append(ctx context.Context, entry domain.RunLogEntry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pipeline_run_log (run_id, partition_key, step, status, note, ts)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, entry.RunID, entry.Partition, string(entry.Step), string(entry.Status),
		domain.TruncateNote(entry.Note), entry.Timestamp)
	if err != nil {
		return fmt.Errorf("append run log: %w", err)
	}
	return nil
}

// History returns recent entries, most recent first. An empty partition
// matches every partition; a limit of 0 or less returns all entries.
func (s *Store) History(ctx context.Context, partition string, limit int) ([]domain.RunLogEntry, error) {
	var lim any // NULL is LIMIT ALL
	if limit > 0 {
		lim = limit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT run_id, partition_key, step, status, note, ts
		FROM pipeline_run_log
		WHERE $1 = '' OR partition_key = $1
		ORDER BY id DESC
		LIMIT $2
	`, partition, lim)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.RunLogEntry
	for rows.Next() {
		var (
			e            domain.RunLogEntry
			step, status string
		)
		if err := rows.Scan(&e.RunID, &e.Partition, &step, &status, &e.Note, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Step = domain.StepName(step)
		e.Status = domain.StepStatus(status)
		e.Timestamp = e.Timestamp.UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
