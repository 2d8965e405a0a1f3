package library

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Descriptor is the staging row created when a file is enqueued. It is
// removed once the comic is ready for processing.
type Descriptor struct {
	ComicID    int64
	SourcePath string
	JobID      string
	CreatedAt  time.Time
}

// RemoveDescriptor deletes the import descriptor for comicID. Removing an
// absent descriptor is not an error.
func (s *Store) RemoveDescriptor(ctx context.Context, comicID int64) error {
	if err := s.execWithoutResultRetry(ctx, `DELETE FROM import_descriptors WHERE comic_id = ?`, comicID); err != nil {
		return fmt.Errorf("remove import descriptor: %w", err)
	}
	return nil
}

// RestoreDescriptor re-creates the descriptor for a comic being reprocessed.
func (s *Store) RestoreDescriptor(ctx context.Context, comicID int64, sourcePath, jobID string) error {
	if err := s.execWithoutResultRetry(ctx,
		`INSERT INTO import_descriptors (comic_id, source_path, job_id, created_at) VALUES (?, ?, ?, ?)
         ON CONFLICT(comic_id) DO UPDATE SET job_id = excluded.job_id`,
		comicID, sourcePath, nullableString(jobID), formatTime(time.Now()),
	); err != nil {
		return fmt.Errorf("restore import descriptor: %w", err)
	}
	return nil
}

// Descriptors lists pending import descriptors, oldest first.
func (s *Store) Descriptors(ctx context.Context) ([]Descriptor, error) {
	query, args, err := psql.Select("comic_id", "source_path", "job_id", "created_at").
		From("import_descriptors").
		OrderBy("created_at", "comic_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("query descriptors: %w", err)
	}
	defer rows.Close()

	var out []Descriptor
	for rows.Next() {
		var (
			d          Descriptor
			jobID      sql.NullString
			createdRaw string
		)
		if err := rows.Scan(&d.ComicID, &d.SourcePath, &jobID, &createdRaw); err != nil {
			return nil, fmt.Errorf("scan descriptor: %w", err)
		}
		d.JobID = jobID.String
		if created, err := parseTimeString(createdRaw); err == nil {
			d.CreatedAt = created
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
