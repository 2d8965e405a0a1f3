package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"comicvault/internal/comic"
)

// ErrStaleTransition reports a commit whose starting state no longer matches
// the stored record.
var ErrStaleTransition = errors.New("stale lifecycle transition")

// Add registers sourcePath in the created state with an import descriptor.
// Adding a path that is already known returns the existing record and
// created=false.
func (s *Store) Add(ctx context.Context, sourcePath, jobID string) (*comic.Record, bool, error) {
	now := formatTime(time.Now())
	created := false
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO comics (source_path, state, created_at, updated_at)
             VALUES (?, ?, ?, ?)
             ON CONFLICT(source_path) DO NOTHING`,
			sourcePath, comic.StateCreated, now, now,
		)
		if err != nil {
			return fmt.Errorf("insert comic: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return nil
		}
		created = true
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO import_descriptors (comic_id, source_path, job_id, created_at) VALUES (?, ?, ?, ?)`,
			id, sourcePath, nullableString(jobID), now,
		); err != nil {
			return fmt.Errorf("insert import descriptor: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	rec, err := s.GetByPath(ctx, sourcePath)
	if err != nil {
		return nil, false, err
	}
	if rec == nil {
		return nil, false, fmt.Errorf("comic %s vanished after insert", sourcePath)
	}
	return rec, created, nil
}

// Get fetches a record and its pages. It returns nil, nil when id is unknown.
func (s *Store) Get(ctx context.Context, id int64) (*comic.Record, error) {
	return s.getOne(ctx, sq.Eq{"id": id})
}

// GetByPath fetches a record by source path. It returns nil, nil when the
// path is unknown.
func (s *Store) GetByPath(ctx context.Context, sourcePath string) (*comic.Record, error) {
	return s.getOne(ctx, sq.Eq{"source_path": sourcePath})
}

func (s *Store) getOne(ctx context.Context, where sq.Eq) (*comic.Record, error) {
	query, args, err := psql.Select(comicColumns...).From("comics").Where(where).Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var rec *comic.Record
	err = retryOnBusy(ensureContext(ctx), func() error {
		var scanErr error
		rec, scanErr = scanComic(s.db.QueryRowContext(ctx, query, args...))
		return scanErr
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get comic: %w", err)
	}
	if err := s.attachPages(ctx, []*comic.Record{rec}); err != nil {
		return nil, err
	}
	return rec, nil
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	States []comic.State
	// ExcludeMissing drops records whose source file was not found.
	ExcludeMissing bool
	// WithoutPages skips loading page rows.
	WithoutPages bool
	Limit        uint64
}

// List returns records ordered by id.
func (s *Store) List(ctx context.Context, filter Filter) ([]*comic.Record, error) {
	builder := psql.Select(comicColumns...).From("comics").OrderBy("id")
	if len(filter.States) > 0 {
		states := make([]string, len(filter.States))
		for i, st := range filter.States {
			states[i] = string(st)
		}
		builder = builder.Where(sq.Eq{"state": states})
	}
	if filter.ExcludeMissing {
		builder = builder.Where(sq.Eq{"missing": 0})
	}
	if filter.Limit > 0 {
		builder = builder.Limit(filter.Limit)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var records []*comic.Record
	err = retryOnBusy(ensureContext(ctx), func() error {
		records = records[:0]
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			rec, err := scanComic(rows)
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list comics: %w", err)
	}
	if !filter.WithoutPages {
		if err := s.attachPages(ctx, records); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func (s *Store) attachPages(ctx context.Context, records []*comic.Record) error {
	if len(records) == 0 {
		return nil
	}
	byID := make(map[int64]*comic.Record, len(records))
	ids := make([]int64, 0, len(records))
	for _, rec := range records {
		byID[rec.ID] = rec
		rec.Pages = nil
		ids = append(ids, rec.ID)
	}
	query, args, err := psql.Select(pageColumns...).From("pages").
		Where(sq.Eq{"comic_id": ids}).
		OrderBy("comic_id", "page_index").
		ToSql()
	if err != nil {
		return fmt.Errorf("build page query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query pages: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		comicID, page, err := scanPage(rows)
		if err != nil {
			return fmt.Errorf("scan page: %w", err)
		}
		if rec := byID[comicID]; rec != nil {
			rec.Pages = append(rec.Pages, page)
		}
	}
	return rows.Err()
}

// CommitTransition writes rec as the new durable state of the comic. The
// update applies only if the stored state still equals from; otherwise it
// fails with ErrStaleTransition and nothing changes. Pages are replaced as
// a set within the same transaction.
func (s *Store) CommitTransition(ctx context.Context, rec *comic.Record, from comic.State, event string) error {
	if rec == nil || rec.ID <= 0 {
		return errors.New("commit transition: record has no id")
	}
	metadata, err := encodeMetadata(rec.Metadata)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE comics
             SET format = ?, subtype = ?, state = ?, missing = ?, file_size = ?, file_hash = ?,
                 contents_loaded = ?, blocked_pages_marked = ?, cataloged = ?, metadata_json = ?,
                 last_error = ?, updated_at = ?
             WHERE id = ? AND state = ?`,
			rec.Format,
			nullableString(rec.Subtype),
			rec.State,
			boolToInt(rec.Missing),
			rec.File.Size,
			nullableString(rec.File.Hash),
			boolToInt(rec.ContentsLoaded),
			boolToInt(rec.BlockedPagesMarked),
			boolToInt(rec.Cataloged),
			metadata,
			nullableString(rec.LastError),
			formatTime(now),
			rec.ID,
			from,
		)
		if err != nil {
			return fmt.Errorf("update comic: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("%w: comic %d is no longer %s", ErrStaleTransition, rec.ID, from)
		}

		if err := replacePages(ctx, tx, rec); err != nil {
			return err
		}
		if !rec.Cataloged {
			if _, err := tx.ExecContext(ctx, `DELETE FROM catalog WHERE comic_id = ?`, rec.ID); err != nil {
				return fmt.Errorf("clear catalog: %w", err)
			}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO transitions (comic_id, event, from_state, to_state, at) VALUES (?, ?, ?, ?, ?)`,
			rec.ID, event, from, rec.State, formatTime(now),
		); err != nil {
			return fmt.Errorf("record transition: %w", err)
		}
		return nil
	})
}

func replacePages(ctx context.Context, tx *sql.Tx, rec *comic.Record) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM pages WHERE comic_id = ?`, rec.ID); err != nil {
		return fmt.Errorf("clear pages: %w", err)
	}
	if len(rec.Pages) == 0 {
		return nil
	}
	insert := psql.Insert("pages").Columns(pageColumns...)
	for _, p := range rec.Pages {
		insert = insert.Values(rec.ID, p.Index, p.Filename, p.Hash, p.Size, p.Width, p.Height, nullableString(p.Type), boolToInt(p.Blocked))
	}
	query, args, err := insert.ToSql()
	if err != nil {
		return fmt.Errorf("build page insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert pages: %w", err)
	}
	return nil
}

// SetMissing records whether the source file was found. It is an
// observation, not a lifecycle transition.
func (s *Store) SetMissing(ctx context.Context, id int64, missing bool) error {
	if err := s.execWithoutResultRetry(ctx,
		`UPDATE comics SET missing = ?, updated_at = ? WHERE id = ?`,
		boolToInt(missing), formatTime(time.Now()), id,
	); err != nil {
		return fmt.Errorf("set missing: %w", err)
	}
	return nil
}

// SetLastError stores the most recent failure message for operators.
func (s *Store) SetLastError(ctx context.Context, id int64, message string) error {
	if err := s.execWithoutResultRetry(ctx,
		`UPDATE comics SET last_error = ?, updated_at = ? WHERE id = ?`,
		nullableString(message), formatTime(time.Now()), id,
	); err != nil {
		return fmt.Errorf("set last error: %w", err)
	}
	return nil
}

// Transition is one committed history row.
type Transition struct {
	Event string
	From  comic.State
	To    comic.State
	At    time.Time
}

// History returns the committed transitions for id, oldest first.
func (s *Store) History(ctx context.Context, id int64) ([]Transition, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT event, from_state, to_state, at FROM transitions WHERE comic_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()
	var out []Transition
	for rows.Next() {
		var (
			t     Transition
			from  string
			to    string
			atRaw string
		)
		if err := rows.Scan(&t.Event, &from, &to, &atRaw); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		t.From = comic.State(from)
		t.To = comic.State(to)
		if at, err := parseTimeString(atRaw); err == nil {
			t.At = at
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
