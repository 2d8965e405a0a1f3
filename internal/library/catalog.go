package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"comicvault/internal/comic"
)

// CatalogEntry is the library-visible summary of a processed comic.
type CatalogEntry struct {
	ComicID     int64
	Series      string
	Volume      string
	Number      string
	Title       string
	Publisher   string
	Year        int
	PageCount   int
	Format      string
	CatalogedAt time.Time
}

// UpsertCatalog writes the catalog row for rec. Blocked pages do not count
// toward the page total.
func (s *Store) UpsertCatalog(ctx context.Context, rec *comic.Record) error {
	if rec == nil || rec.ID <= 0 {
		return errors.New("upsert catalog: record has no id")
	}
	md := rec.Metadata
	pages := len(rec.Pages) - rec.BlockedCount()
	if err := s.execWithoutResultRetry(ctx,
		`INSERT INTO catalog (comic_id, series, volume, number, title, publisher, year, page_count, format, cataloged_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(comic_id) DO UPDATE SET
             series = excluded.series, volume = excluded.volume, number = excluded.number,
             title = excluded.title, publisher = excluded.publisher, year = excluded.year,
             page_count = excluded.page_count, format = excluded.format, cataloged_at = excluded.cataloged_at`,
		rec.ID,
		nullableString(md.Series),
		nullableString(md.Volume),
		nullableString(md.Number),
		nullableString(md.Title),
		nullableString(md.Publisher),
		md.Year,
		pages,
		rec.Format,
		formatTime(time.Now()),
	); err != nil {
		return fmt.Errorf("upsert catalog: %w", err)
	}
	return nil
}

// Catalog returns the catalog row for comicID, or nil when absent.
func (s *Store) Catalog(ctx context.Context, comicID int64) (*CatalogEntry, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT comic_id, series, volume, number, title, publisher, year, page_count, format, cataloged_at
         FROM catalog WHERE comic_id = ?`, comicID)
	var (
		e                                        CatalogEntry
		series, volume, number, title, publisher sql.NullString
		catalogedRaw                             string
	)
	err := row.Scan(&e.ComicID, &series, &volume, &number, &title, &publisher, &e.Year, &e.PageCount, &e.Format, &catalogedRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get catalog entry: %w", err)
	}
	e.Series = series.String
	e.Volume = volume.String
	e.Number = number.String
	e.Title = title.String
	e.Publisher = publisher.String
	if at, err := parseTimeString(catalogedRaw); err == nil {
		e.CatalogedAt = at
	}
	return &e, nil
}
