package library

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"comicvault/internal/comic"
)

// Stats summarizes the library.
type Stats struct {
	ByState     map[comic.State]int
	Missing     int
	Descriptors int
	Blocked     int
	Cataloged   int
}

// Total returns the number of records across all states.
func (s Stats) Total() int {
	total := 0
	for _, n := range s.ByState {
		total += n
	}
	return total
}

// Stats counts records by state plus the auxiliary tables.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	ctx = ensureContext(ctx)
	stats := Stats{ByState: make(map[comic.State]int)}

	query, args, err := psql.Select("state", "COUNT(1)").From("comics").GroupBy("state").ToSql()
	if err != nil {
		return stats, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return stats, fmt.Errorf("count by state: %w", err)
	}
	for rows.Next() {
		var (
			state string
			count int
		)
		if err := rows.Scan(&state, &count); err != nil {
			rows.Close()
			return stats, fmt.Errorf("scan state count: %w", err)
		}
		stats.ByState[comic.State(state)] = count
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return stats, err
	}
	rows.Close()

	counts := []struct {
		target *int
		query  sq.SelectBuilder
	}{
		{&stats.Missing, psql.Select("COUNT(1)").From("comics").Where(sq.Eq{"missing": 1})},
		{&stats.Descriptors, psql.Select("COUNT(1)").From("import_descriptors")},
		{&stats.Blocked, psql.Select("COUNT(1)").From("blocked_pages")},
		{&stats.Cataloged, psql.Select("COUNT(1)").From("catalog")},
	}
	for _, c := range counts {
		q, a, err := c.query.ToSql()
		if err != nil {
			return stats, fmt.Errorf("build count: %w", err)
		}
		if err := s.db.QueryRowContext(ctx, q, a...).Scan(c.target); err != nil {
			return stats, fmt.Errorf("count: %w", err)
		}
	}
	return stats, nil
}
