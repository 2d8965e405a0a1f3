package library

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Blocked page sources.
const (
	BlockedSourceManual = "manual"
	BlockedSourceConfig = "config"
)

// BlockedHash is a page hash that should be flagged (or removed) wherever it
// appears.
type BlockedHash struct {
	Hash      string
	Note      string
	Source    string
	CreatedAt time.Time
}

// AddBlockedHash blocks hash. Re-adding updates the note.
func (s *Store) AddBlockedHash(ctx context.Context, hash, note, source string) error {
	hash = strings.ToLower(strings.TrimSpace(hash))
	if hash == "" {
		return fmt.Errorf("blocked hash is empty")
	}
	if source == "" {
		source = BlockedSourceManual
	}
	if err := s.execWithoutResultRetry(ctx,
		`INSERT INTO blocked_pages (hash, note, source, created_at) VALUES (?, ?, ?, ?)
         ON CONFLICT(hash) DO UPDATE SET note = COALESCE(excluded.note, blocked_pages.note)`,
		hash, nullableString(note), source, formatTime(time.Now()),
	); err != nil {
		return fmt.Errorf("add blocked hash: %w", err)
	}
	return nil
}

// SeedBlockedHashes makes the config-provided list authoritative for
// config-sourced rows. Manually added hashes are left alone.
func (s *Store) SeedBlockedHashes(ctx context.Context, hashes []string) error {
	now := formatTime(time.Now())
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM blocked_pages WHERE source = ?`, BlockedSourceConfig); err != nil {
			return fmt.Errorf("clear config hashes: %w", err)
		}
		for _, hash := range hashes {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO blocked_pages (hash, source, created_at) VALUES (?, ?, ?) ON CONFLICT(hash) DO NOTHING`,
				hash, BlockedSourceConfig, now,
			); err != nil {
				return fmt.Errorf("seed blocked hash: %w", err)
			}
		}
		return nil
	})
}

// RemoveBlockedHash unblocks hash and reports whether it was present.
func (s *Store) RemoveBlockedHash(ctx context.Context, hash string) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM blocked_pages WHERE hash = ?`, strings.ToLower(strings.TrimSpace(hash)))
	if err != nil {
		return false, fmt.Errorf("remove blocked hash: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// BlockedHashes lists blocked hashes ordered by hash.
func (s *Store) BlockedHashes(ctx context.Context) ([]BlockedHash, error) {
	query, args, err := psql.Select("hash", "note", "source", "created_at").
		From("blocked_pages").
		OrderBy("hash").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("query blocked hashes: %w", err)
	}
	defer rows.Close()

	var out []BlockedHash
	for rows.Next() {
		var (
			b          BlockedHash
			note       sql.NullString
			createdRaw string
		)
		if err := rows.Scan(&b.Hash, &note, &b.Source, &createdRaw); err != nil {
			return nil, fmt.Errorf("scan blocked hash: %w", err)
		}
		b.Note = note.String
		if created, err := parseTimeString(createdRaw); err == nil {
			b.CreatedAt = created
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// BlockedHashSet returns the blocked hashes as a lookup set.
func (s *Store) BlockedHashSet(ctx context.Context) (map[string]struct{}, error) {
	hashes, err := s.BlockedHashes(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(hashes))
	for _, h := range hashes {
		set[h.Hash] = struct{}{}
	}
	return set, nil
}
