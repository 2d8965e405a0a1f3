package library

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"comicvault/internal/comic"
)

var comicColumns = []string{
	"id", "source_path", "format", "subtype", "state", "missing", "file_size", "file_hash",
	"contents_loaded", "blocked_pages_marked", "cataloged", "metadata_json", "last_error",
	"created_at", "updated_at",
}

var pageColumns = []string{
	"comic_id", "page_index", "filename", "hash", "size", "width", "height", "page_type", "blocked",
}

func scanComic(scanner interface{ Scan(dest ...any) error }) (*comic.Record, error) {
	var (
		id                 int64
		sourcePath         string
		format             string
		subtype            sql.NullString
		stateRaw           string
		missing            int64
		fileSize           int64
		fileHash           sql.NullString
		contentsLoaded     int64
		blockedPagesMarked int64
		cataloged          int64
		metadataJSON       sql.NullString
		lastError          sql.NullString
		createdRaw         sql.NullString
		updatedRaw         sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&sourcePath,
		&format,
		&subtype,
		&stateRaw,
		&missing,
		&fileSize,
		&fileHash,
		&contentsLoaded,
		&blockedPagesMarked,
		&cataloged,
		&metadataJSON,
		&lastError,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	state, err := comic.ParseState(stateRaw)
	if err != nil {
		return nil, fmt.Errorf("comic %d: %w", id, err)
	}
	rec := &comic.Record{
		ID:                 id,
		SourcePath:         sourcePath,
		Format:             format,
		Subtype:            subtype.String,
		State:              state,
		Missing:            missing != 0,
		File:               comic.FileDetails{Size: fileSize, Hash: fileHash.String},
		ContentsLoaded:     contentsLoaded != 0,
		BlockedPagesMarked: blockedPagesMarked != 0,
		Cataloged:          cataloged != 0,
		LastError:          lastError.String,
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("comic %d metadata: %w", id, err)
		}
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		rec.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		rec.UpdatedAt = updated
	}
	return rec, nil
}

func scanPage(scanner interface{ Scan(dest ...any) error }) (int64, comic.Page, error) {
	var (
		comicID  int64
		page     comic.Page
		pageType sql.NullString
		blocked  int64
	)
	if err := scanner.Scan(
		&comicID,
		&page.Index,
		&page.Filename,
		&page.Hash,
		&page.Size,
		&page.Width,
		&page.Height,
		&pageType,
		&blocked,
	); err != nil {
		return 0, comic.Page{}, err
	}
	page.Type = pageType.String
	page.Blocked = blocked != 0
	return comicID, page, nil
}

func encodeMetadata(md comic.Metadata) (string, error) {
	data, err := json.Marshal(md)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	return string(data), nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
