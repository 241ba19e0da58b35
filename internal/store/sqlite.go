package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tasteshift/live/internal/core"
	"github.com/tasteshift/live/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS live_records (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	media_url  TEXT NOT NULL DEFAULT '',
	is_live    INTEGER NOT NULL DEFAULT 0,
	channel_id TEXT NOT NULL DEFAULT '',
	likes      INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS live_comments (
	seq       INTEGER PRIMARY KEY AUTOINCREMENT,
	id        TEXT NOT NULL UNIQUE,
	record_id TEXT NOT NULL,
	author    TEXT NOT NULL,
	text      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS live_comments_record ON live_comments (record_id, seq);
`

type SQLiteStore struct {
	db *sql.DB
}

var _ core.RecordStore = (*SQLiteStore)(nil)

// OpenSQLite opens (or creates) the database at path. ":memory:" gives a
// private in-process database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Create(ctx context.Context, rec domain.LiveRecord) (domain.LiveRecord, error) {
	rec = prepare(rec)
	rec.CreatedAt = rec.CreatedAt.UTC().Truncate(time.Millisecond)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.LiveRecord{}, err
	}
	defer func() { _ = tx.Rollback() }()

	query := "INSERT INTO live_records (id, user_id, media_url, is_live, channel_id, likes, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)"
	if _, err := tx.ExecContext(ctx, query, rec.ID, rec.UserID, rec.MediaURL, rec.IsLive, rec.ChannelID, rec.Likes, rec.CreatedAt.UnixMilli()); err != nil {
		return domain.LiveRecord{}, fmt.Errorf("failed to insert record '%s': %w", rec.ID, err)
	}
	for i, c := range rec.Comments {
		if c.ID == "" {
			c.ID = newID()
			rec.Comments[i] = c
		}
		if err := insertComment(ctx, tx, rec.ID, c); err != nil {
			return domain.LiveRecord{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.LiveRecord{}, err
	}
	return rec, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertComment(ctx context.Context, db execer, id domain.RecordID, c domain.Comment) error {
	query := "INSERT INTO live_comments (id, record_id, author, text) VALUES (?, ?, ?, ?)"
	if _, err := db.ExecContext(ctx, query, c.ID, id, c.Author, c.Text); err != nil {
		return fmt.Errorf("failed to insert comment on '%s': %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id domain.RecordID) (domain.LiveRecord, error) {
	query := "SELECT id, user_id, media_url, is_live, channel_id, likes, created_at FROM live_records WHERE id = ?"
	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.LiveRecord{}, domain.ErrRecordNotFound
		}
		return domain.LiveRecord{}, fmt.Errorf("error querying record: %w", err)
	}
	if rec.Comments, err = s.comments(ctx, id); err != nil {
		return domain.LiveRecord{}, err
	}
	return rec, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (domain.LiveRecord, error) {
	var rec domain.LiveRecord
	var createdAt int64
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.MediaURL, &rec.IsLive, &rec.ChannelID, &rec.Likes, &createdAt); err != nil {
		return domain.LiveRecord{}, err
	}
	rec.CreatedAt = time.UnixMilli(createdAt).UTC()
	return rec, nil
}

func (s *SQLiteStore) comments(ctx context.Context, id domain.RecordID) ([]domain.Comment, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, author, text FROM live_comments WHERE record_id = ? ORDER BY seq", id)
	if err != nil {
		return nil, fmt.Errorf("failed to query comments for %s: %w", id, err)
	}
	defer rows.Close()

	out := []domain.Comment{}
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(&c.ID, &c.Author, &c.Text); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over comments for %s: %w", id, err)
	}
	return out, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]domain.LiveRecord, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, user_id, media_url, is_live, channel_id, likes, created_at FROM live_records ORDER BY is_live DESC, created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	var out []domain.LiveRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		out = append(out, rec)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("error iterating over records: %w", err)
	}

	// comments are loaded after the cursor is closed; the pool has one conn
	for i := range out {
		if out[i].Comments, err = s.comments(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	sortRecords(out)
	return out, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id domain.RecordID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, "DELETE FROM live_records WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete record '%s': %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrRecordNotFound
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM live_comments WHERE record_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete comments of '%s': %w", id, err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) exists(ctx context.Context, id domain.RecordID) error {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM live_records WHERE id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrRecordNotFound
	}
	return err
}

func (s *SQLiteStore) AppendComment(ctx context.Context, id domain.RecordID, c domain.Comment) (domain.Comment, error) {
	if err := s.exists(ctx, id); err != nil {
		return domain.Comment{}, err
	}
	if c.ID == "" {
		c.ID = newID()
	}
	if err := insertComment(ctx, s.db, id, c); err != nil {
		return domain.Comment{}, err
	}
	return c, nil
}

func (s *SQLiteStore) IncrementLike(ctx context.Context, id domain.RecordID) (int, error) {
	var likes int
	err := s.db.QueryRowContext(ctx, "UPDATE live_records SET likes = likes + 1 WHERE id = ? RETURNING likes", id).Scan(&likes)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrRecordNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to like '%s': %w", id, err)
	}
	return likes, nil
}

func (s *SQLiteStore) Purge(ctx context.Context, cutoff time.Time) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	ms := cutoff.UnixMilli()
	if _, err := tx.ExecContext(ctx, "DELETE FROM live_comments WHERE record_id IN (SELECT id FROM live_records WHERE created_at < ?)", ms); err != nil {
		return 0, fmt.Errorf("failed to purge comments: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM live_records WHERE created_at < ?", ms)
	if err != nil {
		return 0, fmt.Errorf("failed to purge records: %w", err)
	}
	n, _ := res.RowsAffected()
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
