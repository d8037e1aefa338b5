package skill

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists skills in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single writer avoids SQLITE_BUSY on concurrent requests.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS skills (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		level INTEGER NOT NULL,
		category TEXT NOT NULL,
		experience_months INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_skills_user_created ON skills (user_id, created_at)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init sqlite index: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) List(ctx context.Context, userID string) ([]Skill, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+skillColumns+` FROM skills WHERE user_id=? ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query skills: %w", err)
	}
	defer rows.Close()

	items := make([]Skill, 0)
	for rows.Next() {
		rec, err := scanSQLiteSkill(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate skill rows: %w", err)
	}
	return items, nil
}

func (s *SQLiteStore) Get(ctx context.Context, userID, id string) (Skill, error) {
	return s.get(ctx, s.db, userID, id)
}

type sqliteQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) get(ctx context.Context, q sqliteQuerier, userID, id string) (Skill, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+skillColumns+` FROM skills WHERE user_id=? AND id=?`,
		userID, id,
	)
	rec, err := scanSQLiteSkill(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Skill{}, ErrNotFound
	}
	return rec, err
}

func (s *SQLiteStore) Create(ctx context.Context, userID string, d Draft) (Skill, error) {
	d, err := d.Normalize()
	if err != nil {
		return Skill{}, err
	}
	now := time.Now().UTC()
	rec := Skill{
		ID:               uuid.NewString(),
		UserID:           userID,
		Name:             d.Name,
		Level:            d.Level,
		Category:         d.Category,
		ExperienceMonths: d.ExperienceMonths,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO skills (`+skillColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, rec.Name, rec.Level, rec.Category, rec.ExperienceMonths,
		rec.CreatedAt.Format(time.RFC3339Nano), rec.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Skill{}, fmt.Errorf("insert skill: %w", err)
	}
	return rec, nil
}

func (s *SQLiteStore) Update(ctx context.Context, userID, id string, u Update) (Skill, error) {
	u, err := u.Normalize()
	if err != nil {
		return Skill{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Skill{}, fmt.Errorf("begin update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rec, err := s.get(ctx, tx, userID, id)
	if err != nil {
		return Skill{}, err
	}
	d := u.Apply(rec.Draft())
	rec.Name = d.Name
	rec.Level = d.Level
	rec.Category = d.Category
	rec.ExperienceMonths = d.ExperienceMonths
	rec.UpdatedAt = time.Now().UTC()

	if _, err := tx.ExecContext(ctx,
		`UPDATE skills SET name=?, level=?, category=?, experience_months=?, updated_at=? WHERE user_id=? AND id=?`,
		rec.Name, rec.Level, rec.Category, rec.ExperienceMonths, rec.UpdatedAt.Format(time.RFC3339Nano), userID, id,
	); err != nil {
		return Skill{}, fmt.Errorf("update skill: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Skill{}, fmt.Errorf("commit update: %w", err)
	}
	return rec, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM skills WHERE user_id=? AND id=?`, userID, id)
	if err != nil {
		return fmt.Errorf("delete skill: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete skill: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) Categories(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT category FROM skills WHERE user_id=? ORDER BY category`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan category row: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category rows: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Mode() string { return "sqlite" }

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLiteStore) Close() error { return s.db.Close() }

func scanSQLiteSkill(row rowScanner) (Skill, error) {
	var (
		r                    Skill
		createdAt, updatedAt string
	)
	if err := row.Scan(&r.ID, &r.UserID, &r.Name, &r.Level, &r.Category, &r.ExperienceMonths, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Skill{}, err
		}
		return Skill{}, fmt.Errorf("scan skill row: %w", err)
	}
	var err error
	if r.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return Skill{}, fmt.Errorf("parse created_at: %w", err)
	}
	if r.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return Skill{}, fmt.Errorf("parse updated_at: %w", err)
	}
	return r, nil
}
