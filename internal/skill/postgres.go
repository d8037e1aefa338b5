package skill

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists skills in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initPostgresSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initPostgresSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS skills (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL,
			level INTEGER NOT NULL CHECK (level BETWEEN 1 AND 5),
			category TEXT NOT NULL,
			experience_months INTEGER NOT NULL DEFAULT 0 CHECK (experience_months >= 0),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_skills_user_created ON skills (user_id, created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

const skillColumns = `id, user_id, name, level, category, experience_months, created_at, updated_at`

func (s *PostgresStore) List(ctx context.Context, userID string) ([]Skill, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+skillColumns+` FROM skills WHERE user_id=$1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query skills: %w", err)
	}
	defer rows.Close()

	items := make([]Skill, 0)
	for rows.Next() {
		rec, err := scanSkill(rows)
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

func (s *PostgresStore) Get(ctx context.Context, userID, id string) (Skill, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+skillColumns+` FROM skills WHERE user_id=$1 AND id=$2`,
		userID, id,
	)
	rec, err := scanSkill(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Skill{}, ErrNotFound
	}
	return rec, err
}

func (s *PostgresStore) Create(ctx context.Context, userID string, d Draft) (Skill, error) {
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

	_, err = s.pool.Exec(ctx,
		`INSERT INTO skills (`+skillColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.UserID, rec.Name, rec.Level, rec.Category, rec.ExperienceMonths, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return Skill{}, fmt.Errorf("insert skill: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) Update(ctx context.Context, userID, id string, u Update) (Skill, error) {
	u, err := u.Normalize()
	if err != nil {
		return Skill{}, err
	}

	// COALESCE keeps columns whose update field is absent.
	row := s.pool.QueryRow(ctx,
		`UPDATE skills SET
			name = COALESCE($3, name),
			level = COALESCE($4, level),
			category = COALESCE($5, category),
			experience_months = COALESCE($6, experience_months),
			updated_at = $7
		 WHERE user_id=$1 AND id=$2
		 RETURNING `+skillColumns,
		userID, id, u.Name, u.Level, u.Category, u.ExperienceMonths, time.Now().UTC(),
	)
	rec, err := scanSkill(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Skill{}, ErrNotFound
	}
	return rec, err
}

func (s *PostgresStore) Delete(ctx context.Context, userID, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM skills WHERE user_id=$1 AND id=$2`, userID, id)
	if err != nil {
		return fmt.Errorf("delete skill: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Categories(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT category FROM skills WHERE user_id=$1 ORDER BY category`,
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

func (s *PostgresStore) Mode() string { return "postgres" }

func (s *PostgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSkill(row rowScanner) (Skill, error) {
	var r Skill
	if err := row.Scan(&r.ID, &r.UserID, &r.Name, &r.Level, &r.Category, &r.ExperienceMonths, &r.CreatedAt, &r.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Skill{}, err
		}
		return Skill{}, fmt.Errorf("scan skill row: %w", err)
	}
	return r, nil
}
