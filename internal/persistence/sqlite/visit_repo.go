package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/morntool/webshell/internal/domain/entity"
	"github.com/morntool/webshell/internal/domain/repository"
)

type visitRepo struct {
	db *sql.DB
}

// NewVisitRepository creates a SQLite-backed visit history repository.
func NewVisitRepository(db *sql.DB) repository.VisitRepository {
	return &visitRepo{db: db}
}

func (r *visitRepo) RecordVisit(ctx context.Context, url string) error {
	if url == "" {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO visits (url, visit_count, last_visited_at)
		VALUES (?, 1, ?)
		ON CONFLICT (url) DO UPDATE SET
			visit_count = visit_count + 1,
			last_visited_at = excluded.last_visited_at`,
		url, time.Now().UTC())
	return err
}

func (r *visitRepo) Recent(ctx context.Context, limit int) ([]*entity.Visit, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT url, visit_count, last_visited_at
		FROM visits ORDER BY last_visited_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var visits []*entity.Visit
	for rows.Next() {
		var v entity.Visit
		if err := rows.Scan(&v.URL, &v.VisitCount, &v.LastVisitedAt); err != nil {
			return nil, err
		}
		visits = append(visits, &v)
	}
	return visits, rows.Err()
}

func (r *visitRepo) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM visits`)
	return err
}
