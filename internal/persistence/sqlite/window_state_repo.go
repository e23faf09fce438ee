package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/morntool/webshell/internal/domain/entity"
	"github.com/morntool/webshell/internal/domain/repository"
	"github.com/morntool/webshell/internal/logging"
)

type windowStateRepo struct {
	db *sql.DB
}

// NewWindowStateRepository creates a SQLite-backed window state repository.
func NewWindowStateRepository(db *sql.DB) repository.WindowStateRepository {
	return &windowStateRepo{db: db}
}

func (r *windowStateRepo) Save(ctx context.Context, state *entity.WindowState) error {
	if state == nil {
		return errors.New("window state cannot be nil")
	}
	log := logging.FromContext(ctx)
	log.Debug().Str("window_id", state.WindowID).Bool("root", state.IsRoot).Msg("saving window state")

	savedAt := state.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO window_states
			(window_id, is_root, url_level, parent_url_level, scroll_x, scroll_y, webview_state, saved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (window_id) DO UPDATE SET
			is_root = excluded.is_root,
			url_level = excluded.url_level,
			parent_url_level = excluded.parent_url_level,
			scroll_x = excluded.scroll_x,
			scroll_y = excluded.scroll_y,
			webview_state = excluded.webview_state,
			saved_at = excluded.saved_at`,
		state.WindowID, state.IsRoot, state.URLLevel, state.ParentURLLevel,
		state.ScrollX, state.ScrollY, state.WebViewState, savedAt)
	return err
}

func (r *windowStateRepo) Get(ctx context.Context, windowID string) (*entity.WindowState, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT window_id, is_root, url_level, parent_url_level, scroll_x, scroll_y, webview_state, saved_at
		FROM window_states WHERE window_id = ?`, windowID)

	state, err := scanWindowState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return state, err
}

func (r *windowStateRepo) List(ctx context.Context) ([]*entity.WindowState, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT window_id, is_root, url_level, parent_url_level, scroll_x, scroll_y, webview_state, saved_at
		FROM window_states ORDER BY is_root DESC, saved_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var states []*entity.WindowState
	for rows.Next() {
		state, err := scanWindowState(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, state)
	}
	return states, rows.Err()
}

func (r *windowStateRepo) Delete(ctx context.Context, windowID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM window_states WHERE window_id = ?`, windowID)
	return err
}

func (r *windowStateRepo) DeleteAll(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM window_states`)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWindowState(row rowScanner) (*entity.WindowState, error) {
	var state entity.WindowState
	err := row.Scan(&state.WindowID, &state.IsRoot, &state.URLLevel, &state.ParentURLLevel,
		&state.ScrollX, &state.ScrollY, &state.WebViewState, &state.SavedAt)
	if err != nil {
		return nil, err
	}
	return &state, nil
}
