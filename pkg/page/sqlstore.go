package page

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"zenith-tasker/internal/db"
)

const pageColumns = `id, user_id, title, content, is_favorite, order_index, updated_at`

// SQLStore is a relational page store.
type SQLStore struct {
	db  *db.DB
	now func() time.Time
}

// NewSQLStore creates a SQLStore.
func NewSQLStore(d *db.DB) *SQLStore {
	return &SQLStore{db: d, now: time.Now}
}

// List returns the user's pages by order_index, most recently edited first
// within a position.
func (s *SQLStore) List(ctx context.Context, userID int64) ([]Page, error) {
	pages := []Page{}
	err := s.db.SelectContext(ctx, &pages, s.db.Rebind(`
		SELECT `+pageColumns+` FROM pages
		WHERE user_id = ?
		ORDER BY order_index ASC, updated_at DESC, id DESC`), userID)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	return pages, nil
}

// Get retrieves one page owned by userID.
func (s *SQLStore) Get(ctx context.Context, id, userID int64) (*Page, error) {
	var p Page
	err := s.db.GetContext(ctx, &p, s.db.Rebind(`
		SELECT `+pageColumns+` FROM pages WHERE id = ? AND user_id = ?`), id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get page %d: %w", id, err)
	}
	return &p, nil
}

// Create appends a page after the user's last one.
func (s *SQLStore) Create(ctx context.Context, userID int64, title, content string) (*Page, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultTitle
	}

	var maxOrder int
	err := s.db.GetContext(ctx, &maxOrder, s.db.Rebind(`
		SELECT COALESCE(MAX(order_index), 0) FROM pages WHERE user_id = ?`), userID)
	if err != nil {
		return nil, fmt.Errorf("max page order: %w", err)
	}

	var id int64
	err = s.db.QueryRowxContext(ctx, s.db.Rebind(`
		INSERT INTO pages (user_id, title, content, is_favorite, order_index, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id`),
		userID, title, content, false, maxOrder+1, db.Timestamp(s.now())).
		Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	return s.Get(ctx, id, userID)
}

// Update overwrites the fields present in p and refreshes updated_at.
func (s *SQLStore) Update(ctx context.Context, id, userID int64, p Patch) (*Page, error) {
	set := []string{"updated_at = ?"}
	args := []any{db.Timestamp(s.now())}
	if p.Title != nil {
		set = append(set, "title = ?")
		args = append(args, *p.Title)
	}
	if p.Content != nil {
		set = append(set, "content = ?")
		args = append(args, *p.Content)
	}
	args = append(args, id, userID)

	query := fmt.Sprintf("UPDATE pages SET %s WHERE id = ? AND user_id = ?", strings.Join(set, ", "))
	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("update page %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.Get(ctx, id, userID)
}

// ToggleFavorite flips is_favorite in place.
func (s *SQLStore) ToggleFavorite(ctx context.Context, id, userID int64) (*Page, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE pages SET is_favorite = NOT is_favorite WHERE id = ? AND user_id = ?`), id, userID)
	if err != nil {
		return nil, fmt.Errorf("toggle favorite %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.Get(ctx, id, userID)
}

// Delete removes a page owned by userID.
func (s *SQLStore) Delete(ctx context.Context, id, userID int64) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM pages WHERE id = ? AND user_id = ?`), id, userID)
	if err != nil {
		return fmt.Errorf("delete page %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Reorder sets order_index for every listed page with a single CASE update.
func (s *SQLStore) Reorder(ctx context.Context, userID int64, orders []Order) error {
	if len(orders) == 0 {
		return nil
	}

	var cases strings.Builder
	args := make([]any, 0, len(orders)*3+1)
	for _, o := range orders {
		cases.WriteString(" WHEN ? THEN CAST(? AS INTEGER)")
		args = append(args, o.ID, o.OrderIndex)
	}
	ids := make([]string, len(orders))
	for i, o := range orders {
		ids[i] = "?"
		args = append(args, o.ID)
	}
	args = append(args, userID)

	query := fmt.Sprintf("UPDATE pages SET order_index = CASE id%s ELSE order_index END WHERE id IN (%s) AND user_id = ?",
		cases.String(), strings.Join(ids, ", "))
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("reorder pages: %w", err)
	}
	return nil
}
