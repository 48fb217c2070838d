package page

import (
	"context"
	"errors"
	"time"
)

// DefaultTitle is given to pages created without a title.
const DefaultTitle = "Untitled"

var (
	// ErrNotFound covers both a missing page and one owned by someone else.
	ErrNotFound   = errors.New("page not found")
	ErrValidation = errors.New("invalid page")
)

// Page is a freeform note owned by one user. Content is opaque rich text.
type Page struct {
	ID         int64     `json:"id" db:"id"`
	UserID     int64     `json:"user_id" db:"user_id"`
	Title      string    `json:"title" db:"title"`
	Content    string    `json:"content" db:"content"`
	IsFavorite bool      `json:"is_favorite" db:"is_favorite"`
	OrderIndex int       `json:"order_index" db:"order_index"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// Patch is a partial page update; nil fields keep their value.
type Patch struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
}

// Order moves one page to a new order_index.
type Order struct {
	ID         int64 `json:"id"`
	OrderIndex int   `json:"order_index"`
}

// Store is the contract for page persistence. Every method is scoped to the
// owning user.
type Store interface {
	List(ctx context.Context, userID int64) ([]Page, error)
	Get(ctx context.Context, id, userID int64) (*Page, error)
	Create(ctx context.Context, userID int64, title, content string) (*Page, error)
	Update(ctx context.Context, id, userID int64, p Patch) (*Page, error)
	ToggleFavorite(ctx context.Context, id, userID int64) (*Page, error)
	// Delete removes the page. Tasks linked to it are unlinked, not deleted.
	Delete(ctx context.Context, id, userID int64) error
	// Reorder applies all orders in one statement; ids the user does not
	// own are ignored.
	Reorder(ctx context.Context, userID int64, orders []Order) error
}
