// Package store defines the read contract every article backend implements.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/DeafMist/diet-digest/backend/internal/keys"
)

var (
	// ErrUnavailable marks transport, auth and timeout failures of the primary store.
	ErrUnavailable = errors.New("storage unavailable")
	// ErrTimeout marks failures caused by an exceeded deadline. Errors carrying it
	// also carry ErrUnavailable.
	ErrTimeout = errors.New("storage timeout")
)

// Item is one decoded record. Values use the JSON value space:
// string, float64, bool, []any, map[string]any and nil.
type Item map[string]any

// String returns the string attribute name, or "" when absent or not a string.
func (i Item) String(name string) string {
	s, _ := i[name].(string)
	return s
}

// QueryInput selects one partition of the base table (Index == "") or of a
// secondary index.
type QueryInput struct {
	Index     string
	Partition string
	// Limit caps the number of items read, before any caller-side filtering.
	Limit int
	// Forward returns items in ascending sort key order.
	Forward bool
}

// Page is the result of a Query. A non-empty Cursor signals that more items
// may exist past the returned ones.
type Page struct {
	Items  []Item
	Cursor string
}

// Store reads items by primary key and by partition.
type Store interface {
	// Get returns the item under key. A missing item is (nil, false, nil).
	Get(ctx context.Context, key keys.Key) (Item, bool, error)
	Query(ctx context.Context, in QueryInput) (*Page, error)
}

// Unavailable wraps a backend failure so callers can match ErrUnavailable, and
// ErrTimeout when the context deadline was exceeded.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUnavailable) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w: %w", op, ErrUnavailable, ErrTimeout, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
