package pagination

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	mcperrors "github.com/ajitpratap0/mcp-agent-go/pkg/errors"
)

const (
	// DefaultLimit is the page size a provider uses when none is configured
	DefaultLimit = 50

	// MaxLimit is the largest page a provider will return
	MaxLimit = 200

	// MaxPages stops a collector that keeps receiving cursors
	MaxPages = 1000

	cursorPrefix = "offset:"
)

var (
	// ErrInvalidLimit is returned when the page size is out of range
	ErrInvalidLimit = errors.New("pagination limit must be greater than 0 and less than or equal to MaxLimit")

	// ErrInvalidCursor is returned when a pagination cursor is invalid
	ErrInvalidCursor = errors.New("invalid pagination cursor format")

	// ErrTooManyPages is returned when a listing does not terminate
	ErrTooManyPages = errors.New("pagination did not terminate")
)

// ValidateLimit checks a configured page size
func ValidateLimit(limit int) error {
	if limit <= 0 || limit > MaxLimit {
		return fmt.Errorf("%w: got %d, max is %d", ErrInvalidLimit, limit, MaxLimit)
	}
	return nil
}

// EncodeCursor returns the opaque cursor for the page starting at offset
func EncodeCursor(offset int) string {
	return base64.RawURLEncoding.EncodeToString([]byte(cursorPrefix + strconv.Itoa(offset)))
}

// DecodeCursor returns the offset an EncodeCursor cursor points at. The
// empty cursor is the first page.
func DecodeCursor(cursor string) (int, error) {
	if cursor == "" {
		return 0, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	s, ok := strings.CutPrefix(string(raw), cursorPrefix)
	if !ok {
		return 0, ErrInvalidCursor
	}
	offset, err := strconv.Atoi(s)
	if err != nil || offset < 0 {
		return 0, ErrInvalidCursor
	}
	return offset, nil
}

// Paginate returns the page of items selected by cursor and the cursor of
// the following page, empty on the last page. A cursor that does not decode
// or points past the end is an InvalidCursor error.
func Paginate[T any](items []T, cursor string, limit int) ([]T, string, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	start, err := DecodeCursor(cursor)
	if err != nil {
		return nil, "", mcperrors.InvalidCursor(cursor, err)
	}
	if start > len(items) || (start == len(items) && cursor != "") {
		return nil, "", mcperrors.InvalidCursor(cursor, ErrInvalidCursor)
	}

	end := start + limit
	if end >= len(items) {
		return items[start:], "", nil
	}
	return items[start:end], EncodeCursor(end), nil
}

// FetchFunc fetches the page at cursor and returns its items and the next
// cursor, empty when there are no more pages.
type FetchFunc[T any] func(ctx context.Context, cursor string) ([]T, string, error)

// Collector accumulates the pages of one listing
type Collector[T any] struct {
	// NextCursor holds the cursor of the next page
	NextCursor string
	// HasMore indicates if there are more pages to fetch
	HasMore bool
	// Pages counts the pages fetched so far
	Pages int

	items []T
}

// NewCollector creates a collector positioned at the first page
func NewCollector[T any]() *Collector[T] {
	return &Collector[T]{HasMore: true}
}

// Update records one fetched page
func (c *Collector[T]) Update(items []T, nextCursor string) {
	c.items = append(c.items, items...)
	c.NextCursor = nextCursor
	c.HasMore = nextCursor != ""
	c.Pages++
}

// Items returns everything collected so far
func (c *Collector[T]) Items() []T {
	return c.items
}

// CollectAll follows cursors until the listing is exhausted. A provider
// that returns the same cursor twice in a row, or more than MaxPages
// pages, is treated as broken.
func CollectAll[T any](ctx context.Context, fetch FetchFunc[T]) ([]T, error) {
	collector := NewCollector[T]()
	for collector.HasMore {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if collector.Pages >= MaxPages {
			return nil, ErrTooManyPages
		}

		prev := collector.NextCursor
		items, next, err := fetch(ctx, prev)
		if err != nil {
			return nil, err
		}
		if next != "" && next == prev {
			return nil, fmt.Errorf("%w: cursor %q repeated", ErrTooManyPages, next)
		}
		collector.Update(items, next)
	}
	return collector.Items(), nil
}
