package pagination

import (
	"time"

	domain "github.com/malistore/api/internal/domain"
)

// KeyFunc extracts the keyset fields of an item.
type KeyFunc[T any] func(item T) (time.Time, string)

// Slice pages through items already sorted newest first.
func Slice[T any](items []T, key KeyFunc[T], pager domain.Pagination) (domain.CursorPage[T], error) {
	cursor, err := DecodeToken(pager.PageToken)
	if err != nil {
		return domain.CursorPage[T]{}, err
	}
	size := NormalizePageSize(pager.PageSize)

	page := domain.CursorPage[T]{Items: make([]T, 0, size)}
	for _, item := range items {
		createdAt, id := key(item)
		if !cursor.Admits(createdAt, id) {
			continue
		}
		if len(page.Items) == size {
			last := page.Items[len(page.Items)-1]
			lastAt, lastID := key(last)
			token, err := EncodeToken(Cursor{CreatedAt: lastAt, ID: lastID})
			if err != nil {
				return domain.CursorPage[T]{}, err
			}
			page.NextPageToken = token
			break
		}
		page.Items = append(page.Items, item)
	}
	return page, nil
}
