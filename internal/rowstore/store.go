// Package rowstore addresses spreadsheet-like datasets: a dataset holds named
// tabs, a tab holds one header row followed by positional data rows.
package rowstore

import (
	"context"
	"errors"

	"github.com/jmehdipour/clinic-crm/internal/model"
)

var (
	ErrRowNotFound = errors.New("row not found")
	ErrDuplicateID = errors.New("duplicate row id")
	ErrTabNotFound = errors.New("tab not found")
)

// Store is the positional contract every backend provides. Indexes are 0-based
// and relative to the first data row; the header row is never addressed.
type Store interface {
	FetchRows(ctx context.Context, dataset, tab string) ([]model.Row, error)
	FetchHeaders(ctx context.Context, dataset, tab string) (model.Row, error)
	AppendRow(ctx context.Context, dataset, tab string, row model.Row) error
	UpdateRow(ctx context.Context, dataset, tab string, index int, row model.Row) error
	DeleteRow(ctx context.Context, dataset, tab string, index int) error
}

// UniqueAppender is implemented by backends that enforce id uniqueness
// themselves. Ids compare trimmed and case-insensitively; an empty id never conflicts.
type UniqueAppender interface {
	AppendUnique(ctx context.Context, dataset, tab string, row model.Row) error
}

// KeyedStore is implemented by backends that can address rows by business id
// without a client-computed position.
type KeyedStore interface {
	FindByID(ctx context.Context, dataset, tab, id string) (model.Row, error)
	UpdateByID(ctx context.Context, dataset, tab, id string, row model.Row) error
	DeleteByID(ctx context.Context, dataset, tab, id string) error
}

// HeaderWriter is implemented by backends whose header rows can be written
// through this package (used when seeding).
type HeaderWriter interface {
	SetHeaders(ctx context.Context, dataset, tab string, headers model.Row) error
}
