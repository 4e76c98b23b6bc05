// Package records implements the data API on top of a row store: tab
// whitelisting, row validation, id-based lookups and duplicate detection.
package records

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jmehdipour/clinic-crm/internal/metrics"
	"github.com/jmehdipour/clinic-crm/internal/model"
	"github.com/jmehdipour/clinic-crm/internal/rowstore"
)

var (
	ErrInvalidTab = errors.New("invalid tab")
	ErrInvalidRow = errors.New("invalid row")
)

// Row limits. A..Z is the widest range the sheets backend reads.
const (
	MaxCells      = 26
	MaxCellLength = 50000
	MaxIDLength   = 255
)

type Options struct {
	Tabs       []string
	DefaultTab string
	Timeout    time.Duration // per store call
}

type Service struct {
	store      rowstore.Store
	tabs       map[string]struct{}
	defaultTab string
	timeout    time.Duration
	now        func() time.Time
}

func New(store rowstore.Store, opts Options) *Service {
	if len(opts.Tabs) == 0 {
		opts.Tabs = model.EntityTabs
	}
	if opts.DefaultTab == "" {
		opts.DefaultTab = model.TabCustomers
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	tabs := make(map[string]struct{}, len(opts.Tabs))
	for _, t := range opts.Tabs {
		if t != model.TabUsers {
			tabs[t] = struct{}{}
		}
	}
	return &Service{
		store:      store,
		tabs:       tabs,
		defaultTab: opts.DefaultTab,
		timeout:    opts.Timeout,
		now:        time.Now,
	}
}

// Now is the clock used to stamp created-at cells.
func (s *Service) Now() time.Time { return s.now() }

// ResolveTab maps the tab query parameter onto a served tab. Empty means the default tab.
func (s *Service) ResolveTab(tab string) (string, error) {
	tab = strings.TrimSpace(tab)
	if tab == "" {
		tab = s.defaultTab
	}
	if _, ok := s.tabs[tab]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidTab, tab)
	}
	return tab, nil
}

// ValidateRow enforces the row limits before anything reaches the store.
func ValidateRow(row model.Row) error {
	if len(row) == 0 {
		return fmt.Errorf("%w: no cells", ErrInvalidRow)
	}
	if len(row) > MaxCells {
		return fmt.Errorf("%w: %d cells, at most %d allowed", ErrInvalidRow, len(row), MaxCells)
	}
	for i, c := range row {
		if utf8.RuneCountInString(c) > MaxCellLength {
			return fmt.Errorf("%w: cell %d longer than %d characters", ErrInvalidRow, i, MaxCellLength)
		}
	}
	if utf8.RuneCountInString(strings.TrimSpace(row.ID())) > MaxIDLength {
		return fmt.Errorf("%w: id longer than %d characters", ErrInvalidRow, MaxIDLength)
	}
	return nil
}

// call runs one store operation under the per-call timeout and records its latency.
func (s *Service) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.RowStoreOpDuration.WithLabelValues(op, result).Observe(time.Since(start).Seconds())
	return err
}

func (s *Service) fetchRows(ctx context.Context, dataset, tab string) ([]model.Row, error) {
	var rows []model.Row
	err := s.call(ctx, "fetch_rows", func(ctx context.Context) error {
		var err error
		rows, err = s.store.FetchRows(ctx, dataset, tab)
		return err
	})
	return rows, err
}

type Table struct {
	Headers model.Row   `json:"headers"`
	Rows    []model.Row `json:"rows"`
}

func (s *Service) List(ctx context.Context, dataset, tab string) (*Table, error) {
	var headers model.Row
	err := s.call(ctx, "fetch_headers", func(ctx context.Context) error {
		var err error
		headers, err = s.store.FetchHeaders(ctx, dataset, tab)
		return err
	})
	if err != nil {
		return nil, err
	}
	rows, err := s.fetchRows(ctx, dataset, tab)
	if err != nil {
		return nil, err
	}
	if headers == nil {
		headers = model.Row{}
	}
	if rows == nil {
		rows = []model.Row{}
	}
	return &Table{Headers: headers, Rows: rows}, nil
}

// Create appends row unless another row already uses its id (compared
// trimmed and case-insensitively). Rows without an id are always appended.
func (s *Service) Create(ctx context.Context, dataset, tab string, row model.Row) error {
	if err := ValidateRow(row); err != nil {
		return err
	}
	if ua, ok := s.store.(rowstore.UniqueAppender); ok {
		return s.call(ctx, "append_unique", func(ctx context.Context) error {
			return ua.AppendUnique(ctx, dataset, tab, row)
		})
	}

	if strings.TrimSpace(row.ID()) != "" {
		rows, err := s.fetchRows(ctx, dataset, tab)
		if err != nil {
			return err
		}
		for _, r := range rows {
			if model.SameID(r.ID(), row.ID()) {
				return rowstore.ErrDuplicateID
			}
		}
	}
	return s.call(ctx, "append", func(ctx context.Context) error {
		return s.store.AppendRow(ctx, dataset, tab, row)
	})
}

func (s *Service) UpdateAt(ctx context.Context, dataset, tab string, index int, row model.Row) error {
	if index < 0 {
		return fmt.Errorf("%w: negative row index", ErrInvalidRow)
	}
	if err := ValidateRow(row); err != nil {
		return err
	}
	return s.call(ctx, "update", func(ctx context.Context) error {
		return s.store.UpdateRow(ctx, dataset, tab, index, row)
	})
}

func (s *Service) DeleteAt(ctx context.Context, dataset, tab string, index int) error {
	if index < 0 {
		return fmt.Errorf("%w: negative row index", ErrInvalidRow)
	}
	return s.call(ctx, "delete", func(ctx context.Context) error {
		return s.store.DeleteRow(ctx, dataset, tab, index)
	})
}

// indexOf returns the position of the first row whose trimmed id equals id.
func indexOf(rows []model.Row, id string) int {
	for i, r := range rows {
		if r.MatchesID(id) {
			return i
		}
	}
	return -1
}

func (s *Service) Get(ctx context.Context, dataset, tab, id string) (model.Row, error) {
	if ks, ok := s.store.(rowstore.KeyedStore); ok {
		var row model.Row
		err := s.call(ctx, "find_by_id", func(ctx context.Context) error {
			var err error
			row, err = ks.FindByID(ctx, dataset, tab, id)
			return err
		})
		return row, err
	}

	rows, err := s.fetchRows(ctx, dataset, tab)
	if err != nil {
		return nil, err
	}
	i := indexOf(rows, id)
	if i < 0 {
		return nil, rowstore.ErrRowNotFound
	}
	return rows[i], nil
}

// Replace overwrites the row identified by id. An empty id in row keeps the
// stored one; an id already used by a different row is a conflict.
func (s *Service) Replace(ctx context.Context, dataset, tab, id string, row model.Row) error {
	if len(row) == 0 {
		row = model.Row{""}
	}
	row = row.Clone()

	if ks, ok := s.store.(rowstore.KeyedStore); ok {
		if strings.TrimSpace(row.ID()) == "" {
			row[model.ColID] = strings.TrimSpace(id)
		}
		if err := ValidateRow(row); err != nil {
			return err
		}
		return s.call(ctx, "update_by_id", func(ctx context.Context) error {
			return ks.UpdateByID(ctx, dataset, tab, id, row)
		})
	}

	rows, err := s.fetchRows(ctx, dataset, tab)
	if err != nil {
		return err
	}
	i := indexOf(rows, id)
	if i < 0 {
		return rowstore.ErrRowNotFound
	}
	if strings.TrimSpace(row.ID()) == "" {
		row[model.ColID] = rows[i].ID()
	}
	if err := ValidateRow(row); err != nil {
		return err
	}
	for j, r := range rows {
		if j != i && model.SameID(r.ID(), row.ID()) && strings.TrimSpace(row.ID()) != "" {
			return rowstore.ErrDuplicateID
		}
	}
	return s.call(ctx, "update", func(ctx context.Context) error {
		return s.store.UpdateRow(ctx, dataset, tab, i, row)
	})
}

func (s *Service) Delete(ctx context.Context, dataset, tab, id string) error {
	if ks, ok := s.store.(rowstore.KeyedStore); ok {
		return s.call(ctx, "delete_by_id", func(ctx context.Context) error {
			return ks.DeleteByID(ctx, dataset, tab, id)
		})
	}

	rows, err := s.fetchRows(ctx, dataset, tab)
	if err != nil {
		return err
	}
	i := indexOf(rows, id)
	if i < 0 {
		return rowstore.ErrRowNotFound
	}
	return s.call(ctx, "delete", func(ctx context.Context) error {
		return s.store.DeleteRow(ctx, dataset, tab, i)
	})
}
