package rowstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jmehdipour/clinic-crm/internal/model"
	"github.com/jmoiron/sqlx"
)

// mysqlErrDuplicateEntry is ER_DUP_ENTRY.
const mysqlErrDuplicateEntry = 1062

// MySQL keeps tabs in the sheet_headers / sheet_rows tables created by the
// migrate command. A tab exists once its header row has been written.
//
// Writes that move positions lock the tab's header row first, so appends and
// deletes on the same tab are serialised.
type MySQL struct {
	db *sqlx.DB
}

var (
	_ Store          = (*MySQL)(nil)
	_ UniqueAppender = (*MySQL)(nil)
	_ KeyedStore     = (*MySQL)(nil)
	_ HeaderWriter   = (*MySQL)(nil)
)

func NewMySQL(db *sqlx.DB) *MySQL {
	return &MySQL{db: db}
}

// withTx runs fn inside a new transaction and commits when fn succeeds.
func (s *MySQL) withTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}

// lockTab takes the tab's header row FOR UPDATE.
func lockTab(ctx context.Context, tx *sqlx.Tx, dataset, tab string) error {
	var one int
	err := tx.QueryRowxContext(ctx, `
		SELECT 1 FROM sheet_headers
		 WHERE dataset = ? AND tab = ?
		   FOR UPDATE
	`, dataset, tab).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s/%s: %w", dataset, tab, ErrTabNotFound)
	}
	return err
}

func (s *MySQL) tabExists(ctx context.Context, dataset, tab string) error {
	var n int
	if err := s.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM sheet_headers WHERE dataset = ? AND tab = ?
	`, dataset, tab); err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s/%s: %w", dataset, tab, ErrTabNotFound)
	}
	return nil
}

func (s *MySQL) SetHeaders(ctx context.Context, dataset, tab string, headers model.Row) error {
	cells, err := encodeCells(headers)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sheet_headers (dataset, tab, cells)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE cells = VALUES(cells)
	`, dataset, tab, cells)
	return err
}

func (s *MySQL) FetchRows(ctx context.Context, dataset, tab string) ([]model.Row, error) {
	var raw [][]byte
	if err := s.db.SelectContext(ctx, &raw, `
		SELECT cells FROM sheet_rows
		 WHERE dataset = ? AND tab = ?
		 ORDER BY position
	`, dataset, tab); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		if err := s.tabExists(ctx, dataset, tab); err != nil {
			return nil, err
		}
	}

	rows := make([]model.Row, 0, len(raw))
	for _, b := range raw {
		row, err := decodeCells(b)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (s *MySQL) FetchHeaders(ctx context.Context, dataset, tab string) (model.Row, error) {
	var raw []byte
	err := s.db.GetContext(ctx, &raw, `
		SELECT cells FROM sheet_headers WHERE dataset = ? AND tab = ?
	`, dataset, tab)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s/%s: %w", dataset, tab, ErrTabNotFound)
	}
	if err != nil {
		return nil, err
	}
	return decodeCells(raw)
}

// AppendRow fails with ErrDuplicateID when the id is already taken: the
// row_key unique index applies to every write.
func (s *MySQL) AppendRow(ctx context.Context, dataset, tab string, row model.Row) error {
	cells, err := encodeCells(row)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := lockTab(ctx, tx, dataset, tab); err != nil {
			return err
		}
		var last int
		if err := tx.QueryRowxContext(ctx, `
			SELECT COALESCE(MAX(position), -1) FROM sheet_rows
			 WHERE dataset = ? AND tab = ?
		`, dataset, tab).Scan(&last); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sheet_rows (dataset, tab, position, row_key, cells)
			VALUES (?, ?, ?, ?, ?)
		`, dataset, tab, last+1, rowKey(row), cells)
		return mapMySQLErr(err)
	})
}

func (s *MySQL) AppendUnique(ctx context.Context, dataset, tab string, row model.Row) error {
	return s.AppendRow(ctx, dataset, tab, row)
}

func (s *MySQL) UpdateRow(ctx context.Context, dataset, tab string, index int, row model.Row) error {
	if index < 0 {
		return ErrRowNotFound
	}
	cells, err := encodeCells(row)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var id int64
		err := tx.QueryRowxContext(ctx, `
			SELECT id FROM sheet_rows
			 WHERE dataset = ? AND tab = ? AND position = ?
			   FOR UPDATE
		`, dataset, tab, index).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrRowNotFound
		}
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE sheet_rows SET row_key = ?, cells = ? WHERE id = ?
		`, rowKey(row), cells, id)
		return mapMySQLErr(err)
	})
}

func (s *MySQL) DeleteRow(ctx context.Context, dataset, tab string, index int) error {
	if index < 0 {
		return ErrRowNotFound
	}
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := lockTab(ctx, tx, dataset, tab); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `
			DELETE FROM sheet_rows WHERE dataset = ? AND tab = ? AND position = ?
		`, dataset, tab, index)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrRowNotFound
		}
		return shiftUp(ctx, tx, dataset, tab, index)
	})
}

// shiftUp closes the gap left at position. Ascending order keeps the
// position unique key satisfied row by row.
func shiftUp(ctx context.Context, tx *sqlx.Tx, dataset, tab string, position int) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE sheet_rows SET position = position - 1
		 WHERE dataset = ? AND tab = ? AND position > ?
		 ORDER BY position
	`, dataset, tab, position)
	return err
}

type keyedRow struct {
	ID       int64          `db:"id"`
	Position int            `db:"position"`
	RowKey   sql.NullString `db:"row_key"`
	Cells    []byte         `db:"cells"`
}

// findByKey returns the row whose id matches exactly once trimmed. The index
// lookup itself is case-insensitive, so a hit is re-checked here.
func findByKey(ctx context.Context, q sqlx.QueryerContext, dataset, tab, id string, lock bool) (*keyedRow, error) {
	key := strings.TrimSpace(id)
	if key == "" {
		return nil, ErrRowNotFound
	}
	query := `
		SELECT id, position, row_key, cells FROM sheet_rows
		 WHERE dataset = ? AND tab = ? AND row_key = ?`
	if lock {
		query += " FOR UPDATE"
	}

	var r keyedRow
	err := sqlx.GetContext(ctx, q, &r, query, dataset, tab, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRowNotFound
	}
	if err != nil {
		return nil, err
	}
	if r.RowKey.String != key {
		return nil, ErrRowNotFound
	}
	return &r, nil
}

func (s *MySQL) notFound(ctx context.Context, dataset, tab string, err error) error {
	if !errors.Is(err, ErrRowNotFound) {
		return err
	}
	if terr := s.tabExists(ctx, dataset, tab); terr != nil {
		return terr
	}
	return err
}

func (s *MySQL) FindByID(ctx context.Context, dataset, tab, id string) (model.Row, error) {
	r, err := findByKey(ctx, s.db, dataset, tab, id, false)
	if err != nil {
		return nil, s.notFound(ctx, dataset, tab, err)
	}
	return decodeCells(r.Cells)
}

func (s *MySQL) UpdateByID(ctx context.Context, dataset, tab, id string, row model.Row) error {
	cells, err := encodeCells(row)
	if err != nil {
		return err
	}
	err = s.withTx(ctx, func(tx *sqlx.Tx) error {
		r, err := findByKey(ctx, tx, dataset, tab, id, true)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE sheet_rows SET row_key = ?, cells = ? WHERE id = ?
		`, rowKey(row), cells, r.ID)
		return mapMySQLErr(err)
	})
	return s.notFound(ctx, dataset, tab, err)
}

func (s *MySQL) DeleteByID(ctx context.Context, dataset, tab, id string) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := lockTab(ctx, tx, dataset, tab); err != nil {
			return err
		}
		r, err := findByKey(ctx, tx, dataset, tab, id, true)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM sheet_rows WHERE id = ?`, r.ID); err != nil {
			return err
		}
		return shiftUp(ctx, tx, dataset, tab, r.Position)
	})
}

func rowKey(row model.Row) sql.NullString {
	key := strings.TrimSpace(row.ID())
	return sql.NullString{String: key, Valid: key != ""}
}

func encodeCells(row model.Row) ([]byte, error) {
	if row == nil {
		row = model.Row{}
	}
	return json.Marshal([]string(row))
}

func decodeCells(b []byte) (model.Row, error) {
	var cells []string
	if err := json.Unmarshal(b, &cells); err != nil {
		return nil, fmt.Errorf("decode cells: %w", err)
	}
	return model.Row(cells), nil
}

func mapMySQLErr(err error) error {
	var merr *mysql.MySQLError
	if errors.As(err, &merr) && merr.Number == mysqlErrDuplicateEntry {
		return ErrDuplicateID
	}
	return err
}
