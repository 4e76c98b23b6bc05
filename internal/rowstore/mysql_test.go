package rowstore

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/jmehdipour/clinic-crm/internal/model"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockMySQL(t *testing.T) (*MySQL, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return NewMySQL(sqlx.NewDb(db, "mysql")), mock
}

func q(s string) string { return regexp.QuoteMeta(s) }

func TestMySQLFetchRows(t *testing.T) {
	s, mock := newMockMySQL(t)
	mock.ExpectQuery(q("SELECT cells FROM sheet_rows")).
		WithArgs(testDataset, testTab).
		WillReturnRows(sqlmock.NewRows([]string{"cells"}).
			AddRow(`["C001","Somchai"]`).
			AddRow(`["C002","Malee","","m@example.com"]`))

	rows, err := s.FetchRows(context.Background(), testDataset, testTab)
	require.NoError(t, err)
	assert.Equal(t, []model.Row{{"C001", "Somchai"}, {"C002", "Malee", "", "m@example.com"}}, rows)
}

func TestMySQLFetchRowsUnknownTab(t *testing.T) {
	s, mock := newMockMySQL(t)
	mock.ExpectQuery(q("SELECT cells FROM sheet_rows")).
		WithArgs(testDataset, "Nope").
		WillReturnRows(sqlmock.NewRows([]string{"cells"}))
	mock.ExpectQuery(q("SELECT COUNT(*) FROM sheet_headers")).
		WithArgs(testDataset, "Nope").
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(0))

	_, err := s.FetchRows(context.Background(), testDataset, "Nope")
	assert.ErrorIs(t, err, ErrTabNotFound)
}

func TestMySQLFetchRowsEmptyTab(t *testing.T) {
	s, mock := newMockMySQL(t)
	mock.ExpectQuery(q("SELECT cells FROM sheet_rows")).
		WillReturnRows(sqlmock.NewRows([]string{"cells"}))
	mock.ExpectQuery(q("SELECT COUNT(*) FROM sheet_headers")).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))

	rows, err := s.FetchRows(context.Background(), testDataset, testTab)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestMySQLFetchHeaders(t *testing.T) {
	s, mock := newMockMySQL(t)
	mock.ExpectQuery(q("SELECT cells FROM sheet_headers")).
		WithArgs(testDataset, testTab).
		WillReturnRows(sqlmock.NewRows([]string{"cells"}).AddRow(`["id","name"]`))
	mock.ExpectQuery(q("SELECT cells FROM sheet_headers")).
		WithArgs(testDataset, "Nope").
		WillReturnRows(sqlmock.NewRows([]string{"cells"}))

	headers, err := s.FetchHeaders(context.Background(), testDataset, testTab)
	require.NoError(t, err)
	assert.Equal(t, model.Row{"id", "name"}, headers)

	_, err = s.FetchHeaders(context.Background(), testDataset, "Nope")
	assert.ErrorIs(t, err, ErrTabNotFound)
}

func TestMySQLSetHeaders(t *testing.T) {
	s, mock := newMockMySQL(t)
	mock.ExpectExec(q("INSERT INTO sheet_headers")).
		WithArgs(testDataset, testTab, []byte(`["id","name"]`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.SetHeaders(context.Background(), testDataset, testTab, model.Row{"id", "name"}))
}

func TestMySQLAppendRowTakesNextPosition(t *testing.T) {
	s, mock := newMockMySQL(t)
	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT 1 FROM sheet_headers")).
		WithArgs(testDataset, testTab).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectQuery(q("SELECT COALESCE(MAX(position), -1) FROM sheet_rows")).
		WithArgs(testDataset, testTab).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(2))
	mock.ExpectExec(q("INSERT INTO sheet_rows")).
		WithArgs(testDataset, testTab, 3, "C004", []byte(`["C004","Niran"]`)).
		WillReturnResult(sqlmock.NewResult(4, 1))
	mock.ExpectCommit()

	require.NoError(t, s.AppendRow(context.Background(), testDataset, testTab, model.Row{"C004", "Niran"}))
}

func TestMySQLAppendRowWithoutIDStoresNullKey(t *testing.T) {
	s, mock := newMockMySQL(t)
	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT 1 FROM sheet_headers")).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectQuery(q("SELECT COALESCE(MAX(position), -1) FROM sheet_rows")).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(-1))
	mock.ExpectExec(q("INSERT INTO sheet_rows")).
		WithArgs(testDataset, testTab, 0, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, s.AppendRow(context.Background(), testDataset, testTab, model.Row{"", "walk-in"}))
}

func TestMySQLAppendUniqueDuplicate(t *testing.T) {
	s, mock := newMockMySQL(t)
	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT 1 FROM sheet_headers")).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectQuery(q("SELECT COALESCE(MAX(position), -1) FROM sheet_rows")).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(2))
	mock.ExpectExec(q("INSERT INTO sheet_rows")).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'c001'"})
	mock.ExpectRollback()

	err := s.AppendUnique(context.Background(), testDataset, testTab, model.Row{"c001"})
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestMySQLAppendRowUnknownTab(t *testing.T) {
	s, mock := newMockMySQL(t)
	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT 1 FROM sheet_headers")).
		WillReturnRows(sqlmock.NewRows([]string{"1"}))
	mock.ExpectRollback()

	err := s.AppendRow(context.Background(), testDataset, "Nope", model.Row{"X"})
	assert.ErrorIs(t, err, ErrTabNotFound)
}

func TestMySQLUpdateRow(t *testing.T) {
	s, mock := newMockMySQL(t)
	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT id FROM sheet_rows")).
		WithArgs(testDataset, testTab, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(12))
	mock.ExpectExec(q("UPDATE sheet_rows SET row_key = ?, cells = ? WHERE id = ?")).
		WithArgs("C002", []byte(`["C002","Malee K."]`), 12).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.UpdateRow(context.Background(), testDataset, testTab, 1, model.Row{"C002", "Malee K."}))
}

func TestMySQLUpdateRowOutOfRange(t *testing.T) {
	s, mock := newMockMySQL(t)
	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT id FROM sheet_rows")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	err := s.UpdateRow(context.Background(), testDataset, testTab, 9, model.Row{"X"})
	assert.ErrorIs(t, err, ErrRowNotFound)
	assert.ErrorIs(t, s.UpdateRow(context.Background(), testDataset, testTab, -1, model.Row{"X"}), ErrRowNotFound)
}

func TestMySQLDeleteRowShiftsLaterRows(t *testing.T) {
	s, mock := newMockMySQL(t)
	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT 1 FROM sheet_headers")).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectExec(q("DELETE FROM sheet_rows WHERE dataset = ? AND tab = ? AND position = ?")).
		WithArgs(testDataset, testTab, 0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("UPDATE sheet_rows SET position = position - 1")).
		WithArgs(testDataset, testTab, 0).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	require.NoError(t, s.DeleteRow(context.Background(), testDataset, testTab, 0))
}

func TestMySQLDeleteRowMissing(t *testing.T) {
	s, mock := newMockMySQL(t)
	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT 1 FROM sheet_headers")).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectExec(q("DELETE FROM sheet_rows")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.DeleteRow(context.Background(), testDataset, testTab, 7)
	assert.ErrorIs(t, err, ErrRowNotFound)
}

var keyedColumns = []string{"id", "position", "row_key", "cells"}

func TestMySQLFindByID(t *testing.T) {
	s, mock := newMockMySQL(t)
	mock.ExpectQuery(q("SELECT id, position, row_key, cells FROM sheet_rows")).
		WithArgs(testDataset, testTab, "C002").
		WillReturnRows(sqlmock.NewRows(keyedColumns).AddRow(12, 1, "C002", `["C002","Malee"]`))

	row, err := s.FindByID(context.Background(), testDataset, testTab, "  C002 ")
	require.NoError(t, err)
	assert.Equal(t, model.Row{"C002", "Malee"}, row)
}

func TestMySQLFindByIDIsCaseSensitive(t *testing.T) {
	s, mock := newMockMySQL(t)
	// the collation matches c002 to C002; the store must not
	mock.ExpectQuery(q("SELECT id, position, row_key, cells FROM sheet_rows")).
		WithArgs(testDataset, testTab, "c002").
		WillReturnRows(sqlmock.NewRows(keyedColumns).AddRow(12, 1, "C002", `["C002","Malee"]`))
	mock.ExpectQuery(q("SELECT COUNT(*) FROM sheet_headers")).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))

	_, err := s.FindByID(context.Background(), testDataset, testTab, "c002")
	assert.ErrorIs(t, err, ErrRowNotFound)
}

func TestMySQLUpdateByIDConflict(t *testing.T) {
	s, mock := newMockMySQL(t)
	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT id, position, row_key, cells FROM sheet_rows")).
		WithArgs(testDataset, testTab, "C002").
		WillReturnRows(sqlmock.NewRows(keyedColumns).AddRow(12, 1, "C002", `["C002"]`))
	mock.ExpectExec(q("UPDATE sheet_rows SET row_key")).
		WithArgs("C001", sqlmock.AnyArg(), 12).
		WillReturnError(&mysql.MySQLError{Number: 1062})
	mock.ExpectRollback()

	err := s.UpdateByID(context.Background(), testDataset, testTab, "C002", model.Row{"C001"})
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestMySQLDeleteByID(t *testing.T) {
	s, mock := newMockMySQL(t)
	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT 1 FROM sheet_headers")).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectQuery(q("SELECT id, position, row_key, cells FROM sheet_rows")).
		WithArgs(testDataset, testTab, "C002").
		WillReturnRows(sqlmock.NewRows(keyedColumns).AddRow(12, 1, "C002", `["C002"]`))
	mock.ExpectExec(q("DELETE FROM sheet_rows WHERE id = ?")).
		WithArgs(12).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("UPDATE sheet_rows SET position = position - 1")).
		WithArgs(testDataset, testTab, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.DeleteByID(context.Background(), testDataset, testTab, "C002"))
}

func TestMySQLDeleteByIDMissing(t *testing.T) {
	s, mock := newMockMySQL(t)
	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT 1 FROM sheet_headers")).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectQuery(q("SELECT id, position, row_key, cells FROM sheet_rows")).
		WillReturnRows(sqlmock.NewRows(keyedColumns))
	mock.ExpectRollback()

	err := s.DeleteByID(context.Background(), testDataset, testTab, "C999")
	assert.ErrorIs(t, err, ErrRowNotFound)
}
