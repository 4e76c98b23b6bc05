package rowstore

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jmehdipour/clinic-crm/internal/model"
	"github.com/jmehdipour/clinic-crm/internal/rowstore/sheetsfake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakeSheetsStore(t *testing.T) (*Sheets, *sheetsfake.Server) {
	t.Helper()
	api := sheetsfake.New()
	endpoint, client := api.Start(t)

	s, err := NewSheets(context.Background(), SheetsOpts{
		Endpoint:   endpoint,
		HTTPClient: client,
	})
	require.NoError(t, err)
	return s, api
}

func TestSheetsPositionalContract(t *testing.T) {
	runPositionalContract(t, func(t *testing.T) Store {
		s, api := newFakeSheetsStore(t)
		api.AddSheet(testDataset, testTab, 0, append([]model.Row{testHeaders}, testRows...)...)
		return s
	})
}

func TestSheetsCallsPerOperation(t *testing.T) {
	s, api := newFakeSheetsStore(t)
	api.AddSheet(testDataset, testTab, 7, append([]model.Row{testHeaders}, testRows...)...)
	ctx := context.Background()

	_, err := s.FetchRows(ctx, testDataset, testTab)
	require.NoError(t, err)
	_, err = s.FetchHeaders(ctx, testDataset, testTab)
	require.NoError(t, err)
	assert.Equal(t, 2, api.CallCount("values.get"))

	require.NoError(t, s.AppendRow(ctx, testDataset, testTab, model.Row{"C100"}))
	assert.Equal(t, 1, api.CallCount("values.append"))

	// positional writes check the row exists first
	require.NoError(t, s.UpdateRow(ctx, testDataset, testTab, 0, model.Row{"C001", "x"}))
	assert.Equal(t, 1, api.CallCount("values.update"))
	assert.Equal(t, 3, api.CallCount("values.get"))

	require.NoError(t, s.DeleteRow(ctx, testDataset, testTab, 0))
	require.NoError(t, s.DeleteRow(ctx, testDataset, testTab, 0))
	assert.Equal(t, 2, api.CallCount("batchUpdate"))
	assert.Equal(t, 5, api.CallCount("values.get"))
	assert.Equal(t, 1, api.CallCount("get"), "sheet id lookups are cached")
}

func TestSheetsPositionalWritesPastLastRow(t *testing.T) {
	s, api := newFakeSheetsStore(t)
	api.AddSheet(testDataset, testTab, 0, append([]model.Row{testHeaders}, testRows...)...)
	ctx := context.Background()

	assert.ErrorIs(t, s.UpdateRow(ctx, testDataset, testTab, len(testRows), model.Row{"C999"}), ErrRowNotFound)
	assert.ErrorIs(t, s.DeleteRow(ctx, testDataset, testTab, len(testRows)), ErrRowNotFound)
	assert.ErrorIs(t, s.UpdateRow(ctx, testDataset, testTab, 40, model.Row{"C999"}), ErrRowNotFound)
	assert.Zero(t, api.CallCount("values.update")+api.CallCount("batchUpdate"))

	rows, err := s.FetchRows(ctx, testDataset, testTab)
	require.NoError(t, err)
	assert.Equal(t, testRows, rows)

	require.NoError(t, s.UpdateRow(ctx, testDataset, testTab, len(testRows)-1, model.Row{"C003", "last"}))
}

func TestSheetsSetHeaders(t *testing.T) {
	s, api := newFakeSheetsStore(t)
	api.AddSheet(testDataset, testTab, 0, model.Row{"id", "name", "old", "stale"}, model.Row{"C001", "Somchai"})
	api.AddSheet(testDataset, "Blank", 1)
	ctx := context.Background()

	require.NoError(t, s.SetHeaders(ctx, testDataset, testTab, model.Row{"id", "name"}))
	headers, err := s.FetchHeaders(ctx, testDataset, testTab)
	require.NoError(t, err)
	assert.Equal(t, model.Row{"id", "name"}, headers)
	rows, err := s.FetchRows(ctx, testDataset, testTab)
	require.NoError(t, err)
	assert.Equal(t, []model.Row{{"C001", "Somchai"}}, rows)

	require.NoError(t, s.SetHeaders(ctx, testDataset, "Blank", model.Row{"id"}))
	headers, err = s.FetchHeaders(ctx, testDataset, "Blank")
	require.NoError(t, err)
	assert.Equal(t, model.Row{"id"}, headers)

	assert.ErrorIs(t, s.SetHeaders(ctx, testDataset, "Nope", model.Row{"id"}), ErrTabNotFound)
}

func TestSheetsUpdateClearsTrailingCells(t *testing.T) {
	s, api := newFakeSheetsStore(t)
	api.AddSheet(testDataset, testTab, 0, append([]model.Row{testHeaders}, testRows...)...)
	ctx := context.Background()

	require.NoError(t, s.UpdateRow(ctx, testDataset, testTab, 2, model.Row{"C003", "Anan"}))
	rows, err := s.FetchRows(ctx, testDataset, testTab)
	require.NoError(t, err)
	assert.Equal(t, model.Row{"C003", "Anan"}, rows[2])
}

func TestSheetsQuotesTabNames(t *testing.T) {
	s, api := newFakeSheetsStore(t)
	api.AddSheet(testDataset, "Dentist's Notes", 3, model.Row{"id"}, model.Row{"D1"})

	rows, err := s.FetchRows(context.Background(), testDataset, "Dentist's Notes")
	require.NoError(t, err)
	assert.Equal(t, []model.Row{{"D1"}}, rows)
}

func TestSheetsEmptyTab(t *testing.T) {
	s, api := newFakeSheetsStore(t)
	api.AddSheet(testDataset, testTab, 0)
	ctx := context.Background()

	rows, err := s.FetchRows(ctx, testDataset, testTab)
	require.NoError(t, err)
	assert.Empty(t, rows)

	headers, err := s.FetchHeaders(ctx, testDataset, testTab)
	require.NoError(t, err)
	assert.Empty(t, headers)
}

func TestSheetsUnknownTab(t *testing.T) {
	s, api := newFakeSheetsStore(t)
	api.AddSheet(testDataset, testTab, 0, testHeaders)
	ctx := context.Background()

	_, err := s.FetchRows(ctx, testDataset, "Nope")
	assert.ErrorIs(t, err, ErrTabNotFound)
	assert.ErrorIs(t, s.DeleteRow(ctx, testDataset, "Nope", 0), ErrTabNotFound)
}

func TestSheetsNegativeIndex(t *testing.T) {
	s, api := newFakeSheetsStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.UpdateRow(ctx, testDataset, testTab, -1, model.Row{"x"}), ErrRowNotFound)
	assert.ErrorIs(t, s.DeleteRow(ctx, testDataset, testTab, -1), ErrRowNotFound)
	assert.Zero(t, api.CallCount("values.update")+api.CallCount("batchUpdate"))
}

func TestSheetsBackendErrorIsWrapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sheetsfake.WriteError(w, http.StatusInternalServerError, "backend exploded")
	}))
	defer srv.Close()

	s, err := NewSheets(context.Background(), SheetsOpts{Endpoint: srv.URL + "/", HTTPClient: srv.Client()})
	require.NoError(t, err)

	_, err = s.FetchRows(context.Background(), testDataset, testTab)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTabNotFound)
	assert.Contains(t, err.Error(), "backend exploded")
}

func TestNewSheetsRequiresCredentials(t *testing.T) {
	_, err := NewSheets(context.Background(), SheetsOpts{})
	assert.Error(t, err)
}

func TestA1(t *testing.T) {
	assert.Equal(t, "'Customers'!A2:Z", a1("Customers", "A2:Z"))
	assert.Equal(t, "'It''s'!A1:Z1", a1("It's", "A1:Z1"))
}
