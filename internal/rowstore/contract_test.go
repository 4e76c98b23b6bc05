package rowstore

import (
	"context"
	"testing"

	"github.com/jmehdipour/clinic-crm/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testDataset = "DS1"
	testTab     = "Customers"
)

var (
	testHeaders = model.Row{"id", "name", "phone", "email", "createdAt", "image"}
	// rows end in a non-empty cell: the Sheets API drops trailing blanks on read
	testRows    = []model.Row{
		{"C001", "Somchai", "0810000001", "s@example.com", "2024-01-01T00:00:00.000Z", "s.png"},
		{"C002", "Malee", "0810000002", "m@example.com", "2024-01-02T00:00:00.000Z", "m.png"},
		{"C003", "Anan", "0810000003", "a@example.com", "2024-01-03T00:00:00.000Z", "a.png"},
	}
)

// runPositionalContract checks the positional Store operations. newStore must
// return a store whose testDataset/testTab holds testHeaders and testRows.
func runPositionalContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("fetch", func(t *testing.T) {
		s := newStore(t)
		rows, err := s.FetchRows(ctx, testDataset, testTab)
		require.NoError(t, err)
		assert.Equal(t, testRows, rows)

		headers, err := s.FetchHeaders(ctx, testDataset, testTab)
		require.NoError(t, err)
		assert.Equal(t, testHeaders, headers)
	})

	t.Run("append lands last and leaves headers alone", func(t *testing.T) {
		s := newStore(t)
		row := model.Row{"C004", "Niran", "0810000004", "n@example.com", "2024-01-04T00:00:00.000Z", "n.png"}
		require.NoError(t, s.AppendRow(ctx, testDataset, testTab, row))

		rows, err := s.FetchRows(ctx, testDataset, testTab)
		require.NoError(t, err)
		require.Len(t, rows, len(testRows)+1)
		assert.Equal(t, row, rows[len(rows)-1])
		assert.Equal(t, testRows, rows[:len(testRows)])

		headers, err := s.FetchHeaders(ctx, testDataset, testTab)
		require.NoError(t, err)
		assert.Equal(t, testHeaders, headers)
	})

	t.Run("update replaces only the target position", func(t *testing.T) {
		s := newStore(t)
		row := model.Row{"C002", "Malee K.", "0819999999", "mk@example.com", "2024-02-02T00:00:00.000Z", "mk.png"}
		require.NoError(t, s.UpdateRow(ctx, testDataset, testTab, 1, row))

		rows, err := s.FetchRows(ctx, testDataset, testTab)
		require.NoError(t, err)
		require.Len(t, rows, len(testRows))
		assert.Equal(t, row, rows[1])
		assert.Equal(t, testRows[0], rows[0])
		assert.Equal(t, testRows[2], rows[2])
	})

	t.Run("delete shifts later rows up", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.DeleteRow(ctx, testDataset, testTab, 0))

		rows, err := s.FetchRows(ctx, testDataset, testTab)
		require.NoError(t, err)
		assert.Equal(t, testRows[1:], rows)
	})
}
