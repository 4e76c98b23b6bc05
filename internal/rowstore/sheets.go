package rowstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/jmehdipour/clinic-crm/internal/model"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// Sheets tabs are read and written over columns A..Z.
const sheetsMaxColumns = 26

type SheetsOpts struct {
	ClientEmail      string
	PrivateKey       string // PEM
	Endpoint         string // optional, e.g. an emulator
	ValueInputOption string // USER_ENTERED (default) | RAW

	// HTTPClient replaces service-account auth entirely; used against fakes.
	HTTPClient *http.Client
}

// Sheets stores rows in Google Sheets: a dataset is a spreadsheet id and a
// tab is a sheet title. Row 1 of every sheet is the header row.
type Sheets struct {
	svc              *sheets.Service
	valueInputOption string

	mu       sync.Mutex
	sheetIDs map[string]int64 // dataset + "\x00" + tab
}

var (
	_ Store        = (*Sheets)(nil)
	_ HeaderWriter = (*Sheets)(nil)
)

func NewSheets(ctx context.Context, opts SheetsOpts) (*Sheets, error) {
	var clientOpts []option.ClientOption
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, option.WithHTTPClient(opts.HTTPClient))
	} else {
		if opts.ClientEmail == "" || opts.PrivateKey == "" {
			return nil, errors.New("sheets: service account email and private key are required")
		}
		conf := &jwt.Config{
			Email:      opts.ClientEmail,
			PrivateKey: []byte(opts.PrivateKey),
			Scopes:     []string{sheets.SpreadsheetsScope},
			TokenURL:   google.JWTTokenURL,
		}
		clientOpts = append(clientOpts, option.WithTokenSource(conf.TokenSource(ctx)))
	}
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint))
	}

	svc, err := sheets.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("sheets: new service: %w", err)
	}

	vio := opts.ValueInputOption
	if vio == "" {
		vio = "USER_ENTERED"
	}
	return &Sheets{svc: svc, valueInputOption: vio, sheetIDs: make(map[string]int64)}, nil
}

func (s *Sheets) FetchRows(ctx context.Context, dataset, tab string) ([]model.Row, error) {
	rng := a1(tab, "A2:Z")
	vr, err := s.svc.Spreadsheets.Values.Get(dataset, rng).Context(ctx).Do()
	if err != nil {
		return nil, wrapSheetsErr(err, "get "+rng)
	}
	rows := make([]model.Row, 0, len(vr.Values))
	for _, v := range vr.Values {
		rows = append(rows, toRow(v))
	}
	return rows, nil
}

func (s *Sheets) FetchHeaders(ctx context.Context, dataset, tab string) (model.Row, error) {
	rng := a1(tab, "A1:Z1")
	vr, err := s.svc.Spreadsheets.Values.Get(dataset, rng).Context(ctx).Do()
	if err != nil {
		return nil, wrapSheetsErr(err, "get "+rng)
	}
	if len(vr.Values) == 0 {
		return model.Row{}, nil
	}
	return toRow(vr.Values[0]), nil
}

func (s *Sheets) AppendRow(ctx context.Context, dataset, tab string, row model.Row) error {
	rng := a1(tab, "A2:Z")
	_, err := s.svc.Spreadsheets.Values.Append(dataset, rng, valueRange(row)).
		ValueInputOption(s.valueInputOption).
		Context(ctx).Do()
	if err != nil {
		return wrapSheetsErr(err, "append "+rng)
	}
	return nil
}

// UpdateRow fails with ErrRowNotFound past the last data row instead of
// growing the sheet.
func (s *Sheets) UpdateRow(ctx context.Context, dataset, tab string, index int, row model.Row) error {
	if err := s.requireRow(ctx, dataset, tab, index); err != nil {
		return err
	}
	sheetRow := index + 2 // 1-based, after the header
	return s.writeRow(ctx, dataset, a1(tab, fmt.Sprintf("A%d:Z%d", sheetRow, sheetRow)), row)
}

// SetHeaders overwrites row 1 of an existing sheet. Sheets are not created here.
func (s *Sheets) SetHeaders(ctx context.Context, dataset, tab string, headers model.Row) error {
	return s.writeRow(ctx, dataset, a1(tab, "A1:Z1"), headers)
}

// writeRow writes all 26 columns so that cells beyond row are cleared.
func (s *Sheets) writeRow(ctx context.Context, dataset, rng string, row model.Row) error {
	padded := make(model.Row, sheetsMaxColumns)
	copy(padded, row)
	_, err := s.svc.Spreadsheets.Values.Update(dataset, rng, valueRange(padded)).
		ValueInputOption(s.valueInputOption).
		Context(ctx).Do()
	if err != nil {
		return wrapSheetsErr(err, "update "+rng)
	}
	return nil
}

// requireRow checks that data row index exists: the API omits trailing empty
// rows, so a read from that row on comes back empty exactly when it is past
// the end.
func (s *Sheets) requireRow(ctx context.Context, dataset, tab string, index int) error {
	if index < 0 {
		return ErrRowNotFound
	}
	rng := a1(tab, fmt.Sprintf("A%d:Z", index+2))
	vr, err := s.svc.Spreadsheets.Values.Get(dataset, rng).Context(ctx).Do()
	if err != nil {
		return wrapSheetsErr(err, "get "+rng)
	}
	if len(vr.Values) == 0 {
		return ErrRowNotFound
	}
	return nil
}

func (s *Sheets) DeleteRow(ctx context.Context, dataset, tab string, index int) error {
	if err := s.requireRow(ctx, dataset, tab, index); err != nil {
		return err
	}
	sheetID, err := s.sheetID(ctx, dataset, tab)
	if err != nil {
		return err
	}

	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			DeleteDimension: &sheets.DeleteDimensionRequest{
				Range: &sheets.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "ROWS",
					StartIndex: int64(index + 1), // 0-based grid index, header at 0
					EndIndex:   int64(index + 2),
					// the first sheet has id 0, which omitempty would drop
					ForceSendFields: []string{"SheetId", "StartIndex"},
				},
			},
		}},
	}
	if _, err := s.svc.Spreadsheets.BatchUpdate(dataset, req).Context(ctx).Do(); err != nil {
		s.forgetSheetID(dataset, tab)
		return wrapSheetsErr(err, "delete row")
	}
	return nil
}

// sheetID resolves a tab title to its numeric id; results are cached per process.
func (s *Sheets) sheetID(ctx context.Context, dataset, tab string) (int64, error) {
	key := dataset + "\x00" + tab
	s.mu.Lock()
	id, ok := s.sheetIDs[key]
	s.mu.Unlock()
	if ok {
		return id, nil
	}

	ss, err := s.svc.Spreadsheets.Get(dataset).
		Fields(googleapi.Field("sheets.properties(sheetId,title)")).
		Context(ctx).Do()
	if err != nil {
		return 0, wrapSheetsErr(err, "get spreadsheet")
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == tab {
			s.mu.Lock()
			s.sheetIDs[key] = sh.Properties.SheetId
			s.mu.Unlock()
			return sh.Properties.SheetId, nil
		}
	}
	return 0, fmt.Errorf("sheets: %q: %w", tab, ErrTabNotFound)
}

func (s *Sheets) forgetSheetID(dataset, tab string) {
	s.mu.Lock()
	delete(s.sheetIDs, dataset+"\x00"+tab)
	s.mu.Unlock()
}

// a1 quotes the sheet title so names with spaces or quotes stay addressable.
func a1(tab, cells string) string {
	return "'" + strings.ReplaceAll(tab, "'", "''") + "'!" + cells
}

func valueRange(row model.Row) *sheets.ValueRange {
	cells := make([]interface{}, len(row))
	for i, c := range row {
		cells[i] = c
	}
	return &sheets.ValueRange{MajorDimension: "ROWS", Values: [][]interface{}{cells}}
}

func toRow(v []interface{}) model.Row {
	row := make(model.Row, len(v))
	for i, c := range v {
		if s, ok := c.(string); ok {
			row[i] = s
			continue
		}
		row[i] = fmt.Sprint(c)
	}
	return row
}

func wrapSheetsErr(err error, op string) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusBadRequest &&
		strings.Contains(gerr.Message, "Unable to parse range") {
		return fmt.Errorf("sheets %s: %w", op, ErrTabNotFound)
	}
	return fmt.Errorf("sheets %s: %w", op, err)
}
