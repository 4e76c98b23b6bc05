// Package sheetsfake is an in-memory stand-in for the Google Sheets v4 REST API,
// served over httptest.
package sheetsfake

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/jmehdipour/clinic-crm/internal/model"
)

// Server implements the handful of Sheets v4 REST calls the row store makes.
// Stored rows keep every written cell; reads drop trailing empty cells the way
// the real API does.
type Server struct {
	mu     sync.Mutex
	sheets map[string]map[string]*sheet // spreadsheet id -> title
	calls  map[string]int
}

type sheet struct {
	id     int64
	values [][]string // row 0 is the header row
}

// New returns an empty fake; add spreadsheets with AddSheet.
func New() *Server {
	return &Server{sheets: make(map[string]map[string]*sheet), calls: make(map[string]int)}
}

// AddSheet creates a sheet holding values; the first row is the header row.
func (f *Server) AddSheet(spreadsheet, title string, id int64, values ...model.Row) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sheets[spreadsheet] == nil {
		f.sheets[spreadsheet] = make(map[string]*sheet)
	}
	sh := &sheet{id: id}
	for _, v := range values {
		sh.values = append(sh.values, append([]string(nil), v...))
	}
	f.sheets[spreadsheet][title] = sh
}

// CallCount reports how often an API method was called: values.get,
// values.append, values.update, batchUpdate or get.
func (f *Server) CallCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rest, ok := strings.CutPrefix(r.URL.Path, "/v4/spreadsheets/")
	if !ok {
		http.NotFound(w, r)
		return
	}
	id, valuesPath, hasValues := strings.Cut(rest, "/values/")
	switch {
	case hasValues && r.Method == http.MethodGet:
		f.calls["values.get"]++
		f.valuesGet(w, id, valuesPath)
	case hasValues && r.Method == http.MethodPost && strings.HasSuffix(valuesPath, ":append"):
		f.calls["values.append"]++
		f.valuesAppend(w, r, id, strings.TrimSuffix(valuesPath, ":append"))
	case hasValues && r.Method == http.MethodPut:
		f.calls["values.update"]++
		f.valuesUpdate(w, r, id, valuesPath)
	case r.Method == http.MethodPost && strings.HasSuffix(rest, ":batchUpdate"):
		f.calls["batchUpdate"]++
		f.batchUpdate(w, r, strings.TrimSuffix(rest, ":batchUpdate"))
	case r.Method == http.MethodGet && !strings.Contains(rest, "/"):
		f.calls["get"]++
		f.spreadsheetGet(w, rest)
	default:
		http.NotFound(w, r)
	}
}

func (f *Server) resolve(w http.ResponseWriter, id, rng string) (*sheet, int, int, bool) {
	i := strings.LastIndex(rng, "!")
	if i < 0 {
		WriteError(w, http.StatusBadRequest, "Unable to parse range: "+rng)
		return nil, 0, 0, false
	}
	title := rng[:i]
	if strings.HasPrefix(title, "'") && strings.HasSuffix(title, "'") {
		title = strings.ReplaceAll(title[1:len(title)-1], "''", "'")
	}
	sh, ok := f.sheets[id][title]
	if !ok {
		WriteError(w, http.StatusBadRequest, "Unable to parse range: "+rng)
		return nil, 0, 0, false
	}
	from, to := parseRows(rng[i+1:])
	return sh, from, to, true
}

// parseRows returns the 1-based first and last row of an A1 cell range; 0 means open-ended.
func parseRows(cells string) (int, int) {
	start, end, hasEnd := strings.Cut(cells, ":")
	from := digits(start)
	to := from
	if hasEnd {
		to = digits(end)
	}
	return from, to
}

func digits(ref string) int {
	n, _ := strconv.Atoi(strings.TrimLeft(ref, "ABCDEFGHIJKLMNOPQRSTUVWXYZ"))
	return n
}

func trimTrailing(row []string) []string {
	n := len(row)
	for n > 0 && row[n-1] == "" {
		n--
	}
	return row[:n]
}

func (f *Server) valuesGet(w http.ResponseWriter, id, rng string) {
	sh, from, to, ok := f.resolve(w, id, rng)
	if !ok {
		return
	}
	var out [][]string
	for n := from; n <= len(sh.values) && (to == 0 || n <= to); n++ {
		out = append(out, trimTrailing(sh.values[n-1]))
	}
	for len(out) > 0 && len(out[len(out)-1]) == 0 {
		out = out[:len(out)-1]
	}
	resp := map[string]any{"range": rng, "majorDimension": "ROWS"}
	if len(out) > 0 {
		resp["values"] = out
	}
	_ = json.NewEncoder(w).Encode(resp)
}

type valueRange struct {
	Values [][]string `json:"values"`
}

func (f *Server) valuesAppend(w http.ResponseWriter, r *http.Request, id, rng string) {
	sh, _, _, ok := f.resolve(w, id, rng)
	if !ok {
		return
	}
	var vr valueRange
	if err := json.NewDecoder(r.Body).Decode(&vr); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	sh.values = append(sh.values, vr.Values...)
	_ = json.NewEncoder(w).Encode(map[string]any{"spreadsheetId": id})
}

func (f *Server) valuesUpdate(w http.ResponseWriter, r *http.Request, id, rng string) {
	sh, from, _, ok := f.resolve(w, id, rng)
	if !ok {
		return
	}
	var vr valueRange
	if err := json.NewDecoder(r.Body).Decode(&vr); err != nil || len(vr.Values) != 1 {
		WriteError(w, http.StatusBadRequest, "expected exactly one row")
		return
	}
	for len(sh.values) < from {
		sh.values = append(sh.values, nil)
	}
	target := sh.values[from-1]
	for i, c := range vr.Values[0] {
		for len(target) <= i {
			target = append(target, "")
		}
		target[i] = c
	}
	sh.values[from-1] = target
	_ = json.NewEncoder(w).Encode(map[string]any{"spreadsheetId": id, "updatedRange": rng})
}

func (f *Server) spreadsheetGet(w http.ResponseWriter, id string) {
	tabs, ok := f.sheets[id]
	if !ok {
		WriteError(w, http.StatusNotFound, "Requested entity was not found.")
		return
	}
	var list []map[string]any
	for title, sh := range tabs {
		list = append(list, map[string]any{"properties": map[string]any{"sheetId": sh.id, "title": title}})
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"spreadsheetId": id, "sheets": list})
}

func (f *Server) batchUpdate(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		Requests []struct {
			DeleteDimension *struct {
				Range struct {
					SheetID    *int64 `json:"sheetId"`
					Dimension  string `json:"dimension"`
					StartIndex *int64 `json:"startIndex"`
					EndIndex   int64  `json:"endIndex"`
				} `json:"range"`
			} `json:"deleteDimension"`
		} `json:"requests"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	for _, rq := range req.Requests {
		dd := rq.DeleteDimension
		if dd == nil || dd.Range.SheetID == nil || dd.Range.StartIndex == nil || dd.Range.Dimension != "ROWS" {
			WriteError(w, http.StatusBadRequest, "invalid deleteDimension request")
			return
		}
		var target *sheet
		for _, sh := range f.sheets[id] {
			if sh.id == *dd.Range.SheetID {
				target = sh
			}
		}
		start, end := int(*dd.Range.StartIndex), int(dd.Range.EndIndex)
		if target == nil || start >= len(target.values) || end > len(target.values) {
			WriteError(w, http.StatusBadRequest, "Invalid requests[0].deleteDimension")
			return
		}
		target.values = append(target.values[:start], target.values[end:]...)
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"spreadsheetId": id})
}

// WriteError writes a googleapi-shaped error body.
func WriteError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = fmt.Fprintf(w, `{"error":{"code":%d,"message":%q,"status":"INVALID_ARGUMENT"}}`, code, msg)
}

// Start serves f until the test ends and returns the endpoint and client to
// hand to the Sheets service.
func (f *Server) Start(t testing.TB) (string, *http.Client) {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return srv.URL + "/", srv.Client()
}
