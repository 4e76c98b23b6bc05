package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Entity row layout: id, two or more domain fields, creation time, image.
const (
	ColID        = 0
	ColName      = 1
	ColField2    = 2
	ColField3    = 3
	ColCreatedAt = 4
	ColImage     = 5

	EntityRowWidth = 6
)

// CreatedAtLayout matches the millisecond ISO-8601 timestamps already stored in the sheets.
const CreatedAtLayout = "2006-01-02T15:04:05.000Z07:00"

// Row is an ordered tuple of cells. Rows coming back from the spreadsheet may be
// shorter than their tab's width when trailing cells are empty.
type Row []string

// Cell returns the i-th cell or "" when the row is shorter.
func (r Row) Cell(i int) string {
	if i < 0 || i >= len(r) {
		return ""
	}
	return r[i]
}

// ID returns the business id stored in the first column.
func (r Row) ID() string { return r.Cell(ColID) }

// Clone returns a copy that does not share the backing array.
func (r Row) Clone() Row {
	if r == nil {
		return nil
	}
	out := make(Row, len(r))
	copy(out, r)
	return out
}

// MatchesID reports whether the row's id equals id after trimming both sides.
func (r Row) MatchesID(id string) bool {
	return strings.TrimSpace(r.ID()) == strings.TrimSpace(id)
}

// SameID compares ids the way duplicate detection does: trimmed and case-insensitive.
func SameID(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// FormatCreatedAt renders t as stored in the created-at column.
func FormatCreatedAt(t time.Time) string {
	return t.UTC().Format(CreatedAtLayout)
}

// Cells is a Row decoded from a JSON array whose items may be strings, numbers,
// booleans or null.
type Cells Row

func (c *Cells) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make(Cells, 0, len(raw))
	for i, item := range raw {
		s, err := scalarString(item)
		if err != nil {
			return fmt.Errorf("cell %d: %w", i, err)
		}
		out = append(out, s)
	}
	*c = out
	return nil
}

func scalarString(item json.RawMessage) (string, error) {
	item = bytes.TrimSpace(item)
	if len(item) == 0 || bytes.Equal(item, []byte("null")) {
		return "", nil
	}
	switch item[0] {
	case '"':
		var s string
		if err := json.Unmarshal(item, &s); err != nil {
			return "", err
		}
		return s, nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(item, &b); err != nil {
			return "", err
		}
		return strconv.FormatBool(b), nil
	case '[', '{':
		return "", fmt.Errorf("nested values are not supported")
	default:
		var n json.Number
		if err := json.Unmarshal(item, &n); err != nil {
			return "", err
		}
		return n.String(), nil
	}
}
