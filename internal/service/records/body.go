package records

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmehdipour/clinic-crm/internal/model"
)

// objectBody is every object-shaped payload the data endpoints accept. Legacy
// forms post the entity fields directly; newer ones send values.
type objectBody struct {
	RowIndex *json.Number `json:"rowIndex"`
	Values   *model.Cells `json:"values"`

	ID         string `json:"id"`
	Name       string `json:"name"`
	Position   string `json:"position"`
	Phone      string `json:"phone"`
	Department string `json:"department"`
	Email      string `json:"email"`
	CreatedAt  string `json:"createdAt"`
	Image      string `json:"image"`
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// legacyRow lays the named fields out as id, name, phone, email, createdAt, image.
func (b objectBody) legacyRow(createdAt string) model.Row {
	return model.Row{
		strings.TrimSpace(b.ID),
		strings.TrimSpace(b.Name),
		firstNonEmpty(b.Position, b.Phone),
		firstNonEmpty(b.Department, b.Email),
		createdAt,
		strings.TrimSpace(b.Image),
	}
}

func (b objectBody) row(createdAt string) model.Row {
	if b.Values != nil {
		return model.Row(*b.Values)
	}
	return b.legacyRow(createdAt)
}

func (b objectBody) index() (int, error) {
	if b.RowIndex == nil {
		return 0, fmt.Errorf("%w: rowIndex is required", ErrInvalidRow)
	}
	n, err := b.RowIndex.Int64()
	if err != nil || n < 0 || n > maxRowIndex {
		return 0, fmt.Errorf("%w: rowIndex must be a non-negative integer", ErrInvalidRow)
	}
	return int(n), nil
}

// Spreadsheets top out at 10M cells, so no real tab gets near this.
const maxRowIndex = 10_000_000

func decodeObject(body []byte) (objectBody, error) {
	var b objectBody
	if err := json.Unmarshal(body, &b); err != nil {
		return b, fmt.Errorf("%w: %v", ErrInvalidRow, err)
	}
	return b, nil
}

func isArray(body []byte) bool {
	body = bytes.TrimSpace(body)
	return len(body) > 0 && body[0] == '['
}

// ParseCreate turns a POST body into the row to append: a JSON array of cells,
// {"values": [...]}, or the legacy named fields. Legacy rows are stamped with now.
func ParseCreate(body []byte, now time.Time) (model.Row, error) {
	if isArray(body) {
		var cells model.Cells
		if err := json.Unmarshal(body, &cells); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRow, err)
		}
		return model.Row(cells), nil
	}
	b, err := decodeObject(body)
	if err != nil {
		return nil, err
	}
	return b.row(model.FormatCreatedAt(now)), nil
}

// ParsePatch reads {"rowIndex": n, ...} where the rest is values or legacy fields.
// Legacy rows are stamped with now; a createdAt in the body is ignored.
func ParsePatch(body []byte, now time.Time) (int, model.Row, error) {
	b, err := decodeObject(body)
	if err != nil {
		return 0, nil, err
	}
	idx, err := b.index()
	if err != nil {
		return 0, nil, err
	}
	return idx, b.row(model.FormatCreatedAt(now)), nil
}

// ParseDelete reads {"rowIndex": n}.
func ParseDelete(body []byte) (int, error) {
	b, err := decodeObject(body)
	if err != nil {
		return 0, err
	}
	return b.index()
}

// ParseReplace reads a PUT body. The returned row may have an empty id; Replace
// then keeps the stored one.
func ParseReplace(body []byte, now time.Time) (model.Row, error) {
	if isArray(body) {
		return ParseCreate(body, now)
	}
	b, err := decodeObject(body)
	if err != nil {
		return nil, err
	}
	return b.row(createdAtOrNow(b.CreatedAt, now)), nil
}

func createdAtOrNow(createdAt string, now time.Time) string {
	if createdAt = strings.TrimSpace(createdAt); createdAt != "" {
		return createdAt
	}
	return model.FormatCreatedAt(now)
}
