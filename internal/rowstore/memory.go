package rowstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/jmehdipour/clinic-crm/internal/model"
	"gopkg.in/yaml.v3"
)

// Memory is an in-process Store for local development and tests. Every
// operation runs under one lock, so the positional and keyed calls are atomic.
type Memory struct {
	mu       sync.RWMutex
	datasets map[string]map[string]*memTab
}

type memTab struct {
	headers model.Row
	rows    []model.Row
}

var (
	_ Store          = (*Memory)(nil)
	_ UniqueAppender = (*Memory)(nil)
	_ KeyedStore     = (*Memory)(nil)
	_ HeaderWriter   = (*Memory)(nil)
)

func NewMemory() *Memory {
	return &Memory{datasets: make(map[string]map[string]*memTab)}
}

// SeedFile is the YAML layout accepted by LoadMemory:
//
//	datasets:
//	  DS1:
//	    Customers:
//	      headers: [id, name, phone, email, createdAt, image]
//	      rows:
//	        - [C001, Somchai, "0812345678", s@example.com, "2024-01-01T00:00:00.000Z", ""]
type SeedFile struct {
	Datasets map[string]map[string]SeedTab `yaml:"datasets"`
}

type SeedTab struct {
	Headers []string   `yaml:"headers"`
	Rows    [][]string `yaml:"rows"`
}

// LoadMemory builds a Memory store from a YAML seed document.
func LoadMemory(r io.Reader) (*Memory, error) {
	var seed SeedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode seed: %w", err)
	}

	m := NewMemory()
	for dataset, tabs := range seed.Datasets {
		for tab, st := range tabs {
			t := m.ensureTab(dataset, tab)
			t.headers = model.Row(st.Headers).Clone()
			for _, r := range st.Rows {
				t.rows = append(t.rows, model.Row(r).Clone())
			}
		}
	}
	return m, nil
}

// LoadMemoryFile is LoadMemory over a file path.
func LoadMemoryFile(path string) (*Memory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return LoadMemory(f)
}

func (m *Memory) ensureTab(dataset, tab string) *memTab {
	tabs, ok := m.datasets[dataset]
	if !ok {
		tabs = make(map[string]*memTab)
		m.datasets[dataset] = tabs
	}
	t, ok := tabs[tab]
	if !ok {
		t = &memTab{}
		tabs[tab] = t
	}
	return t
}

func (m *Memory) tab(dataset, tab string) (*memTab, error) {
	t, ok := m.datasets[dataset][tab]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", dataset, tab, ErrTabNotFound)
	}
	return t, nil
}

func (m *Memory) SetHeaders(ctx context.Context, dataset, tab string, headers model.Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ensureTab(dataset, tab).headers = headers.Clone()
	return nil
}

func (m *Memory) FetchRows(ctx context.Context, dataset, tab string) ([]model.Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, err := m.tab(dataset, tab)
	if err != nil {
		return nil, err
	}
	out := make([]model.Row, len(t.rows))
	for i, r := range t.rows {
		out[i] = r.Clone()
	}
	return out, nil
}

func (m *Memory) FetchHeaders(ctx context.Context, dataset, tab string) (model.Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, err := m.tab(dataset, tab)
	if err != nil {
		return nil, err
	}
	if t.headers == nil {
		return model.Row{}, nil
	}
	return t.headers.Clone(), nil
}

func (m *Memory) AppendRow(ctx context.Context, dataset, tab string, row model.Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.tab(dataset, tab)
	if err != nil {
		return err
	}
	t.rows = append(t.rows, row.Clone())
	return nil
}

func (m *Memory) AppendUnique(ctx context.Context, dataset, tab string, row model.Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.tab(dataset, tab)
	if err != nil {
		return err
	}
	if t.conflicts(row.ID(), -1) {
		return ErrDuplicateID
	}
	t.rows = append(t.rows, row.Clone())
	return nil
}

func (m *Memory) UpdateRow(ctx context.Context, dataset, tab string, index int, row model.Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.tab(dataset, tab)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(t.rows) {
		return ErrRowNotFound
	}
	t.rows[index] = row.Clone()
	return nil
}

func (m *Memory) DeleteRow(ctx context.Context, dataset, tab string, index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.tab(dataset, tab)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(t.rows) {
		return ErrRowNotFound
	}
	t.rows = append(t.rows[:index], t.rows[index+1:]...)
	return nil
}

func (m *Memory) FindByID(ctx context.Context, dataset, tab, id string) (model.Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, err := m.tab(dataset, tab)
	if err != nil {
		return nil, err
	}
	i := t.indexOf(id)
	if i < 0 {
		return nil, ErrRowNotFound
	}
	return t.rows[i].Clone(), nil
}

func (m *Memory) UpdateByID(ctx context.Context, dataset, tab, id string, row model.Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.tab(dataset, tab)
	if err != nil {
		return err
	}
	i := t.indexOf(id)
	if i < 0 {
		return ErrRowNotFound
	}
	if t.conflicts(row.ID(), i) {
		return ErrDuplicateID
	}
	t.rows[i] = row.Clone()
	return nil
}

func (m *Memory) DeleteByID(ctx context.Context, dataset, tab, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.tab(dataset, tab)
	if err != nil {
		return err
	}
	i := t.indexOf(id)
	if i < 0 {
		return ErrRowNotFound
	}
	t.rows = append(t.rows[:i], t.rows[i+1:]...)
	return nil
}

func (t *memTab) indexOf(id string) int {
	for i, r := range t.rows {
		if r.MatchesID(id) {
			return i
		}
	}
	return -1
}

// conflicts reports whether another row (not at skip) already uses id.
func (t *memTab) conflicts(id string, skip int) bool {
	if strings.TrimSpace(id) == "" {
		return false
	}
	for i, r := range t.rows {
		if i != skip && model.SameID(r.ID(), id) {
			return true
		}
	}
	return false
}
