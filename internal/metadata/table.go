package metadata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// DefaultNullValue marks a missing cell.
const DefaultNullValue = "NA"

// ErrEmptyTable is returned when a metadata file has no header row.
var ErrEmptyTable = errors.New("metadata table has no header row")

// Table is the shared metadata table as seen by the scheduler and stages.
type Table interface {
	// Path returns the file currently published as the table.
	Path() string
	// FileName is the base name stages use when writing a new version.
	FileName() string
	// Publish validates the file at path and makes it the current version.
	Publish(path string) error
	// Read parses the current version.
	Read() (*Snapshot, error)
}

// Snapshot is a parsed copy of the table.
type Snapshot struct {
	Columns []string
	Rows    [][]string
}

// Column returns the values of the named column, in row order.
func (s *Snapshot) Column(name string) ([]string, bool) {
	idx := -1
	for i, c := range s.Columns {
		if c == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, false
	}
	values := make([]string, 0, len(s.Rows))
	for _, row := range s.Rows {
		if idx < len(row) {
			values = append(values, row[idx])
		} else {
			values = append(values, DefaultNullValue)
		}
	}
	return values, true
}

// SampleIDs returns the first column.
func (s *Snapshot) SampleIDs() []string {
	if len(s.Columns) == 0 {
		return nil
	}
	ids, _ := s.Column(s.Columns[0])
	return ids
}

// File is a Table backed by a tab-separated file on disk.
type File struct {
	mu       sync.RWMutex
	path     string
	fileName string
}

// NewFile returns a table whose versions are named like the given path. The
// path itself does not need to exist yet.
func NewFile(path string) *File {
	return &File{path: path, fileName: filepath.Base(path)}
}

// Path implements Table.
func (f *File) Path() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.path
}

// FileName implements Table.
func (f *File) FileName() string {
	return f.fileName
}

// Publish implements Table.
func (f *File) Publish(path string) error {
	if _, err := ReadFile(path); err != nil {
		return fmt.Errorf("refusing to publish metadata %s: %w", path, err)
	}
	f.mu.Lock()
	f.path = path
	f.mu.Unlock()
	return nil
}

// Read implements Table.
func (f *File) Read() (*Snapshot, error) {
	return ReadFile(f.Path())
}

// ReadFile parses a tab-separated metadata file.
func ReadFile(path string) (*Snapshot, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	return read(fh)
}

func read(r io.Reader) (*Snapshot, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.Comment = '#'
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrEmptyTable
	}
	return &Snapshot{Columns: records[0], Rows: records[1:]}, nil
}

// Write stores a snapshot as a tab-separated file.
func Write(path string, s *Snapshot) error {
	if len(s.Columns) == 0 {
		return ErrEmptyTable
	}
	fh, err := os.Create(path)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(fh)
	cw.Comma = '\t'
	if err := cw.Write(s.Columns); err != nil {
		fh.Close()
		return err
	}
	if err := cw.WriteAll(s.Rows); err != nil {
		fh.Close()
		return err
	}
	return fh.Close()
}

// WithColumn returns a copy of s with an extra column whose values are taken
// from values by sample id. Samples without a value get DefaultNullValue.
func (s *Snapshot) WithColumn(name string, values map[string]string) *Snapshot {
	out := &Snapshot{Columns: append(append([]string{}, s.Columns...), name)}
	ids := s.SampleIDs()
	for i, row := range s.Rows {
		v, ok := values[ids[i]]
		if !ok {
			v = DefaultNullValue
		}
		out.Rows = append(out.Rows, append(append([]string{}, row...), v))
	}
	return out
}
