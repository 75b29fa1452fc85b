// Package rawstore keeps the raw captures of every publication date so any
// day can be reduced again without fetching it.
//
// Layout under the root directory:
//
//	raw-new/<date>.json          engine document
//	rawhtml-new/<date>.html      page markup
//	raw/<date>.<table>.json      one extracted table
package rawstore

import (
	"covid19au/internal/snapshot"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

const (
	DocumentDir = "raw-new"
	MarkupDir   = "rawhtml-new"
	TableDir    = "raw"
)

// TableFile is the persisted form of one extracted table.
type TableFile struct {
	// AsAtDate is the publication date, older files may have none.
	AsAtDate string             `json:"asAtDate"`
	Type     snapshot.TableName `json:"type"`
	Entries  []snapshot.Row     `json:"entries"`
}

func (f TableFile) Table() snapshot.RawTable {
	return snapshot.RawTable{Name: f.Type, Rows: f.Entries}
}

type Store struct {
	root string
}

func New(root string) Store {
	return Store{root: root}
}

func (s Store) Root() string {
	return s.root
}

func (s Store) documentPath(date snapshot.Date) string {
	return filepath.Join(s.root, DocumentDir, date.String()+".json")
}

func (s Store) markupPath(date snapshot.Date) string {
	return filepath.Join(s.root, MarkupDir, date.String()+".html")
}

func (s Store) tablePath(date snapshot.Date, table snapshot.TableName) string {
	return filepath.Join(s.root, TableDir, fmt.Sprintf("%s.%s.json", date, table))
}

// WriteDocument stores the engine document of a date unless one is already
// stored, it reports whether the document was written.
func (s Store) WriteDocument(date snapshot.Date, contents []byte) (bool, error) {
	return writeOnce(s.documentPath(date), contents)
}

// WriteMarkup stores the page markup of a date unless one is already stored,
// it reports whether the markup was written.
func (s Store) WriteMarkup(date snapshot.Date, contents []byte) (bool, error) {
	return writeOnce(s.markupPath(date), contents)
}

// WriteTable stores one extracted table of a date unless it is already
// stored, it reports whether the table was written.
func (s Store) WriteTable(date snapshot.Date, table snapshot.RawTable) (bool, error) {
	entries := table.Rows
	if entries == nil {
		entries = []snapshot.Row{}
	}
	contents, err := json.MarshalIndent(TableFile{
		AsAtDate: date.String(),
		Type:     table.Name,
		Entries:  entries,
	}, "", "    ")
	if err != nil {
		return false, fmt.Errorf("encode table %s: %w", table.Name, err)
	}
	return writeOnce(s.tablePath(date, table.Name), contents)
}

// RemoveDocument removes the engine document of a date, it is a no-op when
// none is stored.
func (s Store) RemoveDocument(date snapshot.Date) error {
	return remove(s.documentPath(date))
}

func (s Store) RemoveMarkup(date snapshot.Date) error {
	return remove(s.markupPath(date))
}

func (s Store) RemoveTable(date snapshot.Date, table snapshot.TableName) error {
	return remove(s.tablePath(date, table))
}

func remove(path string) error {
	err := os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (s Store) ReadDocument(date snapshot.Date) ([]byte, error) {
	return os.ReadFile(s.documentPath(date))
}

func (s Store) ReadMarkup(date snapshot.Date) ([]byte, error) {
	return os.ReadFile(s.markupPath(date))
}

// ReadTable reads a stored table, os.ErrNotExist is returned when the table
// of that date was never stored.
func (s Store) ReadTable(date snapshot.Date, table snapshot.TableName) (snapshot.RawTable, error) {
	f, err := readTableFile(s.tablePath(date, table))
	if err != nil {
		return snapshot.RawTable{}, err
	}
	if f.Type != "" && f.Type != table {
		return snapshot.RawTable{}, fmt.Errorf("%s.%s: file holds table %q", date, table, f.Type)
	}
	out := f.Table()
	out.Name = table
	return out, nil
}

// ReadTableFile reads a stored table by its file name, as returned by
// TableFiles.
func (s Store) ReadTableFile(name string) (TableFile, error) {
	return readTableFile(filepath.Join(s.root, TableDir, name))
}

func readTableFile(path string) (TableFile, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return TableFile{}, err
	}
	var f TableFile
	err = json.Unmarshal(contents, &f)
	if err != nil {
		return TableFile{}, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return f, nil
}

// Documents lists the dates with a stored engine document in ascending order.
func (s Store) Documents() ([]snapshot.Date, error) {
	return s.listDates(DocumentDir, ".json")
}

// Markups lists the dates with stored page markup in ascending order.
func (s Store) Markups() ([]snapshot.Date, error) {
	return s.listDates(MarkupDir, ".html")
}

// TableFiles lists the file names of every stored table, sorted.
func (s Store) TableFiles() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, TableDir))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	slices.Sort(names)
	return names, nil
}

func (s Store) listDates(dir, ext string) ([]snapshot.Date, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, dir))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var dates []snapshot.Date
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), ext)
		if e.IsDir() || !ok {
			continue
		}
		date, err := snapshot.ParseDate(name)
		if err != nil {
			continue
		}
		dates = append(dates, date)
	}
	slices.SortFunc(dates, snapshot.Date.Compare)
	return dates, nil
}
