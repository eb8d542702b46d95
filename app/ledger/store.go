package ledger

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/gofrs/flock"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Store is the durable per-source ledger: a BOM-prefixed UTF-8 CSV file with
// a header row naming the profile fields and one record per row.
//
// Mutating methods expect the caller to hold Lock for the duration of the
// run; readers never observe a half-written file because new rows are only
// appended and whole-file rewrites go through a rename.
type Store struct {
	path   string
	fields []string
}

func NewStore(path string, fields []string) *Store {
	if len(fields) == 0 {
		fields = DefaultFields
	}
	return &Store{path: path, fields: fields}
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Fields() []string {
	return s.fields
}

// Exists reports whether the ledger file is present.
func (s *Store) Exists() (bool, error) {
	_, err := os.Stat(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, &StorageError{Op: "stat", Path: s.path, Err: err}
	}
	return true, nil
}

// Lock takes the advisory single-writer lock on the ledger. The returned
// function releases it.
func (s *Store) Lock() (func(), error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return nil, &StorageError{Op: "lock", Path: s.path, Err: err}
	}

	lock := flock.New(s.path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, &StorageError{Op: "lock", Path: s.path, Err: err}
	}
	if !locked {
		return nil, &StorageError{Op: "lock", Path: s.path, Err: ErrLedgerLocked}
	}

	return func() { _ = lock.Unlock() }, nil
}

// LoadKeys returns the key set of every stored record. A missing ledger
// yields an empty set.
func (s *Store) LoadKeys(keyFn KeyFunc) (map[string]struct{}, error) {
	keys := make(map[string]struct{})
	err := s.scan(func(r Record) {
		if key := keyFn(r); key != "" {
			keys[key] = struct{}{}
		}
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// LoadAll returns every stored record in storage order.
func (s *Store) LoadAll() ([]Record, error) {
	var records []Record
	if err := s.scan(func(r Record) { records = append(records, r) }); err != nil {
		return nil, err
	}
	return records, nil
}

// ReadNewest returns at most n records, most recently appended first. Only
// the last n rows are retained while streaming the file.
func (s *Store) ReadNewest(n int) ([]Record, error) {
	if n <= 0 {
		return nil, nil
	}

	ring := make([]Record, 0, min(n, 1024))
	next := 0
	err := s.scan(func(r Record) {
		if len(ring) < n {
			ring = append(ring, r)
			return
		}
		ring[next] = r
		next = (next + 1) % n
	})
	if err != nil {
		return nil, err
	}

	newest := make([]Record, 0, len(ring))
	for i := len(ring) - 1; i >= 0; i-- {
		newest = append(newest, ring[(next+i)%len(ring)])
	}
	return newest, nil
}

// Append writes records after the existing rows, creating the file with a
// header when it is missing or empty. Rows follow the column order of an
// existing header, which must name every profile field. On a failed write
// the file is truncated back to its previous size.
func (s *Store) Append(records []Record) (err error) {
	if len(records) == 0 {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return &StorageError{Op: "append", Path: s.path, Err: err}
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return &StorageError{Op: "append", Path: s.path, Err: err}
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return &StorageError{Op: "append", Path: s.path, Err: err}
	}
	size := info.Size()

	columns := s.fields
	if size > 0 {
		header, err := s.readHeader()
		if err != nil {
			f.Close()
			return err
		}
		if header == nil {
			// Only a BOM or blank lines: start over with a fresh header.
			if err := f.Truncate(0); err != nil {
				f.Close()
				return &StorageError{Op: "append", Path: s.path, Err: err}
			}
			size = 0
		} else {
			if err := s.checkHeader(header); err != nil {
				f.Close()
				return err
			}
			columns = header
		}
	}

	defer func() {
		if err != nil {
			_ = f.Truncate(size)
		}
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = &StorageError{Op: "append", Path: s.path, Err: closeErr}
		}
	}()

	if err := writeRows(f, columns, records, size == 0); err != nil {
		return &StorageError{Op: "append", Path: s.path, Err: err}
	}
	if err := f.Sync(); err != nil {
		return &StorageError{Op: "append", Path: s.path, Err: err}
	}

	return nil
}

// Rewrite atomically replaces the ledger with records.
func (s *Store) Rewrite(records []Record) error {
	err := writeAtomic(s.path, func(w io.Writer) error {
		return writeRows(w, s.fields, records, true)
	})
	if err != nil {
		return &StorageError{Op: "rewrite", Path: s.path, Err: err}
	}
	return nil
}

// readHeader returns the header row of the ledger, or nil when the file
// holds no rows at all.
func (s *Store) readHeader() ([]string, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, &StorageError{Op: "read header", Path: s.path, Err: err}
	}
	defer f.Close()

	reader := csv.NewReader(unicode.UTF8BOM.NewDecoder().Reader(f))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, &StorageError{Op: "read header", Path: s.path, Err: err}
	}
	return header, nil
}

func (s *Store) checkHeader(header []string) error {
	for _, field := range s.fields {
		if !slices.Contains(header, field) {
			return &StorageError{Op: "append", Path: s.path, Err: fmt.Errorf("ledger header %v lacks field %q", header, field)}
		}
	}
	return nil
}

func writeRows(w io.Writer, columns []string, records []Record, withHeader bool) error {
	var tw *transform.Writer
	if withHeader {
		tw = transform.NewWriter(w, unicode.UTF8BOM.NewEncoder())
		w = tw
	}

	cw := csv.NewWriter(w)
	if withHeader {
		if err := cw.Write(columns); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	for _, record := range records {
		if err := cw.Write(record.Row(columns)); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush rows: %w", err)
	}

	if tw != nil {
		return tw.Close()
	}
	return nil
}

func (s *Store) scan(fn func(Record)) error {
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return &StorageError{Op: "open", Path: s.path, Err: err}
	}
	defer f.Close()

	reader := csv.NewReader(unicode.UTF8BOM.NewDecoder().Reader(f))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return &StorageError{Op: "read header", Path: s.path, Err: err}
	}

	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return &StorageError{Op: "read", Path: s.path, Err: err}
		}

		record := make(Record, len(s.fields))
		for _, field := range s.fields {
			record[field] = ""
		}
		for i, name := range header {
			if i < len(row) {
				record[name] = row[i]
			}
		}
		fn(record)
	}
}
