// Package csvlog appends snapshots to a flat CSV file and reads them back.
//
// The file is append-only: the header is written once when the file is
// created (or found empty) and existing rows are never rewritten. One writer
// per file is assumed; the process-level instance lock enforces that.
package csvlog

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/i474232898/gaiatryst-synopsis/internal/coherence"
)

// TimeLayout is the timestamp format of the first column, always UTC.
const TimeLayout = "2006-01-02 15:04:05"

const (
	timestampColumn = "Timestamp (UTC)"
	averageColumn   = "Global Avg Power"
)

// ErrEmpty is returned when the log has no data rows yet.
var ErrEmpty = errors.New("csvlog: no rows")

// Header returns the fixed column list.
func Header() []string {
	cols := []string{timestampColumn, averageColumn}
	for _, id := range coherence.Stations {
		cols = append(cols, string(id))
	}
	return cols
}

// Writer appends snapshot rows to a CSV file.
type Writer struct {
	mu   sync.Mutex
	path string
}

// NewWriter creates a Writer for path. The file is created lazily on the
// first Append.
func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

// Path returns the file location.
func (w *Writer) Path() string {
	return w.path
}

// Append writes one row for snapshot, preceded by the header when the file
// is new or empty.
func (w *Writer) Append(snapshot coherence.Snapshot) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if dir := filepath.Dir(w.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("csvlog: mkdir %s: %w", dir, err)
		}
	}

	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("csvlog: open %s: %w", w.path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("csvlog: stat %s: %w", w.path, err)
	}

	cw := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := cw.Write(Header()); err != nil {
			return fmt.Errorf("csvlog: write header: %w", err)
		}
	}
	if err := cw.Write(encodeRow(snapshot)); err != nil {
		return fmt.Errorf("csvlog: write row: %w", err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("csvlog: flush: %w", err)
	}
	return nil
}

// tailChunk is the initial window read from the end of the file by Last.
// It doubles until a complete data row fits.
const tailChunk = 4096

// Last returns the most recent row, reading only the end of the file. A
// missing, empty or header-only file yields ErrEmpty.
func (w *Writer) Last() (coherence.Snapshot, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.Open(w.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return coherence.Snapshot{}, ErrEmpty
		}
		return coherence.Snapshot{}, fmt.Errorf("csvlog: open %s: %w", w.path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return coherence.Snapshot{}, fmt.Errorf("csvlog: stat %s: %w", w.path, err)
	}
	size := info.Size()

	for chunk := int64(tailChunk); ; chunk *= 2 {
		whole := chunk >= size
		if whole {
			chunk = size
		}

		buf := make([]byte, chunk)
		if _, err := f.ReadAt(buf, size-chunk); err != nil && !errors.Is(err, io.EOF) {
			return coherence.Snapshot{}, fmt.Errorf("csvlog: read %s: %w", w.path, err)
		}
		if !whole {
			// The window may start mid-row; drop everything up to the first newline.
			i := bytes.IndexByte(buf, '\n')
			if i < 0 {
				continue
			}
			buf = buf[i+1:]
		}

		rows, err := parseRows(bytes.NewReader(buf))
		if err != nil {
			if whole {
				return coherence.Snapshot{}, fmt.Errorf("csvlog: read %s: %w", w.path, err)
			}
			continue
		}
		if len(rows) > 0 {
			return decodeRow(rows[len(rows)-1])
		}
		if whole {
			return coherence.Snapshot{}, ErrEmpty
		}
	}
}

// ReadAll returns every row in insertion order.
func (w *Writer) ReadAll() ([]coherence.Snapshot, error) {
	rows, err := w.readRows()
	if err != nil {
		return nil, err
	}

	out := make([]coherence.Snapshot, 0, len(rows))
	for i, row := range rows {
		snap, err := decodeRow(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		out = append(out, snap)
	}
	return out, nil
}

// readRows returns the data rows, header excluded.
func (w *Writer) readRows() ([][]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.Open(w.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("csvlog: open %s: %w", w.path, err)
	}
	defer f.Close()

	rows, err := parseRows(f)
	if err != nil {
		return nil, fmt.Errorf("csvlog: read %s: %w", w.path, err)
	}
	return rows, nil
}

// parseRows reads CSV records from r, skipping header rows.
func parseRows(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	var rows [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) > 0 && rec[0] == timestampColumn {
			continue
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

func encodeRow(s coherence.Snapshot) []string {
	row := make([]string, 0, 2+len(coherence.Stations))
	row = append(row,
		s.Timestamp.UTC().Format(TimeLayout),
		strconv.FormatFloat(s.GlobalAverage, 'f', 2, 64),
	)
	for _, id := range coherence.Stations {
		row = append(row, strconv.FormatFloat(s.Stations[id], 'f', -1, 64))
	}
	return row
}

func decodeRow(row []string) (coherence.Snapshot, error) {
	if len(row) < 2+len(coherence.Stations) {
		return coherence.Snapshot{}, fmt.Errorf("csvlog: expected %d columns, got %d", 2+len(coherence.Stations), len(row))
	}

	ts, err := time.Parse(TimeLayout, strings.Trim(row[0], `"' `))
	if err != nil {
		return coherence.Snapshot{}, fmt.Errorf("csvlog: timestamp %q: %w", row[0], err)
	}

	avg, err := strconv.ParseFloat(strings.TrimSpace(row[1]), 64)
	if err != nil {
		return coherence.Snapshot{}, fmt.Errorf("csvlog: average %q: %w", row[1], err)
	}

	stations := make(map[coherence.StationID]float64, len(coherence.Stations))
	active := 0
	for i, id := range coherence.Stations {
		v, err := strconv.ParseFloat(strings.TrimSpace(row[2+i]), 64)
		if err != nil {
			// An unreadable station cell counts as silent.
			v = 0
		}
		stations[id] = v
		if v > 0 {
			active++
		}
	}

	return coherence.Snapshot{
		Timestamp:     ts.UTC(),
		GlobalAverage: avg,
		Stations:      stations,
		ActiveCount:   active,
		Source:        coherence.SourceLog,
	}, nil
}
