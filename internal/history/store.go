package history

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"cwv-watch/internal/vitals"

	"github.com/rs/zerolog/log"
)

// columns is the fixed CSV schema: one row per date, percentage values
// (0-100) per device class and category.
var columns = []string{
	"date",
	"mobile_good", "mobile_ni", "mobile_poor",
	"desktop_good", "desktop_ni", "desktop_poor",
}

const dateLayout = "2006-01-02"

// Row is one day's aggregate verdict for both device classes, stored as
// percentages.
type Row struct {
	Date    time.Time
	Mobile  vitals.Distribution
	Desktop vitals.Distribution
}

// Store is the rolling history window persisted as a CSV file. The file is
// read-modify-written once per run; concurrent runs are not assumed, so no
// locking is needed.
type Store struct {
	path  string
	limit int
}

// NewStore creates a store for the given path keeping at most limit rows
// (28 for daily cadence, 13 for weekly).
func NewStore(path string, limit int) *Store {
	if limit <= 0 {
		limit = 28
	}
	return &Store{path: path, limit: limit}
}

// Load reads the history file. A missing file yields an empty history.
// Stored numerics are coerced defensively: rows with unparseable dates or
// values are dropped with a warning rather than failing the run.
func (s *Store) Load() ([]Row, error) {
	file, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse history CSV: %w", err)
	}

	var rows []Row
	for i, record := range records {
		if i == 0 && len(record) > 0 && record[0] == "date" {
			continue // header
		}
		row, err := parseRow(record)
		if err != nil {
			log.Warn().Err(err).Int("line", i+1).Msg("Dropping unreadable history row")
			continue
		}
		rows = append(rows, row)
	}

	sortRows(rows)
	return rows, nil
}

func parseRow(record []string) (Row, error) {
	if len(record) != len(columns) {
		return Row{}, fmt.Errorf("got %d columns, want %d", len(record), len(columns))
	}

	date, err := time.Parse(dateLayout, record[0])
	if err != nil {
		return Row{}, fmt.Errorf("bad date %q: %w", record[0], err)
	}

	values := make([]float64, 6)
	for i := 0; i < 6; i++ {
		v, err := strconv.ParseFloat(record[i+1], 64)
		if err != nil {
			return Row{}, fmt.Errorf("bad value %q in column %s: %w", record[i+1], columns[i+1], err)
		}
		values[i] = v
	}

	return Row{
		Date:    date,
		Mobile:  vitals.Distribution{Good: values[0], NI: values[1], Poor: values[2]},
		Desktop: vitals.Distribution{Good: values[3], NI: values[4], Poor: values[5]},
	}, nil
}

// Upsert merges a row into the window: any existing row for the same date is
// replaced, rows are kept sorted by date, and only the most recent limit rows
// survive.
func (s *Store) Upsert(rows []Row, row Row) []Row {
	day := row.Date.Format(dateLayout)
	rows = slices.DeleteFunc(rows, func(r Row) bool {
		return r.Date.Format(dateLayout) == day
	})
	rows = append(rows, row)
	sortRows(rows)

	if len(rows) > s.limit {
		rows = rows[len(rows)-s.limit:]
	}
	return rows
}

// Save rewrites the history file atomically (temp file + rename).
func (s *Store) Save(rows []Row) error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".cwv_history-*.csv")
	if err != nil {
		return fmt.Errorf("failed to create temp history file: %w", err)
	}
	defer os.Remove(tmp.Name())

	writer := csv.NewWriter(tmp)
	if err := writer.Write(columns); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write history header: %w", err)
	}
	for _, row := range rows {
		record := []string{
			row.Date.Format(dateLayout),
			formatPct(row.Mobile.Good), formatPct(row.Mobile.NI), formatPct(row.Mobile.Poor),
			formatPct(row.Desktop.Good), formatPct(row.Desktop.NI), formatPct(row.Desktop.Poor),
		}
		if err := writer.Write(record); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to write history row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to flush history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp history file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace history file: %w", err)
	}
	log.Debug().Str("path", s.path).Int("rows", len(rows)).Msg("History saved")
	return nil
}

func formatPct(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func sortRows(rows []Row) {
	slices.SortFunc(rows, func(a, b Row) int {
		return a.Date.Compare(b.Date)
	})
}
