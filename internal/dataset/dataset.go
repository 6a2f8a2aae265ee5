// Package dataset loads tabular housing records from CSV and Excel files and
// turns named columns into numeric matrices for the model layer.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"
	"gonum.org/v1/gonum/mat"
)

// ErrEmpty is returned when a numeric view is requested over a table without rows.
var ErrEmpty = errors.New("table has no rows")

// Table is a header plus string cells, in file order.
type Table struct {
	Columns []string
	Rows    [][]string
	index   map[string]int
}

// New builds a table, trimming header names and padding short rows.
func New(columns []string, rows [][]string) *Table {
	t := &Table{
		Columns: make([]string, len(columns)),
		Rows:    make([][]string, 0, len(rows)),
		index:   make(map[string]int, len(columns)),
	}
	for i, col := range columns {
		col = strings.TrimSpace(strings.TrimPrefix(col, "\ufeff"))
		t.Columns[i] = col
		if _, dup := t.index[col]; !dup {
			t.index[col] = i
		}
	}
	for _, row := range rows {
		if isBlank(row) {
			continue
		}
		padded := make([]string, len(columns))
		for i := range padded {
			if i < len(row) {
				padded[i] = strings.TrimSpace(row[i])
			}
		}
		t.Rows = append(t.Rows, padded)
	}
	return t
}

// ReadFile loads a .csv, .xlsx or .xlsm file.
func ReadFile(path string) (*Table, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open dataset %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		f, err := excelize.OpenFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open Excel file: %w", err)
		}
		defer f.Close()
		return readWorkbook(f, path)
	default:
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open CSV file: %w", err)
		}
		defer file.Close()
		t, err := ReadCSV(file)
		if err != nil {
			return nil, err
		}
		log.Debug().Str("file", path).Int("rows", t.Len()).Int("columns", len(t.Columns)).Msg("CSV dataset loaded")
		return t, nil
	}
}

// Read loads a table from r, using name's extension to choose the format.
func Read(r io.Reader, name string) (*Table, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		f, err := excelize.OpenReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to open Excel file: %w", err)
		}
		defer f.Close()
		return readWorkbook(f, name)
	default:
		return ReadCSV(r)
	}
}

// ReadCSV parses a CSV stream whose first record is the header.
func ReadCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("CSV file has no header row")
		}
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}

	return New(header, rows), nil
}

func readWorkbook(f *excelize.File, name string) (*Table, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("excel file %s has no sheets", name)
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("excel file %s has no header row", name)
	}

	t := New(rows[0], rows[1:])
	log.Debug().Str("file", name).Str("sheet", sheets[0]).Int("rows", t.Len()).Msg("Excel dataset loaded")
	return t, nil
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Has reports whether the table has a column named col.
func (t *Table) Has(col string) bool {
	_, ok := t.index[col]
	return ok
}

// Missing returns the requested columns absent from the table, in request order.
func (t *Table) Missing(cols ...string) []string {
	var missing []string
	for _, col := range cols {
		if !t.Has(col) {
			missing = append(missing, col)
		}
	}
	return missing
}

// Cell returns the raw value of col in row, or "" and false when either is absent.
func (t *Table) Cell(row int, col string) (string, bool) {
	idx, ok := t.index[col]
	if !ok || row < 0 || row >= len(t.Rows) {
		return "", false
	}
	return t.Rows[row][idx], true
}

// Float64s parses the named columns of one row.
func (t *Table) Float64s(row int, cols []string) ([]float64, error) {
	if row < 0 || row >= len(t.Rows) {
		return nil, fmt.Errorf("row %d out of range", row)
	}

	out := make([]float64, len(cols))
	for j, col := range cols {
		idx, ok := t.index[col]
		if !ok {
			return nil, fmt.Errorf("column %q not found", col)
		}
		cell := t.Rows[row][idx]
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return nil, fmt.Errorf("row %d column %q: invalid number %q", row+1, col, cell)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("row %d column %q: value is not finite", row+1, col)
		}
		out[j] = v
	}
	return out, nil
}

// Matrix returns the named columns as a rows x len(cols) matrix.
func (t *Table) Matrix(cols []string) (*mat.Dense, error) {
	if t.Len() == 0 {
		return nil, ErrEmpty
	}

	data := make([]float64, 0, t.Len()*len(cols))
	for i := range t.Rows {
		vals, err := t.Float64s(i, cols)
		if err != nil {
			return nil, err
		}
		data = append(data, vals...)
	}
	return mat.NewDense(t.Len(), len(cols), data), nil
}

// Column returns one numeric column.
func (t *Table) Column(col string) ([]float64, error) {
	m, err := t.Matrix([]string{col})
	if err != nil {
		return nil, err
	}
	return mat.Col(nil, 0, m), nil
}

// Split shuffles row indices with a seeded source and holds out
// ceil(n*testSize) rows for testing. At least one row stays in train.
func Split(n int, testSize float64, seed int64) (train, test []int) {
	perm := rand.New(rand.NewSource(seed)).Perm(n)

	nTest := int(math.Ceil(float64(n) * testSize))
	if nTest >= n {
		nTest = n - 1
	}
	if nTest < 0 {
		nTest = 0
	}

	return perm[nTest:], perm[:nTest]
}

// Rows returns the rows of m at the given indices as a new matrix.
func Rows(m mat.Matrix, idx []int) *mat.Dense {
	_, c := m.Dims()
	out := mat.NewDense(len(idx), c, nil)
	for i, r := range idx {
		for j := 0; j < c; j++ {
			out.Set(i, j, m.At(r, j))
		}
	}
	return out
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
