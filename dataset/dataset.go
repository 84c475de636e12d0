// Package dataset loads tabular radiomics exports into gonum matrices.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"gonum.org/v1/gonum/mat"
)

const DefaultLabelColumn = "label"

var (
	ErrEmpty             = errors.New("dataset: no data rows")
	ErrMalformed         = errors.New("dataset: malformed value")
	ErrNotBinary         = errors.New("dataset: label column is not binary")
	ErrMaskLength        = errors.New("dataset: mask length does not match feature count")
	ErrUnsupportedFormat = errors.New("dataset: unsupported file format")
)

// Options controls how a file is turned into a Dataset.
type Options struct {
	// LabelColumn names the target column and must be in the header. Empty
	// means DefaultLabelColumn when present, otherwise the first column.
	LabelColumn string
	// Drop lists columns that are neither features nor label (ids, dates).
	Drop []string
	// Delimiter overrides the CSV separator.
	Delimiter rune
	// Sheet selects the xlsx worksheet; empty means the first one.
	Sheet string
}

// Dataset is the feature matrix X, the 0/1 label vector Y and the feature names.
// It is never modified after Load returns.
type Dataset struct {
	X        *mat.Dense
	Y        []float64
	Features []string
	Label    string
	// Classes holds the original label values mapped to 0 and 1.
	Classes [2]float64
}

// Load reads path, choosing the reader from the file extension.
func Load(path string, opts Options) (*Dataset, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		return LoadCSV(path, opts)
	case ".tsv":
		if opts.Delimiter == 0 {
			opts.Delimiter = '\t'
		}
		return LoadCSV(path, opts)
	case ".xlsx":
		return LoadXLSX(path, opts)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// LoadCSV reads a delimited file whose first record is the header.
func LoadCSV(path string, opts Options) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset %q: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	if opts.Delimiter != 0 {
		r.Comma = opts.Delimiter
	}
	r.TrimLeadingSpace = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: read dataset %q: %w", ErrMalformed, path, err)
	}
	return fromRecords(records, opts)
}

// LoadXLSX reads the first (or the named) worksheet of an Excel workbook.
func LoadXLSX(path string, opts Options) (*Dataset, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %q: %w", path, err)
	}
	defer f.Close()

	sheet := opts.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook %q: %w", path, ErrEmpty)
		}
		sheet = sheets[0]
	}
	// Stored values, not the number-format display strings.
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return fromRecords(rows, opts)
}

func fromRecords(records [][]string, opts Options) (*Dataset, error) {
	if len(records) < 2 {
		return nil, ErrEmpty
	}
	header := records[0]
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	labelIdx, err := labelIndex(header, opts.LabelColumn)
	if err != nil {
		return nil, err
	}

	drop := make(map[string]struct{}, len(opts.Drop))
	for _, d := range opts.Drop {
		drop[d] = struct{}{}
	}

	var featureIdx []int
	var features []string
	for i, h := range header {
		if i == labelIdx {
			continue
		}
		if _, skip := drop[h]; skip {
			continue
		}
		featureIdx = append(featureIdx, i)
		features = append(features, h)
	}
	if len(features) == 0 {
		return nil, fmt.Errorf("%w: no feature columns", ErrMalformed)
	}

	// Trailing blank lines come back from xlsx as empty rows.
	body := records[1:]
	for len(body) > 0 && isBlank(body[len(body)-1]) {
		body = body[:len(body)-1]
	}
	if len(body) == 0 {
		return nil, ErrEmpty
	}

	x := mat.NewDense(len(body), len(features), nil)
	raw := make([]float64, len(body))
	for r, rec := range body {
		line := r + 2
		if len(rec) != len(header) {
			return nil, fmt.Errorf("%w: line %d has %d fields, header has %d",
				ErrMalformed, line, len(rec), len(header))
		}
		v, err := parseCell(rec[labelIdx])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d column %q: %v", ErrMalformed, line, header[labelIdx], err)
		}
		raw[r] = v
		for c, idx := range featureIdx {
			v, err := parseCell(rec[idx])
			if err != nil {
				return nil, fmt.Errorf("%w: line %d column %q: %v", ErrMalformed, line, header[idx], err)
			}
			x.Set(r, c, v)
		}
	}

	y, classes, err := binarize(raw)
	if err != nil {
		return nil, err
	}

	return &Dataset{
		X:        x,
		Y:        y,
		Features: features,
		Label:    header[labelIdx],
		Classes:  classes,
	}, nil
}

func labelIndex(header []string, name string) (int, error) {
	want := name
	if want == "" {
		want = DefaultLabelColumn
	}
	for i, h := range header {
		if h == want {
			return i, nil
		}
	}
	if name != "" {
		return 0, fmt.Errorf("%w: label column %q not in header", ErrMalformed, name)
	}
	return 0, nil
}

func parseCell(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

func isBlank(rec []string) bool {
	for _, s := range rec {
		if strings.TrimSpace(s) != "" {
			return false
		}
	}
	return true
}

// binarize maps the two distinct label values to 0 (smaller) and 1 (larger).
func binarize(raw []float64) ([]float64, [2]float64, error) {
	seen := map[float64]struct{}{}
	for _, v := range raw {
		seen[v] = struct{}{}
	}
	if len(seen) != 2 {
		return nil, [2]float64{}, fmt.Errorf("%w: found %d distinct values", ErrNotBinary, len(seen))
	}
	vals := make([]float64, 0, 2)
	for v := range seen {
		vals = append(vals, v)
	}
	sort.Float64s(vals)

	y := make([]float64, len(raw))
	for i, v := range raw {
		if v == vals[1] {
			y[i] = 1
		}
	}
	return y, [2]float64{vals[0], vals[1]}, nil
}

// NumFeatures returns the number of feature columns.
func (d *Dataset) NumFeatures() int {
	_, c := d.X.Dims()
	return c
}

// NumSamples returns the number of rows.
func (d *Dataset) NumSamples() int {
	r, _ := d.X.Dims()
	return r
}

// Select copies the masked columns of X, preserving their order.
func (d *Dataset) Select(mask []bool) (*mat.Dense, error) {
	idx, err := d.indices(mask)
	if err != nil {
		return nil, err
	}
	rows := d.NumSamples()
	if len(idx) == 0 {
		return &mat.Dense{}, nil
	}
	out := mat.NewDense(rows, len(idx), nil)
	for c, src := range idx {
		for r := 0; r < rows; r++ {
			out.Set(r, c, d.X.At(r, src))
		}
	}
	return out, nil
}

// Columns returns the names of the masked features.
func (d *Dataset) Columns(mask []bool) ([]string, error) {
	idx, err := d.indices(mask)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(idx))
	for i, j := range idx {
		names[i] = d.Features[j]
	}
	return names, nil
}

func (d *Dataset) indices(mask []bool) ([]int, error) {
	if len(mask) != d.NumFeatures() {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrMaskLength, len(mask), d.NumFeatures())
	}
	var idx []int
	for i, on := range mask {
		if on {
			idx = append(idx, i)
		}
	}
	return idx, nil
}
