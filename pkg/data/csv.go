package data

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tunogya/runqa/pkg/model"
)

// DefaultPerRunPattern names per-run files after their metric
const DefaultPerRunPattern = "metrics_%s_perrun.csv"

// Column aliases accepted in per-run headers
var perRunAliases = map[string]string{
	"run":      "run",
	"value":    "value",
	"y":        "value",
	"stat_err": "stat_err",
	"error":    "stat_err",
	"err":      "stat_err",
	"ey":       "stat_err",
	"entries":  "entries",
	"n":        "entries",
	"weight":   "entries",
}

// CSVProvider implements SeriesProvider over a directory of per-run CSV files
type CSVProvider struct {
	dir     string
	pattern string
}

// NewCSVProvider creates a provider reading dir/fmt.Sprintf(pattern, metric)
func NewCSVProvider(dir, pattern string) *CSVProvider {
	if pattern == "" {
		pattern = DefaultPerRunPattern
	}
	return &CSVProvider{
		dir:     dir,
		pattern: pattern,
	}
}

// Path returns the file a metric is read from
func (p *CSVProvider) Path(metric string) string {
	return filepath.Join(p.dir, fmt.Sprintf(p.pattern, metric))
}

// FetchSeries reads the per-run CSV of a metric.
// A missing file is reported as model.ErrEmptySeries.
func (p *CSVProvider) FetchSeries(ctx context.Context, metric string) (*model.MetricSeries, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	file, err := os.Open(p.Path(metric))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("metric %s: %w", metric, model.ErrEmptySeries)
		}
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	return ReadSeriesCSV(file, metric)
}

// ReadSeriesCSV parses per-run rows (run, value, stat_err, entries).
// The header is optional; without one the columns are taken in that order.
// Empty or unparsable values become NaN, a missing entries column counts as 1.
func ReadSeriesCSV(r io.Reader, metric string) (*model.MetricSeries, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.Comment = '#'
	reader.TrimLeadingSpace = true

	first, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("metric %s: %w", metric, model.ErrEmptySeries)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	// Parse column indices
	colMap := map[string]int{"run": 0, "value": 1, "stat_err": 2, "entries": 3}
	var points []model.SamplePoint
	if _, err := strconv.Atoi(strings.TrimSpace(first[0])); err == nil {
		if p, err := parsePerRunRecord(first, colMap); err == nil {
			points = append(points, p)
		}
	} else {
		colMap = headerMap(first, perRunAliases)
		if _, ok := colMap["run"]; !ok {
			return nil, fmt.Errorf("metric %s: per-run header has no run column", metric)
		}
	}

	// Read all records
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record: %w", err)
		}

		p, err := parsePerRunRecord(record, colMap)
		if err != nil {
			continue // Skip invalid records
		}
		points = append(points, p)
	}

	return model.NewMetricSeries(metric, points)
}

// parsePerRunRecord parses a CSV record into a SamplePoint
func parsePerRunRecord(record []string, colMap map[string]int) (model.SamplePoint, error) {
	getValue := func(name string) (string, bool) {
		if idx, ok := colMap[name]; ok && idx < len(record) {
			return strings.TrimSpace(record[idx]), true
		}
		return "", false
	}

	runStr, _ := getValue("run")
	run, err := strconv.Atoi(runStr)
	if err != nil {
		return model.SamplePoint{}, fmt.Errorf("invalid run: %w", err)
	}

	field := func(name string, def float64) float64 {
		s, ok := getValue(name)
		return parseFloatOr(s, ok, def)
	}

	p := model.SamplePoint{
		Run:     run,
		Value:   field("value", math.NaN()),
		StatErr: field("stat_err", 0),
		Entries: field("entries", 1),
	}
	return p, nil
}

// headerMap maps canonical column names to their index
func headerMap(header []string, aliases map[string]string) map[string]int {
	colMap := make(map[string]int)
	for i, col := range header {
		name := strings.ToLower(strings.TrimSpace(col))
		if canonical, ok := aliases[name]; ok {
			name = canonical
		}
		if _, seen := colMap[name]; !seen {
			colMap[name] = i
		}
	}
	return colMap
}

// parseFloatOr parses s, falling back to def when s is absent or empty.
// Text that is present but not a number is treated as NaN.
func parseFloatOr(s string, present bool, def float64) float64 {
	if !present || s == "" {
		return def
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
