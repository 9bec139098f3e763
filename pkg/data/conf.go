package data

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/tunogya/runqa/pkg/model"
)

// MetricDef is one line of metrics.conf
type MetricDef struct {
	Name      string
	Histogram string
	Method    string // how segments fold into a run value: wmean or sum
}

// ReadMetricsConfFile reads a metrics.conf file
func ReadMetricsConfFile(path string) ([]MetricDef, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open metrics conf: %w", err)
	}
	defer file.Close()
	return ReadMetricsConf(file)
}

// ReadMetricsConf parses "name, histogram, method" lines.
// Blank lines and lines starting with # are ignored, as are repeated names.
func ReadMetricsConf(r io.Reader) ([]MetricDef, error) {
	var defs []MetricDef
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		toks := strings.Split(line, ",")
		for i := range toks {
			toks[i] = strings.TrimSpace(toks[i])
		}
		if toks[0] == "" || seen[toks[0]] {
			continue
		}
		def := MetricDef{Name: toks[0], Method: string(MethodWeightedMean)}
		if len(toks) > 1 {
			def.Histogram = toks[1]
		}
		if len(toks) > 2 && toks[2] != "" {
			def.Method = toks[2]
		}
		seen[def.Name] = true
		defs = append(defs, def)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read metrics conf: %w", err)
	}
	return defs, nil
}

// MetricNames returns the names of defs in order
func MetricNames(defs []MetricDef) []string {
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	return names
}

// ReadThresholdsFile reads a thresholds CSV file
func ReadThresholdsFile(path string) (map[string]model.Threshold, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open thresholds: %w", err)
	}
	defer file.Close()
	return ReadThresholds(file)
}

// ReadThresholds parses metric,lo,hi rows. An empty bound is unbounded on
// that side; malformed rows are skipped so the metric falls back to no threshold.
func ReadThresholds(r io.Reader) (map[string]model.Threshold, error) {
	records, err := readRecords(r)
	if err != nil {
		return nil, err
	}

	out := make(map[string]model.Threshold)
	for _, rec := range records {
		if len(rec) < 3 || strings.EqualFold(rec[0], "metric") {
			continue
		}
		t := model.Unbounded(rec[0])
		if rec[1] != "" {
			lo, err := strconv.ParseFloat(rec[1], 64)
			if err != nil {
				continue
			}
			t.Lo = lo
		}
		if rec[2] != "" {
			hi, err := strconv.ParseFloat(rec[2], 64)
			if err != nil {
				continue
			}
			t.Hi = hi
		}
		if math.IsNaN(t.Lo) || math.IsNaN(t.Hi) {
			continue
		}
		out[t.Metric] = t
	}
	return out, nil
}

var contextAliases = map[string]string{
	"run":           "run",
	"dead":          "dead",
	"dead_count":    "dead",
	"hot":           "hot",
	"hot_count":     "hot",
	"total":         "total",
	"total_ladders": "total",
	"total_count":   "total",
}

// ReadRunContextFile reads a per-run context CSV file
func ReadRunContextFile(path string) (map[int]model.RunContext, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open run context: %w", err)
	}
	defer file.Close()
	return ReadRunContext(file)
}

// ReadRunContext parses per-run dead/hot channel counts. The header is required.
func ReadRunContext(r io.Reader) (map[int]model.RunContext, error) {
	records, err := readRecords(r)
	if err != nil {
		return nil, err
	}
	out := make(map[int]model.RunContext)
	if len(records) == 0 {
		return out, nil
	}

	colMap := headerMap(records[0], contextAliases)
	get := func(rec []string, name string) (int, bool) {
		idx, ok := colMap[name]
		if !ok || idx >= len(rec) {
			return 0, false
		}
		v, err := strconv.Atoi(rec[idx])
		return v, err == nil
	}

	for _, rec := range records[1:] {
		run, ok := get(rec, "run")
		if !ok {
			continue
		}
		c := model.RunContext{Run: run}
		c.Dead, _ = get(rec, "dead")
		c.Hot, _ = get(rec, "hot")
		c.Total, _ = get(rec, "total")
		out[run] = c
	}
	return out, nil
}

// readRecords reads all CSV records with trimmed fields, skipping # comments
func readRecords(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.Comment = '#'
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	for _, rec := range records {
		for i := range rec {
			rec[i] = strings.TrimSpace(rec[i])
		}
	}
	return records, nil
}
