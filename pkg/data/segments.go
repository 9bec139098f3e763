package data

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"

	"github.com/tunogya/runqa/pkg/feature"
	"github.com/tunogya/runqa/pkg/model"
)

// Method is how segment values of one run fold into a run value
type Method string

const (
	MethodWeightedMean Method = "wmean"
	MethodSum          Method = "sum"
)

// SegmentRow is one measurement from one segment (file) of a run
type SegmentRow struct {
	Run     int
	Segment int
	File    string
	Value   float64
	Error   float64
	Weight  float64
}

var segmentAliases = map[string]string{
	"run":     "run",
	"segment": "segment",
	"seg":     "segment",
	"file":    "file",
	"value":   "value",
	"error":   "error",
	"err":     "error",
	"weight":  "weight",
	"entries": "weight",
}

// ReadSegmentsCSV parses run,segment,file,value,error,weight rows
func ReadSegmentsCSV(r io.Reader) ([]SegmentRow, error) {
	records, err := readRecords(r)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	colMap := map[string]int{"run": 0, "segment": 1, "file": 2, "value": 3, "error": 4, "weight": 5}
	if _, err := strconv.Atoi(records[0][0]); err != nil {
		colMap = headerMap(records[0], segmentAliases)
		records = records[1:]
	}

	get := func(rec []string, name string) (string, bool) {
		idx, ok := colMap[name]
		if !ok || idx >= len(rec) {
			return "", false
		}
		return rec[idx], true
	}

	var rows []SegmentRow
	for _, rec := range records {
		runStr, _ := get(rec, "run")
		run, err := strconv.Atoi(runStr)
		if err != nil {
			continue
		}
		segStr, _ := get(rec, "segment")
		seg, _ := strconv.Atoi(segStr)
		file, _ := get(rec, "file")
		v, ok := get(rec, "value")
		e, eok := get(rec, "error")
		w, wok := get(rec, "weight")
		rows = append(rows, SegmentRow{
			Run:     run,
			Segment: seg,
			File:    file,
			Value:   parseFloatOr(v, ok, math.NaN()),
			Error:   parseFloatOr(e, eok, 0),
			Weight:  parseFloatOr(w, wok, 1),
		})
	}
	return rows, nil
}

// groupByRun groups rows by run and returns the runs in ascending order
func groupByRun(rows []SegmentRow) (map[int][]SegmentRow, []int) {
	byRun := make(map[int][]SegmentRow)
	for _, r := range rows {
		byRun[r.Run] = append(byRun[r.Run], r)
	}
	runs := make([]int, 0, len(byRun))
	for run := range byRun {
		runs = append(runs, run)
	}
	sort.Ints(runs)
	return byRun, runs
}

// AggregateSegments folds segment rows into one SamplePoint per run.
// wmean uses inverse-variance weights with unit weight for rows without an
// error; sum adds values and combines errors in quadrature. A run without
// any finite segment yields a NaN point with zero entries.
func AggregateSegments(rows []SegmentRow, method Method) ([]model.SamplePoint, error) {
	switch method {
	case MethodWeightedMean, MethodSum:
	case "":
		method = MethodWeightedMean
	default:
		return nil, fmt.Errorf("unknown aggregation method %q", method)
	}

	byRun, runs := groupByRun(rows)
	points := make([]model.SamplePoint, 0, len(runs))
	for _, run := range runs {
		var values, errs []float64
		entries := 0.0
		for _, r := range byRun[run] {
			if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
				continue
			}
			values = append(values, r.Value)
			errs = append(errs, r.Error)
			if r.Weight > 0 {
				entries += r.Weight
			}
		}

		p := model.SamplePoint{Run: run, Value: math.NaN(), StatErr: math.NaN(), Entries: entries}
		if len(values) > 0 {
			switch method {
			case MethodSum:
				sum, e2 := 0.0, 0.0
				for i, v := range values {
					sum += v
					e2 += errs[i] * errs[i]
				}
				p.Value, p.StatErr = sum, math.Sqrt(e2)
			default:
				p.Value, p.StatErr = feature.WeightedMean(values, errs)
			}
		}
		points = append(points, p)
	}
	return points, nil
}

// SegmentCV is the spread of segment values inside one run
type SegmentCV struct {
	Run  int
	N    int
	Mean float64
	CV   float64 // sample sd / |mean|; NaN for a zero mean or fewer than 2 segments
}

// SegmentConsistency computes the coefficient of variation of segment values per run
func SegmentConsistency(rows []SegmentRow) []SegmentCV {
	byRun, runs := groupByRun(rows)
	out := make([]SegmentCV, 0, len(runs))
	for _, run := range runs {
		var values []float64
		for _, r := range byRun[run] {
			values = append(values, r.Value)
		}
		values = feature.Finite(values)

		c := SegmentCV{Run: run, N: len(values), Mean: math.NaN(), CV: math.NaN()}
		if len(values) > 0 {
			mean, sd := feature.MeanStd(values)
			c.Mean = mean
			if len(values) >= 2 && mean != 0 {
				c.CV = sd / math.Abs(mean)
			}
		}
		out = append(out, c)
	}
	return out
}
