package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"

	"gonum.org/v1/gonum/stat/distuv"
)

// shape is an anomaly planted into a mock metric
type shape struct {
	name  string
	apply func(i, n int) float64
}

func main() {
	dir := flag.String("dir", "data", "Output directory")
	runs := flag.Int("runs", 60, "Number of runs")
	first := flag.Int("first-run", 1000, "First run number")
	seed := flag.Uint64("seed", 1, "Random seed")
	flag.Parse()

	if err := os.MkdirAll(*dir, 0755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	src := rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15)
	noise := distuv.Normal{Mu: 0, Sigma: 1, Src: src}

	n := *runs
	shapes := map[string]shape{
		"adc_mpv":       {"spike", func(i, n int) float64 { return spike(i, n/3, 8) }},
		"cluster_size":  {"step", func(i, n int) float64 { return step(i, n/2, 5) }},
		"bco_peak_frac": {"ramp", func(i, n int) float64 { return 0.1 * float64(i) }},
		"hit_asymmetry": {"flat", func(int, int) float64 { return 0 }},
	}
	names := []string{"adc_mpv", "cluster_size", "bco_peak_frac", "hit_asymmetry"}

	for _, name := range names {
		s := shapes[name]
		path := filepath.Join(*dir, fmt.Sprintf("metrics_%s_perrun.csv", name))
		rows := [][]string{{"run", "value", "stat_err", "entries"}}
		for i := 0; i < n; i++ {
			value := 10 + s.apply(i, n) + 0.2*noise.Rand()
			rows = append(rows, []string{
				strconv.Itoa(*first + i),
				strconv.FormatFloat(value, 'f', 6, 64),
				"0.2",
				"1000",
			})
		}
		if err := writeCSV(path, rows); err != nil {
			log.Fatalf("Failed to write %s: %v", path, err)
		}
		log.Printf("Wrote %s (%s)", path, s.name)
	}

	conf := filepath.Join(*dir, "metrics.conf")
	f, err := os.Create(conf)
	if err != nil {
		log.Fatalf("Failed to create metrics.conf: %v", err)
	}
	for _, name := range names {
		fmt.Fprintf(f, "%s, h_%s, wmean\n", name, name)
	}
	if err := f.Close(); err != nil {
		log.Fatalf("Failed to write metrics.conf: %v", err)
	}

	thresholds := [][]string{
		{"metric", "lo", "hi"},
		{"adc_mpv", "5", "15"},
		{"hit_asymmetry", "", "12"},
	}
	if err := writeCSV(filepath.Join(*dir, "thresholds.csv"), thresholds); err != nil {
		log.Fatalf("Failed to write thresholds: %v", err)
	}

	health := [][]string{{"run", "dead_count", "hot_count", "total_ladders"}}
	for i := 0; i < n; i++ {
		dead := 0
		if i == n/3 {
			dead = 3
		}
		health = append(health, []string{strconv.Itoa(*first + i), strconv.Itoa(dead), "0", "56"})
	}
	if err := writeCSV(filepath.Join(*dir, "run_context.csv"), health); err != nil {
		log.Fatalf("Failed to write run context: %v", err)
	}

	log.Printf("Generated %d runs for %d metrics in %s", n, len(names), *dir)
}

func spike(i, at int, height float64) float64 {
	if i == at {
		return height
	}
	return 0
}

func step(i, at int, height float64) float64 {
	if i >= at {
		return height
	}
	return 0
}

func writeCSV(path string, rows [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.WriteAll(rows); err != nil {
		return err
	}
	return file.Close()
}
