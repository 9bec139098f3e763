package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/tunogya/runqa/pkg/data"
	"github.com/tunogya/runqa/pkg/model"
	"github.com/tunogya/runqa/pkg/pipeline"
)

// Writer writes every report of a pass into one directory
type Writer struct {
	dir  string
	html bool
}

// NewWriter creates the output directory if needed
func NewWriter(dir string, html bool) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	return &Writer{dir: dir, html: html}, nil
}

// WriteAll writes the per-metric files, the summaries and the verdict report.
// segments and contexts may be nil. It returns the paths written.
func (w *Writer) WriteAll(res *pipeline.Result, segments map[string][]data.SegmentCV, contexts map[int]model.RunContext) ([]string, error) {
	var written []string
	write := func(name string, fn func(io.Writer) error) error {
		path := filepath.Join(w.dir, name)
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", name, err)
		}
		if err := fn(f); err != nil {
			f.Close()
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("failed to close %s: %w", name, err)
		}
		written = append(written, path)
		return nil
	}

	for _, m := range res.Metrics {
		if err := write(MetricFileName(m.Metric), func(out io.Writer) error {
			return WriteMetricCSV(out, m)
		}); err != nil {
			return written, err
		}
	}

	if err := write(FileConsistencySummary, func(out io.Writer) error {
		return WriteConsistencySummary(out, res.Metrics)
	}); err != nil {
		return written, err
	}
	if err := write(FileVerdicts, func(out io.Writer) error {
		return WriteVerdicts(out, res.Verdicts())
	}); err != nil {
		return written, err
	}
	if err := write(FileRunVerdicts, func(out io.Writer) error {
		return WriteRunVerdicts(out, res.Runs)
	}); err != nil {
		return written, err
	}
	if len(segments) > 0 {
		if err := write(FileSegmentConsistency, func(out io.Writer) error {
			return WriteSegmentConsistency(out, segments)
		}); err != nil {
			return written, err
		}
	}

	md := Markdown(res, contexts)
	if err := write(FileVerdictMarkdown, func(out io.Writer) error {
		_, err := out.Write(md)
		return err
	}); err != nil {
		return written, err
	}

	if w.html {
		page, err := HTML(md)
		if err != nil {
			return written, err
		}
		if err := write(FileVerdictHTML, func(out io.Writer) error {
			_, err := out.Write(page)
			return err
		}); err != nil {
			return written, err
		}
	}

	return written, nil
}
