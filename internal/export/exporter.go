// Package export renders check results as downloadable tabular files.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"

	"numcheck/internal/platform/logger"
	"numcheck/internal/platform/metrics"
	"numcheck/pkg/domain"
	dErrors "numcheck/pkg/domain-errors"
	"numcheck/pkg/requestcontext"
)

// Format is an export file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// TimeLayout is used for check_time and next_retry cells.
const TimeLayout = "2006-01-02 15:04:05"

const (
	DefaultFilenamePrefix = "numbers"
	sheetName             = "Results"
)

// Columns is the fixed column order of every export.
var Columns = []string{"phone", "status", "check_time", "next_retry"}

// ErrNothingToExport rejects exports of an empty result set.
var ErrNothingToExport = dErrors.New(dErrors.CodeNothingToExport, "nothing to export")

// ParseFormat accepts "csv" and "xlsx"; empty means CSV.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	default:
		return "", dErrors.New(dErrors.CodeValidation, "unsupported export format: "+s)
	}
}

func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// Artifact is a finished export handed to the caller.
type Artifact struct {
	Filename    string
	ContentType string
	Rows        int
	Data        []byte
}

type Exporter struct {
	tempDir string
	prefix  string
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Exporter)

// WithTempDir sets where temporary files are written; empty means os.TempDir.
func WithTempDir(dir string) Option {
	return func(e *Exporter) { e.tempDir = dir }
}

func WithFilenamePrefix(prefix string) Option {
	return func(e *Exporter) {
		if prefix != "" {
			e.prefix = prefix
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Exporter) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Exporter) { e.metrics = m }
}

func New(opts ...Option) *Exporter {
	e := &Exporter{prefix: DefaultFilenamePrefix, logger: logger.Discard()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Export writes results to a temporary file, reads it back once the write
// has fully succeeded and removes the file. Empty results are rejected with
// ErrNothingToExport.
func (e *Exporter) Export(ctx context.Context, results []domain.CheckResult, label string, format Format) (*Artifact, error) {
	if len(results) == 0 {
		return nil, ErrNothingToExport
	}
	format, err := ParseFormat(string(format))
	if err != nil {
		return nil, err
	}
	if label == "" {
		label = "all"
	}

	tmp, err := os.CreateTemp(e.tempDir, e.prefix+"-*."+string(format))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "create export file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	switch format {
	case FormatXLSX:
		err = writeXLSX(tmp, results)
	default:
		err = writeCSV(tmp, results)
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "write export")
	}

	data, err := os.ReadFile(tmpName)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "read export")
	}

	now := requestcontext.Now(ctx)
	art := &Artifact{
		Filename:    fmt.Sprintf("%s_%s_%s.%s", e.prefix, label, now.Format("20060102_150405"), format),
		ContentType: format.ContentType(),
		Rows:        len(results),
		Data:        data,
	}
	e.metrics.RecordExport(string(format))
	e.logger.InfoContext(ctx, "export written", "filename", art.Filename, "rows", art.Rows, "bytes", len(data))
	return art, nil
}

func row(r domain.CheckResult) []string {
	next := ""
	if r.NextRetry != nil {
		next = r.NextRetry.Format(TimeLayout)
	}
	return []string{r.Phone.String(), r.Status.String(), r.CheckTime.Format(TimeLayout), next}
}

func writeCSV(w io.Writer, results []domain.CheckResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, r := range results {
		if err := cw.Write(row(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeXLSX(w io.Writer, results []domain.CheckResult) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("xlsx sheet: %w", err)
	}
	write := func(rowIdx int, values []string) error {
		for i, v := range values {
			cell, err := excelize.CoordinatesToCellName(i+1, rowIdx)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				return err
			}
		}
		return nil
	}
	if err := write(1, Columns); err != nil {
		return fmt.Errorf("xlsx header: %w", err)
	}
	for i, r := range results {
		if err := write(i+2, row(r)); err != nil {
			return fmt.Errorf("xlsx row %d: %w", i+2, err)
		}
	}
	_ = f.SetColWidth(sheetName, "A", "A", 18)
	_ = f.SetColWidth(sheetName, "B", "B", 16)
	_ = f.SetColWidth(sheetName, "C", "D", 20)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}

