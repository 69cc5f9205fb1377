package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"numcheck/internal/filter"
	"numcheck/internal/platform/metrics"
	"numcheck/pkg/domain"
	dErrors "numcheck/pkg/domain-errors"
	"numcheck/pkg/requestcontext"
)

var checkedAt = time.Date(2024, 5, 1, 9, 30, 15, 0, time.UTC)

func sample() []domain.CheckResult {
	next := checkedAt.Add(24 * time.Hour)
	return []domain.CheckResult{
		{Phone: "+2348012345678", Status: domain.StatusOnService, CheckTime: checkedAt},
		{Phone: "+2348023456789", Status: domain.StatusNotOnService, CheckTime: checkedAt, NextRetry: &next},
	}
}

func TestExport_CSV(t *testing.T) {
	dir := t.TempDir()
	e := New(WithTempDir(dir))
	ctx := requestcontext.WithTime(context.Background(), checkedAt)

	art, err := e.Export(ctx, sample(), "off", FormatCSV)
	require.NoError(t, err)

	assert.Equal(t, "numbers_off_20240501_093015.csv", art.Filename)
	assert.Equal(t, "text/csv; charset=utf-8", art.ContentType)
	assert.Equal(t, 2, art.Rows)

	records, err := csv.NewReader(bytes.NewReader(art.Data)).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"phone", "status", "check_time", "next_retry"},
		{"+2348012345678", "on_service", "2024-05-01 09:30:15", ""},
		{"+2348023456789", "not_on_service", "2024-05-01 09:30:15", "2024-05-02 09:30:15"},
	}, records)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temporary file is removed after hand-off")
}

func TestExport_XLSX(t *testing.T) {
	e := New(WithTempDir(t.TempDir()), WithFilenamePrefix("whatsapp_numbers"))
	ctx := requestcontext.WithTime(context.Background(), checkedAt)

	art, err := e.Export(ctx, sample(), "", FormatXLSX)
	require.NoError(t, err)
	assert.Equal(t, "whatsapp_numbers_all_20240501_093015.xlsx", art.Filename)

	f, err := excelize.OpenReader(bytes.NewReader(art.Data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Results")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Columns, rows[0])
	assert.Equal(t, "+2348023456789", rows[2][0])
	assert.Equal(t, "2024-05-02 09:30:15", rows[2][3])
}

// An empty filtered set is refused instead of producing a header-only file.
func TestExport_EmptyFilteredSetIsRejected(t *testing.T) {
	dir := t.TempDir()
	e := New(WithTempDir(dir))

	onlyOn := []domain.CheckResult{sample()[0]}
	filtered := filter.Apply(onlyOn, filter.Off, checkedAt)

	art, err := e.Export(context.Background(), filtered, filter.Off.Label(), FormatCSV)
	assert.Nil(t, art)
	require.ErrorIs(t, err, ErrNothingToExport)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNothingToExport))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestExport_UnknownFormat(t *testing.T) {
	_, err := New().Export(context.Background(), sample(), "all", Format("pdf"))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	f, err = ParseFormat("XLSX")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)

	_, err = ParseFormat("ods")
	assert.Error(t, err)
}

func TestExport_Metrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	e := New(WithTempDir(t.TempDir()), WithMetrics(m))

	_, err := e.Export(context.Background(), sample(), "all", FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, float64(1), promtestutil.ToFloat64(m.ExportsTotal.WithLabelValues("csv")))
}
