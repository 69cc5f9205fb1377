package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with a private ledger and export directory.
func execute(t *testing.T, ledgerPath string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("NUMCHECK_CONFIG", "")
	t.Setenv("NUMCHECK_LEDGER_DRIVER", "file")
	t.Setenv("NUMCHECK_LEDGER_PATH", ledgerPath)
	t.Setenv("NUMCHECK_STUB_LATENCY", "0s")
	t.Setenv("NUMCHECK_MIN_INTERVAL", "0s")
	t.Setenv("NUMCHECK_EXPORT_DIR", filepath.Join(filepath.Dir(ledgerPath), "exports"))
	t.Setenv("KAFKA_BROKERS", "")

	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestNormalizeCommand(t *testing.T) {
	out, err := execute(t, filepath.Join(t.TempDir(), "data.json"), "normalize", "0801-234-5678", "+234 802 345 6789", "abc")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "0801-234-5678\t+2348012345678", lines[0])
	assert.Equal(t, "+234 802 345 6789\t+2348023456789", lines[1])
	assert.Equal(t, "abc\tinvalid", lines[2])
}

func TestCheckCommand(t *testing.T) {
	ledgerPath := filepath.Join(t.TempDir(), "data.json")

	out, err := execute(t, ledgerPath, "check", "--quiet", "--retry-hours", "24", "--export", "csv",
		"+2348012345678", "08023456789")
	require.NoError(t, err)
	assert.Contains(t, out, "+2348012345678")
	assert.Contains(t, out, "2 checked, 1 on service, 1 not on service")
	assert.Contains(t, out, "exported 2 rows")

	entries, err := os.ReadDir(filepath.Join(filepath.Dir(ledgerPath), "exports"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "numbers_all_"))

	t.Run("stats reflect the run", func(t *testing.T) {
		out, err := execute(t, ledgerPath, "stats", "--session", "cli")
		require.NoError(t, err)
		var got statsOutput
		require.NoError(t, json.Unmarshal([]byte(out), &got))
		assert.Equal(t, 2, got.Ledger.Total)
		require.NotNil(t, got.Session)
		assert.Equal(t, 2, got.Session.TotalChecked)
	})

	t.Run("empty filtered export is rejected", func(t *testing.T) {
		_, err := execute(t, ledgerPath, "check", "--quiet", "--filter", "off", "--export", "csv", "08012345678")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "nothing to export")
	})
}

func TestCheckRequiresNumbers(t *testing.T) {
	_, err := execute(t, filepath.Join(t.TempDir(), "data.json"), "check")
	require.Error(t, err)
}
