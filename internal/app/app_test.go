package app

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"numcheck/internal/platform/config"
	"numcheck/internal/platform/logger"
	httptransport "numcheck/internal/transport/http"
	"numcheck/pkg/domain"
	dErrors "numcheck/pkg/domain-errors"
	"numcheck/pkg/testutil"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Verification.StubLatency = 0
	cfg.Verification.MinInterval = 0
	cfg.Ledger.Path = filepath.Join(t.TempDir(), "data.json")
	cfg.Export.TempDir = t.TempDir()
	return cfg
}

func TestBuildFileLedger(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	a, err := Build(ctx, cfg, logger.Discard())
	require.NoError(t, err)

	key := domain.SessionKey("cli:test")
	_, err = a.Sessions.Start(ctx, key, "08012345678, 08012345679")
	require.NoError(t, err)
	res, err := a.Sessions.SubmitRetry(ctx, key, "6", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Summary.Total)

	require.NoError(t, a.Close(ctx))
	require.NoError(t, a.Close(ctx))

	raw, err := os.ReadFile(cfg.Ledger.Path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "+2348012345679")

	t.Run("reload sees the persisted ledger", func(t *testing.T) {
		b, err := Build(ctx, cfg, logger.Discard())
		require.NoError(t, err)
		defer b.Close(ctx)
		assert.Equal(t, 2, b.Store.Len())
		us, ok := b.Store.UserStats(ctx, key)
		require.True(t, ok)
		assert.Equal(t, 2, us.TotalChecked)
	})
}

func TestBuildCorruptLedgerFails(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.Ledger.Path, []byte("{not json"), 0o600))

	_, err := Build(context.Background(), cfg, logger.Discard())
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodePersistence))
}

func TestBuildSQLiteLedger(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Ledger.Driver = config.LedgerDriverSQLite
	cfg.Ledger.DSN = filepath.Join(t.TempDir(), "db", "ledger.db")

	a, err := Build(ctx, cfg, logger.Discard())
	require.NoError(t, err)
	defer a.Close(ctx)

	rr := testutil.DoRequest(httptransport.NewRouter(a.Handler), testutil.NewRequest(t, http.MethodGet, "/health"))
	testutil.AssertStatus(t, rr, http.StatusOK)
	health := testutil.UnmarshalResponse[httptransport.HealthResponse](t, rr)
	assert.Equal(t, "ok", health.Checks["database"])
}

func TestBuildRejectsUnknownExportFormat(t *testing.T) {
	cfg := testConfig(t)
	cfg.Export.Format = "pdf"

	_, err := Build(context.Background(), cfg, logger.Discard())
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}
