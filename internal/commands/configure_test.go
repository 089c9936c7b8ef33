package commands

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ynab-sync/ynab-sync/internal/config"
)

func TestRunConfigure_FirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	in := strings.NewReader("ynab-key\nbudget-1\nsid\nskey\nCHASE_CHASGB2L\n")
	var out bytes.Buffer

	require.NoError(t, runConfigure(path, in, &out))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ynab-key", cfg.YNAB.APIKey)
	assert.Equal(t, "budget-1", cfg.YNAB.BudgetID)
	assert.Equal(t, "sid", cfg.GoCardless.SecretID)
	assert.Equal(t, "skey", cfg.GoCardless.SecretKey)
	assert.Equal(t, "CHASE_CHASGB2L", cfg.GoCardless.InstitutionID)
	assert.Equal(t, "https://localhost:8000", cfg.GoCardless.RedirectURL)

	assert.Contains(t, out.String(), "Configuration saved")
	assert.Contains(t, out.String(), "ynab-sync connect")
}

func TestRunConfigure_KeepsExistingOnEmptyAnswer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	existing := config.Default()
	existing.YNAB = config.YNABConfig{APIKey: "old-key", BudgetID: "old-budget"}
	existing.GoCardless.SecretID = "old-sid"
	existing.GoCardless.SecretKey = "old-skey"
	existing.GoCardless.InstitutionID = "OLD_INST"
	existing.GoCardless.RequisitionID = "req-keep"
	require.NoError(t, config.Save(path, existing))

	// Empty answers everywhere except the budget id.
	in := strings.NewReader("\nnew-budget\n\n\n\n")
	var out bytes.Buffer
	require.NoError(t, runConfigure(path, in, &out))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "old-key", cfg.YNAB.APIKey)
	assert.Equal(t, "new-budget", cfg.YNAB.BudgetID)
	assert.Equal(t, "old-sid", cfg.GoCardless.SecretID)
	assert.Equal(t, "OLD_INST", cfg.GoCardless.InstitutionID)
	// Connection identifier survives reconfiguration.
	assert.Equal(t, "req-keep", cfg.GoCardless.RequisitionID)
}

func TestLoadForCommand_Missing(t *testing.T) {
	t.Setenv(config.EnvConfigPath, filepath.Join(t.TempDir(), "config.yaml"))

	_, _, err := loadForCommand()
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrMissing)
	assert.Contains(t, err.Error(), "ynab-sync configure")
}
