// Package config is the credential store: a single YAML file in the
// user's home directory holding API credentials, the bank connection
// identifier, and the account mapping table.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrMissing indicates no configuration file exists yet. Callers should
// tell the user to run `ynab-sync configure`.
var ErrMissing = errors.New("configuration not found")

// Environment variables that override secrets from the file.
const (
	EnvConfigPath  = "YNAB_SYNC_CONFIG"
	EnvYNABAPIKey  = "YNAB_SYNC_YNAB_API_KEY"
	EnvGCSecretID  = "YNAB_SYNC_GC_SECRET_ID"
	EnvGCSecretKey = "YNAB_SYNC_GC_SECRET_KEY"
)

// Config is the top-level config.yaml structure.
type Config struct {
	YNAB            YNABConfig        `yaml:"ynab"`
	GoCardless      GoCardlessConfig  `yaml:"gocardless"`
	AccountMappings map[string]string `yaml:"account_mappings,omitempty"` // bank account id -> budget account id
	LastSync        string            `yaml:"last_sync,omitempty"`        // YYYY-MM-DD of last successful run

	// File values of secrets overridden by ApplyEnv. Save writes these
	// back so env-sourced secrets never land on disk.
	fileAPIKey    *string
	fileSecretID  *string
	fileSecretKey *string
}

// YNABConfig holds budgeting-service credentials.
type YNABConfig struct {
	APIKey   string `yaml:"api_key"`
	BudgetID string `yaml:"budget_id"`
}

// GoCardlessConfig holds bank-data-service credentials and the
// persisted connection (requisition) identifier.
type GoCardlessConfig struct {
	SecretID      string `yaml:"secret_id"`
	SecretKey     string `yaml:"secret_key"`
	InstitutionID string `yaml:"institution_id"`
	RedirectURL   string `yaml:"redirect_url"`
	RequisitionID string `yaml:"requisition_id,omitempty"`
}

// DefaultPath returns the config file location: $YNAB_SYNC_CONFIG if
// set, else ~/.ynab-sync/config.yaml.
func DefaultPath() (string, error) {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".ynab-sync", "config.yaml"), nil
}

// Load reads the config file. A missing file is reported as ErrMissing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrMissing, path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.AccountMappings == nil {
		cfg.AccountMappings = make(map[string]string)
	}
	return &cfg, nil
}

// Save writes the config atomically: a temp file in the same directory
// chmodded to 0600, then renamed over the target. A failed save never
// leaves a partially written config behind.
func Save(path string, cfg *Config) error {
	// Marshal a copy with env-sourced secrets reverted to whatever the
	// file originally held, so persisting LastSync or mappings never
	// copies a secret out of the environment.
	out := *cfg
	if cfg.fileAPIKey != nil {
		out.YNAB.APIKey = *cfg.fileAPIKey
	}
	if cfg.fileSecretID != nil {
		out.GoCardless.SecretID = *cfg.fileSecretID
	}
	if cfg.fileSecretKey != nil {
		out.GoCardless.SecretKey = *cfg.fileSecretKey
	}

	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "config-*.yaml")
	if err != nil {
		return fmt.Errorf("creating temp config: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp config: %w", err)
	}
	// Secrets live in this file; keep it owner-only.
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("setting config permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp config: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replacing config: %w", err)
	}
	return nil
}

// ApplyEnv overrides secrets from the environment. A .env file in the
// working directory is loaded first when present, so secrets can be
// kept out of the config file entirely.
func (c *Config) ApplyEnv() {
	_ = godotenv.Load()

	if v := os.Getenv(EnvYNABAPIKey); v != "" {
		orig := c.YNAB.APIKey
		c.fileAPIKey = &orig
		c.YNAB.APIKey = v
	}
	if v := os.Getenv(EnvGCSecretID); v != "" {
		orig := c.GoCardless.SecretID
		c.fileSecretID = &orig
		c.GoCardless.SecretID = v
	}
	if v := os.Getenv(EnvGCSecretKey); v != "" {
		orig := c.GoCardless.SecretKey
		c.fileSecretKey = &orig
		c.GoCardless.SecretKey = v
	}
}

// ValidateYNAB checks that budgeting-service credentials are present.
func (c *Config) ValidateYNAB() error {
	if c.YNAB.APIKey == "" || c.YNAB.BudgetID == "" {
		return fmt.Errorf("%w: YNAB credentials missing, run 'ynab-sync configure'", ErrMissing)
	}
	return nil
}

// ValidateGoCardless checks that bank-data-service credentials are present.
func (c *Config) ValidateGoCardless() error {
	if c.GoCardless.SecretID == "" || c.GoCardless.SecretKey == "" {
		return fmt.Errorf("%w: GoCardless credentials missing, run 'ynab-sync configure'", ErrMissing)
	}
	return nil
}

// Default returns a Config with the fixed defaults for a fresh setup.
func Default() *Config {
	return &Config{
		GoCardless: GoCardlessConfig{
			RedirectURL: "https://localhost:8000",
		},
		AccountMappings: make(map[string]string),
	}
}
