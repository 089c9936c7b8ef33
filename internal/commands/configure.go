package commands

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ynab-sync/ynab-sync/internal/config"
)

func newConfigureCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "configure",
		Short: "Set up YNAB and GoCardless credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := config.DefaultPath()
			if err != nil {
				return err
			}
			return runConfigure(path, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func runConfigure(path string, in io.Reader, out io.Writer) error {
	cfg, err := config.Load(path)
	if errors.Is(err, config.ErrMissing) {
		cfg = config.Default()
	} else if err != nil {
		return err
	}

	p := newPrompter(in, out)

	fmt.Fprintln(out, "=== YNAB ===")
	if cfg.YNAB.APIKey, err = p.ask("YNAB API key", cfg.YNAB.APIKey); err != nil {
		return err
	}
	if cfg.YNAB.BudgetID, err = p.ask("YNAB budget ID", cfg.YNAB.BudgetID); err != nil {
		return err
	}

	fmt.Fprintln(out, "=== GoCardless ===")
	if cfg.GoCardless.SecretID, err = p.ask("GoCardless secret ID", cfg.GoCardless.SecretID); err != nil {
		return err
	}
	if cfg.GoCardless.SecretKey, err = p.ask("GoCardless secret key", cfg.GoCardless.SecretKey); err != nil {
		return err
	}
	if cfg.GoCardless.InstitutionID, err = p.ask("Institution ID (see 'ynab-sync institutions')", cfg.GoCardless.InstitutionID); err != nil {
		return err
	}

	if err := config.Save(path, cfg); err != nil {
		return err
	}

	fmt.Fprintf(out, "\nConfiguration saved to %s\n", path)
	fmt.Fprintln(out, "Next steps:")
	fmt.Fprintln(out, "  1. ynab-sync connect       (authorize access to your bank)")
	fmt.Fprintln(out, "  2. ynab-sync map-accounts  (map bank accounts to YNAB accounts)")
	fmt.Fprintln(out, "  3. ynab-sync sync")
	return nil
}

// loadForCommand loads config with env overrides applied, which every
// command except configure needs.
func loadForCommand() (*config.Config, string, error) {
	path, err := config.DefaultPath()
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(path)
	if errors.Is(err, config.ErrMissing) {
		return nil, "", fmt.Errorf("%w, run 'ynab-sync configure' first", err)
	}
	if err != nil {
		return nil, "", err
	}
	cfg.ApplyEnv()
	return cfg, path, nil
}
