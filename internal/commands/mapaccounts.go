package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ynab-sync/ynab-sync/internal/config"
	"github.com/ynab-sync/ynab-sync/internal/gocardless"
)

func newMapAccountsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "map-accounts",
		Short: "Map linked bank accounts to YNAB accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := loadForCommand()
			if err != nil {
				return err
			}
			if err := cfg.ValidateGoCardless(); err != nil {
				return err
			}
			client := gocardless.NewClient(cfg.GoCardless.SecretID, cfg.GoCardless.SecretKey)
			return runMapAccounts(cmd.Context(), cfg, path, client, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func runMapAccounts(ctx context.Context, cfg *config.Config, path string, client authClient, in io.Reader, out io.Writer) error {
	if cfg.GoCardless.RequisitionID == "" {
		return fmt.Errorf("no bank connection yet, run 'ynab-sync connect' first")
	}

	state, err := client.PollAuthorization(ctx, cfg.GoCardless.RequisitionID)
	if err != nil {
		return fmt.Errorf("checking connection status: %w", err)
	}
	switch state.Status {
	case gocardless.StatusExpired:
		return fmt.Errorf("%w, run 'ynab-sync connect'", gocardless.ErrConnectionExpired)
	case gocardless.StatusPending:
		return fmt.Errorf("%w, approve the bank link first", gocardless.ErrAuthorizationPending)
	}
	if len(state.Accounts) == 0 {
		return fmt.Errorf("connection has no linked bank accounts")
	}

	p := newPrompter(in, out)
	fmt.Fprintln(out, "=== Account mapping ===")

	for _, bankAccountID := range state.Accounts {
		label := bankAccountID
		if det, err := client.AccountDetails(ctx, bankAccountID); err == nil {
			label = fmt.Sprintf("%s (%s)", det.Name, det.IBAN)
		} else {
			fmt.Fprintf(out, "warning: could not fetch details for %s: %v\n", bankAccountID, err)
		}

		fmt.Fprintf(out, "\nBank account: %s\n", label)
		answer, err := p.ask("YNAB account ID (empty to leave unmapped)", cfg.AccountMappings[bankAccountID])
		if err != nil {
			return err
		}
		if answer != "" {
			cfg.AccountMappings[bankAccountID] = answer
		}
	}

	if err := config.Save(path, cfg); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nSaved %d account mapping(s).\n", len(cfg.AccountMappings))
	return nil
}
