package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ynab-sync/ynab-sync/internal/config"
	"github.com/ynab-sync/ynab-sync/internal/gocardless"
)

// authClient is the slice of the bank data API the connection and
// mapping flows need.
type authClient interface {
	CreateAgreement(ctx context.Context, institutionID string, historyDays int) (string, error)
	BeginAuthorization(ctx context.Context, institutionID, redirectURL, agreementID string) (gocardless.Authorization, error)
	PollAuthorization(ctx context.Context, requisitionID string) (gocardless.RequisitionState, error)
	AccountDetails(ctx context.Context, accountID string) (gocardless.AccountDetails, error)
}

func newConnectCommand() *cobra.Command {
	var historyDays int

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Authorize access to your bank (add a connection)",
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
			return runConnect(cmd.Context(), cfg, path, client, historyDays, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVar(&historyDays, "history-days", 0, "transaction history window to request (provider default if 0)")

	return cmd
}

func runConnect(ctx context.Context, cfg *config.Config, path string, client authClient, historyDays int, in io.Reader, out io.Writer) error {
	if cfg.GoCardless.InstitutionID == "" {
		return fmt.Errorf("no institution configured, run 'ynab-sync configure'")
	}

	agreementID := ""
	if historyDays > 0 {
		id, err := client.CreateAgreement(ctx, cfg.GoCardless.InstitutionID, historyDays)
		if err != nil {
			return fmt.Errorf("creating end-user agreement: %w", err)
		}
		agreementID = id
	}

	auth, err := client.BeginAuthorization(ctx, cfg.GoCardless.InstitutionID, cfg.GoCardless.RedirectURL, agreementID)
	if err != nil {
		return fmt.Errorf("creating bank connection: %w", err)
	}

	// Persist immediately so an interrupted flow can be resumed by
	// re-running sync or map-accounts later.
	cfg.GoCardless.RequisitionID = auth.ID
	if err := config.Save(path, cfg); err != nil {
		return err
	}

	fmt.Fprintf(out, "Open this link to approve access to your bank:\n\n  %s\n\n", auth.Link)
	fmt.Fprintln(out, "The approval can happen on any device; this terminal only needs the result.")

	p := newPrompter(in, out)
	if err := p.pause("Press Enter once you have approved access... "); err != nil {
		return err
	}

	state, err := client.PollAuthorization(ctx, auth.ID)
	if err != nil {
		return fmt.Errorf("checking connection status: %w", err)
	}

	switch state.Status {
	case gocardless.StatusAuthorized:
		fmt.Fprintf(out, "Connected: %d bank account(s) linked.\n", len(state.Accounts))
		fmt.Fprintln(out, "Run 'ynab-sync map-accounts' to map them to YNAB accounts.")
		return nil
	case gocardless.StatusExpired:
		return fmt.Errorf("%w, run 'ynab-sync connect' again", gocardless.ErrConnectionExpired)
	default:
		return fmt.Errorf("%w: approve the link above, then run 'ynab-sync map-accounts'", gocardless.ErrAuthorizationPending)
	}
}
