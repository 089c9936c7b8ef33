package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/ynab-sync/ynab-sync/internal/config"
	"github.com/ynab-sync/ynab-sync/internal/gocardless"
	"github.com/ynab-sync/ynab-sync/internal/model"
	synceng "github.com/ynab-sync/ynab-sync/internal/sync"
	"github.com/ynab-sync/ynab-sync/internal/synclog"
	"github.com/ynab-sync/ynab-sync/internal/ynab"
)

// bankDataClient is what the sync flow needs from the bank side.
type bankDataClient interface {
	PollAuthorization(ctx context.Context, requisitionID string) (gocardless.RequisitionState, error)
	Transactions(ctx context.Context, accountID string) ([]model.BankTransaction, error)
}

func newSyncCommand(logger *log.Logger) *cobra.Command {
	var showLog bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Fetch bank transactions and push new ones to YNAB",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := loadForCommand()
			if err != nil {
				return err
			}

			if showLog {
				return runShowLog(filepath.Dir(path), cmd.OutOrStdout())
			}

			if err := cfg.ValidateYNAB(); err != nil {
				return err
			}
			if err := cfg.ValidateGoCardless(); err != nil {
				return err
			}

			bank := gocardless.NewClient(cfg.GoCardless.SecretID, cfg.GoCardless.SecretKey)
			budget := ynab.NewClient(cfg.YNAB.APIKey)
			return runSync(cmd.Context(), cfg, path, bank, budget, logger, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&showLog, "show-log", false, "print past run history instead of syncing")

	return cmd
}

func runSync(ctx context.Context, cfg *config.Config, path string, bank bankDataClient, budget synceng.BudgetClient, logger *log.Logger, out io.Writer) error {
	if cfg.GoCardless.RequisitionID == "" {
		return fmt.Errorf("no bank connection yet, run 'ynab-sync connect' first")
	}
	if len(cfg.AccountMappings) == 0 {
		return fmt.Errorf("no account mappings yet, run 'ynab-sync map-accounts' first")
	}

	state, err := bank.PollAuthorization(ctx, cfg.GoCardless.RequisitionID)
	if err != nil {
		return fmt.Errorf("checking connection status: %w", err)
	}
	switch state.Status {
	case gocardless.StatusExpired:
		return fmt.Errorf("%w, run 'ynab-sync connect'", gocardless.ErrConnectionExpired)
	case gocardless.StatusPending:
		return fmt.Errorf("%w, approve the bank link then retry", gocardless.ErrAuthorizationPending)
	}

	plan := synceng.Plan{
		BudgetID:       cfg.YNAB.BudgetID,
		Mappings:       orderedMappings(cfg.AccountMappings),
		LinkedAccounts: state.Accounts,
	}

	engine := synceng.NewEngine(bank, budget, logger)
	results, runErr := engine.Run(ctx, plan)

	printResults(out, results)

	if entries := logEntries(results); len(entries) > 0 {
		if err := synclog.Append(filepath.Dir(path), entries); err != nil {
			logger.Warn("could not write sync log", "err", err)
		}
	}

	if runErr != nil {
		return runErr
	}
	if synceng.AnyHardFailed(results) {
		return errors.New("sync completed with failures, see account summary above")
	}

	cfg.LastSync = time.Now().UTC().Format("2006-01-02")
	if err := config.Save(path, cfg); err != nil {
		logger.Warn("could not record last sync time", "err", err)
	}
	return nil
}

// orderedMappings sorts by bank account ID so runs process accounts in
// a stable order.
func orderedMappings(m map[string]string) []synceng.Mapping {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	mappings := make([]synceng.Mapping, 0, len(ids))
	for _, id := range ids {
		mappings = append(mappings, synceng.Mapping{BankAccountID: id, BudgetAccountID: m[id]})
	}
	return mappings
}

func printResults(out io.Writer, results []synceng.AccountResult) {
	for _, r := range results {
		switch {
		case errors.Is(r.Err, synceng.ErrMappingMissing):
			fmt.Fprintf(out, "%s: skipped (no budget account mapped)\n", r.BankAccountID)
		case errors.Is(r.Err, synceng.ErrNotLinked):
			fmt.Fprintf(out, "%s: skipped (not linked on current connection)\n", r.BankAccountID)
		case r.Err != nil:
			fmt.Fprintf(out, "%s: fetched=%d skipped=%d created=%d failed=%d (error: %v)\n",
				r.BankAccountID, r.Fetched, r.Skipped, r.Created, r.Failed, r.Err)
		default:
			fmt.Fprintf(out, "%s: fetched=%d skipped=%d created=%d failed=%d\n",
				r.BankAccountID, r.Fetched, r.Skipped, r.Created, r.Failed)
		}
	}

	s := synceng.Summarize(results)
	fmt.Fprintf(out, "total: fetched=%d skipped=%d created=%d failed=%d\n",
		s.Fetched, s.Skipped, s.Created, s.Failed)
}

// logEntries converts synced-account results to audit log rows. Skipped
// accounts are not recorded; failed fetches are, with zero counts.
func logEntries(results []synceng.AccountResult) []synclog.Entry {
	now := time.Now().UTC()
	var entries []synclog.Entry
	for _, r := range results {
		if errors.Is(r.Err, synceng.ErrMappingMissing) || errors.Is(r.Err, synceng.ErrNotLinked) {
			continue
		}
		entries = append(entries, synclog.Entry{
			Timestamp:     now,
			BankAccount:   r.BankAccountID,
			BudgetAccount: r.BudgetAccountID,
			Fetched:       r.Fetched,
			Skipped:       r.Skipped,
			Created:       r.Created,
			Failed:        r.Failed,
		})
	}
	return entries
}

func runShowLog(configDir string, out io.Writer) error {
	entries, err := synclog.Read(configDir)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "No sync runs recorded yet.")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(out, "%s  %s -> %s  fetched=%d skipped=%d created=%d failed=%d\n",
			e.Timestamp.Format(time.RFC3339), e.BankAccount, e.BudgetAccount,
			e.Fetched, e.Skipped, e.Created, e.Failed)
	}
	return nil
}
