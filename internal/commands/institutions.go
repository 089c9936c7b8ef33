package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ynab-sync/ynab-sync/internal/gocardless"
)

type institutionLister interface {
	Institutions(ctx context.Context, country string) ([]gocardless.Institution, error)
}

func newInstitutionsCommand() *cobra.Command {
	var country string
	var name string

	cmd := &cobra.Command{
		Use:   "institutions",
		Short: "List banks available at the data provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadForCommand()
			if err != nil {
				return err
			}
			if err := cfg.ValidateGoCardless(); err != nil {
				return err
			}
			client := gocardless.NewClient(cfg.GoCardless.SecretID, cfg.GoCardless.SecretKey)
			return runInstitutions(cmd.Context(), client, country, name, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&country, "country", "gb", "two-letter country code")
	cmd.Flags().StringVar(&name, "name", "", "filter by name (case-insensitive substring)")

	return cmd
}

func runInstitutions(ctx context.Context, client institutionLister, country, name string, out io.Writer) error {
	insts, err := client.Institutions(ctx, country)
	if err != nil {
		return fmt.Errorf("listing institutions: %w", err)
	}

	if name != "" {
		filtered := insts[:0]
		for _, inst := range insts {
			if strings.Contains(strings.ToLower(inst.Name), strings.ToLower(name)) {
				filtered = append(filtered, inst)
			}
		}
		insts = filtered
	}

	if len(insts) == 0 {
		fmt.Fprintf(out, "No institutions found for %s", strings.ToUpper(country))
		if name != "" {
			fmt.Fprintf(out, " matching %q", name)
		}
		fmt.Fprintln(out)
		return nil
	}

	for _, inst := range insts {
		fmt.Fprintf(out, "%-40s  %-16s  %s days  (%s)\n", inst.ID, inst.BIC, inst.TransactionTotalDays, inst.Name)
	}
	return nil
}
