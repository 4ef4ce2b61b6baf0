package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/store"
)

var campaignsCmd = &cobra.Command{
	Use:   "campaigns",
	Short: "Inspect past discovery campaigns",
}

var campaignsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent campaigns",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("campaigns"); err != nil {
			return err
		}
		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		businessType, _ := cmd.Flags().GetString("type")
		location, _ := cmd.Flags().GetString("location")
		limit, _ := cmd.Flags().GetInt("limit")

		list, err := st.ListCampaigns(ctx, store.CampaignFilter{
			Status:       model.CampaignStatus(status),
			BusinessType: businessType,
			Location:     location,
			Limit:        limit,
		})
		if err != nil {
			return eris.Wrap(err, "campaigns list")
		}

		if len(list) == 0 {
			fmt.Println("No campaigns found.")
			return nil
		}
		formatCampaignList(os.Stdout, list)
		return nil
	},
}

var campaignsShowCmd = &cobra.Command{
	Use:   "show <campaign-id>",
	Short: "Show a campaign and its leads",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("campaigns"); err != nil {
			return err
		}
		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		summary, err := st.GetCampaign(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "campaigns show")
		}
		leads, err := st.ListLeads(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "campaigns show: leads")
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(campaignDetail{CampaignSummary: *summary, Leads: leads})
		}
		formatCampaign(os.Stdout, summary)
		if len(leads) > 0 {
			fmt.Println()
			formatLeads(os.Stdout, leads)
		}
		return nil
	},
}

func init() {
	campaignsListCmd.Flags().String("status", "", "filter by terminal status (target_met, budget_exhausted, query_exhausted, error_abort, cancelled)")
	campaignsListCmd.Flags().String("type", "", "filter by business type")
	campaignsListCmd.Flags().String("location", "", "filter by location")
	campaignsListCmd.Flags().Int("limit", 50, "max number of campaigns to display")

	campaignsShowCmd.Flags().Bool("json", false, "print the campaign and its leads as JSON")

	campaignsCmd.AddCommand(campaignsListCmd)
	campaignsCmd.AddCommand(campaignsShowCmd)
	rootCmd.AddCommand(campaignsCmd)
}

// formatCampaignList writes a tabular list of campaigns to out.
func formatCampaignList(out io.Writer, list []model.CampaignSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTYPE\tLOCATION\tSTATUS\tLEADS\tCOST\tSTARTED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t----\t--------\t------\t-----\t----\t-------\t--------")

	for _, c := range list {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t$%.2f\t%s\t%s\n",
			truncateID(c.ID),
			truncate(c.BusinessType, 24),
			truncate(c.Location, 24),
			c.Status,
			c.LeadCount,
			c.TotalCostUSD,
			c.StartedAt.Format("2006-01-02 15:04"),
			c.FinishedAt.Sub(c.StartedAt).Round(time.Second).String(),
		)
	}
	_ = w.Flush()
}

// formatCampaign writes one campaign header to out.
func formatCampaign(out io.Writer, c *model.CampaignSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Campaign:\t%s\n", c.ID)
	_, _ = fmt.Fprintf(w, "Search:\t%s in %s\n", c.BusinessType, c.Location)
	_, _ = fmt.Fprintf(w, "Status:\t%s\n", c.Status)
	_, _ = fmt.Fprintf(w, "Leads:\t%d of %d\n", c.LeadCount, c.Request.TargetCount)
	_, _ = fmt.Fprintf(w, "Cost:\t$%.2f of $%.2f\n", c.TotalCostUSD, c.Request.BudgetLimitUSD)
	_, _ = fmt.Fprintf(w, "Provider calls:\t%d (%d cached, %d over budget, %d unavailable)\n",
		c.Counts.ProviderCalls, c.Counts.CacheHits, c.Counts.BudgetSkips, c.Counts.UnavailableSkips)
	_, _ = fmt.Fprintf(w, "Started:\t%s\n", c.StartedAt.Format("2006-01-02 15:04:05"))
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
