package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/model"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Run one discovery campaign",
	Long:  "Searches for businesses of a type in a location and returns qualified leads until the target, the budget or the query list runs out. Ctrl-C stops the campaign and prints the partial result.",
	RunE: func(cmd *cobra.Command, args []string) error {
		in, err := discoverInput(cmd.Flags())
		if err != nil {
			return err
		}
		req, err := in.request(cfg.Campaign)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, cfg, "discover")
		if err != nil {
			return err
		}
		defer env.Close()

		res := env.Controller.Run(ctx, req)

		zap.L().Info("campaign finished",
			zap.String("campaign_id", res.ID),
			zap.String("status", string(res.Status)),
			zap.Int("leads", len(res.Leads)),
			zap.Float64("cost_usd", res.TotalCostUSD),
		)

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}
		formatResult(os.Stdout, res)
		return nil
	},
}

func init() {
	addDiscoverFlags(discoverCmd.Flags())
	_ = discoverCmd.MarkFlagRequired("type")
	_ = discoverCmd.MarkFlagRequired("location")
	rootCmd.AddCommand(discoverCmd)
}

func addDiscoverFlags(f *pflag.FlagSet) {
	f.String("type", "", "business type to search for (e.g. \"dentist\")")
	f.String("location", "", "city and state (e.g. \"Austin, TX\")")
	f.Int("target", 0, "number of qualified leads wanted (default from config)")
	f.Float64("budget", 0, "campaign budget in USD; 0 uses free signals only (default from config)")
	f.Int("min-score", 0, "minimum final confidence score (default from config)")
	f.Bool("require-contacts", false, "require both phone and email")
	f.Bool("require-owner", false, "require an owner-qualified contact")
	f.Bool("json", false, "print the full result as JSON")
}

// discoverInput reads the flags. Numeric flags only override the config
// defaults when set explicitly.
func discoverInput(f *pflag.FlagSet) (campaignInput, error) {
	var in campaignInput
	var err error
	if in.BusinessType, err = f.GetString("type"); err != nil {
		return in, err
	}
	if in.Location, err = f.GetString("location"); err != nil {
		return in, err
	}
	if f.Changed("target") {
		n, _ := f.GetInt("target")
		in.TargetCount = &n
	}
	if f.Changed("budget") {
		b, _ := f.GetFloat64("budget")
		in.BudgetLimitUSD = &b
	}
	if f.Changed("min-score") {
		n, _ := f.GetInt("min-score")
		in.MinConfidenceScore = &n
	}
	in.RequireCompleteContacts, _ = f.GetBool("require-contacts")
	in.RequireOwnerQualified, _ = f.GetBool("require-owner")
	return in, nil
}

// formatResult writes a campaign summary and its leads to out.
func formatResult(out io.Writer, res *model.CampaignResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Campaign:\t%s\n", res.ID)
	_, _ = fmt.Fprintf(w, "Search:\t%s in %s\n", res.Request.BusinessType, res.Request.Location)
	_, _ = fmt.Fprintf(w, "Status:\t%s\n", res.Status)
	_, _ = fmt.Fprintf(w, "Leads:\t%d of %d\n", len(res.Leads), res.Request.TargetCount)
	_, _ = fmt.Fprintf(w, "Cost:\t$%.2f of $%.2f\n", res.TotalCostUSD, res.Request.BudgetLimitUSD)
	_, _ = fmt.Fprintf(w, "Queries:\t%d (%d attempts)\n", len(res.QueriesTried), res.Attempts)
	c := res.Counts
	_, _ = fmt.Fprintf(w, "Funnel:\t%d searched, %d pre-scored, %d enriched, %d passed, %d duplicates\n",
		c.Searched, c.PassedPreScore, c.Enriched, c.PassedFilter, c.Duplicates)
	_ = w.Flush()

	for _, warn := range res.Warnings {
		_, _ = fmt.Fprintf(out, "warning: %s\n", warn)
	}
	if len(res.Leads) == 0 {
		return
	}

	_, _ = fmt.Fprintln(out)
	formatLeads(out, res.Leads)
}

// formatLeads writes a tabular list of leads to out.
func formatLeads(out io.Writer, leads []*model.QualifiedLead) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SCORE\tNAME\tPHONE\tEMAIL\tOWNER\tCOST")
	_, _ = fmt.Fprintln(w, "-----\t----\t-----\t-----\t-----\t----")
	for _, l := range leads {
		owner := ""
		if l.Owner != nil {
			owner = l.Owner.Name
			if l.Owner.Title != "" {
				owner += " (" + l.Owner.Title + ")"
			}
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t$%.2f\n",
			l.FinalConfidenceScore,
			truncate(l.Name, 40),
			l.Phone,
			l.BestEmail(),
			truncate(owner, 30),
			l.TotalCostUSD,
		)
	}
	_ = w.Flush()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}
