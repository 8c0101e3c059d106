package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/fiplanner/internal/model"
	"github.com/sells-group/fiplanner/internal/store"
)

var plansCmd = &cobra.Command{
	Use:   "plans",
	Short: "Browse archived plans",
	Long:  "Commands for listing, viewing and exporting plans saved in the archive (store.driver sqlite or postgres).",
}

// requireStore opens the archive or explains that it is disabled.
func requireStore(cmd *cobra.Command) (store.Store, error) {
	st, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, eris.New("plan archive is disabled: set store.driver to sqlite or postgres")
	}
	return st, nil
}

// -- plans list --

var plansListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived plans, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := requireStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		plans, err := st.ListPlans(cmd.Context(), limit)
		if err != nil {
			return eris.Wrap(err, "plans list")
		}
		if len(plans) == 0 {
			fmt.Fprintln(os.Stderr, "No plans found.")
			return nil
		}
		formatPlansList(os.Stdout, plans)
		return nil
	},
}

// -- plans show --

var plansShowCmd = &cobra.Command{
	Use:   "show <plan-id>",
	Short: "Print an archived plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := requireStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		plan, err := st.GetPlan(cmd.Context(), args[0])
		if err != nil {
			return eris.Wrap(err, "plans show")
		}

		if exp, _ := cmd.Flags().GetBool("export"); exp {
			format, _ := cmd.Flags().GetString("format")
			path, err := exportPlan(plan, format, cfg.Planner.ExportDir)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Exported to %s\n", path)
			return nil
		}

		formatPlanHeader(os.Stdout, plan)
		printPlan(os.Stdout, plan)
		return nil
	},
}

// formatPlansList writes a tabular list of plans to out.
func formatPlansList(out io.Writer, plans []model.PlanResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tCREATED\tAGE\tRETIRE\tINCOME\tRISK\tMODEL")
	_, _ = fmt.Fprintln(w, "--\t-------\t---\t------\t------\t----\t-----")
	for _, p := range plans {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\t%s\n",
			p.ID,
			p.CreatedAt.Format("2006-01-02 15:04"),
			p.Profile.Age,
			p.Profile.RetirementAge,
			formatINR(p.Profile.MonthlyIncome),
			p.Profile.RiskProfile,
			p.Model,
		)
	}
	_ = w.Flush()
}

func formatPlanHeader(out io.Writer, p *model.PlanResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Plan:\t%s\n", p.ID)
	_, _ = fmt.Fprintf(w, "Created:\t%s\n", p.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	_, _ = fmt.Fprintf(w, "Model:\t%s\n", p.Model)
	_, _ = fmt.Fprintf(w, "Profile:\tage %d, retire at %d, %s risk\n", p.Profile.Age, p.Profile.RetirementAge, p.Profile.RiskProfile)
	_, _ = fmt.Fprintf(w, "Income / expenses:\t%s / %s per month\n", formatINR(p.Profile.MonthlyIncome), formatINR(p.Profile.MonthlyExpenses))
	_, _ = fmt.Fprintf(w, "Savings:\t%s\n", formatINR(p.Profile.CurrentSavings))
	_, _ = fmt.Fprintf(w, "Tokens:\t%d in / %d out\n\n", p.InputTokens, p.OutputTokens)
	_ = w.Flush()
}

func init() {
	plansListCmd.Flags().Int("limit", store.DefaultListLimit, "maximum plans to list")
	plansShowCmd.Flags().Bool("export", false, "write the plan to planner.export_dir instead of printing it")
	plansShowCmd.Flags().String("format", "txt", "export format: txt or html")

	plansCmd.AddCommand(plansListCmd, plansShowCmd)
	rootCmd.AddCommand(plansCmd)
}
