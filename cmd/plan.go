package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/fiplanner/internal/config"
	"github.com/sells-group/fiplanner/internal/export"
	"github.com/sells-group/fiplanner/internal/knowledge"
	"github.com/sells-group/fiplanner/internal/model"
	"github.com/sells-group/fiplanner/internal/planner"
	"github.com/sells-group/fiplanner/internal/structured"
)

var (
	planProfile     profileFlags
	planFile        string
	planInteractive bool
	planExport      bool
	planFormat      string
	planExportDir   string
	planShowJSON    bool
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Generate a retirement plan",
	Long: "Builds a profile from flags (or an interactive form), optionally applies figures and excerpts from " +
		"an uploaded CSV, XLSX, PDF or text file, and makes one completion call to generate the plan.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("plan"); err != nil {
			return err
		}

		client, err := newCompletionClient(cfg)
		if err != nil {
			if errors.Is(err, config.ErrMissingAPIKey) {
				fmt.Fprintln(os.Stderr, "error:", err)
				fmt.Fprintln(os.Stderr, "Create a .env file containing FIPLANNER_ANTHROPIC_KEY=<your key>, or export it in your shell.")
			}
			return err
		}

		profile, err := planProfile.profile()
		if err != nil {
			return err
		}
		if planInteractive {
			if profile, err = promptProfile(profile); err != nil {
				return err
			}
		}

		ref := loadReference(cfg)
		reportReference(os.Stderr, ref)

		req := planner.Request{Profile: profile}
		if planFile != "" {
			res, err := ingestFile(ctx, newIngestor(cfg), planFile)
			if err != nil {
				return err
			}
			printWarnings(os.Stderr, res.Warnings)
			if applied := req.ApplyUpload(res); len(applied) > 0 {
				fmt.Fprintf(os.Stderr, "Applied from %s: %s\n", planFile, strings.Join(applied, ", "))
			}
		}

		p := planner.New(client, ref, plannerConfig(cfg))
		res, err := p.Generate(ctx, req)
		if err != nil {
			return eris.Wrap(err, "generate plan")
		}

		printPlan(os.Stdout, res)
		if planShowJSON {
			printStructured(os.Stdout, p.Structured(res))
		}

		st, err := openStore(ctx, cfg)
		if err != nil {
			zap.L().Warn("plan not archived", zap.Error(err))
		} else if st != nil {
			defer st.Close() //nolint:errcheck
			if err := st.SavePlan(ctx, res); err != nil {
				zap.L().Warn("plan not archived", zap.Error(err))
			} else {
				fmt.Fprintf(os.Stderr, "Saved plan %s\n", res.ID)
			}
		}

		if planExport {
			path, err := exportPlan(res, planFormat, planExportDir)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Exported to %s\n", path)
		}
		return nil
	},
}

func reportReference(w io.Writer, ref knowledge.Reference) {
	if !ref.FactsStatus.OK() {
		fmt.Fprintf(w, "warning: live facts unavailable (%s: %s); rates will be reported as %q\n",
			ref.FactsStatus.Path, ref.FactsStatus.Reason, model.NotAvailable)
	}
	if !ref.SnippetsStatus.OK() {
		fmt.Fprintf(w, "warning: knowledge snippets unavailable (%s: %s)\n", ref.SnippetsStatus.Path, ref.SnippetsStatus.Reason)
	}
}

func printPlan(w io.Writer, res *model.PlanResult) {
	fmt.Fprintln(w, "Your Plan (Grounded)")
	fmt.Fprintln(w, strings.Repeat("=", 20))
	fmt.Fprintln(w, res.Text)
}

func printStructured(w io.Writer, out structured.Outcome) {
	if !out.Found {
		fmt.Fprintf(w, "\nNo structured data in reply (%s).\n", out.Reason)
		return
	}
	fmt.Fprintf(w, "\nStructured data (%s):\n", out.Method)
	writeJSON(w, out.Data)
}

func exportPlan(res *model.PlanResult, format, dir string) (string, error) {
	f, err := export.ParseFormat(format)
	if err != nil {
		return "", err
	}
	doc, err := export.Render(res, f, time.Now())
	if err != nil {
		return "", err
	}
	return export.WriteFile(dir, doc)
}

func init() {
	planProfile.register(planCmd)
	planCmd.Flags().StringVarP(&planFile, "file", "f", "", "salary slip, statement or profile table (csv, xlsx, pdf, txt)")
	planCmd.Flags().BoolVarP(&planInteractive, "interactive", "i", false, "enter the profile in an interactive form")
	planCmd.Flags().BoolVar(&planExport, "export", false, "write the plan to a file")
	planCmd.Flags().StringVar(&planFormat, "format", "txt", "export format: txt or html")
	planCmd.Flags().StringVar(&planExportDir, "export-dir", "", "export directory (default planner.export_dir)")
	planCmd.Flags().BoolVar(&planShowJSON, "json", false, "also print any JSON object embedded in the reply")
	planCmd.PreRun = func(cmd *cobra.Command, _ []string) {
		if planExportDir == "" && cfg != nil {
			planExportDir = cfg.Planner.ExportDir
		}
	}
	rootCmd.AddCommand(planCmd)
}
