package main

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/sells-group/fiplanner/internal/ingest"
)

var extractJSON bool

var extractCmd = &cobra.Command{
	Use:   "extract <file>",
	Short: "Show what an uploaded document contributes to a plan",
	Long:  "Runs the table field inferencer or the relevance filter over one file and prints the profile overrides and excerpts. No API call is made.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("offline"); err != nil {
			return err
		}
		res, err := ingestFile(cmd.Context(), newIngestor(cfg), args[0])
		if err != nil {
			return err
		}
		if extractJSON {
			writeJSON(os.Stdout, res)
			return nil
		}
		printIngestResult(os.Stdout, res)
		return nil
	},
}

func printIngestResult(w io.Writer, res ingest.Result) {
	fmt.Fprintf(w, "Detected: %s\n", res.Kind)

	if len(res.Overrides) > 0 {
		fmt.Fprintln(w, "\nProfile overrides:")
		fields := make([]string, 0, len(res.Overrides))
		for f := range res.Overrides {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		for _, f := range fields {
			fmt.Fprintf(w, "  %-16s %v\n", f, res.Overrides[f])
		}
	}

	if len(res.Chunks) > 0 {
		fmt.Fprintf(w, "\nRelevant excerpts (%d):\n", len(res.Chunks))
		fmt.Fprintln(w, res.Context())
	}

	if len(res.Warnings) > 0 {
		fmt.Fprintln(w)
		printWarnings(w, res.Warnings)
	}
}

func init() {
	extractCmd.Flags().BoolVar(&extractJSON, "json", false, "print the result as JSON")
	rootCmd.AddCommand(extractCmd)
}
