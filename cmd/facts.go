package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/fiplanner/internal/knowledge"
	"github.com/sells-group/fiplanner/internal/prompt"
)

var factsJSON bool

var factsCmd = &cobra.Command{
	Use:   "facts",
	Short: "Show the live facts and reference rules plans are grounded on",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ref := loadReference(cfg)
		if factsJSON {
			writeJSON(os.Stdout, ref)
			return nil
		}
		printReference(os.Stdout, ref)
		return nil
	},
}

func printReference(out io.Writer, ref knowledge.Reference) {
	fmt.Fprintln(out, "Live Facts (India)")
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "INSTRUMENT\tRATE\tAS OF\tSOURCE")
	for _, f := range ref.Facts.All() {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", f.Instrument, f.RateText(), f.AsOfText(), f.SourceText())
	}
	_ = w.Flush()
	printStatus(out, ref.FactsStatus)

	fmt.Fprintln(out, "\nReference rules")
	fmt.Fprintln(out, prompt.FormatSnippets(ref.Snippets))
	printStatus(out, ref.SnippetsStatus)
}

func printStatus(w io.Writer, s knowledge.Status) {
	if s.OK() {
		return
	}
	fmt.Fprintf(w, "(%s: %s)\n", s.Path, s.Reason)
}

func init() {
	factsCmd.Flags().BoolVar(&factsJSON, "json", false, "print facts, snippets and load status as JSON")
	rootCmd.AddCommand(factsCmd)
}
