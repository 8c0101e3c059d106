package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/fiplanner/internal/planner"
	"github.com/sells-group/fiplanner/internal/prompt"
)

var (
	promptProfileFlags profileFlags
	promptFile         string
	promptSystem       bool
)

var promptCmd = &cobra.Command{
	Use:   "prompt",
	Short: "Print the assembled plan prompt without calling the API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("offline"); err != nil {
			return err
		}
		profile, err := promptProfileFlags.profile()
		if err != nil {
			return err
		}

		req := planner.Request{Profile: profile}
		if promptFile != "" {
			res, err := ingestFile(cmd.Context(), newIngestor(cfg), promptFile)
			if err != nil {
				return err
			}
			printWarnings(os.Stderr, res.Warnings)
			req.ApplyUpload(res)
		}

		p := planner.New(nil, loadReference(cfg), plannerConfig(cfg))
		if promptSystem {
			fmt.Fprintf(os.Stdout, "SYSTEM:\n%s\n\nUSER:\n", prompt.SystemInstruction)
		}
		fmt.Fprint(os.Stdout, p.Prompt(req))
		return nil
	},
}

func init() {
	promptProfileFlags.register(promptCmd)
	promptCmd.Flags().StringVarP(&promptFile, "file", "f", "", "document to extract excerpts and overrides from")
	promptCmd.Flags().BoolVar(&promptSystem, "system", false, "also print the system instruction")
	rootCmd.AddCommand(promptCmd)
}
