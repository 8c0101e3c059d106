package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/sells-group/fiplanner/internal/config"
	"github.com/sells-group/fiplanner/internal/ingest"
	"github.com/sells-group/fiplanner/internal/knowledge"
	"github.com/sells-group/fiplanner/internal/model"
	"github.com/sells-group/fiplanner/internal/ocr"
	"github.com/sells-group/fiplanner/internal/planner"
	"github.com/sells-group/fiplanner/internal/store"
	"github.com/sells-group/fiplanner/pkg/anthropic"
)

// newCompletionClient returns the Anthropic client, or an error explaining how
// to supply the key.
func newCompletionClient(c *config.Config) (anthropic.Client, error) {
	if err := c.RequireAPIKey(); err != nil {
		return nil, err
	}
	return anthropic.NewClient(c.Anthropic.Key), nil
}

func loadReference(c *config.Config) knowledge.Reference {
	return knowledge.Load(c.Planner.LiveFactsPath, c.Planner.SnippetsPath)
}

func filterOptions(c *config.Config) ingest.FilterOptions {
	return ingest.FilterOptions{
		Radius:    c.Planner.ContextRadius,
		MaxChunks: c.Planner.MaxChunks,
	}
}

func plannerConfig(c *config.Config) planner.Config {
	return planner.Config{
		Model:       c.Anthropic.Model,
		MaxTokens:   c.Anthropic.MaxTokens,
		Temperature: c.Anthropic.Temperature,
		RepairJSON:  c.Planner.RepairJSON,
	}
}

// newIngestor wires the configured PDF extractor. A misconfigured extractor
// is logged and PDF uploads then degrade to a warning.
func newIngestor(c *config.Config) *ingest.Ingestor {
	ext, err := ocr.NewExtractor(c.OCR)
	if err != nil {
		zap.L().Warn("pdf extraction disabled", zap.Error(err))
		ext = nil
	}
	return ingest.New(ext, filterOptions(c))
}

// openStore opens the plan archive; a nil Store means archiving is off.
func openStore(ctx context.Context, c *config.Config) (store.Store, error) {
	st, err := store.Open(ctx, c.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open plan archive")
	}
	return st, nil
}

// ingestFile reads path fully into memory and runs it through the ingestor.
func ingestFile(ctx context.Context, in *ingest.Ingestor, path string) (ingest.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ingest.Result{}, eris.Wrapf(err, "read %s", path)
	}
	return in.Ingest(ctx, filepath.Base(path), data), nil
}

// profileFlags binds the profile fields to command flags.
type profileFlags struct {
	age           int
	income        string
	expenses      string
	retirementAge int
	risk          string
	savings       string
}

func (f *profileFlags) register(cmd *cobra.Command) {
	d := model.DefaultProfile()
	cmd.Flags().IntVar(&f.age, "age", d.Age, "current age (18-70)")
	cmd.Flags().StringVar(&f.income, "income", d.MonthlyIncome.String(), "monthly income in ₹")
	cmd.Flags().StringVar(&f.expenses, "expenses", d.MonthlyExpenses.String(), "monthly expenses in ₹")
	cmd.Flags().IntVar(&f.retirementAge, "retirement-age", d.RetirementAge, "target retirement age (40-70)")
	cmd.Flags().StringVar(&f.risk, "risk", string(d.RiskProfile), "risk profile: Low, Medium or High")
	cmd.Flags().StringVar(&f.savings, "savings", d.CurrentSavings.String(), "current savings in ₹")
}

func (f *profileFlags) profile() (model.UserProfile, error) {
	p := model.UserProfile{Age: f.age, RetirementAge: f.retirementAge}

	var err error
	if p.MonthlyIncome, err = parseAmount("income", f.income); err != nil {
		return p, err
	}
	if p.MonthlyExpenses, err = parseAmount("expenses", f.expenses); err != nil {
		return p, err
	}
	if p.CurrentSavings, err = parseAmount("savings", f.savings); err != nil {
		return p, err
	}
	if p.RiskProfile, err = model.ParseRiskProfile(f.risk); err != nil {
		return p, err
	}
	return p, nil
}

// parseAmount accepts plain or comma-grouped rupee amounts ("1,20,000").
func parseAmount(field, s string) (decimal.Decimal, error) {
	clean := strings.ReplaceAll(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "₹")), ",", "")
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, eris.Wrapf(model.ErrInvalidProfile, "%s %q is not a number", field, s)
	}
	return d, nil
}

// promptProfile runs an interactive form seeded with p.
func promptProfile(p model.UserProfile) (model.UserProfile, error) {
	age := strconv.Itoa(p.Age)
	income := p.MonthlyIncome.String()
	expenses := p.MonthlyExpenses.String()
	retire := strconv.Itoa(p.RetirementAge)
	savings := p.CurrentSavings.String()
	risk := string(p.RiskProfile)

	riskOpts := make([]huh.Option[string], len(model.RiskProfiles))
	for i, r := range model.RiskProfiles {
		riskOpts[i] = huh.NewOption(string(r), string(r))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Your Age").Value(&age).Validate(intBetween(model.MinAge, model.MaxAge)),
			huh.NewInput().Title("Monthly Income (₹)").Value(&income).Validate(nonNegativeAmount),
			huh.NewInput().Title("Monthly Expenses (₹)").Value(&expenses).Validate(nonNegativeAmount),
			huh.NewInput().Title("Target Retirement Age").Value(&retire).Validate(intBetween(model.MinRetirementAge, model.MaxRetirementAge)),
		),
		huh.NewGroup(
			huh.NewSelect[string]().Title("Risk Profile").Options(riskOpts...).Value(&risk),
			huh.NewInput().Title("Current Savings (₹)").Value(&savings).Validate(nonNegativeAmount),
		),
	)
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return p, eris.New("profile entry cancelled")
		}
		return p, eris.Wrap(err, "profile form")
	}

	f := profileFlags{income: income, expenses: expenses, risk: risk, savings: savings}
	f.age, _ = strconv.Atoi(strings.TrimSpace(age))
	f.retirementAge, _ = strconv.Atoi(strings.TrimSpace(retire))
	return f.profile()
}

func intBetween(lo, hi int) func(string) error {
	return func(s string) error {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return eris.New("enter a whole number")
		}
		if n < lo || n > hi {
			return eris.Errorf("must be between %d and %d", lo, hi)
		}
		return nil
	}
}

func nonNegativeAmount(s string) error {
	d, err := parseAmount("amount", s)
	if err != nil {
		return eris.New("enter an amount in rupees")
	}
	if d.IsNegative() {
		return eris.New("must not be negative")
	}
	return nil
}

var inr = message.NewPrinter(language.MustParse("en-IN"))

// formatINR renders an amount with Indian digit grouping for display only;
// prompts carry the raw value.
func formatINR(d decimal.Decimal) string {
	return inr.Sprintf("₹%v", number.Decimal(d.InexactFloat64(), number.MaxFractionDigits(2)))
}

// printWarnings writes ingest warnings as a bulleted list.
func printWarnings(w io.Writer, warnings []string) {
	for _, msg := range warnings {
		fmt.Fprintf(w, "warning: %s\n", msg)
	}
}
