// Package prompt renders the single request sent to the completion API.
package prompt

import (
	"fmt"
	"strings"

	"github.com/sells-group/fiplanner/internal/model"
)

// SystemInstruction is the fixed system message for plan generation.
const SystemInstruction = "You are a cautious, India-focused retirement planning assistant. " +
	"Use only provided live facts for PPF/EPF. If a fact is marked \"" + model.NotAvailable +
	"\", say so instead of guessing a value."

// NoSnippets is rendered in place of an empty reference-rule list.
const NoSnippets = "- No reference snippets found."

// Input is everything a plan prompt is built from.
type Input struct {
	Profile         model.UserProfile
	Facts           model.LiveFacts
	Snippets        []model.KnowledgeSnippet
	DocumentContext string
}

// Build renders the plan prompt. Output depends only on in.
func Build(in Input) string {
	p := in.Profile

	var b strings.Builder
	b.WriteString("You are a financial planner for Indian salaried professionals.\n")
	b.WriteString("Use the provided live facts as the single source of truth for PPF/EPF rates.\n\n")

	b.WriteString("USER INPUTS:\n")
	fmt.Fprintf(&b, "- Age: %d\n", p.Age)
	fmt.Fprintf(&b, "- Monthly Income: ₹%s\n", p.MonthlyIncome.String())
	fmt.Fprintf(&b, "- Monthly Expenses: ₹%s\n", p.MonthlyExpenses.String())
	fmt.Fprintf(&b, "- Target Retirement Age: %d\n", p.RetirementAge)
	fmt.Fprintf(&b, "- Risk Profile: %s\n", p.RiskProfile)
	fmt.Fprintf(&b, "- Current Savings: ₹%s\n\n", p.CurrentSavings.String())

	b.WriteString("LIVE FACTS:\n")
	for _, f := range in.Facts.All() {
		fmt.Fprintf(&b, "- %s rate: %s (as of %s, %s)\n", f.Instrument, f.RateText(), f.AsOfText(), f.SourceText())
	}
	b.WriteString("\n")

	b.WriteString("REFERENCE RULES (snippets):\n")
	b.WriteString(FormatSnippets(in.Snippets))
	b.WriteString("\n\n")

	if ctx := strings.TrimSpace(in.DocumentContext); ctx != "" {
		b.WriteString("DOCUMENT EXCERPTS (from the user's upload):\n")
		b.WriteString(ctx)
		b.WriteString("\n\n")
	}

	b.WriteString("TASKS:\n")
	fmt.Fprintf(&b, "1) Estimate monthly savings needed for retirement at %d.\n", p.RetirementAge)
	b.WriteString("2) Propose a simple asset allocation (Equity/Debt/Gold) appropriate for the inputs.\n")
	b.WriteString("3) Provide 3 starter actions for the next 30 days.\n")
	b.WriteString("4) State the assumptions you used (inflation, expected returns).\n")
	b.WriteString("5) Cite the live facts inline exactly as shown above.\n\n")

	fmt.Fprintf(&b, "Where a live fact reads %q, state that it is unavailable and do not invent a rate.\n", model.NotAvailable)
	b.WriteString("Keep currency in INR (₹). Be concise and practical.\n")
	return b.String()
}

// FormatSnippets renders snippets one per line in file order, or NoSnippets
// when there are none.
func FormatSnippets(snippets []model.KnowledgeSnippet) string {
	if len(snippets) == 0 {
		return NoSnippets
	}
	lines := make([]string, len(snippets))
	for i, s := range snippets {
		lines[i] = fmt.Sprintf("- %s (Source: %s)", s.Text, s.Source)
	}
	return strings.Join(lines, "\n")
}
