package model

import "github.com/shopspring/decimal"

// NotAvailable is the literal marker rendered in place of a missing live fact.
const NotAvailable = "Not available"

// Instrument names for the two tracked savings schemes.
const (
	InstrumentPPF = "PPF"
	InstrumentEPF = "EPF"
)

// LiveFact is an externally sourced rate with its provenance. Any field may be
// absent; absence is reported, never defaulted.
type LiveFact struct {
	Instrument string           `json:"instrument"`
	Rate       *decimal.Decimal `json:"rate,omitempty"`
	AsOf       string           `json:"as_of,omitempty"`
	Source     string           `json:"source,omitempty"`
}

// RateText renders the rate as a percentage, or NotAvailable.
func (f LiveFact) RateText() string {
	if f.Rate == nil {
		return NotAvailable
	}
	return f.Rate.String() + "%"
}

// AsOfText renders the as-of date, or NotAvailable.
func (f LiveFact) AsOfText() string {
	return orNotAvailable(f.AsOf)
}

// SourceText renders the source label, or NotAvailable.
func (f LiveFact) SourceText() string {
	return orNotAvailable(f.Source)
}

// Available reports whether the fact carries a rate.
func (f LiveFact) Available() bool {
	return f.Rate != nil
}

// LiveFacts is the immutable set of facts loaded for a session.
type LiveFacts struct {
	PPF LiveFact `json:"ppf"`
	EPF LiveFact `json:"epf"`
}

// EmptyLiveFacts returns facts with instrument names set and nothing else.
func EmptyLiveFacts() LiveFacts {
	return LiveFacts{
		PPF: LiveFact{Instrument: InstrumentPPF},
		EPF: LiveFact{Instrument: InstrumentEPF},
	}
}

// All returns the facts in display order.
func (l LiveFacts) All() []LiveFact {
	return []LiveFact{l.PPF, l.EPF}
}

// KnowledgeSnippet is a short curated rule with its source.
type KnowledgeSnippet struct {
	Text   string `json:"text" yaml:"text"`
	Source string `json:"source" yaml:"source"`
}

func orNotAvailable(s string) string {
	if s == "" {
		return NotAvailable
	}
	return s
}
