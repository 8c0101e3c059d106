package knowledge

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/fiplanner/internal/model"
)

// factSection locates one instrument in the live-facts document:
//
//	{"small_savings": {"ppf_rate": 7.1, "as_of": "...", "source": "..."},
//	 "epf":           {"epf_rate": 8.25, "as_of": "...", "source": "..."}}
//
// A generic "rate" key is accepted when the instrument-specific one is absent.
type factSection struct {
	Instrument string
	Section    string
	RateKey    string
}

var factSections = []factSection{
	{model.InstrumentPPF, "small_savings", "ppf_rate"},
	{model.InstrumentEPF, "epf", "epf_rate"},
}

// LoadLiveFacts reads the live-facts file. Any absent field stays absent; the
// rates are reported as loaded and never recomputed.
func LoadLiveFacts(path string) (model.LiveFacts, Status) {
	facts := model.EmptyLiveFacts()

	var doc any
	if reason, err := readDocument(path, &doc); err != nil {
		return facts, degraded(path, reason, err)
	}
	root, ok := asMap(doc)
	if !ok {
		return facts, degraded(path, ReasonParseError, eris.Errorf("knowledge: live facts must be an object, got %T", doc))
	}

	for _, sec := range factSections {
		section, ok := asMap(root[sec.Section])
		if !ok {
			continue
		}
		f := model.LiveFact{
			Instrument: sec.Instrument,
			AsOf:       asString(section["as_of"]),
			Source:     asString(section["source"]),
		}
		raw, present := section[sec.RateKey]
		if !present {
			raw = section["rate"]
		}
		f.Rate = asDecimal(raw)

		switch sec.Instrument {
		case model.InstrumentPPF:
			facts.PPF = f
		case model.InstrumentEPF:
			facts.EPF = f
		}
	}
	return facts, Status{Path: path}
}

// asMap normalises the map shapes produced by encoding/json and yaml.v3.
func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	}
	return nil, false
}

func asString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(s)
	default:
		return fmt.Sprint(s)
	}
}

// asDecimal accepts JSON numbers, YAML numbers, and numeric strings. Anything
// else is treated as absent.
func asDecimal(v any) *decimal.Decimal {
	var (
		d   decimal.Decimal
		err error
	)
	switch n := v.(type) {
	case json.Number:
		d, err = decimal.NewFromString(n.String())
	case float64:
		d = decimal.NewFromFloat(n)
	case int:
		d = decimal.NewFromInt(int64(n))
	case int64:
		d = decimal.NewFromInt(n)
	case string:
		d, err = decimal.NewFromString(strings.TrimSuffix(strings.TrimSpace(n), "%"))
	default:
		return nil
	}
	if err != nil {
		return nil
	}
	return &d
}
