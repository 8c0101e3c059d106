// Package structured recovers a JSON object embedded in free-form model output.
//
// Absence of structured data is a normal outcome, not an error: Parse never
// fails, it reports Found=false with the reason.
package structured

import (
	"encoding/json"
	"strings"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	"github.com/rotisserie/eris"
)

// Reason explains why no object was recovered.
type Reason string

const (
	ReasonNone       Reason = ""
	ReasonEmpty      Reason = "empty input"
	ReasonNoBraces   Reason = "no brace block"
	ReasonUnparsable Reason = "unparsable"
)

// Method records which attempt produced the object.
type Method string

const (
	MethodDirect     Method = "direct"
	MethodBraceBlock Method = "brace_block"
	MethodRepaired   Method = "repaired"
)

// Outcome is the result of a Parse call.
type Outcome struct {
	Data   map[string]any `json:"data,omitempty"`
	Found  bool           `json:"found"`
	Method Method         `json:"method,omitempty"`
	Reason Reason         `json:"reason,omitempty"`
}

// Decode re-encodes the recovered object into v.
func (o Outcome) Decode(v any) error {
	if !o.Found {
		return eris.Errorf("structured: no data to decode (%s)", o.Reason)
	}
	b, err := json.Marshal(o.Data)
	if err != nil {
		return eris.Wrap(err, "structured: marshal data")
	}
	if err := json.Unmarshal(b, v); err != nil {
		return eris.Wrap(err, "structured: decode data")
	}
	return nil
}

// Option configures Parse.
type Option func(*options)

type options struct {
	repair bool
}

// WithRepair adds a final attempt that runs the brace block through a JSON
// repairer (unquoted keys, trailing commas, single quotes).
func WithRepair() Option {
	return func(o *options) { o.repair = true }
}

// Parse tries a strict parse of the whole text, then a strict parse of the
// greedy block from the first '{' to the last '}'. With multiple objects or
// trailing braces in prose the greedy block can span more than one object and
// fail to parse; that is reported as ReasonUnparsable.
func Parse(text string, opts ...Option) Outcome {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Outcome{Reason: ReasonEmpty}
	}

	if m, ok := decodeObject(trimmed); ok {
		return Outcome{Data: m, Found: true, Method: MethodDirect}
	}

	block, ok := braceBlock(trimmed)
	if !ok {
		return Outcome{Reason: ReasonNoBraces}
	}

	if m, ok := decodeObject(block); ok {
		return Outcome{Data: m, Found: true, Method: MethodBraceBlock}
	}

	if o.repair {
		if repaired, err := jsonrepair.RepairJSON(block); err == nil {
			if m, ok := decodeObject(repaired); ok {
				return Outcome{Data: m, Found: true, Method: MethodRepaired}
			}
		}
	}

	return Outcome{Reason: ReasonUnparsable}
}

// braceBlock returns the text from the first '{' through the last '}'.
func braceBlock(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

func decodeObject(s string) (map[string]any, bool) {
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil || m == nil {
		return nil, false
	}
	return m, true
}
