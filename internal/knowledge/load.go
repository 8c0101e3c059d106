// Package knowledge loads the read-only reference data a plan is grounded on:
// live savings-scheme rates and curated rule snippets.
//
// Loading never fails. A missing or malformed file degrades to empty data and
// the returned Status names the reason, so callers and tests can tell a
// degraded session from a healthy one.
package knowledge

import (
	"bytes"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/fiplanner/internal/model"
)

// Reason explains a degraded load.
type Reason string

const (
	ReasonOK         Reason = ""
	ReasonNotFound   Reason = "file not found"
	ReasonReadError  Reason = "read error"
	ReasonParseError Reason = "parse error"
)

// Status reports how a reference file loaded.
type Status struct {
	Path   string `json:"path"`
	Reason Reason `json:"reason,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// OK reports whether the file loaded cleanly.
func (s Status) OK() bool { return s.Reason == ReasonOK }

func degraded(path string, reason Reason, err error) Status {
	zap.L().Warn("knowledge: reference data unavailable",
		zap.String("path", path),
		zap.String("reason", string(reason)),
		zap.Error(err),
	)
	return Status{Path: path, Reason: reason, Detail: err.Error()}
}

// Reference is everything loaded once at session start.
type Reference struct {
	Facts          model.LiveFacts          `json:"facts"`
	FactsStatus    Status                   `json:"facts_status"`
	Snippets       []model.KnowledgeSnippet `json:"snippets"`
	SnippetsStatus Status                   `json:"snippets_status"`
}

// Load reads both reference files.
func Load(factsPath, snippetsPath string) Reference {
	var ref Reference
	ref.Facts, ref.FactsStatus = LoadLiveFacts(factsPath)
	ref.Snippets, ref.SnippetsStatus = LoadSnippets(snippetsPath)
	return ref
}

// readDocument reads path and decodes it as YAML for .yaml/.yml files and as
// JSON otherwise.
func readDocument(path string, v any) (Reason, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ReasonNotFound, err
		}
		return ReasonReadError, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, v)
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		err = dec.Decode(v)
	}
	if err != nil {
		return ReasonParseError, err
	}
	return ReasonOK, nil
}
