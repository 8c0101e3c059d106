package knowledge

import (
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/fiplanner/internal/model"
)

// LoadSnippets reads the knowledge-snippets file, an ordered list of
// {text, source} objects. Every entry is kept in file order, including ones
// with blank text, which are only logged.
func LoadSnippets(path string) ([]model.KnowledgeSnippet, Status) {
	var raw []model.KnowledgeSnippet
	if reason, err := readDocument(path, &raw); err != nil {
		return nil, degraded(path, reason, err)
	}

	snippets := make([]model.KnowledgeSnippet, 0, len(raw))
	for i, s := range raw {
		s.Text = strings.TrimSpace(s.Text)
		s.Source = strings.TrimSpace(s.Source)
		if s.Text == "" {
			zap.L().Warn("knowledge: snippet has no text",
				zap.String("path", path),
				zap.Int("index", i),
			)
		}
		snippets = append(snippets, s)
	}
	return snippets, Status{Path: path}
}
