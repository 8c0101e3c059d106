// Package export turns a generated plan into a downloadable document.
package export

import (
	"bytes"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/yuin/goldmark"

	"github.com/sells-group/fiplanner/internal/model"
)

// Format is an export file format.
type Format string

const (
	FormatText Format = "txt"
	FormatHTML Format = "html"
)

// ParseFormat maps a case-insensitive name ("", "txt", "text", "html") to a
// Format. The empty string selects FormatText.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "txt", "text":
		return FormatText, nil
	case "html", "htm":
		return FormatHTML, nil
	}
	return "", eris.Errorf("export: unsupported format %q (want txt or html)", s)
}

// ContentType returns the MIME type served for f.
func (f Format) ContentType() string {
	if f == FormatHTML {
		return "text/html; charset=utf-8"
	}
	return "text/plain; charset=utf-8"
}

// Filename returns financial_plan_<YYYYMMDD_HHMMSS>.<ext> for t.
func Filename(f Format, t time.Time) string {
	return "financial_plan_" + t.Format("20060102_150405") + "." + string(f)
}

// Document is a rendered export ready to write or serve.
type Document struct {
	Filename    string
	ContentType string
	Body        []byte
}

// Render builds the export document for plan. The filename timestamp is the
// plan's generation time, or now when that is unset.
func Render(plan *model.PlanResult, f Format, now time.Time) (*Document, error) {
	if plan == nil {
		return nil, eris.New("export: nil plan")
	}
	stamp := plan.CreatedAt
	if stamp.IsZero() {
		stamp = now
	}

	var body []byte
	switch f {
	case FormatText:
		body = []byte(plan.Text)
	case FormatHTML:
		b, err := renderHTML(plan.Text, stamp)
		if err != nil {
			return nil, err
		}
		body = b
	default:
		return nil, eris.Errorf("export: unsupported format %q", f)
	}

	return &Document{
		Filename:    Filename(f, stamp),
		ContentType: f.ContentType(),
		Body:        body,
	}, nil
}

// WriteFile writes doc into dir and returns the file path.
func WriteFile(dir string, doc *Document) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "export: create dir %s", dir)
	}
	path := filepath.Join(dir, doc.Filename)
	if err := os.WriteFile(path, doc.Body, 0o644); err != nil {
		return "", eris.Wrapf(err, "export: write %s", path)
	}
	return path, nil
}

const htmlHead = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>%s</title>
</head>
<body>
`

func renderHTML(markdown string, stamp time.Time) ([]byte, error) {
	var md bytes.Buffer
	if err := goldmark.Convert([]byte(stripOuterFence(markdown)), &md); err != nil {
		return nil, eris.Wrap(err, "export: render markdown")
	}

	title := html.EscapeString("Financial plan " + stamp.Format("2006-01-02 15:04"))
	var out bytes.Buffer
	fmt.Fprintf(&out, htmlHead, title)
	out.Write(md.Bytes())
	out.WriteString("</body>\n</html>\n")
	return out.Bytes(), nil
}

// stripOuterFence removes a code fence wrapping the whole reply, which models
// sometimes add around markdown.
func stripOuterFence(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") || !strings.HasSuffix(t, "```") || len(t) < 6 {
		return s
	}
	t = strings.TrimSuffix(t, "```")
	if nl := strings.IndexByte(t, '\n'); nl >= 0 {
		t = t[nl+1:]
	} else {
		return s
	}
	return strings.TrimSpace(t)
}
