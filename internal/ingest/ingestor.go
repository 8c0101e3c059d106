// Package ingest turns an uploaded document into plan-ready inputs: profile
// overrides from tables, keyword-filtered excerpts from free text.
package ingest

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/fiplanner/internal/model"
	"github.com/sells-group/fiplanner/internal/ocr"
)

// Kind is the detected type of an uploaded file.
type Kind string

const (
	KindCSV     Kind = "csv"
	KindXLSX    Kind = "xlsx"
	KindPDF     Kind = "pdf"
	KindText    Kind = "text"
	KindUnknown Kind = "unknown"
)

var (
	pdfMagic = []byte("%PDF-")
	zipMagic = []byte("PK\x03\x04")
)

// DetectKind picks the file type from its extension, falling back to
// content sniffing when the extension is missing or unfamiliar.
func DetectKind(name string, data []byte) Kind {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return KindCSV
	case ".xlsx":
		return KindXLSX
	case ".pdf":
		return KindPDF
	case ".txt", ".text", ".md":
		return KindText
	}

	switch {
	case bytes.HasPrefix(data, pdfMagic):
		return KindPDF
	case bytes.HasPrefix(data, zipMagic):
		return KindXLSX
	case len(data) > 0 && !bytes.Contains(data[:min(len(data), 512)], []byte{0}):
		return KindText
	}
	return KindUnknown
}

// Result is what one upload contributed. Warnings carry non-fatal problems;
// an upload never fails outright.
type Result struct {
	Kind      Kind                     `json:"kind"`
	Overrides model.StructuredOverride `json:"overrides,omitempty"`
	Chunks    []string                 `json:"chunks,omitempty"`
	Warnings  []string                 `json:"warnings,omitempty"`
}

// Context returns the extracted chunks joined for the prompt.
func (r Result) Context() string {
	return strings.Join(r.Chunks, ChunkSeparator)
}

// Ingestor dispatches uploads to the table inferencer or the relevance filter.
type Ingestor struct {
	pdf    ocr.Extractor
	filter FilterOptions
}

// New creates an Ingestor. pdf may be nil, in which case PDF uploads produce
// a warning instead of text.
func New(pdf ocr.Extractor, filter FilterOptions) *Ingestor {
	return &Ingestor{pdf: pdf, filter: filter}
}

// Ingest processes one in-memory upload.
func (in *Ingestor) Ingest(ctx context.Context, name string, data []byte) Result {
	res := Result{Kind: DetectKind(name, data)}
	log := zap.L().With(zap.String("file", name), zap.String("kind", string(res.Kind)))

	if len(data) == 0 {
		res.warn(log, "file is empty", nil)
		return res
	}

	switch res.Kind {
	case KindCSV, KindXLSX:
		var (
			t   Table
			err error
		)
		if res.Kind == KindCSV {
			t, err = ReadCSV(data)
		} else {
			t, err = ReadXLSX(data)
		}
		if err != nil {
			res.warn(log, "could not read table", err)
			return res
		}
		res.Overrides = InferFields(t)
		if len(res.Overrides) == 0 {
			res.warn(log, "no profile fields recognised in table", nil)
		}

	case KindPDF:
		if in.pdf == nil {
			res.warn(log, "pdf extraction is not configured", nil)
			return res
		}
		text, err := in.pdf.ExtractText(ctx, data)
		if err != nil {
			res.warn(log, "could not extract pdf text", err)
			return res
		}
		res.filterText(log, text, in.filter)

	case KindText:
		text, err := DecodeText(data)
		if err != nil {
			res.warn(log, "could not decode text", err)
			return res
		}
		res.filterText(log, text, in.filter)

	default:
		res.warn(log, "unsupported file type (want csv, xlsx, pdf or txt)", nil)
	}

	log.Info("ingest: processed upload",
		zap.Int("bytes", len(data)),
		zap.Int("overrides", len(res.Overrides)),
		zap.Int("chunks", len(res.Chunks)),
		zap.Int("warnings", len(res.Warnings)),
	)
	return res
}

func (r *Result) filterText(log *zap.Logger, text string, opts FilterOptions) {
	r.Chunks = RelevantChunks(text, opts)
	if len(r.Chunks) == 0 {
		r.warn(log, "no financial keywords found in document", nil)
	}
}

func (r *Result) warn(log *zap.Logger, msg string, err error) {
	if err != nil {
		log.Warn("ingest: "+msg, zap.Error(err))
		msg = msg + ": " + err.Error()
	} else {
		log.Warn("ingest: " + msg)
	}
	r.Warnings = append(r.Warnings, msg)
}
