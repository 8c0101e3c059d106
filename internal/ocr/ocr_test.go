package ocr

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/fiplanner/internal/config"
)

const payslipText = "Payslip for March 2026\n" +
	"Basic Pay        52,000\n" +
	"HRA              20,800\n" +
	"EPF contribution  6,240\n" +
	"Net Salary       85,000\n"

// payslipPDF stands in for an uploaded salary slip: a PDF header line
// followed by the text a real extractor would recover.
var payslipPDF = []byte("%PDF-1.4\n" + payslipText)

// writeFakePdfToText installs a shell script that accepts only the
// "-layout - -" invocation and runs body against stdin.
func writeFakePdfToText(t *testing.T, body string) string {
	t.Helper()
	bin := filepath.Join(t.TempDir(), "pdftotext")
	script := "#!/bin/sh\n[ \"$1\" = \"-layout\" ] && [ \"$2\" = \"-\" ] && [ \"$3\" = \"-\" ] || exit 9\n" + body + "\n"
	require.NoError(t, os.WriteFile(bin, []byte(script), 0o755))
	return bin
}

func TestNewExtractor(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.OCRConfig
		want    any
		wantErr string
	}{
		{name: "default is local", cfg: config.OCRConfig{}, want: &PdfToText{}},
		{name: "local", cfg: config.OCRConfig{Provider: "local", PdfToTextPath: "/opt/poppler/pdftotext"}, want: &PdfToText{}},
		{name: "mistral", cfg: config.OCRConfig{Provider: "mistral", MistralKey: "k"}, want: &MistralOCR{}},
		{name: "mistral without key", cfg: config.OCRConfig{Provider: "mistral"}, wantErr: "mistral provider requires ocr.mistral_key"},
		{name: "unknown", cfg: config.OCRConfig{Provider: "tesseract"}, wantErr: `unknown provider "tesseract"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ext, err := NewExtractor(tt.cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, ext)
		})
	}
}

func TestNewExtractor_NoneDisablesPDF(t *testing.T) {
	ext, err := NewExtractor(config.OCRConfig{Provider: "none"})
	require.NoError(t, err)
	assert.Nil(t, ext)
}

func TestNewExtractor_ConfigReachesExtractor(t *testing.T) {
	ext, err := NewExtractor(config.OCRConfig{Provider: "local", PdfToTextPath: "/opt/poppler/pdftotext"})
	require.NoError(t, err)
	assert.Equal(t, "/opt/poppler/pdftotext", ext.(*PdfToText).binPath)

	ext, err = NewExtractor(config.OCRConfig{Provider: "mistral", MistralKey: "k", MistralModel: "mistral-ocr-latest"})
	require.NoError(t, err)
	assert.Equal(t, "mistral-ocr-latest", ext.(*MistralOCR).model)
	assert.Equal(t, "k", ext.(*MistralOCR).apiKey)
}

func TestPdfToText_DefaultBinary(t *testing.T) {
	assert.Equal(t, "pdftotext", NewPdfToText("").binPath)
}

func TestPdfToText_Payslip(t *testing.T) {
	// Dropping the header line leaves the slip text, as pdftotext would.
	bin := writeFakePdfToText(t, "sed 1d")

	text, err := NewPdfToText(bin).ExtractText(context.Background(), payslipPDF)
	require.NoError(t, err)
	assert.Equal(t, payslipText, text)
	assert.Contains(t, text, "EPF contribution  6,240")
}

func TestPdfToText_StderrInError(t *testing.T) {
	bin := writeFakePdfToText(t, "echo \"Syntax Error: Couldn't find trailer dictionary\" >&2\nexit 1")

	_, err := NewPdfToText(bin).ExtractText(context.Background(), []byte("%PDF-1.4 truncated"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pdftotext failed")
	assert.Contains(t, err.Error(), "Couldn't find trailer dictionary")
}

func TestPdfToText_MissingBinary(t *testing.T) {
	_, err := NewPdfToText(filepath.Join(t.TempDir(), "absent")).ExtractText(context.Background(), payslipPDF)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ocr: pdftotext failed")
}

func TestPdfToText_CanceledContext(t *testing.T) {
	bin := writeFakePdfToText(t, "cat")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewPdfToText(bin).ExtractText(ctx, payslipPDF)
	require.Error(t, err)
}

func newTestMistral(url string) *MistralOCR {
	return &MistralOCR{
		apiKey:   "test-key",
		model:    "test-model",
		endpoint: url,
		client:   &http.Client{},
	}
}

func TestMistralOCR_Defaults(t *testing.T) {
	m := NewMistralOCR("key", "")
	assert.Equal(t, defaultMistralModel, m.model)
	assert.Equal(t, mistralOCREndpoint, m.endpoint)
	assert.NotZero(t, m.client.Timeout)
}

func TestMistralOCR_PayslipPages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req mistralOCRRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		assert.Equal(t, "document_url", req.Document.Type)

		encoded, ok := strings.CutPrefix(req.Document.DocumentURL, "data:application/pdf;base64,")
		require.True(t, ok, "document_url should be a pdf data URL")
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		require.NoError(t, err)
		assert.Equal(t, payslipPDF, decoded)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(mistralOCRResponse{ //nolint:errcheck
			Pages: []mistralOCRPage{
				{Index: 0, Markdown: "| Basic Pay | 52,000 |\n| HRA | 20,800 |"},
				{Index: 1, Markdown: "| EPF contribution | 6,240 |\n| Net Salary | 85,000 |"},
			},
		})
	}))
	defer srv.Close()

	text, err := newTestMistral(srv.URL).ExtractText(context.Background(), payslipPDF)
	require.NoError(t, err)
	assert.Equal(t,
		"| Basic Pay | 52,000 |\n| HRA | 20,800 |\n\n| EPF contribution | 6,240 |\n| Net Salary | 85,000 |",
		text)
}

func TestMistralOCR_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{name: "rejected key", status: http.StatusUnauthorized, body: `{"message":"Unauthorized"}`, wantErr: "mistral API returned 401"},
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{"message":"rate limit"}`, wantErr: "mistral API returned 429"},
		{name: "malformed body", status: http.StatusOK, body: `{"pages": [`, wantErr: "unmarshal mistral response"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body)) //nolint:errcheck
			}))
			defer srv.Close()

			_, err := newTestMistral(srv.URL).ExtractText(context.Background(), payslipPDF)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMistralOCR_EmptyUploadSkipsCall(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	defer srv.Close()

	_, err := newTestMistral(srv.URL).ExtractText(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty PDF")
	assert.False(t, called)
}

func TestMistralOCR_ScannedSlipWithoutText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(mistralOCRResponse{Pages: []mistralOCRPage{}}) //nolint:errcheck
	}))
	defer srv.Close()

	text, err := newTestMistral(srv.URL).ExtractText(context.Background(), payslipPDF)
	require.NoError(t, err)
	assert.Empty(t, text)
}
