package api

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bytedance/sonic"

	"github.com/zhaoxiaowang1993/ai-doc-review/internal/config"
	"github.com/zhaoxiaowang1993/ai-doc-review/internal/llm"
	"github.com/zhaoxiaowang1993/ai-doc-review/internal/mineru"
	"github.com/zhaoxiaowang1993/ai-doc-review/internal/model"
	"github.com/zhaoxiaowang1993/ai-doc-review/internal/review"
)

type stubExtractor struct {
	ext *mineru.Extraction
	err error
}

func (s *stubExtractor) Extract(ctx context.Context, filePath string) (*mineru.Extraction, error) {
	return s.ext, s.err
}

type stubReviewer struct {
	issues []llm.ReviewIssue
}

func (s *stubReviewer) Review(ctx context.Context, system, user string) ([]llm.ReviewIssue, error) {
	return s.issues, nil
}

func newTestServer(ext *mineru.Extraction, issues []llm.ReviewIssue) *Server {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Config{
		ReviewAPIKey:   "secret",
		MaxUploadBytes: 1 << 20,
		Pagination:     32,
	}
	p := review.NewPipeline(&stubExtractor{ext: ext}, &stubReviewer{issues: issues}, review.Options{
		ChunkSize:       cfg.Pagination,
		ContentCoverage: 0.92,
	}, log)
	return NewServer(p, log, cfg)
}

func reviewRequest(t *testing.T, fields map[string]string, filename string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write([]byte("%PDF-1.4 fake"))
	}
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/review", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer secret")
	return req
}

func sampleExtraction() *mineru.Extraction {
	return &mineru.Extraction{
		Payload: []byte(`[{"text": "本产品绝对安全", "bbox": [10, 10, 200, 30], "page_idx": 0}]`),
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(sampleExtraction(), nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "ok") {
		t.Errorf("health: %d %s", rec.Code, rec.Body.String())
	}
}

func TestReview_RequiresAuth(t *testing.T) {
	srv := newTestServer(sampleExtraction(), nil)
	req := reviewRequest(t, map[string]string{"user_id": "u"}, "doc.pdf")
	req.Header.Del("Authorization")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestReview_StreamsIssueBatches(t *testing.T) {
	issues := []llm.ReviewIssue{{
		Type:      model.TypeDefinitiveLanguage,
		Text:      "绝对安全",
		ParaIndex: 0,
	}}
	srv := newTestServer(sampleExtraction(), issues)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, reviewRequest(t, map[string]string{"user_id": "reviewer-1"}, "doc.pdf"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/x-ndjson" {
		t.Errorf("content type = %q", ct)
	}

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 NDJSON line, got %d: %q", len(lines), lines)
	}
	var batch struct {
		Issues []model.Issue `json:"issues"`
	}
	if err := sonic.Unmarshal([]byte(lines[0]), &batch); err != nil {
		t.Fatalf("decode line: %v", err)
	}
	if len(batch.Issues) != 1 {
		t.Fatalf("issues in batch: %d", len(batch.Issues))
	}
	iss := batch.Issues[0]
	if iss.Type != model.TypeDefinitiveLanguage || iss.ReviewInitiatedBy != "reviewer-1" {
		t.Errorf("unexpected issue: %+v", iss)
	}
	if iss.Location == nil || len(iss.Location.BoundingBox) != 8 {
		t.Errorf("issue location: %+v", iss.Location)
	}
}

func TestReview_EmptyDocumentReportsError(t *testing.T) {
	srv := newTestServer(&mineru.Extraction{Payload: []byte(`{"pages": []}`)}, nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, reviewRequest(t, map[string]string{"user_id": "u"}, "doc.pdf"))

	body := rec.Body.String()
	if !strings.Contains(body, `"error"`) {
		t.Errorf("expected terminal error line, got %q", body)
	}
}

func TestReview_ValidatesInput(t *testing.T) {
	srv := newTestServer(sampleExtraction(), nil)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, reviewRequest(t, map[string]string{}, "doc.pdf"))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing user_id: status %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, reviewRequest(t, map[string]string{"user_id": "u"}, ""))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing file: status %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, reviewRequest(t, map[string]string{"user_id": "u"}, "doc.docx"))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("non-pdf file: status %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, reviewRequest(t, map[string]string{"user_id": "u", "rules": "{broken"}, "doc.pdf"))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad rules json: status %d", rec.Code)
	}
}

func TestParseRules(t *testing.T) {
	rules, err := parseRules(`[{"name": "保密检查", "description": "d", "risk_level": "高"}]`)
	if err != nil {
		t.Fatalf("parseRules: %v", err)
	}
	if len(rules) != 1 || rules[0].Name != "保密检查" || rules[0].RiskLevel != model.RiskHigh {
		t.Errorf("rules = %+v", rules)
	}

	if _, err := parseRules(`[{"description": "no name"}]`); err == nil {
		t.Error("expected error for unnamed rule")
	}
	if rules, err := parseRules(""); err != nil || rules != nil {
		t.Errorf("empty rules: %v %v", rules, err)
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := []struct{ in, want string }{
		{"../../etc/passwd", "passwd"},
		{"contract.pdf", "contract.pdf"},
		{"", "unnamed"},
	}
	for _, c := range cases {
		if got := sanitizeFilename(c.in); got != c.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
