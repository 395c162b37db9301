// Package mineru talks to the MinerU-style document extraction service
// and normalizes what it returns: upload a PDF, poll the batch until
// done, download the result zip, pick the best JSON artifact, and
// flatten it into ordered paragraphs with positional metadata.
package mineru

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/zhaoxiaowang1993/ai-doc-review/internal/layout"
)

// ErrExtractTimeout reports that the extraction service did not finish
// within the configured deadline. Fatal for the document's review.
var ErrExtractTimeout = errors.New("extraction timed out")

// Client calls the extraction service's v4 batch API:
//
//  1. POST /api/v4/file-urls/batch for a pre-signed upload URL
//  2. PUT the file bytes to that URL
//  3. poll GET /api/v4/extract-results/batch/{id} until state=done
//  4. download full_zip_url and parse the artifacts inside
type Client struct {
	baseURL        string
	apiKey         string
	modelVersion   string
	pollInterval   time.Duration
	maxWait        time.Duration
	cacheDir       string
	cacheArtifacts bool
	httpClient     *http.Client
	log            *slog.Logger
}

// Options configures a Client.
type Options struct {
	BaseURL        string
	APIKey         string
	ModelVersion   string
	PollInterval   time.Duration
	MaxWait        time.Duration
	CacheDir       string
	CacheArtifacts bool
}

func NewClient(opts Options, log *slog.Logger) *Client {
	return &Client{
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		apiKey:         opts.APIKey,
		modelVersion:   opts.ModelVersion,
		pollInterval:   opts.PollInterval,
		maxWait:        opts.MaxWait,
		cacheDir:       opts.CacheDir,
		cacheArtifacts: opts.CacheArtifacts,
		httpClient: &http.Client{
			Timeout: 300 * time.Second,
		},
		log: log,
	}
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// Extraction is the parsed output of one document extraction.
type Extraction struct {
	// Payload is the best JSON artifact from the result zip.
	Payload []byte
	// Layout is the line/span-level layout artifact, when present.
	Layout *layout.Document
	// CanvasSizes maps 1-based page numbers to full-page pixel sizes,
	// recovered from rendered page images or the layout artifact.
	CanvasSizes map[int][2]float64
	// Markdown is the rendered markdown artifact, kept as a text-only
	// paragraph fallback when no JSON artifact is usable.
	Markdown []byte

	SelectedJSON string
	ZipFiles     []string
}

// Extract runs the full upload/poll/download cycle for one local file.
func (c *Client) Extract(ctx context.Context, filePath string) (*Extraction, error) {
	if c.apiKey == "" {
		return nil, errors.New("extraction api key is required")
	}
	if _, err := os.Stat(filePath); err != nil {
		return nil, fmt.Errorf("stat input: %w", err)
	}
	fileName := filepath.Base(filePath)
	c.log.Info("requesting extraction", "file", fileName)

	batchID, uploadURL, err := c.requestUploadURL(ctx, fileName)
	if err != nil {
		return nil, err
	}
	if err := c.uploadFile(ctx, uploadURL, filePath); err != nil {
		return nil, err
	}
	zipURL, err := c.pollBatch(ctx, batchID, fileName)
	if err != nil {
		return nil, err
	}
	zipBytes, err := c.download(ctx, zipURL)
	if err != nil {
		return nil, err
	}
	return c.parseZip(zipBytes, safeStem(strings.TrimSuffix(fileName, filepath.Ext(fileName))))
}

type batchResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		BatchID  string   `json:"batch_id"`
		FileURLs []string `json:"file_urls"`
		Files    []string `json:"files"`
	} `json:"data"`
}

func (c *Client) requestUploadURL(ctx context.Context, fileName string) (string, string, error) {
	body, err := sonic.Marshal(map[string]any{
		"files":         []map[string]string{{"name": fileName, "data_id": fileName}},
		"model_version": c.modelVersion,
	})
	if err != nil {
		return "", "", fmt.Errorf("marshal upload request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v4/file-urls/batch", bytes.NewReader(body))
	if err != nil {
		return "", "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("request upload url: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", "", fmt.Errorf("read upload url response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("upload url request status %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}
	var parsed batchResponse
	if err := sonic.Unmarshal(raw, &parsed); err != nil {
		return "", "", fmt.Errorf("decode upload url response: %w", err)
	}
	if parsed.Code != 0 {
		return "", "", fmt.Errorf("upload url request failed: %s", parsed.Msg)
	}
	urls := parsed.Data.FileURLs
	if len(urls) == 0 {
		urls = parsed.Data.Files
	}
	if parsed.Data.BatchID == "" || len(urls) == 0 {
		return "", "", fmt.Errorf("upload url response missing batch_id or file_urls")
	}
	return parsed.Data.BatchID, urls[0], nil
}

func (c *Client) uploadFile(ctx context.Context, uploadURL, filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create upload request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("upload file status %d", resp.StatusCode)
	}
	return nil
}

type pollResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		ExtractResult  []pollResult `json:"extract_result"`
		ExtractResults []pollResult `json:"extract_results"`
	} `json:"data"`
}

type pollResult struct {
	FileName   string `json:"file_name"`
	State      string `json:"state"`
	FullZipURL string `json:"full_zip_url"`
	ErrMsg     string `json:"err_msg"`
}

func (c *Client) pollBatch(ctx context.Context, batchID, fileName string) (string, error) {
	url := fmt.Sprintf("%s/api/v4/extract-results/batch/%s", c.baseURL, batchID)
	deadline := time.Now().Add(c.maxWait)

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return "", fmt.Errorf("create poll request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return "", fmt.Errorf("poll batch: %w", err)
		}
		raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		resp.Body.Close()
		if err != nil {
			return "", fmt.Errorf("read poll response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("poll status %d: %s", resp.StatusCode, truncate(string(raw), 200))
		}
		var parsed pollResponse
		if err := sonic.Unmarshal(raw, &parsed); err != nil {
			return "", fmt.Errorf("decode poll response: %w", err)
		}
		if parsed.Code != 0 {
			return "", fmt.Errorf("poll failed: %s", parsed.Msg)
		}
		results := parsed.Data.ExtractResult
		if len(results) == 0 {
			results = parsed.Data.ExtractResults
		}
		for _, r := range results {
			if r.FileName != fileName {
				continue
			}
			switch r.State {
			case "done":
				if r.FullZipURL == "" {
					return "", fmt.Errorf("extraction done but missing full_zip_url")
				}
				return r.FullZipURL, nil
			case "failed":
				return "", fmt.Errorf("extraction failed: %s", r.ErrMsg)
			}
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("%w: %s (batch %s)", ErrExtractTimeout, fileName, batchID)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
}

func (c *Client) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create download request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download result: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read result zip: %w", err)
	}
	return data, nil
}

// parseZip selects and decodes the useful artifacts from a result zip.
func (c *Client) parseZip(zipBytes []byte, cacheKey string) (*Extraction, error) {
	zr, err := zip.NewReader(bytes.NewReader(zipBytes), int64(len(zipBytes)))
	if err != nil {
		return nil, fmt.Errorf("open result zip: %w", err)
	}

	ext := &Extraction{CanvasSizes: make(map[int][2]float64)}
	var jsonNames []string
	for _, f := range zr.File {
		ext.ZipFiles = append(ext.ZipFiles, f.Name)
		if strings.HasSuffix(strings.ToLower(f.Name), ".json") {
			jsonNames = append(jsonNames, f.Name)
		}
	}
	if len(jsonNames) == 0 {
		return nil, errors.New("result zip contained no JSON artifacts")
	}

	if c.cacheArtifacts && c.cacheDir != "" {
		if err := os.MkdirAll(c.cacheDir, 0o755); err == nil {
			if err := os.WriteFile(filepath.Join(c.cacheDir, cacheKey+".zip"), zipBytes, 0o644); err != nil {
				c.log.Warn("failed to cache result zip", "error", err)
			}
		}
	}

	// Rendered page images carry the true pixel canvas per page.
	for page, size := range canvasSizesFromImages(zr) {
		ext.CanvasSizes[page] = size
	}

	// The layout artifact both drives span-level matching and declares
	// per-page canvas sizes; the latter win over image-derived sizes.
	if name := findLayout(jsonNames); name != "" {
		if raw, err := readZipFile(zr, name); err == nil {
			if doc, err := layout.Parse(raw); err == nil {
				ext.Layout = doc
				for page, size := range doc.CanvasSizes() {
					ext.CanvasSizes[page] = size
				}
			} else {
				c.log.Warn("failed to parse layout artifact", "name", name, "error", err)
			}
			if c.cacheArtifacts && c.cacheDir != "" {
				if err := os.WriteFile(filepath.Join(c.cacheDir, cacheKey+".layout.json"), raw, 0o644); err != nil {
					c.log.Warn("failed to cache layout artifact", "error", err)
				}
			}
		}
	}

	if name := findMarkdown(ext.ZipFiles); name != "" {
		if raw, err := readZipFile(zr, name); err == nil {
			ext.Markdown = raw
		}
	}

	ext.Payload, ext.SelectedJSON = selectPayload(zr, jsonNames)
	if ext.Payload == nil {
		return nil, errors.New("no readable JSON artifact in result zip")
	}
	c.log.Info("extraction artifacts parsed",
		"selected", ext.SelectedJSON,
		"canvas_pages", len(ext.CanvasSizes),
		"has_layout", ext.Layout != nil,
	)
	return ext, nil
}

func findLayout(names []string) string {
	for _, n := range names {
		if strings.HasSuffix(strings.ToLower(n), "layout.json") {
			return n
		}
	}
	return ""
}

func findMarkdown(names []string) string {
	for _, n := range names {
		if strings.HasSuffix(strings.ToLower(n), ".md") {
			return n
		}
	}
	return ""
}

func readZipFile(zr *zip.Reader, name string) ([]byte, error) {
	f, err := zr.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// safeStem keeps cache keys filesystem-safe.
func safeStem(stem string) string {
	var sb strings.Builder
	for _, r := range stem {
		if r == '-' || r == '_' ||
			(r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			sb.WriteRune(r)
		} else {
			sb.WriteByte('_')
		}
	}
	return sb.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
