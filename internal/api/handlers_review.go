package api

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/zhaoxiaowang1993/ai-doc-review/internal/model"
)

// handleReview accepts a PDF upload and streams review issues back as
// NDJSON: one {"issues": [...]} line per reviewed chunk, and a final
// {"error": "..."} line if the review dies midway. Streaming starts
// before the outcome is known, so errors after the first byte cannot
// change the HTTP status.
func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024) // extra 1MB for form overhead

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	userID := r.FormValue("user_id")
	if userID == "" {
		jsonError(w, "user_id is required", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	filename := sanitizeFilename(header.Filename)
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		jsonError(w, fmt.Sprintf("unsupported file type: %s", filepath.Ext(filename)), http.StatusBadRequest)
		return
	}

	rules, err := parseRules(r.FormValue("rules"))
	if err != nil {
		jsonError(w, "invalid rules: "+err.Error(), http.StatusBadRequest)
		return
	}

	tmpPath, err := s.saveUpload(file, filename)
	if err != nil {
		jsonError(w, err.Error(), http.StatusRequestEntityTooLarge)
		return
	}
	defer os.Remove(tmpPath)

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	flusher, _ := w.(http.Flusher)

	issuesCh, errCh := s.pipeline.Stream(r.Context(), tmpPath, userID, rules)
	for batch := range issuesCh {
		line, err := sonic.Marshal(map[string]any{"issues": batch})
		if err != nil {
			s.log.Error("marshal issue batch", "error", err)
			continue
		}
		w.Write(line)
		w.Write([]byte("\n"))
		if flusher != nil {
			flusher.Flush()
		}
	}
	if err := <-errCh; err != nil {
		s.log.Error("review failed", "doc", filename, "error", err)
		line, _ := sonic.Marshal(map[string]string{"error": err.Error()})
		w.Write(line)
		w.Write([]byte("\n"))
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// saveUpload copies the multipart file to a temp path the extraction
// client and PDF reader can open, enforcing the size cap.
func (s *Server) saveUpload(file io.Reader, filename string) (string, error) {
	tmp, err := os.CreateTemp("", "review-*-"+filename)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer tmp.Close()

	n, err := io.Copy(tmp, io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("save upload: %w", err)
	}
	if n > s.cfg.MaxUploadBytes {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes)
	}
	return tmp.Name(), nil
}

func parseRules(raw string) ([]model.ReviewRule, error) {
	if raw == "" {
		return nil, nil
	}
	var rules []model.ReviewRule
	if err := sonic.Unmarshal([]byte(raw), &rules); err != nil {
		return nil, err
	}
	for i, r := range rules {
		if r.Name == "" {
			return nil, fmt.Errorf("rule %d has no name", i)
		}
	}
	return rules, nil
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	line, _ := sonic.Marshal(map[string]string{"error": msg})
	w.Write(line)
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "unnamed"
	}
	return name
}
