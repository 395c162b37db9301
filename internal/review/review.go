// Package review runs the end-to-end document review: extraction,
// chunked LLM review, and text-to-geometry reconciliation that anchors
// every reported issue to highlightable quadpoints.
package review

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/zhaoxiaowang1993/ai-doc-review/internal/geom"
	"github.com/zhaoxiaowang1993/ai-doc-review/internal/layout"
	"github.com/zhaoxiaowang1993/ai-doc-review/internal/llm"
	"github.com/zhaoxiaowang1993/ai-doc-review/internal/locate"
	"github.com/zhaoxiaowang1993/ai-doc-review/internal/mineru"
	"github.com/zhaoxiaowang1993/ai-doc-review/internal/model"
	"github.com/zhaoxiaowang1993/ai-doc-review/internal/pdftext"
)

// ErrNoParagraphs reports that extraction produced no reviewable text.
var ErrNoParagraphs = errors.New("no paragraphs extracted from document")

// Extractor produces the parsed extraction artifacts for a document.
// Implemented by the mineru client; faked in tests.
type Extractor interface {
	Extract(ctx context.Context, filePath string) (*mineru.Extraction, error)
}

// Options tunes geometry conversion and chunking.
type Options struct {
	// ChunkSize is the number of paragraphs per LLM call; -1 reviews the
	// whole document in one chunk.
	ChunkSize int
	// BBoxOrigin and BBoxUnits describe the extraction bbox space for the
	// raw-bbox fallback conversion.
	BBoxOrigin geom.Origin
	BBoxUnits  geom.Units
	// ContentCoverage estimates how much of the pixel canvas the observed
	// content extent covers when the true canvas is unknown.
	ContentCoverage float64
}

// Pipeline wires extraction, the LLM reviewer, and geometry resolution.
type Pipeline struct {
	extractor Extractor
	reviewer  llm.Reviewer
	opts      Options
	log       *slog.Logger
}

func NewPipeline(extractor Extractor, reviewer llm.Reviewer, opts Options, log *slog.Logger) *Pipeline {
	if opts.ChunkSize == 0 {
		opts.ChunkSize = -1
	}
	return &Pipeline{extractor: extractor, reviewer: reviewer, opts: opts, log: log}
}

// Stream reviews the document and delivers issues chunk by chunk on the
// returned channel. A failed chunk is logged and skipped; fatal errors
// (extraction failure, empty document) arrive on the error channel.
// Both channels close when the review is finished.
func (p *Pipeline) Stream(ctx context.Context, pdfPath, userID string, rules []model.ReviewRule) (<-chan []model.Issue, <-chan error) {
	issuesCh := make(chan []model.Issue)
	errCh := make(chan error, 1)

	go func() {
		defer close(issuesCh)
		defer close(errCh)
		if err := p.run(ctx, pdfPath, userID, rules, issuesCh); err != nil {
			errCh <- err
		}
	}()
	return issuesCh, errCh
}

func (p *Pipeline) run(ctx context.Context, pdfPath, userID string, rules []model.ReviewRule, out chan<- []model.Issue) error {
	ext, err := p.extractor.Extract(ctx, pdfPath)
	if err != nil {
		return err
	}

	paragraphs := mineru.ToParagraphs(ext.Payload, ext.CanvasSizes)
	if len(paragraphs) == 0 && len(ext.Markdown) > 0 {
		p.log.Warn("no paragraphs in JSON artifact, falling back to markdown", "doc", filepath.Base(pdfPath))
		paragraphs = mineru.MarkdownParagraphs(ext.Markdown)
	}
	if len(paragraphs) == 0 {
		return ErrNoParagraphs
	}
	p.log.Info("paragraphs extracted", "doc", filepath.Base(pdfPath), "count", len(paragraphs))

	// The source PDF is optional from here on: a missing or unreadable
	// text layer just disables the highest-confidence tier.
	doc, err := pdftext.Open(pdfPath)
	if err != nil {
		p.log.Warn("pdf text layer unavailable", "doc", filepath.Base(pdfPath), "error", err)
		doc = nil
	}
	if doc != nil {
		defer doc.Close()
	}

	res := &resolver{
		doc:    doc,
		layout: ext.Layout,
		spaces: mineru.PageSpaces(paragraphs),
		opts:   p.opts,
	}

	docName := filepath.Base(pdfPath)
	timestamp := time.Now().UTC().Format(time.RFC3339)
	guidance := Guidance(rules)
	system := SystemPrompt(rules)
	riskByType := riskLevels(rules)

	chunks := chunkParagraphs(paragraphs, p.opts.ChunkSize)
	p.log.Info("review chunks prepared", "doc", docName, "chunks", len(chunks), "chunk_size", p.opts.ChunkSize)

	for chunkIndex, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		raw, err := p.reviewChunk(ctx, system, UserMessage(chunkIndex, chunk, guidance))
		if err != nil {
			p.log.Error("chunk review failed", "doc", docName, "chunk", chunkIndex, "error", err)
			continue
		}
		issues := p.assembleIssues(raw, chunk, res, docName, userID, timestamp, riskByType)
		if len(issues) > 0 {
			select {
			case out <- issues:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

// reviewChunk calls the model, retrying rate limits and server errors
// with backoff.
func (p *Pipeline) reviewChunk(ctx context.Context, system, user string) ([]llm.ReviewIssue, error) {
	var lastErr error
	for attempt := 0; attempt <= llm.MaxRetries; attempt++ {
		raw, err := p.reviewer.Review(ctx, system, user)
		if err == nil {
			return raw, nil
		}
		lastErr = err
		if !llm.IsRetryable(err) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(llm.Backoff(attempt)):
		}
	}
	return nil, lastErr
}

func (p *Pipeline) assembleIssues(raw []llm.ReviewIssue, chunk []model.Paragraph, res *resolver, docName, userID, timestamp string, riskByType map[string]model.RiskLevel) []model.Issue {
	var issues []model.Issue
	for _, r := range raw {
		paraIndex := r.ParaIndex
		if paraIndex < 0 || paraIndex >= len(chunk) {
			paraIndex = 0
		}
		para := chunk[paraIndex]
		pageNum := para.PageNum
		if pageNum < 1 {
			pageNum = 1
		}

		bbox := res.resolve(pageNum, r.Text, para)

		risk, ok := riskByType[r.Type]
		if !ok {
			risk = model.RiskMedium
		}

		issues = append(issues, model.Issue{
			ID:           uuid.NewString(),
			DocID:        docName,
			Text:         r.Text,
			Type:         r.Type,
			Status:       model.StatusNotReviewed,
			SuggestedFix: r.SuggestedFix,
			Explanation:  r.Explanation,
			RiskLevel:    risk,
			Location: &model.Location{
				SourceSentence: para.Content,
				PageNum:        pageNum,
				BoundingBox:    bbox,
				ParaIndex:      paraIndex,
			},
			ReviewInitiatedBy:    userID,
			ReviewInitiatedAtUTC: timestamp,
		})
	}
	return issues
}

// resolver runs the geometry cascade for one document.
type resolver struct {
	doc     *pdftext.Doc
	layout  *layout.Document
	spaces  map[int]mineru.PageSpace
	opts    Options
	indexes map[int]*layout.Index
}

// resolve finds quadpoints for an issue: PDF text layer first, then
// layout matching, then the paragraph's raw bbox, and finally a
// zero-area box so the issue is never dropped for want of geometry.
func (r *resolver) resolve(pageNum int, needle string, para model.Paragraph) []float64 {
	if quad := locate.FromTextLayer(r.doc, pageNum, needle, para.Content); quad != nil {
		return quad
	}

	pageSize := r.pageSize(pageNum)
	if r.layout != nil && pageSize != nil {
		if quad := locate.FromLayout(r.indexFor(pageNum), pageSize, needle, para.Content); quad != nil {
			return quad
		}
	}

	if pageSize != nil || para.BBox != nil {
		space, known := r.spaces[pageNum]
		var observed *[2]float64
		coverage := r.opts.ContentCoverage
		if known {
			observed = &space.ObservedMax
			if space.IsCanvas {
				coverage = 1.0
			}
		}
		if quad := geom.Quadpoints(para.BBox, pageSize, geom.Options{
			Origin:          r.opts.BBoxOrigin,
			Units:           r.opts.BBoxUnits,
			ObservedMax:     observed,
			ContentCoverage: coverage,
		}); quad != nil {
			return quad
		}
	}

	return []float64{0, 0, 0, 0, 0, 0, 0, 0}
}

func (r *resolver) pageSize(pageNum int) *geom.PageSize {
	if size, ok := r.doc.PageSize(pageNum); ok {
		return &size
	}
	return nil
}

func (r *resolver) indexFor(pageNum int) *layout.Index {
	if r.indexes == nil {
		r.indexes = make(map[int]*layout.Index)
	}
	idx, ok := r.indexes[pageNum]
	if !ok {
		idx = layout.NewIndex(r.layout, pageNum)
		r.indexes[pageNum] = idx
	}
	return idx
}

func chunkParagraphs(paragraphs []model.Paragraph, size int) [][]model.Paragraph {
	if size <= 0 {
		return [][]model.Paragraph{paragraphs}
	}
	var chunks [][]model.Paragraph
	for i := 0; i < len(paragraphs); i += size {
		end := i + size
		if end > len(paragraphs) {
			end = len(paragraphs)
		}
		chunks = append(chunks, paragraphs[i:end])
	}
	return chunks
}

// riskLevels maps issue types to risk grades: built-ins are fixed,
// custom rules bring their declared level, anything else is medium.
func riskLevels(rules []model.ReviewRule) map[string]model.RiskLevel {
	m := map[string]model.RiskLevel{
		model.TypeDefinitiveLanguage: model.RiskHigh,
		model.TypeGrammarSpelling:    model.RiskLow,
	}
	for _, r := range rules {
		if r.RiskLevel != "" {
			m[r.Name] = r.RiskLevel
		} else {
			m[r.Name] = model.RiskMedium
		}
	}
	return m
}
