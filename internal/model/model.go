// Package model holds the wire-level records shared across the review
// pipeline: paragraphs coming out of extraction, rules conditioning the
// LLM pass, and the issues it produces.
package model

// RiskLevel grades an issue. Values are the UI-facing Chinese labels.
type RiskLevel string

const (
	RiskHigh   RiskLevel = "高"
	RiskMedium RiskLevel = "中"
	RiskLow    RiskLevel = "低"
)

// IssueStatus tracks the human review workflow state of an issue.
type IssueStatus string

const (
	StatusAccepted    IssueStatus = "accepted"
	StatusDismissed   IssueStatus = "dismissed"
	StatusNotReviewed IssueStatus = "not_reviewed"
)

// Built-in issue types. Custom rules contribute their names as additional
// types at review time.
const (
	TypeGrammarSpelling    = "Grammar & Spelling"
	TypeDefinitiveLanguage = "Definitive Language"
)

// Location anchors an issue to a spot on a page. BoundingBox is a list of
// quadpoints: 8 numbers per quadrilateral (upper-left, upper-right,
// lower-left, lower-right) in bottom-left-origin point space. Multi-line
// text-layer matches may carry several quads (8*n numbers).
type Location struct {
	SourceSentence string    `json:"source_sentence"`
	PageNum        int       `json:"page_num"`
	BoundingBox    []float64 `json:"bounding_box"`
	ParaIndex      int       `json:"para_index"`
}

// ModifiedFields records reviewer edits to an issue.
type ModifiedFields struct {
	SuggestedFix *string `json:"suggested_fix,omitempty"`
	Explanation  *string `json:"explanation,omitempty"`
}

// DismissalFeedback carries the optional reason for dismissing an issue.
type DismissalFeedback struct {
	Reason *string `json:"reason,omitempty"`
}

// Issue is one LLM-reported problem located in the document. Geometry
// fields are written once during the review pass; the workflow layer only
// mutates status-transition fields afterwards.
type Issue struct {
	ID                   string             `json:"id"`
	DocID                string             `json:"doc_id"`
	Text                 string             `json:"text"`
	Type                 string             `json:"type"`
	Status               IssueStatus        `json:"status"`
	SuggestedFix         string             `json:"suggested_fix"`
	Explanation          string             `json:"explanation"`
	RiskLevel            RiskLevel          `json:"risk_level,omitempty"`
	Location             *Location          `json:"location,omitempty"`
	ReviewInitiatedBy    string             `json:"review_initiated_by"`
	ReviewInitiatedAtUTC string             `json:"review_initiated_at_UTC"`
	ResolvedBy           string             `json:"resolved_by,omitempty"`
	ResolvedAtUTC        string             `json:"resolved_at_UTC,omitempty"`
	ModifiedFields       *ModifiedFields    `json:"modified_fields,omitempty"`
	DismissalFeedback    *DismissalFeedback `json:"dismissal_feedback,omitempty"`
}

// RuleExample is a sample text illustrating a custom rule.
type RuleExample struct {
	Text        string `json:"text"`
	Explanation string `json:"explanation"`
}

// ReviewRule is a custom, user-defined review rule. Its name becomes an
// allowed issue type for the LLM pass.
type ReviewRule struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	RiskLevel   RiskLevel     `json:"risk_level"`
	Examples    []RuleExample `json:"examples,omitempty"`
	Status      string        `json:"status,omitempty"`
	CreatedAt   string        `json:"created_at,omitempty"`
	UpdatedAt   string        `json:"updated_at,omitempty"`
}

// Paragraph is one extracted text block with positional metadata.
// BBox is [x1,y1,x2,y2] (or 8-number quad) in the extraction service's
// coordinate space. CanvasSize, when known, is the full-page pixel size
// that space refers to.
type Paragraph struct {
	Content    string      `json:"content"`
	PageNum    int         `json:"page_num"`
	BBox       []float64   `json:"bbox,omitempty"`
	PageHeight float64     `json:"page_height,omitempty"`
	CanvasSize *[2]float64 `json:"canvas_size,omitempty"`
}
