package internal

import "encoding/json"

// RawAuditRecord is the canonical shape of an audit document after the
// schema-variant adapter has run. Pointer fields are nil when the source
// document did not carry the field.
type RawAuditRecord struct {
	ID                string
	AuditID           string
	GeneratedAt       string
	OverallPercentage *float64
	ModuleAPercentage *float64
	ModuleBPercentage *float64
	GapReport         *string
	Recommendations   *string
	ExecutiveSummary  *string
	ChecklistVersion  string
	TotalQuestions    *int
	Variant           string
}

type FindingStatus int

const (
	FindingPass FindingStatus = iota
	FindingPartial
	FindingFail
)

func (s FindingStatus) String() string {
	switch s {
	case FindingPass:
		return "Pass"
	case FindingPartial:
		return "Partial"
	default:
		return "Fail"
	}
}

type Finding struct {
	ControlID   string        `json:"controlId"`
	ControlName string        `json:"controlName"`
	Gap         float64       `json:"gap"`
	Score       int           `json:"score"`
	Description string        `json:"description"`
	StatusCode  FindingStatus `json:"statusCode"`
}

type RecommendationGroup struct {
	ControlID string   `json:"controlId"`
	Items     []string `json:"items"`
}

type ModuleStats struct {
	Passed  int `json:"passed"`
	Partial int `json:"partial"`
	Failed  int `json:"failed"`
	Total   int `json:"total"`
}

type ControlScore struct {
	ControlID   string `json:"controlId"`
	ControlName string `json:"controlName"`
	Score       int    `json:"score"`
	Weight      int    `json:"weight"`
	Status      string `json:"status"`
}

type ModuleScore struct {
	ModuleName string         `json:"moduleName"`
	Score      float64        `json:"score"`
	Stats      ModuleStats    `json:"stats"`
	Findings   []Finding      `json:"findings"`
	Controls   []ControlScore `json:"controlScores"`
}

type AuditStatus string

const (
	StatusApproved      AuditStatus = "approved"
	StatusRejected      AuditStatus = "rejected"
	StatusPendingReview AuditStatus = "pending_review"
)

func (s AuditStatus) Valid() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusPendingReview:
		return true
	default:
		return false
	}
}

type StatusOverride struct {
	Previous  AuditStatus `json:"previous"`
	Reviewer  string      `json:"reviewer,omitempty"`
	Note      string      `json:"note,omitempty"`
	AppliedAt string      `json:"appliedAt"`
}

type WorkloadDetail struct {
	ControlID   string  `json:"controlId"`
	Name        string  `json:"name"`
	Status      string  `json:"status"`
	Score       int     `json:"score"`
	Gap         float64 `json:"gap"`
	Description string  `json:"description"`
}

// NormalizedAudit is the UI view-model. Values are replaced wholesale and
// never mutated after construction; slices are shared between copies.
type NormalizedAudit struct {
	ID               string                `json:"id"`
	AuditID          string                `json:"auditId"`
	DisplayName      string                `json:"displayName"`
	Name             string                `json:"name"`
	ShortName        string                `json:"shortName"`
	Type             string                `json:"type"`
	Status           AuditStatus           `json:"status"`
	StatusOverride   *StatusOverride       `json:"statusOverride,omitempty"`
	OverallScore     float64               `json:"overallScore"`
	GeneratedAt      string                `json:"generatedAt"`
	DueDate          string                `json:"dueDate"`
	SLADate          string                `json:"slaDate"`
	LastReviewed     string                `json:"lastReviewed"`
	ModuleA          ModuleScore           `json:"moduleAScore"`
	ModuleB          ModuleScore           `json:"moduleBScore"`
	Findings         []Finding             `json:"findings"`
	Recommendations  []RecommendationGroup `json:"recommendations"`
	KeyStrengths     []string              `json:"keyStrengths"`
	KeyGaps          []string              `json:"keyGaps"`
	WorkloadDetails  []WorkloadDetail      `json:"workloadDetails"`
	TotalQuestions   int                   `json:"totalQuestions"`
	EvidenceItems    int                   `json:"evidenceItems"`
	ChecklistVersion string                `json:"checklistVersion"`
	GapReport        string                `json:"gapReport"`
	ExecutiveSummary string                `json:"executiveSummary"`
	RecommendRaw     string                `json:"recommendationsRaw"`
	NormalizedAt     string                `json:"normalizedAt"`
}

type UploadStatus string

const (
	UploadPending   UploadStatus = "pending"
	UploadUploading UploadStatus = "uploading"
	UploadSuccess   UploadStatus = "success"
	UploadError     UploadStatus = "error"
)

type UploadRecord struct {
	ID          string       `json:"id"`
	AuditID     string       `json:"auditId"`
	FileName    string       `json:"fileName"`
	BlobName    string       `json:"blobName"`
	ContentType string       `json:"contentType"`
	Size        int64        `json:"size"`
	Status      UploadStatus `json:"status"`
	Progress    int          `json:"progress"`
	URL         string       `json:"url,omitempty"`
	Error       string       `json:"error,omitempty"`
	CreatedAt   string       `json:"createdAt"`
}

// EvidenceFile is one piece of evidence on its way to the blob store, either
// uploaded directly or taken from an intake message attachment.
type EvidenceFile struct {
	Name        string
	ContentType string
	Content     []byte
}

// EvidenceDocument is extracted evidence text pushed to the search index.
type EvidenceDocument struct {
	ID       string
	AuditID  string
	Title    string
	Content  string
	BlobName string
	Source   string
}

type IntakeStatus string

const (
	IntakeFetched   IntakeStatus = "fetched"
	IntakeProcessed IntakeStatus = "processed"
	IntakeSkipped   IntakeStatus = "skipped"
	IntakeUnmatched IntakeStatus = "unmatched"
)

// IntakeEmailRow is one evidence-intake message as stored locally. The match
// columns are filled once the message has been processed.
type IntakeEmailRow struct {
	ID              int
	Provider        string
	MessageID       string
	Subject         string
	Sender          string
	ReceivedAt      string
	Hash            string
	Status          IntakeStatus
	RawRef          string
	SubjectAuditID  *string
	AuditID         *string
	MatchStatus     *string
	MatchConfidence *float64
	DetectScore     *float64
}

type FetchedMailMessage struct {
	Provider   string
	MessageID  string
	Subject    string
	From       string
	ReceivedAt string
	Raw        []byte
}

type MatchStatus string

type MatchReason string

const (
	MatchOK       MatchStatus = "OK"
	MatchReview   MatchStatus = "REVIEW"
	MatchNotFound MatchStatus = "NOT_FOUND"

	ReasonID    MatchReason = "ID"
	ReasonName  MatchReason = "NAME"
	ReasonFuzzy MatchReason = "FUZZY"
	ReasonNone  MatchReason = "NONE"
)

type MatchCandidate struct {
	AuditID     string  `json:"auditId"`
	DisplayName string  `json:"displayName"`
	Score       float64 `json:"score"`
}

type MatchResult struct {
	Status     MatchStatus      `json:"status"`
	Confidence float64          `json:"confidence"`
	Reason     MatchReason      `json:"reason"`
	AuditID    *string          `json:"auditId"`
	Candidates []MatchCandidate `json:"candidates"`
}

// SearchDocument is one hit from the evidence search index. Fields holds the
// full document since index schemas vary.
type SearchDocument struct {
	Fields map[string]any
	Score  float64
}

type RAGSource struct {
	SourceNumber   int     `json:"sourceNumber"`
	DocumentName   string  `json:"documentName"`
	DocumentID     *string `json:"documentId"`
	RelevanceScore float64 `json:"relevanceScore"`
	ContentPreview string  `json:"contentPreview"`
}

type RAGUsage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

type RAGResponse struct {
	Content          string      `json:"content"`
	Sources          []RAGSource `json:"sources"`
	Usage            *RAGUsage   `json:"usage,omitempty"`
	RetrievalCount   int         `json:"retrievalCount"`
	ProcessingTimeMs int64       `json:"processingTimeMs"`
	Error            bool        `json:"error"`
	ErrorMessage     string      `json:"errorMessage,omitempty"`
}

type RAGQueryRecord struct {
	ID               string
	AuditID          string
	Prompt           string
	Response         string
	RetrievalCount   int
	ProcessingTimeMs int64
	Error            string
	CreatedAt        string
}

// PartnerSubmission is one evidence package a partner sent for review. Files
// holds the blob names of the uploaded evidence.
type PartnerSubmission struct {
	ID             string      `json:"id"`
	Date           string      `json:"date"`
	Specialization string      `json:"specialization"`
	AuditID        string      `json:"auditId,omitempty"`
	Files          []string    `json:"files"`
	Status         AuditStatus `json:"status"`
}

type StoredDocument struct {
	ID         string
	Raw        json.RawMessage
	Normalized *NormalizedAudit
	FetchedAt  string
}
