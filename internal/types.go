package internal

import (
	"path/filepath"
	"strings"
)

type AttachmentKind string

const (
	KindPDF   AttachmentKind = "pdf"
	KindDOCX  AttachmentKind = "docx"
	KindOther AttachmentKind = "other"
)

func KindForFilename(name string) AttachmentKind {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return KindPDF
	case ".docx":
		return KindDOCX
	default:
		return KindOther
	}
}

// AttachmentRef is one decoded attachment part, owned by its RawEmail.
type AttachmentRef struct {
	Filename string
	Content  []byte
	Kind     AttachmentKind
}

// RawEmail is the parsed form of one .eml file. Immutable after extraction.
type RawEmail struct {
	Subject     string
	Body        string
	Attachments []AttachmentRef
}

type ExtractionMethod string

const (
	MethodNative      ExtractionMethod = "native"
	MethodOCR         ExtractionMethod = "ocr"
	MethodUnsupported ExtractionMethod = "unsupported"
	MethodError       ExtractionMethod = "error"
)

// ExtractedAttachmentText is the text derived from one attachment. When
// Method is "error", Text holds a diagnostic rather than content.
type ExtractedAttachmentText struct {
	SourceFilename string
	Text           string
	Method         ExtractionMethod
}

const (
	DefaultRequestType    = "Unclassified"
	DefaultSubRequestType = "N/A"
	DefaultConfidence     = "Unknown"
	DefaultContext        = "No context provided"
)

// ClassificationResult is the canonical pipeline output. Field order is the
// wire contract: encoding/json emits struct fields in declaration order, so
// the boundary serialization stays request_type, sub_request_type,
// DuplicateFlag, confidence_score, assigned_to, role, context, extracted_data.
type ClassificationResult struct {
	RequestType     string            `json:"request_type"`
	SubRequestType  string            `json:"sub_request_type"`
	Duplicate       bool              `json:"DuplicateFlag"`
	ConfidenceScore string            `json:"confidence_score"`
	AssignedTo      string            `json:"assigned_to"`
	Role            string            `json:"role"`
	Context         string            `json:"context"`
	ExtractedData   map[string]string `json:"extracted_data"`
}

// RoutingEntry names who handles a classified request.
type RoutingEntry struct {
	Role       string `yaml:"role" json:"role"`
	AssignedTo string `yaml:"assigned_to" json:"assigned_to"`
}

type EmailRow struct {
	ID         int
	Provider   string
	MessageID  string
	Subject    string
	Sender     string
	ReceivedAt string
	Hash       string
	Status     string
	RawRef     string
}

type FetchedMailMessage struct {
	Provider   string
	MessageID  string
	Subject    string
	From       string
	ReceivedAt string
	Raw        []byte
}

type ResultExportRow struct {
	EmailID         int
	Subject         string
	RequestType     string
	SubRequestType  string
	Duplicate       bool
	ConfidenceScore string
	AssignedTo      string
	Role            string
	Context         string
	ExtractedJSON   string
	ProcessedAt     string
}
