package domain

import "time"

// SourceKind distinguishes a stored-reference document from an inline one
// (spec §3).
type SourceKind string

const (
	SourceStoredReference SourceKind = "stored"
	SourceInline          SourceKind = "inline"
)

// Document is one input fed to generators. Exactly one of the
// stored-reference or inline fields is populated, per Kind.
type Document struct {
	DocumentID  string
	Kind        SourceKind
	DisplayName string

	// Stored-reference fields.
	Repository string
	Ref        string
	Path       string

	// Inline fields.
	InlineContent []byte
	Filename      string
	MIMEType      string

	ContentHash string // sha256; always set for inline, optional for stored
	CreatedAt   time.Time
}

// ResolvedDisplayName returns DisplayName, defaulting from Path or Filename
// per spec §3 ("display_name defaults from path or filename").
func (d Document) ResolvedDisplayName() string {
	if d.DisplayName != "" {
		return d.DisplayName
	}
	if d.Kind == SourceInline && d.Filename != "" {
		return d.Filename
	}
	return d.Path
}

// RunDocumentStatus is the per-run status of an attached document.
type RunDocumentStatus string

const (
	RunDocPending    RunDocumentStatus = "pending"
	RunDocProcessing RunDocumentStatus = "processing"
	RunDocCompleted  RunDocumentStatus = "completed"
	RunDocSkipped    RunDocumentStatus = "skipped"
	RunDocFailed     RunDocumentStatus = "failed"
)

// RunDocument is the junction row between a Run and a Document (spec §3):
// unique on (run_id, document_id).
type RunDocument struct {
	RunID        string
	DocumentID   string
	Status       RunDocumentStatus
	SortOrder    int
	ErrorMessage string
	StartedAt    *time.Time
	CompletedAt  *time.Time
}
