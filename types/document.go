package types

import "time"

// SourceType identifies where a document originated.
type SourceType string

const (
	SourceUpload SourceType = "upload" // User-uploaded study material
	SourceWeb    SourceType = "web"    // Scraped or fetched from a URL
)

// DocumentMetadata carries descriptive attributes of a document.
type DocumentMetadata struct {
	Subject    string     `json:"subject,omitempty"`
	SourceType SourceType `json:"source_type,omitempty"`
	UploadedAt time.Time  `json:"uploaded_at,omitempty"`
}

// Document is an immutable unit of ingested study material. Identity is the
// Source (filename or URL); re-ingesting the same Source replaces all chunks
// previously derived from it.
type Document struct {
	ID       string           `json:"id"`
	Source   string           `json:"source"`
	Text     string           `json:"text"`
	Metadata DocumentMetadata `json:"metadata,omitempty"`
}

// Chunk is a bounded contiguous text segment derived from exactly one
// Document. Chunks are never mutated after creation; they are dropped only
// when the parent corpus is cleared or the document is re-processed.
type Chunk struct {
	ID          string `json:"id"`
	DocumentID  string `json:"document_id"`
	Source      string `json:"source"`
	Ordinal     int    `json:"ordinal"`
	StartOffset int    `json:"start_offset"`
	Text        string `json:"text"`
}

// ScoredChunk pairs a retrieved chunk with its similarity score.
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// SourceRef is the attribution attached to an answer: which document (and
// which chunk of it) grounded the response.
type SourceRef struct {
	DocumentID string  `json:"document_id"`
	Source     string  `json:"source"`
	Ordinal    int     `json:"ordinal"`
	Score      float64 `json:"score"`
}

// DocumentError records a per-document ingestion failure.
type DocumentError struct {
	DocumentID string `json:"document_id"`
	Source     string `json:"source"`
	Message    string `json:"message"`
}

// IngestionResult summarizes a batch ingestion. A failure of one document
// never aborts the rest of the batch; failures accumulate in Errors.
type IngestionResult struct {
	ChunksCreated int             `json:"chunks_created"`
	Errors        []DocumentError `json:"errors,omitempty"`
}
