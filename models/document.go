package models

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DocumentStatus represents the indexing state of an uploaded document
type DocumentStatus string

const (
	DocumentStatusPending DocumentStatus = "pending"
	DocumentStatusIndexed DocumentStatus = "indexed"
	DocumentStatusFailed  DocumentStatus = "failed"
)

// Document is an uploaded legal document and its extracted text
type Document struct {
	ID          uuid.UUID      `json:"id" db:"id"`
	OwnerID     string         `json:"owner_id" db:"owner_id"`
	Filename    string         `json:"filename" db:"filename"`
	FileType    string         `json:"file_type" db:"file_type"`
	SizeBytes   int64          `json:"size_bytes" db:"size_bytes"`
	Content     string         `json:"-" db:"content"` // Extracted text
	ContentHash string         `json:"content_hash" db:"content_hash"`
	TextLength  int            `json:"text_length" db:"text_length"`
	ChunkCount  int            `json:"chunk_count" db:"chunk_count"`
	Status      DocumentStatus `json:"status" db:"status"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the Document model
func (Document) TableName() string {
	return "documents"
}

// NewDocument creates a pending Document for extracted text
func NewDocument(ownerID, filename string, sizeBytes int64, content, contentHash string) *Document {
	now := time.Now()
	return &Document{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		Filename:    filename,
		FileType:    FileType(filename),
		SizeBytes:   sizeBytes,
		Content:     content,
		ContentHash: contentHash,
		TextLength:  len([]rune(content)),
		Status:      DocumentStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// MarkAsIndexed records a successful indexing run
func (d *Document) MarkAsIndexed(chunkCount int) {
	d.Status = DocumentStatusIndexed
	d.ChunkCount = chunkCount
	d.UpdatedAt = time.Now()
}

// MarkAsFailed records a failed indexing run
func (d *Document) MarkAsFailed() {
	d.Status = DocumentStatusFailed
	d.ChunkCount = 0
	d.UpdatedAt = time.Now()
}

// Preview returns at most n characters of the extracted text
func (d *Document) Preview(n int) string {
	runes := []rune(d.Content)
	if len(runes) <= n {
		return d.Content
	}
	return string(runes[:n]) + "..."
}

// FileType returns the lower-case extension of filename without the dot
func FileType(filename string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
}

// IndexSnapshot is a serialised vector index stored under a fixed name
type IndexSnapshot struct {
	Name      string    `json:"name" db:"name"`
	Data      []byte    `json:"-" db:"data"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the IndexSnapshot model
func (IndexSnapshot) TableName() string {
	return "rag_index_snapshots"
}
