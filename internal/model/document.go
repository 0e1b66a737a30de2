package model

import "time"

// Document processing status values. A document is queryable only once it is
// indexed; processing and error documents have no searchable chunks.
const (
	StatusProcessing = "processing"
	StatusIndexed    = "indexed"
	StatusError      = "error"
)

// Document is the registry record for one uploaded source file. The registry
// is the authoritative existence record; vector-store and blob state are
// reconciled against it.
type Document struct {
	DocumentID   string     `gorm:"primaryKey;size:64" json:"document_id"`
	OwnerID      string     `gorm:"size:64;not null;index" json:"owner_id"`
	Filename     string     `gorm:"size:256;not null" json:"filename"`
	ByteSize     int64      `gorm:"not null" json:"file_size"`
	ChunkCount   int        `gorm:"not null;default:0" json:"chunk_count"`
	Status       string     `gorm:"size:16;not null;index" json:"status"`
	StorageRef   string     `gorm:"size:512" json:"-"`
	ErrorMessage string     `gorm:"type:text" json:"error_message,omitempty"`
	UploadDate   time.Time  `gorm:"autoCreateTime" json:"upload_date"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
}
