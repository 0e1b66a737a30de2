package model

import (
	"encoding/json"
	"time"
)

// VectorChunk is the MySQL row backing the local vector index: one text
// chunk, its embedding, and the metadata needed for owner-scoped search and
// filtered deletes. The embedding is stored as a JSON array of float32 for
// portability.
type VectorChunk struct {
	ChunkID    string    `gorm:"primaryKey;size:128" json:"chunk_id"`
	DocumentID string    `gorm:"size:64;not null;index" json:"document_id"`
	OwnerID    string    `gorm:"size:64;not null;index" json:"owner_id"`
	Filename   string    `gorm:"size:256;not null" json:"filename"`
	ChunkIndex int       `gorm:"not null" json:"chunk_index"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	Embedding  string    `gorm:"type:mediumtext" json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

// EmbeddingVector returns the parsed embedding slice; empty on parse error.
func (c *VectorChunk) EmbeddingVector() []float32 {
	if c.Embedding == "" {
		return nil
	}
	var v []float32
	_ = json.Unmarshal([]byte(c.Embedding), &v)
	return v
}

// SetEmbedding stores the embedding as JSON.
func (c *VectorChunk) SetEmbedding(vec []float32) {
	if len(vec) == 0 {
		c.Embedding = "[]"
		return
	}
	b, _ := json.Marshal(vec)
	c.Embedding = string(b)
}
