// Package vectorstore defines the vector index contract the RAG service
// retrieves against. Two interchangeable backends implement it: a local
// persistent index over MySQL and a remote managed Qdrant collection. The
// backend is selected by configuration at process startup.
package vectorstore

import (
	"context"
	"fmt"
)

// Metadata tags every chunk with its provenance. document_id and owner_id on
// every entry are what make owner scoping, filtered deletes, and offline
// consistency sweeps possible.
type Metadata struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	OwnerID    string `json:"owner_id"`
	ChunkIndex int    `json:"chunk_index"`
}

// Entry is one chunk to be indexed: id, vector, original text, metadata.
// IDs are deterministic ({document_id}_chunk_{i}) so upserts are idempotent.
type Entry struct {
	ID     string
	Vector []float32
	Text   string
	Meta   Metadata
}

// Hit is one search result. Score is cosine similarity, higher is better, in
// every backend; callers may compare scores within one result set only.
type Hit struct {
	ID    string
	Text  string
	Meta  Metadata
	Score float32
}

// Filter restricts a search. OwnerID is mandatory and matched exactly;
// DocumentIDs, when non-empty, narrows to those documents.
type Filter struct {
	OwnerID     string
	DocumentIDs []string
}

// DocumentChunks is a per-document aggregate derived from stored metadata.
type DocumentChunks struct {
	DocumentID string
	Filename   string
	ChunkCount int
}

// Index is the backend-independent vector store contract.
type Index interface {
	// Upsert stores the entries, idempotent by id, and returns the count
	// written.
	Upsert(ctx context.Context, entries []Entry) (int, error)

	// Search returns up to topK entries ranked by similarity to vector,
	// restricted by the filter.
	Search(ctx context.Context, vector []float32, topK int, filter Filter) ([]Hit, error)

	// Delete removes every chunk whose metadata matches both documentID and
	// ownerID, and nothing else. Returns the number of chunks removed.
	Delete(ctx context.Context, documentID, ownerID string) (int, error)

	// List groups the owner's stored chunks by document.
	List(ctx context.Context, ownerID string) ([]DocumentChunks, error)
}

// ChunkID derives the deterministic chunk identifier from its document and
// zero-based position.
func ChunkID(documentID string, index int) string {
	return fmt.Sprintf("%s_chunk_%d", documentID, index)
}
