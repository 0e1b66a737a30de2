package app

import (
	"context"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/sivakandan01/ai-backend/internal/ai"
	"github.com/sivakandan01/ai-backend/internal/blob"
	"github.com/sivakandan01/ai-backend/internal/cache"
	"github.com/sivakandan01/ai-backend/internal/model"
	"github.com/sivakandan01/ai-backend/internal/pkg/pdfextract"
	"github.com/sivakandan01/ai-backend/internal/pkg/textchunk"
	"github.com/sivakandan01/ai-backend/internal/vectorstore"
)

const (
	defaultTopK = 5
	maxTopK     = 20
	maxQueryLen = 1000

	noInformationAnswer = "I don't have any relevant information to answer your question. Please upload some documents first."
)

// DocumentRegistry is the authoritative record of uploaded documents.
type DocumentRegistry interface {
	Create(ctx context.Context, doc *model.Document) error
	GetByIDAndOwner(ctx context.Context, documentID, ownerID string) (*model.Document, error)
	ListByOwner(ctx context.Context, ownerID string) ([]model.Document, error)
	MarkIndexed(ctx context.Context, documentID string, chunkCount int) error
	MarkError(ctx context.Context, documentID, message string) error
	DeleteByIDAndOwner(ctx context.Context, documentID, ownerID string) error
}

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Generator produces an answer from a chat transcript.
type Generator interface {
	Complete(ctx context.Context, messages []ai.ChatMessage) (string, error)
}

// StatusCache is the optional read-through cache in front of the registry for
// status polls.
type StatusCache interface {
	Get(ctx context.Context, documentID string) (*cache.DocumentStatus, bool, error)
	Set(ctx context.Context, status cache.DocumentStatus) error
	Invalidate(ctx context.Context, documentID string) error
}

// IngestJob is the unit of work handed to the background worker when async
// ingestion is enabled. The registry row already exists (status processing)
// and the file is already in blob storage when the job is published.
type IngestJob struct {
	DocumentID string `json:"document_id"`
	OwnerID    string `json:"owner_id"`
	Filename   string `json:"filename"`
	StorageRef string `json:"storage_ref"`
}

// IngestPublisher enqueues ingest jobs for the background worker.
type IngestPublisher interface {
	PublishIngestJob(ctx context.Context, job IngestJob) error
}

type RAGServiceConfig struct {
	ChunkSize           int
	ChunkOverlap        int
	MaxFileBytes        int64
	EmbedMaxConcurrency int
	// Async defers extraction/embedding/indexing to the worker; uploads
	// return immediately with status processing.
	Async bool
}

type RAGService struct {
	registry  DocumentRegistry
	index     vectorstore.Index
	blobs     blob.Store
	embedder  Embedder
	generator Generator
	statuses  StatusCache
	publisher IngestPublisher
	cfg       RAGServiceConfig
}

func NewRAGService(
	registry DocumentRegistry,
	index vectorstore.Index,
	blobs blob.Store,
	embedder Embedder,
	generator Generator,
	statuses StatusCache,
	publisher IngestPublisher,
	cfg RAGServiceConfig,
) *RAGService {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = textchunk.DefaultChunkSize
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = textchunk.DefaultChunkOverlap
	}
	if cfg.MaxFileBytes <= 0 {
		cfg.MaxFileBytes = 10 << 20
	}
	if cfg.EmbedMaxConcurrency <= 0 {
		cfg.EmbedMaxConcurrency = 4
	}
	return &RAGService{
		registry:  registry,
		index:     index,
		blobs:     blobs,
		embedder:  embedder,
		generator: generator,
		statuses:  statuses,
		publisher: publisher,
		cfg:       cfg,
	}
}

type UploadInput struct {
	OwnerID  string
	Filename string
	Size     int64
	Content  io.Reader
}

type UploadResult struct {
	DocumentID    string `json:"document_id"`
	Filename      string `json:"filename"`
	Status        string `json:"status"`
	ChunksCreated int    `json:"chunks_created"`
	Message       string `json:"message"`
}

// Upload stores the file, registers the document, and either indexes it
// inline or hands it to the background worker.
func (s *RAGService) Upload(ctx context.Context, input UploadInput) (*UploadResult, error) {
	if input.OwnerID == "" || input.Content == nil {
		return nil, ErrInvalidInput
	}
	filename := strings.TrimSpace(input.Filename)
	if filename == "" {
		return nil, fmt.Errorf("%w: filename is required", ErrInvalidInput)
	}
	if strings.ToLower(filepath.Ext(filename)) != ".pdf" {
		return nil, fmt.Errorf("%w: only PDF files are supported", ErrInvalidInput)
	}
	if input.Size <= 0 {
		return nil, fmt.Errorf("%w: file is empty", ErrInvalidInput)
	}
	if input.Size > s.cfg.MaxFileBytes {
		return nil, fmt.Errorf("%w: file exceeds %d bytes", ErrInvalidInput, s.cfg.MaxFileBytes)
	}

	documentID := uuid.NewString()
	storageRef, err := s.blobs.Save(ctx, documentID+".pdf", io.LimitReader(input.Content, s.cfg.MaxFileBytes))
	if err != nil {
		return nil, fmt.Errorf("store uploaded file failed: %w", err)
	}

	doc := &model.Document{
		DocumentID: documentID,
		OwnerID:    input.OwnerID,
		Filename:   filename,
		ByteSize:   input.Size,
		Status:     model.StatusProcessing,
		StorageRef: storageRef,
	}
	if err := s.registry.Create(ctx, doc); err != nil {
		if delErr := s.blobs.Delete(ctx, storageRef); delErr != nil {
			log.Printf("rag: cleanup of orphaned blob %s failed: %v", storageRef, delErr)
		}
		return nil, err
	}

	if s.cfg.Async && s.publisher != nil {
		job := IngestJob{
			DocumentID: documentID,
			OwnerID:    input.OwnerID,
			Filename:   filename,
			StorageRef: storageRef,
		}
		if err := s.publisher.PublishIngestJob(ctx, job); err != nil {
			s.failIngest(ctx, documentID, fmt.Sprintf("enqueue ingest job failed: %v", err))
			return nil, fmt.Errorf("enqueue ingest job failed: %w", err)
		}
		return &UploadResult{
			DocumentID: documentID,
			Filename:   filename,
			Status:     model.StatusProcessing,
			Message:    "Document uploaded, processing in background",
		}, nil
	}

	chunks, err := s.ingest(ctx, documentID, input.OwnerID, filename, storageRef)
	if err != nil {
		s.failIngest(ctx, documentID, err.Error())
		return nil, err
	}
	return &UploadResult{
		DocumentID:    documentID,
		Filename:      filename,
		Status:        model.StatusIndexed,
		ChunksCreated: chunks,
		Message:       "Document uploaded and indexed successfully",
	}, nil
}

// ProcessJob runs the ingest pipeline for a queued document. Worker entry
// point; failures are recorded on the registry row, not returned to the
// broker as retryable.
func (s *RAGService) ProcessJob(ctx context.Context, job IngestJob) error {
	chunks, err := s.ingest(ctx, job.DocumentID, job.OwnerID, job.Filename, job.StorageRef)
	if err != nil {
		s.failIngest(ctx, job.DocumentID, err.Error())
		return err
	}
	log.Printf("rag: document %s indexed with %d chunks", job.DocumentID, chunks)
	return nil
}

// ingest runs extract -> chunk -> embed -> index and flips the registry row
// to indexed.
func (s *RAGService) ingest(ctx context.Context, documentID, ownerID, filename, storageRef string) (int, error) {
	r, err := s.blobs.Open(ctx, storageRef)
	if err != nil {
		return 0, fmt.Errorf("open stored file failed: %w", err)
	}
	text, err := pdfextract.ExtractText(r)
	r.Close()
	if err != nil {
		return 0, fmt.Errorf("extract text failed: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return 0, ErrNoExtractableText
	}

	chunks := textchunk.Split(text, s.cfg.ChunkSize, s.cfg.ChunkOverlap)
	if len(chunks) == 0 {
		return 0, ErrNoExtractableText
	}

	entries := make([]vectorstore.Entry, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.EmbedMaxConcurrency)
	for i, chunk := range chunks {
		g.Go(func() error {
			vec, err := s.embedder.Embed(gctx, chunk)
			if err != nil {
				return fmt.Errorf("embed chunk %d failed: %w", i, err)
			}
			entries[i] = vectorstore.Entry{
				ID:     vectorstore.ChunkID(documentID, i),
				Vector: vec,
				Text:   chunk,
				Meta: vectorstore.Metadata{
					DocumentID: documentID,
					Filename:   filename,
					OwnerID:    ownerID,
					ChunkIndex: i,
				},
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	if _, err := s.index.Upsert(ctx, entries); err != nil {
		return 0, fmt.Errorf("index chunks failed: %w", err)
	}
	if err := s.registry.MarkIndexed(ctx, documentID, len(entries)); err != nil {
		return 0, err
	}
	s.invalidateStatus(ctx, documentID)
	return len(entries), nil
}

func (s *RAGService) failIngest(ctx context.Context, documentID, message string) {
	if err := s.registry.MarkError(ctx, documentID, message); err != nil {
		log.Printf("rag: mark document %s as error failed: %v", documentID, err)
	}
	s.invalidateStatus(ctx, documentID)
}

type QueryInput struct {
	OwnerID     string
	Query       string
	TopK        int
	DocumentIDs []string
}

type SourceChunk struct {
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename"`
	ChunkText  string  `json:"chunk_text"`
	Score      float32 `json:"score"`
}

type QueryResult struct {
	Answer  string        `json:"answer"`
	Sources []SourceChunk `json:"sources"`
	Query   string        `json:"query"`
}

// Query embeds the question, retrieves the most similar indexed chunks for
// the owner, and asks the generation model to answer from them.
func (s *RAGService) Query(ctx context.Context, input QueryInput) (*QueryResult, error) {
	if input.OwnerID == "" {
		return nil, ErrInvalidInput
	}
	query := strings.TrimSpace(input.Query)
	if query == "" || len(query) > maxQueryLen {
		return nil, fmt.Errorf("%w: query must be 1-%d characters", ErrInvalidInput, maxQueryLen)
	}
	topK := input.TopK
	if topK == 0 {
		topK = defaultTopK
	}
	if topK < 1 || topK > maxTopK {
		return nil, fmt.Errorf("%w: top_k must be 1-%d", ErrInvalidInput, maxTopK)
	}

	// An explicit document filter must name documents the caller owns, and
	// only indexed documents are searchable.
	for _, id := range input.DocumentIDs {
		doc, err := s.registry.GetByIDAndOwner(ctx, id, input.OwnerID)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
		}
		if doc.Status != model.StatusIndexed {
			return nil, &StatusConflictError{DocumentID: id, Status: doc.Status}
		}
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	hits, err := s.index.Search(ctx, vec, topK, vectorstore.Filter{
		OwnerID:     input.OwnerID,
		DocumentIDs: input.DocumentIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	if len(hits) == 0 {
		return &QueryResult{
			Answer:  noInformationAnswer,
			Sources: []SourceChunk{},
			Query:   query,
		}, nil
	}

	labeled := make([]string, len(hits))
	sources := make([]SourceChunk, len(hits))
	for i, h := range hits {
		labeled[i] = fmt.Sprintf("[Source %d from %s]:\n%s", i+1, h.Meta.Filename, h.Text)
		sources[i] = SourceChunk{
			DocumentID: h.Meta.DocumentID,
			Filename:   h.Meta.Filename,
			ChunkText:  h.Text,
			Score:      h.Score,
		}
	}

	answer, err := s.generator.Complete(ctx, ragMessages(query, strings.Join(labeled, "\n\n")))
	if err != nil {
		return nil, fmt.Errorf("generate answer failed: %w", err)
	}

	return &QueryResult{
		Answer:  strings.TrimSpace(answer),
		Sources: sources,
		Query:   query,
	}, nil
}

type DocumentList struct {
	Documents     []model.Document `json:"documents"`
	Total         int              `json:"total"`
	StatusSummary map[string]int   `json:"status_summary"`
}

func (s *RAGService) ListDocuments(ctx context.Context, ownerID string) (*DocumentList, error) {
	if ownerID == "" {
		return nil, ErrInvalidInput
	}
	docs, err := s.registry.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	summary := map[string]int{
		model.StatusProcessing: 0,
		model.StatusIndexed:    0,
		model.StatusError:      0,
	}
	for _, d := range docs {
		summary[d.Status]++
	}
	if docs == nil {
		docs = []model.Document{}
	}
	return &DocumentList{Documents: docs, Total: len(docs), StatusSummary: summary}, nil
}

// DocumentStatus answers status polls, serving from the cache when a fresh
// snapshot exists.
func (s *RAGService) DocumentStatus(ctx context.Context, ownerID, documentID string) (*cache.DocumentStatus, error) {
	if ownerID == "" || documentID == "" {
		return nil, ErrInvalidInput
	}

	if s.statuses != nil {
		if cached, ok, err := s.statuses.Get(ctx, documentID); err != nil {
			log.Printf("rag: status cache read failed: %v", err)
		} else if ok {
			// Ownership is checked against the cached snapshot so a hit
			// never touches the registry.
			if cached.OwnerID != ownerID {
				return nil, ErrDocumentNotFound
			}
			return cached, nil
		}
	}

	doc, err := s.registry.GetByIDAndOwner(ctx, documentID, ownerID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}

	status := cache.DocumentStatus{
		DocumentID:   doc.DocumentID,
		OwnerID:      doc.OwnerID,
		Filename:     doc.Filename,
		Status:       doc.Status,
		ChunkCount:   doc.ChunkCount,
		UploadDate:   doc.UploadDate,
		ProcessedAt:  doc.ProcessedAt,
		ErrorMessage: doc.ErrorMessage,
	}
	if s.statuses != nil {
		if err := s.statuses.Set(ctx, status); err != nil {
			log.Printf("rag: status cache write failed: %v", err)
		}
	}
	return &status, nil
}

// DeleteDocument removes a document everywhere it lives. The registry delete
// is authoritative; vector and blob failures are logged and skipped so a
// degraded backend cannot make a document undeletable.
func (s *RAGService) DeleteDocument(ctx context.Context, ownerID, documentID string) error {
	if ownerID == "" || documentID == "" {
		return ErrInvalidInput
	}
	doc, err := s.registry.GetByIDAndOwner(ctx, documentID, ownerID)
	if err != nil {
		return err
	}
	if doc == nil {
		return ErrDocumentNotFound
	}

	if _, err := s.index.Delete(ctx, documentID, ownerID); err != nil {
		log.Printf("rag: delete vectors for document %s failed: %v", documentID, err)
	}
	if err := s.registry.DeleteByIDAndOwner(ctx, documentID, ownerID); err != nil {
		return err
	}
	if doc.StorageRef != "" {
		if err := s.blobs.Delete(ctx, doc.StorageRef); err != nil {
			log.Printf("rag: delete stored file for document %s failed: %v", documentID, err)
		}
	}
	s.invalidateStatus(ctx, documentID)
	return nil
}

func (s *RAGService) invalidateStatus(ctx context.Context, documentID string) {
	if s.statuses == nil {
		return
	}
	if err := s.statuses.Invalidate(ctx, documentID); err != nil {
		log.Printf("rag: status cache invalidation failed: %v", err)
	}
}

func ragMessages(query, context string) []ai.ChatMessage {
	system := "You are a helpful assistant. Use the following context from documents to answer the user's question.\n\n" +
		"If the answer can be found in the context, provide a detailed and accurate response.\n" +
		"If the answer is not in the context, clearly state that you don't have that information in the provided documents.\n" +
		"Always be honest about the limitations of your knowledge."
	user := "Context from documents:\n" + context + "\n\nUser's Question: " + query + "\n\nAnswer:"
	return []ai.ChatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}
}
