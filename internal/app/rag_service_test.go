package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sivakandan01/ai-backend/internal/ai"
	"github.com/sivakandan01/ai-backend/internal/cache"
	"github.com/sivakandan01/ai-backend/internal/model"
	"github.com/sivakandan01/ai-backend/internal/vectorstore"
)

type fakeRegistry struct {
	docs     map[string]*model.Document
	getCalls int
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{docs: make(map[string]*model.Document)}
}

func (r *fakeRegistry) Create(_ context.Context, doc *model.Document) error {
	cp := *doc
	r.docs[doc.DocumentID] = &cp
	return nil
}

func (r *fakeRegistry) GetByIDAndOwner(_ context.Context, documentID, ownerID string) (*model.Document, error) {
	r.getCalls++
	doc, ok := r.docs[documentID]
	if !ok || doc.OwnerID != ownerID {
		return nil, nil
	}
	cp := *doc
	return &cp, nil
}

func (r *fakeRegistry) ListByOwner(_ context.Context, ownerID string) ([]model.Document, error) {
	var out []model.Document
	for _, doc := range r.docs {
		if doc.OwnerID == ownerID {
			out = append(out, *doc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DocumentID < out[j].DocumentID })
	return out, nil
}

func (r *fakeRegistry) MarkIndexed(_ context.Context, documentID string, chunkCount int) error {
	doc, ok := r.docs[documentID]
	if !ok {
		return fmt.Errorf("document %s not found", documentID)
	}
	doc.Status = model.StatusIndexed
	doc.ChunkCount = chunkCount
	doc.ErrorMessage = ""
	return nil
}

func (r *fakeRegistry) MarkError(_ context.Context, documentID, message string) error {
	doc, ok := r.docs[documentID]
	if !ok {
		return fmt.Errorf("document %s not found", documentID)
	}
	doc.Status = model.StatusError
	doc.ErrorMessage = message
	return nil
}

func (r *fakeRegistry) DeleteByIDAndOwner(_ context.Context, documentID, ownerID string) error {
	if doc, ok := r.docs[documentID]; ok && doc.OwnerID == ownerID {
		delete(r.docs, documentID)
	}
	return nil
}

type fakeIndex struct {
	entries   map[string]vectorstore.Entry
	hits      []vectorstore.Hit
	searchErr error

	lastTopK   int
	lastFilter vectorstore.Filter
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{entries: make(map[string]vectorstore.Entry)}
}

func (x *fakeIndex) Upsert(_ context.Context, entries []vectorstore.Entry) (int, error) {
	for _, e := range entries {
		x.entries[e.ID] = e
	}
	return len(entries), nil
}

func (x *fakeIndex) Search(_ context.Context, _ []float32, topK int, filter vectorstore.Filter) ([]vectorstore.Hit, error) {
	x.lastTopK = topK
	x.lastFilter = filter
	return x.hits, x.searchErr
}

func (x *fakeIndex) Delete(_ context.Context, documentID, _ string) (int, error) {
	n := 0
	for id, e := range x.entries {
		if e.Meta.DocumentID == documentID {
			delete(x.entries, id)
			n++
		}
	}
	return n, nil
}

func (x *fakeIndex) List(_ context.Context, _ string) ([]vectorstore.DocumentChunks, error) {
	return nil, nil
}

type fakeBlobStore struct {
	files   map[string][]byte
	saveErr error
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{files: make(map[string][]byte)}
}

func (b *fakeBlobStore) Save(_ context.Context, ref string, r io.Reader) (string, error) {
	if b.saveErr != nil {
		return "", b.saveErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	b.files[ref] = data
	return ref, nil
}

func (b *fakeBlobStore) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	data, ok := b.files[ref]
	if !ok {
		return nil, fmt.Errorf("blob %s not found", ref)
	}
	return io.NopCloser(strings.NewReader(string(data))), nil
}

func (b *fakeBlobStore) Delete(_ context.Context, ref string) error {
	delete(b.files, ref)
	return nil
}

type fakeEmbedder struct {
	err   error
	calls int
}

func (e *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return []float32{float32(len(text)), 1}, nil
}

type fakeGenerator struct {
	answer   string
	err      error
	messages []ai.ChatMessage
}

func (g *fakeGenerator) Complete(_ context.Context, messages []ai.ChatMessage) (string, error) {
	g.messages = messages
	return g.answer, g.err
}

type fakePublisher struct {
	jobs []IngestJob
	err  error
}

func (p *fakePublisher) PublishIngestJob(_ context.Context, job IngestJob) error {
	if p.err != nil {
		return p.err
	}
	p.jobs = append(p.jobs, job)
	return nil
}

type fakeStatusCache struct {
	entries map[string]cache.DocumentStatus
}

func newFakeStatusCache() *fakeStatusCache {
	return &fakeStatusCache{entries: make(map[string]cache.DocumentStatus)}
}

func (c *fakeStatusCache) Get(_ context.Context, documentID string) (*cache.DocumentStatus, bool, error) {
	status, ok := c.entries[documentID]
	if !ok {
		return nil, false, nil
	}
	return &status, true, nil
}

func (c *fakeStatusCache) Set(_ context.Context, status cache.DocumentStatus) error {
	c.entries[status.DocumentID] = status
	return nil
}

func (c *fakeStatusCache) Invalidate(_ context.Context, documentID string) error {
	delete(c.entries, documentID)
	return nil
}

type fixture struct {
	svc       *RAGService
	registry  *fakeRegistry
	index     *fakeIndex
	blobs     *fakeBlobStore
	embedder  *fakeEmbedder
	generator *fakeGenerator
	publisher *fakePublisher
	statuses  *fakeStatusCache
}

func newFixture(cfg RAGServiceConfig) *fixture {
	f := &fixture{
		registry:  newFakeRegistry(),
		index:     newFakeIndex(),
		blobs:     newFakeBlobStore(),
		embedder:  &fakeEmbedder{},
		generator: &fakeGenerator{answer: "the answer"},
		publisher: &fakePublisher{},
		statuses:  newFakeStatusCache(),
	}
	f.svc = NewRAGService(f.registry, f.index, f.blobs, f.embedder, f.generator, f.statuses, f.publisher, cfg)
	return f
}

func (f *fixture) addIndexedDocument(documentID, ownerID, filename string) {
	f.registry.docs[documentID] = &model.Document{
		DocumentID: documentID,
		OwnerID:    ownerID,
		Filename:   filename,
		Status:     model.StatusIndexed,
		ChunkCount: 3,
		StorageRef: documentID + ".pdf",
	}
	f.blobs.files[documentID+".pdf"] = []byte("pdf bytes")
}

// minimalPDF builds a one-page PDF whose single text object shows the given
// string. Offsets in the xref table are computed while writing, so the result
// is a structurally valid document.
func minimalPDF(text string) []byte {
	content := "BT /F1 12 Tf 72 720 Td (" + text + ") Tj ET"
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 4 0 R >> >> /Contents 5 0 R >>",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects)+1)
	for i, obj := range objects {
		offsets[i+1] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for i := 1; i <= len(objects); i++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[i])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestUploadSyncIndexesDocument(t *testing.T) {
	f := newFixture(RAGServiceConfig{ChunkSize: 120, ChunkOverlap: 20})
	text := strings.TrimSpace(strings.Repeat("The quarterly report shows steady growth across all regions. ", 10))
	pdfBytes := minimalPDF(text)

	res, err := f.svc.Upload(context.Background(), UploadInput{
		OwnerID:  "user-a",
		Filename: "report.pdf",
		Size:     int64(len(pdfBytes)),
		Content:  bytes.NewReader(pdfBytes),
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusIndexed, res.Status)
	assert.Greater(t, res.ChunksCreated, 1)

	doc := f.registry.docs[res.DocumentID]
	require.NotNil(t, doc)
	assert.Equal(t, model.StatusIndexed, doc.Status)
	assert.Equal(t, res.ChunksCreated, doc.ChunkCount)
	assert.Empty(t, doc.ErrorMessage)
	assert.Contains(t, f.blobs.files, doc.StorageRef)

	require.Len(t, f.index.entries, res.ChunksCreated)
	seen := make(map[int]bool)
	for id, entry := range f.index.entries {
		assert.Equal(t, vectorstore.ChunkID(res.DocumentID, entry.Meta.ChunkIndex), id)
		assert.Equal(t, res.DocumentID, entry.Meta.DocumentID)
		assert.Equal(t, "user-a", entry.Meta.OwnerID)
		assert.Equal(t, "report.pdf", entry.Meta.Filename)
		assert.NotEmpty(t, entry.Text)
		assert.NotEmpty(t, entry.Vector)
		seen[entry.Meta.ChunkIndex] = true
	}
	for i := 0; i < res.ChunksCreated; i++ {
		assert.True(t, seen[i], "missing chunk index %d", i)
	}
}

func TestProcessJobIndexesStoredDocument(t *testing.T) {
	f := newFixture(RAGServiceConfig{ChunkSize: 120, ChunkOverlap: 20})
	text := strings.TrimSpace(strings.Repeat("Background processing still has to produce indexed chunks. ", 10))
	f.registry.docs["doc-1"] = &model.Document{
		DocumentID: "doc-1",
		OwnerID:    "user-a",
		Filename:   "report.pdf",
		Status:     model.StatusProcessing,
		StorageRef: "doc-1.pdf",
	}
	f.blobs.files["doc-1.pdf"] = minimalPDF(text)

	err := f.svc.ProcessJob(context.Background(), IngestJob{
		DocumentID: "doc-1",
		OwnerID:    "user-a",
		Filename:   "report.pdf",
		StorageRef: "doc-1.pdf",
	})
	require.NoError(t, err)

	doc := f.registry.docs["doc-1"]
	assert.Equal(t, model.StatusIndexed, doc.Status)
	assert.Equal(t, len(f.index.entries), doc.ChunkCount)
	assert.Greater(t, doc.ChunkCount, 1)
}

func TestUploadRejectsInvalidFiles(t *testing.T) {
	f := newFixture(RAGServiceConfig{MaxFileBytes: 100})
	ctx := context.Background()

	cases := []struct {
		name     string
		filename string
		size     int64
	}{
		{"non-pdf extension", "notes.txt", 10},
		{"missing filename", "", 10},
		{"empty file", "doc.pdf", 0},
		{"oversized file", "doc.pdf", 101},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Upload(ctx, UploadInput{
				OwnerID:  "user-a",
				Filename: tc.filename,
				Size:     tc.size,
				Content:  strings.NewReader("x"),
			})
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}

	assert.Empty(t, f.registry.docs, "no registry rows for rejected uploads")
	assert.Empty(t, f.blobs.files, "no blobs for rejected uploads")
}

func TestUploadAsyncRegistersProcessingAndPublishes(t *testing.T) {
	f := newFixture(RAGServiceConfig{Async: true})

	res, err := f.svc.Upload(context.Background(), UploadInput{
		OwnerID:  "user-a",
		Filename: "report.pdf",
		Size:     9,
		Content:  strings.NewReader("pdf bytes"),
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusProcessing, res.Status)
	assert.Zero(t, res.ChunksCreated)

	doc := f.registry.docs[res.DocumentID]
	require.NotNil(t, doc)
	assert.Equal(t, model.StatusProcessing, doc.Status)

	require.Len(t, f.publisher.jobs, 1)
	job := f.publisher.jobs[0]
	assert.Equal(t, res.DocumentID, job.DocumentID)
	assert.Equal(t, "user-a", job.OwnerID)
	assert.Equal(t, doc.StorageRef, job.StorageRef)
	assert.Contains(t, f.blobs.files, doc.StorageRef)
}

func TestUploadAsyncPublishFailureMarksError(t *testing.T) {
	f := newFixture(RAGServiceConfig{Async: true})
	f.publisher.err = errors.New("broker down")

	_, err := f.svc.Upload(context.Background(), UploadInput{
		OwnerID:  "user-a",
		Filename: "report.pdf",
		Size:     9,
		Content:  strings.NewReader("pdf bytes"),
	})
	require.Error(t, err)

	require.Len(t, f.registry.docs, 1)
	for _, doc := range f.registry.docs {
		assert.Equal(t, model.StatusError, doc.Status)
		assert.NotEmpty(t, doc.ErrorMessage)
	}
}

func TestProcessJobMarksErrorOnUnreadableDocument(t *testing.T) {
	f := newFixture(RAGServiceConfig{})
	f.registry.docs["doc-1"] = &model.Document{
		DocumentID: "doc-1",
		OwnerID:    "user-a",
		Status:     model.StatusProcessing,
		StorageRef: "doc-1.pdf",
	}
	f.blobs.files["doc-1.pdf"] = []byte("not a real pdf")

	err := f.svc.ProcessJob(context.Background(), IngestJob{
		DocumentID: "doc-1",
		OwnerID:    "user-a",
		Filename:   "report.pdf",
		StorageRef: "doc-1.pdf",
	})
	require.Error(t, err)
	assert.Equal(t, model.StatusError, f.registry.docs["doc-1"].Status)
	assert.NotEmpty(t, f.registry.docs["doc-1"].ErrorMessage)
}

func TestQueryValidation(t *testing.T) {
	f := newFixture(RAGServiceConfig{})
	ctx := context.Background()

	_, err := f.svc.Query(ctx, QueryInput{OwnerID: "user-a", Query: ""})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.Query(ctx, QueryInput{OwnerID: "user-a", Query: strings.Repeat("q", 1001)})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.Query(ctx, QueryInput{OwnerID: "user-a", Query: "ok", TopK: 21})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.Query(ctx, QueryInput{OwnerID: "user-a", Query: "ok", TopK: -1})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestQueryZeroHitsReturnsFixedAnswer(t *testing.T) {
	f := newFixture(RAGServiceConfig{})

	res, err := f.svc.Query(context.Background(), QueryInput{OwnerID: "user-a", Query: "anything"})
	require.NoError(t, err)
	assert.Equal(t, noInformationAnswer, res.Answer)
	assert.Empty(t, res.Sources)
	assert.Equal(t, 5, f.index.lastTopK, "default top_k")
	assert.Nil(t, f.generator.messages, "no generation call without context")
}

func TestQueryBuildsLabeledContextAndSources(t *testing.T) {
	f := newFixture(RAGServiceConfig{})
	f.index.hits = []vectorstore.Hit{
		{
			ID:    "doc-1_chunk_0",
			Text:  "revenue grew 10%",
			Meta:  vectorstore.Metadata{DocumentID: "doc-1", Filename: "q3.pdf", OwnerID: "user-a"},
			Score: 0.9,
		},
		{
			ID:    "doc-2_chunk_4",
			Text:  "costs were flat",
			Meta:  vectorstore.Metadata{DocumentID: "doc-2", Filename: "q4.pdf", OwnerID: "user-a"},
			Score: 0.8,
		},
	}

	res, err := f.svc.Query(context.Background(), QueryInput{OwnerID: "user-a", Query: "how did revenue do?", TopK: 2})
	require.NoError(t, err)
	assert.Equal(t, "the answer", res.Answer)

	require.Len(t, res.Sources, 2)
	assert.Equal(t, SourceChunk{DocumentID: "doc-1", Filename: "q3.pdf", ChunkText: "revenue grew 10%", Score: 0.9}, res.Sources[0])

	require.Len(t, f.generator.messages, 2)
	assert.Equal(t, "system", f.generator.messages[0].Role)
	user := f.generator.messages[1].Content
	assert.Contains(t, user, "[Source 1 from q3.pdf]:\nrevenue grew 10%")
	assert.Contains(t, user, "[Source 2 from q4.pdf]:\ncosts were flat")
	assert.Contains(t, user, "User's Question: how did revenue do?")

	assert.Equal(t, "user-a", f.index.lastFilter.OwnerID)
}

func TestQueryDocumentFilterEnforcesOwnershipAndStatus(t *testing.T) {
	f := newFixture(RAGServiceConfig{})
	ctx := context.Background()
	f.addIndexedDocument("doc-1", "user-a", "a.pdf")
	f.registry.docs["doc-2"] = &model.Document{
		DocumentID: "doc-2", OwnerID: "user-a", Status: model.StatusProcessing,
	}

	_, err := f.svc.Query(ctx, QueryInput{OwnerID: "user-a", Query: "q", DocumentIDs: []string{"doc-missing"}})
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	_, err = f.svc.Query(ctx, QueryInput{OwnerID: "user-b", Query: "q", DocumentIDs: []string{"doc-1"}})
	assert.ErrorIs(t, err, ErrDocumentNotFound, "another owner's document looks missing")

	var conflict *StatusConflictError
	_, err = f.svc.Query(ctx, QueryInput{OwnerID: "user-a", Query: "q", DocumentIDs: []string{"doc-2"}})
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "doc-2", conflict.DocumentID)
	assert.Equal(t, model.StatusProcessing, conflict.Status)

	_, err = f.svc.Query(ctx, QueryInput{OwnerID: "user-a", Query: "q", DocumentIDs: []string{"doc-1"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-1"}, f.index.lastFilter.DocumentIDs)
}

func TestListDocumentsSummarizesStatuses(t *testing.T) {
	f := newFixture(RAGServiceConfig{})
	f.addIndexedDocument("doc-1", "user-a", "a.pdf")
	f.registry.docs["doc-2"] = &model.Document{DocumentID: "doc-2", OwnerID: "user-a", Status: model.StatusProcessing}
	f.registry.docs["doc-3"] = &model.Document{DocumentID: "doc-3", OwnerID: "user-b", Status: model.StatusIndexed}

	list, err := f.svc.ListDocuments(context.Background(), "user-a")
	require.NoError(t, err)
	assert.Equal(t, 2, list.Total)
	assert.Equal(t, map[string]int{
		model.StatusProcessing: 1,
		model.StatusIndexed:    1,
		model.StatusError:      0,
	}, list.StatusSummary)
}

func TestListDocumentsEmptyOwner(t *testing.T) {
	f := newFixture(RAGServiceConfig{})
	list, err := f.svc.ListDocuments(context.Background(), "user-nobody")
	require.NoError(t, err)
	assert.Zero(t, list.Total)
	assert.NotNil(t, list.Documents)
}

func TestDocumentStatusCachesRegistryReads(t *testing.T) {
	f := newFixture(RAGServiceConfig{})
	ctx := context.Background()
	f.addIndexedDocument("doc-1", "user-a", "a.pdf")

	status, err := f.svc.DocumentStatus(ctx, "user-a", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusIndexed, status.Status)
	assert.Equal(t, 3, status.ChunkCount)
	assert.Contains(t, f.statuses.entries, "doc-1", "registry read populates the cache")

	// A cache hit must not touch the registry; ownership is verified against
	// the cached snapshot.
	f.statuses.entries["doc-1"] = cache.DocumentStatus{DocumentID: "doc-1", OwnerID: "user-a", Status: model.StatusProcessing}
	before := f.registry.getCalls
	status, err = f.svc.DocumentStatus(ctx, "user-a", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusProcessing, status.Status)
	assert.Equal(t, before, f.registry.getCalls, "cache hit must skip the registry")

	_, err = f.svc.DocumentStatus(ctx, "user-b", "doc-1")
	assert.ErrorIs(t, err, ErrDocumentNotFound)
	assert.Equal(t, before, f.registry.getCalls, "foreign owner on a cache hit must skip the registry")
}

func TestDocumentStatusUnknownDocument(t *testing.T) {
	f := newFixture(RAGServiceConfig{})
	_, err := f.svc.DocumentStatus(context.Background(), "user-a", "doc-404")
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestDeleteDocumentRemovesEverywhere(t *testing.T) {
	f := newFixture(RAGServiceConfig{})
	ctx := context.Background()
	f.addIndexedDocument("doc-1", "user-a", "a.pdf")
	f.index.entries["doc-1_chunk_0"] = vectorstore.Entry{
		ID:   "doc-1_chunk_0",
		Meta: vectorstore.Metadata{DocumentID: "doc-1", OwnerID: "user-a"},
	}
	f.statuses.entries["doc-1"] = cache.DocumentStatus{DocumentID: "doc-1", Status: model.StatusIndexed}

	require.NoError(t, f.svc.DeleteDocument(ctx, "user-a", "doc-1"))

	assert.NotContains(t, f.registry.docs, "doc-1")
	assert.Empty(t, f.index.entries)
	assert.NotContains(t, f.blobs.files, "doc-1.pdf")
	assert.NotContains(t, f.statuses.entries, "doc-1")
}

func TestDeleteDocumentOwnershipAndMissing(t *testing.T) {
	f := newFixture(RAGServiceConfig{})
	ctx := context.Background()
	f.addIndexedDocument("doc-1", "user-a", "a.pdf")

	assert.ErrorIs(t, f.svc.DeleteDocument(ctx, "user-b", "doc-1"), ErrDocumentNotFound)
	assert.ErrorIs(t, f.svc.DeleteDocument(ctx, "user-a", "doc-404"), ErrDocumentNotFound)
	assert.Contains(t, f.registry.docs, "doc-1", "foreign delete must not remove the row")
}
