// Package qdrant implements the vector index contract against a remote
// Qdrant instance over its REST API.
//
// Qdrant point ids must be UUIDs or unsigned integers, so the public chunk id
// is hashed into a deterministic UUIDv5 point id and kept verbatim in the
// payload. Metadata-only operations (List, the id-resolution half of Delete)
// use the scroll API, which needs no query vector. Delete is therefore a
// two-step scroll-then-delete; it is not atomic, and a crash between the two
// steps can leave orphaned chunks until the next delete for that document.
// Scroll results are paged and hard-capped at maxScrollPoints per call.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/sivakandan01/ai-backend/internal/vectorstore"
)

const (
	scrollPageSize  = 1000
	maxScrollPoints = 10000
)

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

type Index struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client
}

var _ vectorstore.Index = (*Index)(nil)

func New(cfg Config) *Index {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Index{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

// EnsureCollection creates the collection with the given dimensionality and
// cosine distance if it does not exist yet.
func (x *Index) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("qdrant: invalid dimension")
	}

	status, err := x.do(ctx, http.MethodGet, x.collectionURL(""), nil, nil)
	if err != nil {
		return err
	}
	if status == http.StatusOK {
		return nil
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	status, err = x.do(ctx, http.MethodPut, x.collectionURL(""), body, nil)
	if err != nil {
		return err
	}
	if status >= 300 {
		return fmt.Errorf("qdrant: create collection returned status %d", status)
	}
	return nil
}

func (x *Index) Upsert(ctx context.Context, entries []vectorstore.Entry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	points := make([]map[string]any, len(entries))
	for i, e := range entries {
		points[i] = map[string]any{
			"id":     pointID(e.ID),
			"vector": e.Vector,
			"payload": map[string]any{
				"chunk_id":    e.ID,
				"document_id": e.Meta.DocumentID,
				"filename":    e.Meta.Filename,
				"owner_id":    e.Meta.OwnerID,
				"chunk_index": e.Meta.ChunkIndex,
				"text":        e.Text,
			},
		}
	}
	body := map[string]any{"points": points}
	status, err := x.do(ctx, http.MethodPut, x.collectionURL("/points?wait=true"), body, nil)
	if err != nil {
		return 0, err
	}
	if status >= 300 {
		return 0, fmt.Errorf("qdrant: upsert returned status %d", status)
	}
	return len(entries), nil
}

func (x *Index) Search(ctx context.Context, vector []float32, topK int, filter vectorstore.Filter) ([]vectorstore.Hit, error) {
	if filter.OwnerID == "" {
		return nil, errors.New("qdrant: search requires an owner filter")
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
		"filter":       buildFilter(filter),
	}

	var resp struct {
		Result []struct {
			Score   float64 `json:"score"`
			Payload payload `json:"payload"`
		} `json:"result"`
	}
	status, err := x.do(ctx, http.MethodPost, x.collectionURL("/points/search"), req, &resp)
	if err != nil {
		return nil, err
	}
	if status >= 300 {
		return nil, fmt.Errorf("qdrant: search returned status %d", status)
	}

	hits := make([]vectorstore.Hit, 0, len(resp.Result))
	for _, r := range resp.Result {
		hits = append(hits, vectorstore.Hit{
			ID:   r.Payload.ChunkID,
			Text: r.Payload.Text,
			Meta: vectorstore.Metadata{
				DocumentID: r.Payload.DocumentID,
				Filename:   r.Payload.Filename,
				OwnerID:    r.Payload.OwnerID,
				ChunkIndex: r.Payload.ChunkIndex,
			},
			// Cosine collections report similarity, higher is better.
			Score: float32(r.Score),
		})
	}
	return hits, nil
}

func (x *Index) Delete(ctx context.Context, documentID, ownerID string) (int, error) {
	filter := vectorstore.Filter{OwnerID: ownerID, DocumentIDs: []string{documentID}}

	var ids []string
	err := x.scroll(ctx, filter, false, func(p scrollPoint) {
		ids = append(ids, p.ID)
	})
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	body := map[string]any{"points": ids}
	status, err := x.do(ctx, http.MethodPost, x.collectionURL("/points/delete?wait=true"), body, nil)
	if err != nil {
		return 0, err
	}
	if status >= 300 {
		return 0, fmt.Errorf("qdrant: delete returned status %d", status)
	}
	return len(ids), nil
}

func (x *Index) List(ctx context.Context, ownerID string) ([]vectorstore.DocumentChunks, error) {
	counts := make(map[string]*vectorstore.DocumentChunks)
	var order []string

	err := x.scroll(ctx, vectorstore.Filter{OwnerID: ownerID}, true, func(p scrollPoint) {
		docID := p.Payload.DocumentID
		if docID == "" {
			return
		}
		if g, ok := counts[docID]; ok {
			g.ChunkCount++
			return
		}
		counts[docID] = &vectorstore.DocumentChunks{
			DocumentID: docID,
			Filename:   p.Payload.Filename,
			ChunkCount: 1,
		}
		order = append(order, docID)
	})
	if err != nil {
		return nil, err
	}

	groups := make([]vectorstore.DocumentChunks, 0, len(order))
	for _, id := range order {
		groups = append(groups, *counts[id])
	}
	return groups, nil
}

type payload struct {
	ChunkID    string `json:"chunk_id"`
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	OwnerID    string `json:"owner_id"`
	ChunkIndex int    `json:"chunk_index"`
	Text       string `json:"text"`
}

type scrollPoint struct {
	ID      string  `json:"id"`
	Payload payload `json:"payload"`
}

// scroll pages through all points matching the filter without a query
// vector, stopping at maxScrollPoints.
func (x *Index) scroll(ctx context.Context, filter vectorstore.Filter, withPayload bool, visit func(scrollPoint)) error {
	var offset any
	seen := 0

	for {
		req := map[string]any{
			"filter":       buildFilter(filter),
			"limit":        scrollPageSize,
			"with_payload": withPayload,
			"with_vector":  false,
		}
		if offset != nil {
			req["offset"] = offset
		}

		var resp struct {
			Result struct {
				Points         []scrollPoint `json:"points"`
				NextPageOffset any           `json:"next_page_offset"`
			} `json:"result"`
		}
		status, err := x.do(ctx, http.MethodPost, x.collectionURL("/points/scroll"), req, &resp)
		if err != nil {
			return err
		}
		if status >= 300 {
			return fmt.Errorf("qdrant: scroll returned status %d", status)
		}

		for _, p := range resp.Result.Points {
			visit(p)
		}
		seen += len(resp.Result.Points)

		if resp.Result.NextPageOffset == nil || len(resp.Result.Points) == 0 || seen >= maxScrollPoints {
			return nil
		}
		offset = resp.Result.NextPageOffset
	}
}

func buildFilter(filter vectorstore.Filter) map[string]any {
	must := []map[string]any{
		{"key": "owner_id", "match": map[string]any{"value": filter.OwnerID}},
	}
	if len(filter.DocumentIDs) > 0 {
		must = append(must, map[string]any{
			"key":   "document_id",
			"match": map[string]any{"any": filter.DocumentIDs},
		})
	}
	return map[string]any{"must": must}
}

// pointID maps the public chunk id onto a deterministic UUID accepted by
// Qdrant as a point id.
func pointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunkID)).String()
}

func (x *Index) collectionURL(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", x.url, x.collection, suffix)
}

// do issues one JSON request and decodes the response into out when
// provided. A non-2xx status is returned to the caller for wrapping; only
// transport failures produce an error.
func (x *Index) do(ctx context.Context, method, url string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("qdrant: marshal request failed: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, fmt.Errorf("qdrant: build request failed: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if x.apiKey != "" {
		req.Header.Set("api-key", x.apiKey)
	}

	resp, err := x.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("qdrant: %s %s failed: %w", method, url, err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("qdrant: decode response failed: %w", err)
		}
	}
	return resp.StatusCode, nil
}
