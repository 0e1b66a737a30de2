// Package mysqlvec implements the vector index contract on MySQL: chunk rows
// live in the shared relational database and similarity is computed in
// process with an exhaustive cosine scan. Suited to the corpus sizes a
// single-tenant document set reaches; the qdrant backend covers larger ones.
package mysqlvec

import (
	"context"
	"fmt"
	"math"
	"sort"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sivakandan01/ai-backend/internal/model"
	"github.com/sivakandan01/ai-backend/internal/vectorstore"
)

type Index struct {
	db *gorm.DB
}

var _ vectorstore.Index = (*Index)(nil)

func New(db *gorm.DB) *Index {
	return &Index{db: db}
}

func (x *Index) Upsert(ctx context.Context, entries []vectorstore.Entry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	rows := make([]model.VectorChunk, len(entries))
	for i, e := range entries {
		rows[i] = model.VectorChunk{
			ChunkID:    e.ID,
			DocumentID: e.Meta.DocumentID,
			OwnerID:    e.Meta.OwnerID,
			Filename:   e.Meta.Filename,
			ChunkIndex: e.Meta.ChunkIndex,
			Content:    e.Text,
		}
		rows[i].SetEmbedding(e.Vector)
	}
	err := x.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rows).Error
	if err != nil {
		return 0, fmt.Errorf("upsert vector chunks failed: %w", err)
	}
	return len(rows), nil
}

func (x *Index) Search(ctx context.Context, vector []float32, topK int, filter vectorstore.Filter) ([]vectorstore.Hit, error) {
	if filter.OwnerID == "" {
		return nil, fmt.Errorf("search requires an owner filter")
	}
	q := x.db.WithContext(ctx).Where("owner_id = ?", filter.OwnerID)
	if len(filter.DocumentIDs) > 0 {
		q = q.Where("document_id IN ?", filter.DocumentIDs)
	}

	var rows []model.VectorChunk
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load vector chunks failed: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	hits := make([]vectorstore.Hit, 0, len(rows))
	for i := range rows {
		score := cosineSimilarity(vector, rows[i].EmbeddingVector())
		hits = append(hits, vectorstore.Hit{
			ID:   rows[i].ChunkID,
			Text: rows[i].Content,
			Meta: vectorstore.Metadata{
				DocumentID: rows[i].DocumentID,
				Filename:   rows[i].Filename,
				OwnerID:    rows[i].OwnerID,
				ChunkIndex: rows[i].ChunkIndex,
			},
			Score: score,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if topK > 0 && topK < len(hits) {
		hits = hits[:topK]
	}
	return hits, nil
}

func (x *Index) Delete(ctx context.Context, documentID, ownerID string) (int, error) {
	res := x.db.WithContext(ctx).
		Where("document_id = ? AND owner_id = ?", documentID, ownerID).
		Delete(&model.VectorChunk{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete vector chunks failed: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

func (x *Index) List(ctx context.Context, ownerID string) ([]vectorstore.DocumentChunks, error) {
	var groups []vectorstore.DocumentChunks
	err := x.db.WithContext(ctx).
		Model(&model.VectorChunk{}).
		Select("document_id, filename, COUNT(*) AS chunk_count").
		Where("owner_id = ?", ownerID).
		Group("document_id, filename").
		Scan(&groups).Error
	if err != nil {
		return nil, fmt.Errorf("list vector chunks failed: %w", err)
	}
	return groups, nil
}

// cosineSimilarity returns 0 for empty or mismatched vectors so a corrupt
// row sorts last instead of failing the whole search.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA <= 0 || normB <= 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
