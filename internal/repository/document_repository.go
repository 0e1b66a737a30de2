package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/sivakandan01/ai-backend/internal/model"
)

// DocumentRepository is the authoritative registry of uploaded documents.
// Vector index and blob contents are derived state keyed off these rows.
type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *model.Document) error {
	if err := r.db.WithContext(ctx).Create(doc).Error; err != nil {
		return fmt.Errorf("create document failed: %w", err)
	}
	return nil
}

// GetByIDAndOwner returns nil without error when no row matches, so callers
// can map the miss to their own not-found handling.
func (r *DocumentRepository) GetByIDAndOwner(ctx context.Context, documentID, ownerID string) (*model.Document, error) {
	var doc model.Document
	err := r.db.WithContext(ctx).
		Where("document_id = ? AND owner_id = ?", documentID, ownerID).
		First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document failed: %w", err)
	}
	return &doc, nil
}

func (r *DocumentRepository) ListByOwner(ctx context.Context, ownerID string) ([]model.Document, error) {
	var list []model.Document
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("upload_date DESC").
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("list documents failed: %w", err)
	}
	return list, nil
}

// MarkIndexed records a successful ingestion: final chunk count, processed
// timestamp, and any stale error message cleared.
func (r *DocumentRepository) MarkIndexed(ctx context.Context, documentID string, chunkCount int) error {
	now := time.Now()
	return r.updateStatus(ctx, documentID, map[string]any{
		"status":        model.StatusIndexed,
		"chunk_count":   chunkCount,
		"processed_at":  &now,
		"error_message": "",
	})
}

// MarkError records a failed ingestion with the failure reason.
func (r *DocumentRepository) MarkError(ctx context.Context, documentID, message string) error {
	now := time.Now()
	return r.updateStatus(ctx, documentID, map[string]any{
		"status":        model.StatusError,
		"processed_at":  &now,
		"error_message": message,
	})
}

func (r *DocumentRepository) updateStatus(ctx context.Context, documentID string, fields map[string]any) error {
	res := r.db.WithContext(ctx).
		Model(&model.Document{}).
		Where("document_id = ?", documentID).
		Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("update document status failed: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update document status: document %s not found", documentID)
	}
	return nil
}

func (r *DocumentRepository) DeleteByIDAndOwner(ctx context.Context, documentID, ownerID string) error {
	err := r.db.WithContext(ctx).
		Where("document_id = ? AND owner_id = ?", documentID, ownerID).
		Delete(&model.Document{}).Error
	if err != nil {
		return fmt.Errorf("delete document failed: %w", err)
	}
	return nil
}
