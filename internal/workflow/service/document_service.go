package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/opendossier/dossier/internal/audit"
	"github.com/opendossier/dossier/internal/auth"
	"github.com/opendossier/dossier/internal/docstore"
	"github.com/opendossier/dossier/internal/workflow/model"
)

// DocumentService manages submitted documents: version uploads into the blob
// store and agent review decisions. Versions are immutable; review status
// lives on the document and always refers to the latest version.
type DocumentService struct {
	db     *gorm.DB
	driver docstore.Driver
	events chan<- audit.Event
}

// NewDocumentService creates a new instance of DocumentService.
func NewDocumentService(db *gorm.DB, driver docstore.Driver, events chan<- audit.Event) *DocumentService {
	return &DocumentService{db: db, driver: driver, events: events}
}

// UploadVersion stores a new version of the document filling the given
// requirement slot. The first upload creates the document; every upload
// appends an immutable version and resets the live status to PENDING so the
// new content goes back through review.
func (s *DocumentService) UploadVersion(
	ctx context.Context,
	actor *auth.Actor,
	instanceID uuid.UUID,
	documentTypeID uuid.UUID,
	fileName string,
	mimeType string,
	size int64,
	body io.Reader,
) (*model.DocumentVersion, error) {
	if actor == nil {
		return nil, &PermissionError{RequiredRole: auth.RoleClient}
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	var version *model.DocumentVersion
	var blobKey string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var instance model.StepInstance
		if err := tx.First(&instance, "id = ?", instanceID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("step instance %s not found", instanceID)
			}
			return fmt.Errorf("failed to retrieve step instance: %w", err)
		}
		if !instance.CanEdit() {
			return fmt.Errorf("step instance %s does not accept uploads in status %s", instanceID, instance.Status)
		}

		var slot model.RequiredDocument
		if err := tx.First(&slot, "step_instance_id = ? AND document_type_id = ?", instanceID, documentTypeID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("step instance %s does not require document type %s", instanceID, documentTypeID)
			}
			return fmt.Errorf("failed to retrieve document requirement: %w", err)
		}

		var document model.Document
		err := tx.First(&document, "required_document_id = ?", slot.ID).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			document = model.Document{
				RequiredDocumentID: slot.ID,
				Status:             model.DocumentStatusPending,
			}
			if err := tx.Create(&document).Error; err != nil {
				return fmt.Errorf("failed to create document: %w", err)
			}
		case err != nil:
			return fmt.Errorf("failed to retrieve document: %w", err)
		}

		var lastVersion int
		if err := tx.Model(&model.DocumentVersion{}).
			Where("document_id = ?", document.ID).
			Select("COALESCE(MAX(version_number), 0)").
			Scan(&lastVersion).Error; err != nil {
			return fmt.Errorf("failed to determine version number: %w", err)
		}

		version = &model.DocumentVersion{
			BaseModel:     model.BaseModel{ID: uuid.New()},
			DocumentID:    document.ID,
			VersionNumber: lastVersion + 1,
			FileName:      fileName,
			MimeType:      mimeType,
			Size:          size,
			UploadedBy:    actor.ID,
			UploadedAt:    time.Now().UTC(),
		}
		// The version ID in the key makes every upload attempt unique, so a
		// blob stranded by a failed transaction never collides with a retry.
		version.BlobKey = fmt.Sprintf("%s/v%03d-%s%s", document.ID, version.VersionNumber, version.ID, filepath.Ext(fileName))
		if err := s.driver.Put(ctx, version.BlobKey, body, mimeType); err != nil {
			return err
		}
		blobKey = version.BlobKey

		if err := tx.Create(version).Error; err != nil {
			return fmt.Errorf("failed to record document version: %w", err)
		}

		// New content restarts the review cycle.
		return tx.Model(&model.Document{}).Where("id = ?", document.ID).Updates(map[string]any{
			"status":        model.DocumentStatusPending,
			"review_reason": nil,
			"reviewed_by":   nil,
		}).Error
	})
	if err != nil {
		if blobKey != "" {
			if rmErr := s.driver.Remove(ctx, blobKey); rmErr != nil {
				slog.Warn("failed to remove orphaned document blob",
					"blobKey", blobKey,
					"error", rmErr)
			}
		}
		return nil, err
	}
	return version, nil
}

// ReviewDocument records an agent's decision on a document's latest version.
// Rejection requires a reason. Older versions never mutate.
func (s *DocumentService) ReviewDocument(ctx context.Context, actor *auth.Actor, documentID uuid.UUID, req *model.ReviewDocumentDTO) (*model.Document, error) {
	if actor == nil || !actor.HasRole(auth.RoleAgent) {
		return nil, &PermissionError{RequiredRole: auth.RoleAgent}
	}

	var newStatus model.DocumentStatus
	switch req.Decision {
	case model.DocumentDecisionApprove:
		newStatus = model.DocumentStatusApproved
	case model.DocumentDecisionReject:
		if req.Reason == "" {
			return nil, fmt.Errorf("rejecting document %s requires a reason", documentID)
		}
		newStatus = model.DocumentStatusRejected
	default:
		return nil, fmt.Errorf("unknown document decision %q", req.Decision)
	}

	var document model.Document
	var dossierID uuid.UUID
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Versions").First(&document, "id = ?", documentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("document %s not found", documentID)
			}
			return fmt.Errorf("failed to retrieve document: %w", err)
		}
		if len(document.Versions) == 0 {
			return fmt.Errorf("document %s has no version to review", documentID)
		}
		if document.Status != model.DocumentStatusPending {
			return fmt.Errorf("document %s is not pending review, current status %s", documentID, document.Status)
		}

		document.Status = newStatus
		document.ReviewedBy = &actor.ID
		if req.Reason != "" {
			document.ReviewReason = &req.Reason
		} else {
			document.ReviewReason = nil
		}
		if err := tx.Model(&model.Document{}).Where("id = ?", documentID).Updates(map[string]any{
			"status":        document.Status,
			"review_reason": document.ReviewReason,
			"reviewed_by":   document.ReviewedBy,
		}).Error; err != nil {
			return fmt.Errorf("failed to update document %s: %w", documentID, err)
		}

		// Resolve the owning dossier for the audit trail.
		var slot model.RequiredDocument
		if err := tx.First(&slot, "id = ?", document.RequiredDocumentID).Error; err != nil {
			return fmt.Errorf("failed to retrieve document requirement: %w", err)
		}
		var instance model.StepInstance
		if err := tx.First(&instance, "id = ?", slot.StepInstanceID).Error; err != nil {
			return fmt.Errorf("failed to retrieve step instance: %w", err)
		}
		dossierID = instance.DossierID
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.events != nil {
		detail := fmt.Sprintf("document %s %s", documentID, newStatus)
		select {
		case s.events <- audit.Event{
			Kind:      audit.EventDocumentReviewed,
			DossierID: dossierID,
			ActorID:   actor.ID,
			Detail:    detail,
		}:
		default:
		}
	}
	return &document, nil
}

// OpenVersion streams a stored version's content from the blob store.
func (s *DocumentService) OpenVersion(ctx context.Context, versionID uuid.UUID) (io.ReadCloser, *model.DocumentVersion, error) {
	var version model.DocumentVersion
	if err := s.db.WithContext(ctx).First(&version, "id = ?", versionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("document version %s not found", versionID)
		}
		return nil, nil, fmt.Errorf("failed to retrieve document version: %w", err)
	}

	reader, _, err := s.driver.Open(ctx, version.BlobKey)
	if err != nil {
		return nil, nil, err
	}
	return reader, &version, nil
}
