package service

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/opendossier/dossier/internal/workflow/model"
)

// StepInstanceRepository abstracts persistence for step instances and their
// field values so the transition engine can be tested without a database.
// All methods operate within the caller's transaction.
type StepInstanceRepository interface {
	// GetStepInstanceByIDInTx retrieves a step instance by its ID.
	GetStepInstanceByIDInTx(ctx context.Context, tx *gorm.DB, instanceID uuid.UUID) (*model.StepInstance, error)

	// GetOrCreateStepInstanceInTx returns the instance for a (dossier, step)
	// pair, creating it in DRAFT state on first access.
	GetOrCreateStepInstanceInTx(ctx context.Context, tx *gorm.DB, dossierID, stepID uuid.UUID) (*model.StepInstance, error)

	// GetStepInstancesByDossierIDInTx retrieves all instances for a dossier.
	GetStepInstancesByDossierIDInTx(ctx context.Context, tx *gorm.DB, dossierID uuid.UUID) ([]model.StepInstance, error)

	// UpdateStepInstanceInTx persists the instance only if its stored status
	// still equals expectedStatus, returning a StaleStateError otherwise.
	UpdateStepInstanceInTx(ctx context.Context, tx *gorm.DB, instance *model.StepInstance, expectedStatus model.StepStatus) error

	// GetFieldValuesInTx retrieves all field values for a step instance.
	GetFieldValuesInTx(ctx context.Context, tx *gorm.DB, instanceID uuid.UUID) ([]model.FieldValue, error)

	// UpsertFieldValuesInTx writes the given values, setting each written
	// field's validation status to the provided status.
	UpsertFieldValuesInTx(ctx context.Context, tx *gorm.DB, instanceID uuid.UUID, values map[string]any, status model.FieldValidationStatus) error

	// SetFieldValidationStatusesInTx updates validation statuses for the
	// given field keys without touching their values.
	SetFieldValidationStatusesInTx(ctx context.Context, tx *gorm.DB, instanceID uuid.UUID, statuses map[string]model.FieldValidationStatus) error

	// GetRequiredDocumentsInTx retrieves the document requirements of a step
	// instance with their submitted documents preloaded.
	GetRequiredDocumentsInTx(ctx context.Context, tx *gorm.DB, instanceID uuid.UUID) ([]model.RequiredDocument, error)
}

// CatalogProvider supplies the immutable step catalog of a product, ordered
// by position.
type CatalogProvider interface {
	GetStepsByProductIDInTx(ctx context.Context, tx *gorm.DB, productID uuid.UUID) ([]model.Step, error)
}
