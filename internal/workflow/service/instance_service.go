package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/opendossier/dossier/internal/workflow/model"
)

// StepInstanceService is the gorm-backed implementation of
// StepInstanceRepository.
type StepInstanceService struct {
	db *gorm.DB
}

// NewStepInstanceService creates a new instance of StepInstanceService.
func NewStepInstanceService(db *gorm.DB) *StepInstanceService {
	return &StepInstanceService{db: db}
}

// GetStepInstanceByIDInTx retrieves a step instance by its ID.
func (s *StepInstanceService) GetStepInstanceByIDInTx(ctx context.Context, tx *gorm.DB, instanceID uuid.UUID) (*model.StepInstance, error) {
	if instanceID == uuid.Nil {
		return nil, fmt.Errorf("step instance ID cannot be nil")
	}

	var instance model.StepInstance
	result := tx.WithContext(ctx).First(&instance, "id = ?", instanceID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("step instance %s not found", instanceID)
		}
		return nil, fmt.Errorf("failed to retrieve step instance: %w", result.Error)
	}
	return &instance, nil
}

// GetOrCreateStepInstanceInTx returns the instance for a (dossier, step)
// pair, creating it in DRAFT state with its document requirement slots on
// first access.
func (s *StepInstanceService) GetOrCreateStepInstanceInTx(ctx context.Context, tx *gorm.DB, dossierID, stepID uuid.UUID) (*model.StepInstance, error) {
	var instance model.StepInstance
	result := tx.WithContext(ctx).First(&instance, "dossier_id = ? AND step_id = ?", dossierID, stepID)
	if result.Error == nil {
		return &instance, nil
	}
	if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to retrieve step instance: %w", result.Error)
	}

	var step model.Step
	if err := tx.WithContext(ctx).First(&step, "id = ?", stepID).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve step %s: %w", stepID, err)
	}

	instance = model.StepInstance{
		DossierID: dossierID,
		StepID:    stepID,
		Status:    model.StepStatusDraft,
		StartedAt: time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(&instance).Error; err != nil {
		return nil, fmt.Errorf("failed to create step instance: %w", err)
	}

	if len(step.RequiredDocumentTypes) > 0 {
		slots := make([]model.RequiredDocument, 0, len(step.RequiredDocumentTypes))
		for _, typeID := range step.RequiredDocumentTypes {
			slots = append(slots, model.RequiredDocument{
				StepInstanceID: instance.ID,
				DocumentTypeID: typeID,
			})
		}
		if err := tx.WithContext(ctx).Create(&slots).Error; err != nil {
			return nil, fmt.Errorf("failed to create document requirement slots: %w", err)
		}
	}

	return &instance, nil
}

// GetStepInstancesByDossierIDInTx retrieves all instances for a dossier.
func (s *StepInstanceService) GetStepInstancesByDossierIDInTx(ctx context.Context, tx *gorm.DB, dossierID uuid.UUID) ([]model.StepInstance, error) {
	if dossierID == uuid.Nil {
		return nil, fmt.Errorf("dossier ID cannot be nil")
	}

	var instances []model.StepInstance
	result := tx.WithContext(ctx).Where("dossier_id = ?", dossierID).Find(&instances)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to retrieve step instances: %w", result.Error)
	}
	return instances, nil
}

// UpdateStepInstanceInTx persists the instance only when its stored status
// still equals expectedStatus. A zero row count means another actor moved
// the instance first and the caller must reload.
func (s *StepInstanceService) UpdateStepInstanceInTx(ctx context.Context, tx *gorm.DB, instance *model.StepInstance, expectedStatus model.StepStatus) error {
	result := tx.WithContext(ctx).Model(&model.StepInstance{}).
		Where("id = ? AND status = ?", instance.ID, expectedStatus).
		Updates(map[string]any{
			"status":            instance.Status,
			"completed_at":      instance.CompletedAt,
			"assigned_agent_id": instance.AssignedAgentID,
			"rejection_reason":  instance.RejectionReason,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update step instance %s: %w", instance.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return &StaleStateError{StepInstanceID: instance.ID, ExpectedStatus: expectedStatus}
	}
	return nil
}

// GetFieldValuesInTx retrieves all field values for a step instance.
func (s *StepInstanceService) GetFieldValuesInTx(ctx context.Context, tx *gorm.DB, instanceID uuid.UUID) ([]model.FieldValue, error) {
	var values []model.FieldValue
	result := tx.WithContext(ctx).Where("step_instance_id = ?", instanceID).Find(&values)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to retrieve field values: %w", result.Error)
	}
	return values, nil
}

// UpsertFieldValuesInTx writes the given values, inserting or replacing on
// the (instance, field key) pair and resetting the validation status of
// every written field.
func (s *StepInstanceService) UpsertFieldValuesInTx(ctx context.Context, tx *gorm.DB, instanceID uuid.UUID, values map[string]any, status model.FieldValidationStatus) error {
	if len(values) == 0 {
		return nil
	}

	rows := make([]model.FieldValue, 0, len(values))
	for key, value := range values {
		rows = append(rows, model.FieldValue{
			StepInstanceID:   instanceID,
			FieldKey:         key,
			Value:            value,
			ValidationStatus: status,
		})
	}

	result := tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "step_instance_id"}, {Name: "field_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "validation_status", "updated_at"}),
	}).Create(&rows)
	if result.Error != nil {
		return fmt.Errorf("failed to upsert field values: %w", result.Error)
	}
	return nil
}

// SetFieldValidationStatusesInTx updates validation statuses for the given
// field keys without touching their values.
func (s *StepInstanceService) SetFieldValidationStatusesInTx(ctx context.Context, tx *gorm.DB, instanceID uuid.UUID, statuses map[string]model.FieldValidationStatus) error {
	for key, status := range statuses {
		result := tx.WithContext(ctx).Model(&model.FieldValue{}).
			Where("step_instance_id = ? AND field_key = ?", instanceID, key).
			Update("validation_status", status)
		if result.Error != nil {
			return fmt.Errorf("failed to update validation status of field %q: %w", key, result.Error)
		}
	}
	return nil
}

// GetRequiredDocumentsInTx retrieves the document requirements of a step
// instance with their documents and version history preloaded.
func (s *StepInstanceService) GetRequiredDocumentsInTx(ctx context.Context, tx *gorm.DB, instanceID uuid.UUID) ([]model.RequiredDocument, error) {
	var required []model.RequiredDocument
	result := tx.WithContext(ctx).
		Preload("Document").
		Preload("Document.Versions").
		Where("step_instance_id = ?", instanceID).
		Find(&required)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to retrieve required documents: %w", result.Error)
	}
	return required, nil
}
