package model

import "github.com/google/uuid"

// FieldValidationStatus is the per-field review status, independent of the
// instance-level status. It drives partial rejection: on resubmission only
// REJECTED fields are re-validated.
type FieldValidationStatus string

const (
	FieldValidationPending  FieldValidationStatus = "PENDING"
	FieldValidationApproved FieldValidationStatus = "APPROVED"
	FieldValidationRejected FieldValidationStatus = "REJECTED"
)

// FieldValue is a submitted value for one field of a step instance.
type FieldValue struct {
	BaseModel
	StepInstanceID   uuid.UUID             `gorm:"type:uuid;column:step_instance_id;not null;index:idx_field_values_instance_key,unique" json:"stepInstanceId"`
	FieldKey         string                `gorm:"type:varchar(100);column:field_key;not null;index:idx_field_values_instance_key,unique" json:"fieldKey"`
	Value            any                   `gorm:"type:jsonb;column:value;serializer:json" json:"value"`
	ValidationStatus FieldValidationStatus `gorm:"type:varchar(20);column:validation_status;not null" json:"validationStatus"`
}

func (fv *FieldValue) TableName() string {
	return "field_values"
}
