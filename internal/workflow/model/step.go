package model

import (
	"fmt"

	"github.com/google/uuid"
)

// StepType classifies a catalog step and determines which configuration
// block applies and which transitions the engine permits.
type StepType string

const (
	StepTypeClient    StepType = "CLIENT"    // Client fills fields and uploads documents, then submits for review
	StepTypeAdmin     StepType = "ADMIN"     // Completed by an agent holding the configured role, no client submission
	StepTypeFormation StepType = "FORMATION" // Training module, completed unconditionally by the client
	StepTypeTimer     StepType = "TIMER"     // Pure delay annotation, gates the step that follows it
)

// FieldKind is the value type of a form field, used for type-specific validation.
type FieldKind string

const (
	FieldKindText        FieldKind = "TEXT"
	FieldKindNumber      FieldKind = "NUMBER"
	FieldKindDate        FieldKind = "DATE"
	FieldKindMultiSelect FieldKind = "MULTI_SELECT"
)

// FieldDef describes a single form field required by a CLIENT step.
type FieldDef struct {
	Key      string    `json:"key"`
	Label    string    `json:"label,omitempty"`
	Kind     FieldKind `json:"kind"`
	Required bool      `json:"required"`
	Min      *float64  `json:"min,omitempty"`     // Numeric lower bound, checked only when a value is present
	Max      *float64  `json:"max,omitempty"`     // Numeric upper bound
	Pattern  string    `json:"pattern,omitempty"` // Regexp the value must match, checked only when present
}

// FieldDefList is stored as a JSONB column on the step catalog.
type FieldDefList []FieldDef

// Step is a catalog entry: one unit of work in a product's ordered sequence.
// Catalog steps are immutable per product version; per-dossier progress lives
// on StepInstance.
type Step struct {
	BaseModel
	ProductID             uuid.UUID    `gorm:"type:uuid;column:product_id;not null;index" json:"productId"`
	Code                  string       `gorm:"type:varchar(100);column:code;not null" json:"code"`
	Position              int          `gorm:"column:position;not null" json:"position"` // Ordering, unique within a product
	Type                  StepType     `gorm:"type:varchar(20);column:type;not null" json:"type"`
	RequiredFields        FieldDefList `gorm:"type:jsonb;column:required_fields;serializer:json" json:"requiredFields,omitempty"`
	RequiredDocumentTypes UUIDArray    `gorm:"type:jsonb;column:required_document_types;serializer:json" json:"requiredDocumentTypes,omitempty"`
	AdminRole             *string      `gorm:"type:varchar(100);column:admin_role" json:"adminRole,omitempty"`            // Role an agent must hold to complete an ADMIN step
	FormationID           *uuid.UUID   `gorm:"type:uuid;column:formation_id" json:"formationId,omitempty"`                // Attached training module for FORMATION steps
	TimerDelayMinutes     *int         `gorm:"column:timer_delay_minutes" json:"timerDelayMinutes,omitempty"`             // Delay applied by TIMER steps to the following step
}

func (s *Step) TableName() string {
	return "steps"
}

// ValidateConfig checks the catalog invariant: exactly one configuration
// block is populated, and it matches the step type.
func (s *Step) ValidateConfig() error {
	hasClient := len(s.RequiredFields) > 0 || len(s.RequiredDocumentTypes) > 0
	hasAdmin := s.AdminRole != nil
	hasFormation := s.FormationID != nil
	hasTimer := s.TimerDelayMinutes != nil

	populated := 0
	for _, set := range []bool{hasClient, hasAdmin, hasFormation, hasTimer} {
		if set {
			populated++
		}
	}
	if populated != 1 {
		return fmt.Errorf("step %s must populate exactly one configuration block, found %d", s.Code, populated)
	}

	switch s.Type {
	case StepTypeClient:
		if !hasClient {
			return fmt.Errorf("CLIENT step %s must configure required fields or document types", s.Code)
		}
	case StepTypeAdmin:
		if !hasAdmin {
			return fmt.Errorf("ADMIN step %s must configure an admin role", s.Code)
		}
	case StepTypeFormation:
		if !hasFormation {
			return fmt.Errorf("FORMATION step %s must configure a formation ID", s.Code)
		}
	case StepTypeTimer:
		if !hasTimer {
			return fmt.Errorf("TIMER step %s must configure a delay", s.Code)
		}
		if *s.TimerDelayMinutes <= 0 {
			return fmt.Errorf("TIMER step %s must configure a positive delay, got %d", s.Code, *s.TimerDelayMinutes)
		}
	default:
		return fmt.Errorf("step %s has unknown type %s", s.Code, s.Type)
	}
	return nil
}
