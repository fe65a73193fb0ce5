package model

import (
	"time"

	"github.com/google/uuid"
)

// StepStatus represents the validation status of a step instance.
type StepStatus string

const (
	StepStatusDraft       StepStatus = "DRAFT"        // Created on first access, editable by the client
	StepStatusSubmitted   StepStatus = "SUBMITTED"    // Client has submitted, awaiting an agent
	StepStatusUnderReview StepStatus = "UNDER_REVIEW" // An agent has started reviewing
	StepStatusApproved    StepStatus = "APPROVED"     // Terminal for this step
	StepStatusRejected    StepStatus = "REJECTED"     // Looped back to editable, awaiting resubmission
)

// StepInstance is the per-dossier runtime record of a step's progress.
// One row per (dossier, step) pair, created lazily on first visit.
type StepInstance struct {
	BaseModel
	DossierID       uuid.UUID  `gorm:"type:uuid;column:dossier_id;not null;index" json:"dossierId"`
	StepID          uuid.UUID  `gorm:"type:uuid;column:step_id;not null;index" json:"stepId"`
	Status          StepStatus `gorm:"type:varchar(20);column:status;not null" json:"status"`
	StartedAt       time.Time  `gorm:"type:timestamptz;column:started_at;not null" json:"startedAt"`
	CompletedAt     *time.Time `gorm:"type:timestamptz;column:completed_at" json:"completedAt,omitempty"` // Set when the client finishes/submits, independent of approval
	AssignedAgentID *string    `gorm:"type:varchar(255);column:assigned_agent_id" json:"assignedAgentId,omitempty"`
	RejectionReason *string    `gorm:"type:text;column:rejection_reason" json:"rejectionReason,omitempty"`

	// Relationships
	Dossier *Dossier `gorm:"foreignKey:DossierID;references:ID" json:"-"`
	Step    *Step    `gorm:"foreignKey:StepID;references:ID" json:"-"`
}

func (si *StepInstance) TableName() string {
	return "step_instances"
}

// CanEdit reports whether the instance accepts client edits. This predicate,
// not the raw status, is what every entry surface must consult.
func (si *StepInstance) CanEdit() bool {
	return si.Status == StepStatusDraft || si.Status == StepStatusRejected
}
