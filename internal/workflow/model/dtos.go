package model

import (
	"time"

	"github.com/google/uuid"
)

// CreateDossierDTO is the request body for opening a new dossier.
type CreateDossierDTO struct {
	ProductID uuid.UUID `json:"productId" binding:"required"`
}

// SubmitStepDTO carries the field values for a step submission.
// Override requests completion despite unapproved documents; it is only
// honored for authorized actors and is always audited.
type SubmitStepDTO struct {
	Values   map[string]any `json:"values"`
	Override bool           `json:"override,omitempty"`
}

// ResubmitStepDTO carries corrected values after a rejection.
type ResubmitStepDTO struct {
	Values map[string]any `json:"values"`
}

// RejectStepDTO carries an agent's rejection decision. RejectedFieldKeys
// marks the individual fields to correct; all other pending fields are
// approved as part of the same decision.
type RejectStepDTO struct {
	Reason            string   `json:"reason" binding:"required"`
	RejectedFieldKeys []string `json:"rejectedFieldKeys,omitempty"`
}

// DocumentDecision is an agent's review verdict on a document version.
type DocumentDecision string

const (
	DocumentDecisionApprove DocumentDecision = "APPROVE"
	DocumentDecisionReject  DocumentDecision = "REJECT"
)

// ReviewDocumentDTO carries a document review decision.
type ReviewDocumentDTO struct {
	Decision DocumentDecision `json:"decision" binding:"required"`
	Reason   string           `json:"reason,omitempty"`
}

// DocumentIssues classifies unmet document requirements for user-facing
// guidance. Keys are document type IDs.
type DocumentIssues struct {
	NotSubmitted []uuid.UUID `json:"notSubmitted"`
	Pending      []uuid.UUID `json:"pending"`
	Rejected     []uuid.UUID `json:"rejected"`
}

// Empty reports whether every required document is approved.
func (di DocumentIssues) Empty() bool {
	return len(di.NotSubmitted) == 0 && len(di.Pending) == 0 && len(di.Rejected) == 0
}

// ActiveStepView is the single derived surface the UI layer polls. Every
// screen consults this instead of re-deriving status logic.
type ActiveStepView struct {
	Dossier          *Dossier        `json:"dossier"`
	Step             *Step           `json:"step,omitempty"`
	Instance         *StepInstance   `json:"instance,omitempty"`
	Fields           []FieldValue    `json:"fields,omitempty"`
	Editable         bool            `json:"editable"`
	Blocked          bool            `json:"blocked"`                // True while a preceding TIMER step delays this step
	BlockedUntil     *time.Time      `json:"blockedUntil,omitempty"` // Unlock moment when known; nil while Blocked means unknown, still blocking
	Issues           *DocumentIssues `json:"issues,omitempty"`
	WorkflowComplete bool            `json:"workflowComplete"`
}
