package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/opendossier/dossier/internal/auth"
	"github.com/opendossier/dossier/internal/workflow/model"
)

// TransitionResult represents the outcome of a step instance transition.
type TransitionResult struct {
	// Instance is the instance after the transition was persisted.
	Instance *model.StepInstance

	// OverrideUsed indicates the document gate was bypassed by an authorized
	// actor. It is recorded, never raised as an error.
	OverrideUsed bool
}

// StepTransitionEngine drives step instances through their lifecycle:
// DRAFT -> SUBMITTED -> UNDER_REVIEW -> APPROVED or REJECTED, with REJECTED
// looping back through resubmission. Every persisted transition carries an
// expected prior status so concurrent agents cannot double-apply a decision.
type StepTransitionEngine struct {
	instanceRepo StepInstanceRepository
}

// NewStepTransitionEngine creates a new instance of StepTransitionEngine.
func NewStepTransitionEngine(instanceRepo StepInstanceRepository) *StepTransitionEngine {
	return &StepTransitionEngine{
		instanceRepo: instanceRepo,
	}
}

// Submit validates the submitted values against the step's field definitions,
// checks the document gate, persists the values and transitions the instance
// from DRAFT to SUBMITTED. CompletedAt records the client finishing the step;
// it is independent of approval and feeds downstream delay computation.
//
// A failed validation or gate leaves the instance untouched in DRAFT. The
// override flag bypasses the document gate only for supervisors and is
// surfaced on the result for auditing.
func (e *StepTransitionEngine) Submit(
	ctx context.Context,
	tx *gorm.DB,
	actor *auth.Actor,
	step *model.Step,
	instance *model.StepInstance,
	req *model.SubmitStepDTO,
) (*TransitionResult, error) {
	if step == nil || instance == nil {
		return nil, fmt.Errorf("step and instance cannot be nil")
	}
	if !e.canSubmit(instance.Status) {
		return nil, fmt.Errorf("cannot submit step instance %s from status %s", instance.ID, instance.Status)
	}
	if step.Type != model.StepTypeClient {
		return nil, fmt.Errorf("step %s is of type %s and cannot be submitted", step.Code, step.Type)
	}

	if fieldErrs := ValidateFields(step.RequiredFields, req.Values); len(fieldErrs) > 0 {
		return nil, &ValidationError{Fields: fieldErrs}
	}

	overrideUsed := false
	if len(step.RequiredDocumentTypes) > 0 {
		required, err := e.instanceRepo.GetRequiredDocumentsInTx(ctx, tx, instance.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to retrieve required documents for instance %s: %w", instance.ID, err)
		}
		if !AllRequiredApproved(required) {
			if !req.Override {
				return nil, &GateNotSatisfiedError{Issues: ClassifyDocumentIssues(required)}
			}
			if actor == nil || !actor.HasRole(auth.RoleSupervisor) {
				return nil, &PermissionError{RequiredRole: auth.RoleSupervisor}
			}
			overrideUsed = true
		}
	}

	if err := e.instanceRepo.UpsertFieldValuesInTx(ctx, tx, instance.ID, req.Values, model.FieldValidationPending); err != nil {
		return nil, fmt.Errorf("failed to persist field values for instance %s: %w", instance.ID, err)
	}

	now := time.Now().UTC()
	instance.Status = model.StepStatusSubmitted
	instance.CompletedAt = &now
	if err := e.instanceRepo.UpdateStepInstanceInTx(ctx, tx, instance, model.StepStatusDraft); err != nil {
		return nil, err
	}

	return &TransitionResult{Instance: instance, OverrideUsed: overrideUsed}, nil
}

// Resubmit transitions a REJECTED instance back to SUBMITTED with corrected
// values. Only fields whose previous value was rejected are re-validated;
// approved fields keep their status and never need re-entering. Corrected
// fields return to PENDING for the next review round.
func (e *StepTransitionEngine) Resubmit(
	ctx context.Context,
	tx *gorm.DB,
	step *model.Step,
	instance *model.StepInstance,
	req *model.ResubmitStepDTO,
) (*TransitionResult, error) {
	if step == nil || instance == nil {
		return nil, fmt.Errorf("step and instance cannot be nil")
	}
	if !e.canResubmit(instance.Status) {
		return nil, fmt.Errorf("cannot resubmit step instance %s from status %s", instance.ID, instance.Status)
	}

	existing, err := e.instanceRepo.GetFieldValuesInTx(ctx, tx, instance.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve field values for instance %s: %w", instance.ID, err)
	}
	rejectedKeys := make(map[string]bool)
	for _, fv := range existing {
		if fv.ValidationStatus == model.FieldValidationRejected {
			rejectedKeys[fv.FieldKey] = true
		}
	}

	if fieldErrs := ValidateRejectedFields(step.RequiredFields, req.Values, rejectedKeys); len(fieldErrs) > 0 {
		return nil, &ValidationError{Fields: fieldErrs}
	}

	// Persist only the corrected values. Values submitted for fields that
	// were never rejected are ignored rather than rejected.
	corrected := make(map[string]any)
	for key, value := range req.Values {
		if rejectedKeys[key] {
			corrected[key] = value
		}
	}
	if len(corrected) > 0 {
		if err := e.instanceRepo.UpsertFieldValuesInTx(ctx, tx, instance.ID, corrected, model.FieldValidationPending); err != nil {
			return nil, fmt.Errorf("failed to persist corrected field values for instance %s: %w", instance.ID, err)
		}
	}

	now := time.Now().UTC()
	instance.Status = model.StepStatusSubmitted
	instance.CompletedAt = &now
	instance.RejectionReason = nil
	if err := e.instanceRepo.UpdateStepInstanceInTx(ctx, tx, instance, model.StepStatusRejected); err != nil {
		return nil, err
	}

	return &TransitionResult{Instance: instance}, nil
}

// StartReview transitions a SUBMITTED instance to UNDER_REVIEW, assigning
// the reviewing agent. CompletedAt is left untouched.
func (e *StepTransitionEngine) StartReview(
	ctx context.Context,
	tx *gorm.DB,
	agentID string,
	instance *model.StepInstance,
) (*TransitionResult, error) {
	if instance == nil {
		return nil, fmt.Errorf("instance cannot be nil")
	}
	if !e.canStartReview(instance.Status) {
		return nil, fmt.Errorf("cannot start review of step instance %s from status %s", instance.ID, instance.Status)
	}

	instance.Status = model.StepStatusUnderReview
	instance.AssignedAgentID = &agentID
	if err := e.instanceRepo.UpdateStepInstanceInTx(ctx, tx, instance, model.StepStatusSubmitted); err != nil {
		return nil, err
	}

	return &TransitionResult{Instance: instance}, nil
}

// Approve transitions an UNDER_REVIEW instance to APPROVED, the terminal
// status for a step, and marks every pending field approved.
func (e *StepTransitionEngine) Approve(
	ctx context.Context,
	tx *gorm.DB,
	instance *model.StepInstance,
) (*TransitionResult, error) {
	if instance == nil {
		return nil, fmt.Errorf("instance cannot be nil")
	}
	if !e.canDecide(instance.Status) {
		return nil, fmt.Errorf("cannot approve step instance %s from status %s", instance.ID, instance.Status)
	}

	existing, err := e.instanceRepo.GetFieldValuesInTx(ctx, tx, instance.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve field values for instance %s: %w", instance.ID, err)
	}
	statuses := make(map[string]model.FieldValidationStatus)
	for _, fv := range existing {
		if fv.ValidationStatus == model.FieldValidationPending {
			statuses[fv.FieldKey] = model.FieldValidationApproved
		}
	}
	if len(statuses) > 0 {
		if err := e.instanceRepo.SetFieldValidationStatusesInTx(ctx, tx, instance.ID, statuses); err != nil {
			return nil, fmt.Errorf("failed to approve field values for instance %s: %w", instance.ID, err)
		}
	}

	instance.Status = model.StepStatusApproved
	if err := e.instanceRepo.UpdateStepInstanceInTx(ctx, tx, instance, model.StepStatusUnderReview); err != nil {
		return nil, err
	}

	return &TransitionResult{Instance: instance}, nil
}

// Reject transitions an UNDER_REVIEW instance to REJECTED with a mandatory
// reason. Fields named in the decision are marked REJECTED; every other
// pending field is approved as part of the same decision, so resubmission
// only re-opens what the agent flagged. CompletedAt is kept: the client did
// finish the step, the work just was not accepted.
func (e *StepTransitionEngine) Reject(
	ctx context.Context,
	tx *gorm.DB,
	instance *model.StepInstance,
	req *model.RejectStepDTO,
) (*TransitionResult, error) {
	if instance == nil {
		return nil, fmt.Errorf("instance cannot be nil")
	}
	if req.Reason == "" {
		return nil, fmt.Errorf("rejection of step instance %s requires a reason", instance.ID)
	}
	if !e.canDecide(instance.Status) {
		return nil, fmt.Errorf("cannot reject step instance %s from status %s", instance.ID, instance.Status)
	}

	rejected := make(map[string]bool, len(req.RejectedFieldKeys))
	for _, key := range req.RejectedFieldKeys {
		rejected[key] = true
	}

	existing, err := e.instanceRepo.GetFieldValuesInTx(ctx, tx, instance.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve field values for instance %s: %w", instance.ID, err)
	}
	statuses := make(map[string]model.FieldValidationStatus)
	for _, fv := range existing {
		switch {
		case rejected[fv.FieldKey]:
			statuses[fv.FieldKey] = model.FieldValidationRejected
		case fv.ValidationStatus == model.FieldValidationPending:
			statuses[fv.FieldKey] = model.FieldValidationApproved
		}
	}
	if len(statuses) > 0 {
		if err := e.instanceRepo.SetFieldValidationStatusesInTx(ctx, tx, instance.ID, statuses); err != nil {
			return nil, fmt.Errorf("failed to update field statuses for instance %s: %w", instance.ID, err)
		}
	}

	instance.Status = model.StepStatusRejected
	instance.RejectionReason = &req.Reason
	if err := e.instanceRepo.UpdateStepInstanceInTx(ctx, tx, instance, model.StepStatusUnderReview); err != nil {
		return nil, err
	}

	return &TransitionResult{Instance: instance}, nil
}

// MarkAdminComplete completes an ADMIN step on behalf of an agent holding the
// step's configured role. ADMIN steps skip the review cycle entirely and move
// straight from DRAFT to APPROVED.
func (e *StepTransitionEngine) MarkAdminComplete(
	ctx context.Context,
	tx *gorm.DB,
	actor *auth.Actor,
	step *model.Step,
	instance *model.StepInstance,
) (*TransitionResult, error) {
	if step == nil || instance == nil {
		return nil, fmt.Errorf("step and instance cannot be nil")
	}
	if step.Type != model.StepTypeAdmin || step.AdminRole == nil {
		return nil, fmt.Errorf("step %s is not an admin step", step.Code)
	}
	if actor == nil || !actor.HasRole(*step.AdminRole) {
		return nil, &PermissionError{RequiredRole: *step.AdminRole}
	}
	if instance.Status == model.StepStatusApproved {
		// Already completed, no transition needed
		return &TransitionResult{Instance: instance}, nil
	}
	if instance.Status != model.StepStatusDraft {
		return nil, fmt.Errorf("cannot complete admin step instance %s from status %s", instance.ID, instance.Status)
	}

	now := time.Now().UTC()
	instance.Status = model.StepStatusApproved
	instance.CompletedAt = &now
	instance.AssignedAgentID = &actor.ID
	if err := e.instanceRepo.UpdateStepInstanceInTx(ctx, tx, instance, model.StepStatusDraft); err != nil {
		return nil, err
	}

	return &TransitionResult{Instance: instance}, nil
}

// CompleteFormation completes a FORMATION step. Completion is unconditional
// and idempotent: repeating it on an already approved instance succeeds
// without touching the stored record.
func (e *StepTransitionEngine) CompleteFormation(
	ctx context.Context,
	tx *gorm.DB,
	step *model.Step,
	instance *model.StepInstance,
) (*TransitionResult, error) {
	if step == nil || instance == nil {
		return nil, fmt.Errorf("step and instance cannot be nil")
	}
	if step.Type != model.StepTypeFormation {
		return nil, fmt.Errorf("step %s is not a formation step", step.Code)
	}
	if instance.Status == model.StepStatusApproved {
		// Already completed, no transition needed
		return &TransitionResult{Instance: instance}, nil
	}
	if instance.Status != model.StepStatusDraft {
		return nil, fmt.Errorf("cannot complete formation step instance %s from status %s", instance.ID, instance.Status)
	}

	now := time.Now().UTC()
	instance.Status = model.StepStatusApproved
	instance.CompletedAt = &now
	if err := e.instanceRepo.UpdateStepInstanceInTx(ctx, tx, instance, model.StepStatusDraft); err != nil {
		return nil, err
	}

	return &TransitionResult{Instance: instance}, nil
}

// ActiveStepIndex finds the dossier's current position in the ordered
// catalog: the first non-timer step still awaiting client input. Submission
// advances the position, so a SUBMITTED or UNDER_REVIEW step is passed over
// while agents review it in parallel; a REJECTED step becomes active again.
// Timer steps are annotations on the sequence, never active themselves.
// Returns (-1, true) when no step awaits action.
func ActiveStepIndex(steps []model.Step, instances map[uuid.UUID]model.StepInstance) (int, bool) {
	for i := range steps {
		if steps[i].Type == model.StepTypeTimer {
			continue
		}
		inst, exists := instances[steps[i].ID]
		if !exists {
			return i, false
		}
		switch inst.Status {
		case model.StepStatusDraft, model.StepStatusRejected:
			return i, false
		}
	}
	return -1, true
}

// AllStepsApproved reports whether every actionable step carries an APPROVED
// instance. This, not ActiveStepIndex, decides dossier completion: a dossier
// with every step submitted is done navigating but not yet done reviewing.
func AllStepsApproved(steps []model.Step, instances map[uuid.UUID]model.StepInstance) bool {
	for i := range steps {
		if steps[i].Type == model.StepTypeTimer {
			continue
		}
		inst, exists := instances[steps[i].ID]
		if !exists || inst.Status != model.StepStatusApproved {
			return false
		}
	}
	return true
}

// canSubmit checks if an instance can transition to SUBMITTED from its current status.
func (e *StepTransitionEngine) canSubmit(status model.StepStatus) bool {
	return status == model.StepStatusDraft
}

// canResubmit checks if an instance can be resubmitted from its current status.
func (e *StepTransitionEngine) canResubmit(status model.StepStatus) bool {
	return status == model.StepStatusRejected
}

// canStartReview checks if an instance can transition to UNDER_REVIEW from its current status.
func (e *StepTransitionEngine) canStartReview(status model.StepStatus) bool {
	return status == model.StepStatusSubmitted
}

// canDecide checks if an agent decision applies to the current status.
// Only UNDER_REVIEW instances can be approved or rejected.
func (e *StepTransitionEngine) canDecide(status model.StepStatus) bool {
	return status == model.StepStatusUnderReview
}
