package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/opendossier/dossier/internal/audit"
	"github.com/opendossier/dossier/internal/auth"
	"github.com/opendossier/dossier/internal/workflow/model"
	"github.com/opendossier/dossier/utils"
)

// DossierService orchestrates dossier-level operations: it owns the
// transactions, delegates transitions to the StepTransitionEngine, keeps the
// dossier state in sync with its step instances and emits audit events.
type DossierService struct {
	db      *gorm.DB
	catalog CatalogProvider
	repo    StepInstanceRepository
	engine  *StepTransitionEngine
	events  chan<- audit.Event
}

// NewDossierService creates a new instance of DossierService.
func NewDossierService(db *gorm.DB, catalog CatalogProvider, repo StepInstanceRepository, events chan<- audit.Event) *DossierService {
	return &DossierService{
		db:      db,
		catalog: catalog,
		repo:    repo,
		engine:  NewStepTransitionEngine(repo),
		events:  events,
	}
}

// CreateDossier opens a new dossier for a client on a product. The product
// must have a published step catalog.
func (s *DossierService) CreateDossier(ctx context.Context, clientID string, req *model.CreateDossierDTO) (*model.Dossier, error) {
	if clientID == "" {
		return nil, fmt.Errorf("client ID cannot be empty")
	}

	steps, err := s.catalog.GetStepsByProductIDInTx(ctx, s.db, req.ProductID)
	if err != nil {
		return nil, err
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("product %s has no step catalog", req.ProductID)
	}

	dossier := &model.Dossier{
		ProductID: req.ProductID,
		ClientID:  clientID,
		State:     model.DossierStateInProgress,
	}
	if err := s.db.WithContext(ctx).Create(dossier).Error; err != nil {
		return nil, fmt.Errorf("failed to create dossier: %w", err)
	}
	return dossier, nil
}

// GetDossierByID retrieves a dossier by its ID.
func (s *DossierService) GetDossierByID(ctx context.Context, dossierID uuid.UUID) (*model.Dossier, error) {
	var dossier model.Dossier
	result := s.db.WithContext(ctx).First(&dossier, "id = ?", dossierID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("dossier %s not found", dossierID)
		}
		return nil, fmt.Errorf("failed to retrieve dossier: %w", result.Error)
	}
	return &dossier, nil
}

// GetDossiersByClientID retrieves a page of a client's dossiers with the
// total count.
func (s *DossierService) GetDossiersByClientID(ctx context.Context, clientID string, offset *int, limit *int) ([]model.Dossier, int64, error) {
	if clientID == "" {
		return nil, 0, fmt.Errorf("client ID cannot be empty")
	}

	finalOffset, finalLimit := utils.GetPaginationParams(offset, limit)

	var total int64
	if err := s.db.WithContext(ctx).Model(&model.Dossier{}).Where("client_id = ?", clientID).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count dossiers: %w", err)
	}

	var dossiers []model.Dossier
	result := s.db.WithContext(ctx).
		Where("client_id = ?", clientID).
		Order("created_at desc").
		Offset(finalOffset).
		Limit(finalLimit).
		Find(&dossiers)
	if result.Error != nil {
		return nil, 0, fmt.Errorf("failed to retrieve dossiers: %w", result.Error)
	}
	return dossiers, total, nil
}

// GetActiveStepView computes the single derived surface the UI polls: which
// step is active, whether it is editable or delay-blocked, its field values
// and outstanding document issues. The instance is created lazily on first
// visit, but never while a timer still blocks the step.
func (s *DossierService) GetActiveStepView(ctx context.Context, dossierID uuid.UUID) (*model.ActiveStepView, error) {
	var view *model.ActiveStepView

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dossier, steps, instances, err := s.loadWorkflow(ctx, tx, dossierID)
		if err != nil {
			return err
		}

		index, complete := ActiveStepIndex(steps, instances)
		if complete {
			view = &model.ActiveStepView{Dossier: dossier, WorkflowComplete: true}
			return nil
		}
		step := steps[index]

		unlockAt, gated := NextStepUnlockAt(steps, index, instances)
		if TimerBlocked(time.Now().UTC(), unlockAt, gated) {
			view = &model.ActiveStepView{
				Dossier:      dossier,
				Step:         &step,
				Blocked:      true,
				BlockedUntil: unlockAt,
			}
			return nil
		}

		instance, err := s.repo.GetOrCreateStepInstanceInTx(ctx, tx, dossierID, step.ID)
		if err != nil {
			return err
		}

		view = &model.ActiveStepView{
			Dossier:  dossier,
			Step:     &step,
			Instance: instance,
			Editable: instance.CanEdit(),
		}

		if step.Type == model.StepTypeClient {
			fields, err := s.repo.GetFieldValuesInTx(ctx, tx, instance.ID)
			if err != nil {
				return err
			}
			view.Fields = fields

			if len(step.RequiredDocumentTypes) > 0 {
				required, err := s.repo.GetRequiredDocumentsInTx(ctx, tx, instance.ID)
				if err != nil {
					return err
				}
				issues := ClassifyDocumentIssues(required)
				view.Issues = &issues
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// SubmitStep submits a client step's values for review.
func (s *DossierService) SubmitStep(ctx context.Context, actor *auth.Actor, instanceID uuid.UUID, req *model.SubmitStepDTO) (*model.StepInstance, error) {
	var result *TransitionResult
	var dossierID uuid.UUID

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		instance, step, dossier, err := s.loadInstanceContext(ctx, tx, instanceID)
		if err != nil {
			return err
		}
		if err := s.checkClientAccess(actor, dossier); err != nil {
			return err
		}
		dossierID = dossier.ID

		result, err = s.engine.Submit(ctx, tx, actor, step, instance, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.emit(audit.EventStepSubmitted, dossierID, &instanceID, actor, "")
	if result.OverrideUsed {
		s.emit(audit.EventOverrideUsed, dossierID, &instanceID, actor, "document gate bypassed on submission")
	}
	return result.Instance, nil
}

// ResubmitStep submits corrected values for a rejected step and returns the
// dossier to IN_PROGRESS when no rejected step remains.
func (s *DossierService) ResubmitStep(ctx context.Context, actor *auth.Actor, instanceID uuid.UUID, req *model.ResubmitStepDTO) (*model.StepInstance, error) {
	var result *TransitionResult
	var dossierID uuid.UUID

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		instance, step, dossier, err := s.loadInstanceContext(ctx, tx, instanceID)
		if err != nil {
			return err
		}
		if err := s.checkClientAccess(actor, dossier); err != nil {
			return err
		}
		dossierID = dossier.ID

		result, err = s.engine.Resubmit(ctx, tx, step, instance, req)
		if err != nil {
			return err
		}
		return s.refreshDossierState(ctx, tx, dossier)
	})
	if err != nil {
		return nil, err
	}

	s.emit(audit.EventStepResubmitted, dossierID, &instanceID, actor, "")
	return result.Instance, nil
}

// StartReview moves a submitted step under review by the acting agent.
func (s *DossierService) StartReview(ctx context.Context, actor *auth.Actor, instanceID uuid.UUID) (*model.StepInstance, error) {
	if actor == nil {
		return nil, &PermissionError{RequiredRole: auth.RoleAgent}
	}

	var result *TransitionResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		instance, err := s.repo.GetStepInstanceByIDInTx(ctx, tx, instanceID)
		if err != nil {
			return err
		}
		result, err = s.engine.StartReview(ctx, tx, actor.ID, instance)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result.Instance, nil
}

// ApproveStep approves a step under review. Approving the last actionable
// step completes the dossier.
func (s *DossierService) ApproveStep(ctx context.Context, actor *auth.Actor, instanceID uuid.UUID) (*model.StepInstance, error) {
	var result *TransitionResult
	var dossierID uuid.UUID

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		instance, _, dossier, err := s.loadInstanceContext(ctx, tx, instanceID)
		if err != nil {
			return err
		}
		dossierID = dossier.ID

		result, err = s.engine.Approve(ctx, tx, instance)
		if err != nil {
			return err
		}
		return s.refreshDossierState(ctx, tx, dossier)
	})
	if err != nil {
		return nil, err
	}

	s.emit(audit.EventStepApproved, dossierID, &instanceID, actor, "")
	return result.Instance, nil
}

// RejectStep rejects a step under review with a reason and the field keys to
// correct, marking the dossier REQUIRES_REWORK.
func (s *DossierService) RejectStep(ctx context.Context, actor *auth.Actor, instanceID uuid.UUID, req *model.RejectStepDTO) (*model.StepInstance, error) {
	var result *TransitionResult
	var dossierID uuid.UUID

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		instance, _, dossier, err := s.loadInstanceContext(ctx, tx, instanceID)
		if err != nil {
			return err
		}
		dossierID = dossier.ID

		result, err = s.engine.Reject(ctx, tx, instance, req)
		if err != nil {
			return err
		}
		return s.refreshDossierState(ctx, tx, dossier)
	})
	if err != nil {
		return nil, err
	}

	s.emit(audit.EventStepRejected, dossierID, &instanceID, actor, req.Reason)
	return result.Instance, nil
}

// MarkAdminStepComplete completes an ADMIN step on behalf of an agent
// holding the step's configured role.
func (s *DossierService) MarkAdminStepComplete(ctx context.Context, actor *auth.Actor, instanceID uuid.UUID) (*model.StepInstance, error) {
	var result *TransitionResult
	var dossierID uuid.UUID

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		instance, step, dossier, err := s.loadInstanceContext(ctx, tx, instanceID)
		if err != nil {
			return err
		}
		dossierID = dossier.ID

		result, err = s.engine.MarkAdminComplete(ctx, tx, actor, step, instance)
		if err != nil {
			return err
		}
		return s.refreshDossierState(ctx, tx, dossier)
	})
	if err != nil {
		return nil, err
	}

	s.emit(audit.EventAdminCompleted, dossierID, &instanceID, actor, "")
	return result.Instance, nil
}

// CompleteFormationStep records that the client finished a formation step.
func (s *DossierService) CompleteFormationStep(ctx context.Context, actor *auth.Actor, instanceID uuid.UUID) (*model.StepInstance, error) {
	var result *TransitionResult
	var dossierID uuid.UUID

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		instance, step, dossier, err := s.loadInstanceContext(ctx, tx, instanceID)
		if err != nil {
			return err
		}
		if err := s.checkClientAccess(actor, dossier); err != nil {
			return err
		}
		dossierID = dossier.ID

		result, err = s.engine.CompleteFormation(ctx, tx, step, instance)
		if err != nil {
			return err
		}
		return s.refreshDossierState(ctx, tx, dossier)
	})
	if err != nil {
		return nil, err
	}

	s.emit(audit.EventFormationComplete, dossierID, &instanceID, actor, "")
	return result.Instance, nil
}

// loadWorkflow loads a dossier with its ordered catalog and the instances
// created so far, keyed by step ID.
func (s *DossierService) loadWorkflow(ctx context.Context, tx *gorm.DB, dossierID uuid.UUID) (*model.Dossier, []model.Step, map[uuid.UUID]model.StepInstance, error) {
	var dossier model.Dossier
	if err := tx.WithContext(ctx).First(&dossier, "id = ?", dossierID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, nil, fmt.Errorf("dossier %s not found", dossierID)
		}
		return nil, nil, nil, fmt.Errorf("failed to retrieve dossier: %w", err)
	}

	steps, err := s.catalog.GetStepsByProductIDInTx(ctx, tx, dossier.ProductID)
	if err != nil {
		return nil, nil, nil, err
	}

	instanceList, err := s.repo.GetStepInstancesByDossierIDInTx(ctx, tx, dossierID)
	if err != nil {
		return nil, nil, nil, err
	}
	instances := make(map[uuid.UUID]model.StepInstance, len(instanceList))
	for _, inst := range instanceList {
		instances[inst.StepID] = inst
	}

	return &dossier, steps, instances, nil
}

// loadInstanceContext loads a step instance together with its catalog step
// and owning dossier.
func (s *DossierService) loadInstanceContext(ctx context.Context, tx *gorm.DB, instanceID uuid.UUID) (*model.StepInstance, *model.Step, *model.Dossier, error) {
	instance, err := s.repo.GetStepInstanceByIDInTx(ctx, tx, instanceID)
	if err != nil {
		return nil, nil, nil, err
	}

	var step model.Step
	if err := tx.WithContext(ctx).First(&step, "id = ?", instance.StepID).Error; err != nil {
		return nil, nil, nil, fmt.Errorf("failed to retrieve step %s: %w", instance.StepID, err)
	}

	var dossier model.Dossier
	if err := tx.WithContext(ctx).First(&dossier, "id = ?", instance.DossierID).Error; err != nil {
		return nil, nil, nil, fmt.Errorf("failed to retrieve dossier %s: %w", instance.DossierID, err)
	}

	return instance, &step, &dossier, nil
}

// checkClientAccess ensures a client only works their own dossiers. Agents
// and supervisors may act on any dossier.
func (s *DossierService) checkClientAccess(actor *auth.Actor, dossier *model.Dossier) error {
	if actor == nil {
		return &PermissionError{RequiredRole: auth.RoleClient}
	}
	if actor.HasRole(auth.RoleAgent) || actor.HasRole(auth.RoleSupervisor) {
		return nil
	}
	if dossier.ClientID != actor.ID {
		return &PermissionError{RequiredRole: auth.RoleClient}
	}
	return nil
}

// refreshDossierState recomputes the dossier state from its instances:
// COMPLETED when every actionable step is approved, REQUIRES_REWORK while
// any instance sits in REJECTED, IN_PROGRESS otherwise.
func (s *DossierService) refreshDossierState(ctx context.Context, tx *gorm.DB, dossier *model.Dossier) error {
	steps, err := s.catalog.GetStepsByProductIDInTx(ctx, tx, dossier.ProductID)
	if err != nil {
		return err
	}
	instanceList, err := s.repo.GetStepInstancesByDossierIDInTx(ctx, tx, dossier.ID)
	if err != nil {
		return err
	}

	instances := make(map[uuid.UUID]model.StepInstance, len(instanceList))
	anyRejected := false
	for _, inst := range instanceList {
		instances[inst.StepID] = inst
		if inst.Status == model.StepStatusRejected {
			anyRejected = true
		}
	}

	newState := model.DossierStateInProgress
	if AllStepsApproved(steps, instances) {
		newState = model.DossierStateCompleted
	} else if anyRejected {
		newState = model.DossierStateRequiresRework
	}

	if newState == dossier.State {
		return nil
	}
	dossier.State = newState
	if err := tx.WithContext(ctx).Model(&model.Dossier{}).Where("id = ?", dossier.ID).Update("state", newState).Error; err != nil {
		return fmt.Errorf("failed to update dossier %s state: %w", dossier.ID, err)
	}
	return nil
}

// emit sends an audit event without blocking the request path. A full
// channel drops the event with a warning.
func (s *DossierService) emit(kind audit.EventKind, dossierID uuid.UUID, instanceID *uuid.UUID, actor *auth.Actor, detail string) {
	if s.events == nil {
		return
	}
	actorID := ""
	if actor != nil {
		actorID = actor.ID
	}
	event := audit.Event{
		Kind:           kind,
		DossierID:      dossierID,
		StepInstanceID: instanceID,
		ActorID:        actorID,
		Detail:         detail,
	}
	select {
	case s.events <- event:
	default:
		slog.Warn("audit event channel full, dropping event", "kind", kind, "dossierID", dossierID)
	}
}
