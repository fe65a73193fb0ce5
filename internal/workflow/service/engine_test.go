package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/opendossier/dossier/internal/auth"
	"github.com/opendossier/dossier/internal/workflow/model"
)

// MockStepInstanceRepository is a mock implementation of StepInstanceRepository
type MockStepInstanceRepository struct {
	mock.Mock
}

func (m *MockStepInstanceRepository) GetStepInstanceByIDInTx(ctx context.Context, tx *gorm.DB, instanceID uuid.UUID) (*model.StepInstance, error) {
	args := m.Called(ctx, tx, instanceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.StepInstance), args.Error(1)
}

func (m *MockStepInstanceRepository) GetOrCreateStepInstanceInTx(ctx context.Context, tx *gorm.DB, dossierID, stepID uuid.UUID) (*model.StepInstance, error) {
	args := m.Called(ctx, tx, dossierID, stepID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.StepInstance), args.Error(1)
}

func (m *MockStepInstanceRepository) GetStepInstancesByDossierIDInTx(ctx context.Context, tx *gorm.DB, dossierID uuid.UUID) ([]model.StepInstance, error) {
	args := m.Called(ctx, tx, dossierID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.StepInstance), args.Error(1)
}

func (m *MockStepInstanceRepository) UpdateStepInstanceInTx(ctx context.Context, tx *gorm.DB, instance *model.StepInstance, expectedStatus model.StepStatus) error {
	args := m.Called(ctx, tx, instance, expectedStatus)
	return args.Error(0)
}

func (m *MockStepInstanceRepository) GetFieldValuesInTx(ctx context.Context, tx *gorm.DB, instanceID uuid.UUID) ([]model.FieldValue, error) {
	args := m.Called(ctx, tx, instanceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.FieldValue), args.Error(1)
}

func (m *MockStepInstanceRepository) UpsertFieldValuesInTx(ctx context.Context, tx *gorm.DB, instanceID uuid.UUID, values map[string]any, status model.FieldValidationStatus) error {
	args := m.Called(ctx, tx, instanceID, values, status)
	return args.Error(0)
}

func (m *MockStepInstanceRepository) SetFieldValidationStatusesInTx(ctx context.Context, tx *gorm.DB, instanceID uuid.UUID, statuses map[string]model.FieldValidationStatus) error {
	args := m.Called(ctx, tx, instanceID, statuses)
	return args.Error(0)
}

func (m *MockStepInstanceRepository) GetRequiredDocumentsInTx(ctx context.Context, tx *gorm.DB, instanceID uuid.UUID) ([]model.RequiredDocument, error) {
	args := m.Called(ctx, tx, instanceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.RequiredDocument), args.Error(1)
}

func clientStep(fields ...model.FieldDef) *model.Step {
	return &model.Step{
		BaseModel:      model.BaseModel{ID: uuid.New()},
		Code:           "identity-form",
		Type:           model.StepTypeClient,
		RequiredFields: fields,
	}
}

func draftInstance() *model.StepInstance {
	return &model.StepInstance{
		BaseModel: model.BaseModel{ID: uuid.New()},
		DossierID: uuid.New(),
		Status:    model.StepStatusDraft,
	}
}

func clientActor() *auth.Actor {
	return &auth.Actor{ID: "client-1", Roles: []string{auth.RoleClient}}
}

func TestSubmit(t *testing.T) {
	ctx := context.Background()
	requiredName := model.FieldDef{Key: "fullName", Kind: model.FieldKindText, Required: true}

	t.Run("Successful Submission", func(t *testing.T) {
		mockRepo := new(MockStepInstanceRepository)
		engine := NewStepTransitionEngine(mockRepo)
		instance := draftInstance()
		values := map[string]any{"fullName": "Ada Lovelace"}

		mockRepo.On("UpsertFieldValuesInTx", ctx, (*gorm.DB)(nil), instance.ID, values, model.FieldValidationPending).Return(nil).Once()
		mockRepo.On("UpdateStepInstanceInTx", ctx, (*gorm.DB)(nil), instance, model.StepStatusDraft).Return(nil).Once()

		result, err := engine.Submit(ctx, nil, clientActor(), clientStep(requiredName), instance, &model.SubmitStepDTO{Values: values})
		assert.NoError(t, err)
		assert.Equal(t, model.StepStatusSubmitted, result.Instance.Status)
		assert.NotNil(t, result.Instance.CompletedAt)
		assert.False(t, result.OverrideUsed)
		mockRepo.AssertExpectations(t)
	})

	t.Run("Validation Failure Keeps Draft", func(t *testing.T) {
		mockRepo := new(MockStepInstanceRepository)
		engine := NewStepTransitionEngine(mockRepo)
		instance := draftInstance()

		_, err := engine.Submit(ctx, nil, clientActor(), clientStep(requiredName), instance, &model.SubmitStepDTO{Values: map[string]any{}})
		var validationErr *ValidationError
		assert.ErrorAs(t, err, &validationErr)
		assert.Contains(t, validationErr.Fields, "fullName")
		assert.Equal(t, model.StepStatusDraft, instance.Status)
		mockRepo.AssertNotCalled(t, "UpdateStepInstanceInTx", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Invalid Status", func(t *testing.T) {
		for _, status := range []model.StepStatus{
			model.StepStatusSubmitted,
			model.StepStatusUnderReview,
			model.StepStatusApproved,
			model.StepStatusRejected,
		} {
			mockRepo := new(MockStepInstanceRepository)
			engine := NewStepTransitionEngine(mockRepo)
			instance := draftInstance()
			instance.Status = status

			_, err := engine.Submit(ctx, nil, clientActor(), clientStep(requiredName), instance, &model.SubmitStepDTO{Values: map[string]any{"fullName": "x"}})
			assert.Error(t, err)
			assert.Contains(t, err.Error(), "cannot submit")
		}
	})

	t.Run("Document Gate Blocks", func(t *testing.T) {
		mockRepo := new(MockStepInstanceRepository)
		engine := NewStepTransitionEngine(mockRepo)
		instance := draftInstance()
		docType := uuid.New()
		step := clientStep(requiredName)
		step.RequiredDocumentTypes = model.UUIDArray{docType}

		mockRepo.On("GetRequiredDocumentsInTx", ctx, (*gorm.DB)(nil), instance.ID).
			Return([]model.RequiredDocument{{DocumentTypeID: docType}}, nil).Once()

		_, err := engine.Submit(ctx, nil, clientActor(), step, instance, &model.SubmitStepDTO{Values: map[string]any{"fullName": "Ada"}})
		var gateErr *GateNotSatisfiedError
		assert.ErrorAs(t, err, &gateErr)
		assert.Equal(t, []uuid.UUID{docType}, gateErr.Issues.NotSubmitted)
		assert.Equal(t, model.StepStatusDraft, instance.Status)
	})

	t.Run("Override Requires Supervisor", func(t *testing.T) {
		mockRepo := new(MockStepInstanceRepository)
		engine := NewStepTransitionEngine(mockRepo)
		instance := draftInstance()
		docType := uuid.New()
		step := clientStep(requiredName)
		step.RequiredDocumentTypes = model.UUIDArray{docType}

		mockRepo.On("GetRequiredDocumentsInTx", ctx, (*gorm.DB)(nil), instance.ID).
			Return([]model.RequiredDocument{{DocumentTypeID: docType}}, nil).Once()

		_, err := engine.Submit(ctx, nil, clientActor(), step, instance, &model.SubmitStepDTO{
			Values:   map[string]any{"fullName": "Ada"},
			Override: true,
		})
		var permErr *PermissionError
		assert.ErrorAs(t, err, &permErr)
		assert.Equal(t, auth.RoleSupervisor, permErr.RequiredRole)
	})

	t.Run("Supervisor Override Succeeds And Is Flagged", func(t *testing.T) {
		mockRepo := new(MockStepInstanceRepository)
		engine := NewStepTransitionEngine(mockRepo)
		instance := draftInstance()
		docType := uuid.New()
		step := clientStep(requiredName)
		step.RequiredDocumentTypes = model.UUIDArray{docType}
		supervisor := &auth.Actor{ID: "sup-1", Roles: []string{auth.RoleAgent, auth.RoleSupervisor}}
		values := map[string]any{"fullName": "Ada"}

		mockRepo.On("GetRequiredDocumentsInTx", ctx, (*gorm.DB)(nil), instance.ID).
			Return([]model.RequiredDocument{{DocumentTypeID: docType}}, nil).Once()
		mockRepo.On("UpsertFieldValuesInTx", ctx, (*gorm.DB)(nil), instance.ID, values, model.FieldValidationPending).Return(nil).Once()
		mockRepo.On("UpdateStepInstanceInTx", ctx, (*gorm.DB)(nil), instance, model.StepStatusDraft).Return(nil).Once()

		result, err := engine.Submit(ctx, nil, supervisor, step, instance, &model.SubmitStepDTO{Values: values, Override: true})
		assert.NoError(t, err)
		assert.True(t, result.OverrideUsed)
		assert.Equal(t, model.StepStatusSubmitted, result.Instance.Status)
	})

	t.Run("Stale Instance Surfaces Conflict", func(t *testing.T) {
		mockRepo := new(MockStepInstanceRepository)
		engine := NewStepTransitionEngine(mockRepo)
		instance := draftInstance()
		values := map[string]any{"fullName": "Ada"}

		mockRepo.On("UpsertFieldValuesInTx", ctx, (*gorm.DB)(nil), instance.ID, values, model.FieldValidationPending).Return(nil).Once()
		mockRepo.On("UpdateStepInstanceInTx", ctx, (*gorm.DB)(nil), instance, model.StepStatusDraft).
			Return(&StaleStateError{StepInstanceID: instance.ID, ExpectedStatus: model.StepStatusDraft}).Once()

		_, err := engine.Submit(ctx, nil, clientActor(), clientStep(requiredName), instance, &model.SubmitStepDTO{Values: values})
		var staleErr *StaleStateError
		assert.ErrorAs(t, err, &staleErr)
		assert.Equal(t, instance.ID, staleErr.StepInstanceID)
	})
}

func TestResubmit(t *testing.T) {
	ctx := context.Background()
	fields := []model.FieldDef{
		{Key: "fullName", Kind: model.FieldKindText, Required: true},
		{Key: "birthDate", Kind: model.FieldKindDate, Required: true},
	}

	t.Run("Only Rejected Fields Are Revalidated", func(t *testing.T) {
		mockRepo := new(MockStepInstanceRepository)
		engine := NewStepTransitionEngine(mockRepo)
		step := clientStep(fields...)
		instance := draftInstance()
		instance.Status = model.StepStatusRejected
		reason := "birth date unreadable"
		instance.RejectionReason = &reason

		mockRepo.On("GetFieldValuesInTx", ctx, (*gorm.DB)(nil), instance.ID).Return([]model.FieldValue{
			{StepInstanceID: instance.ID, FieldKey: "fullName", ValidationStatus: model.FieldValidationApproved},
			{StepInstanceID: instance.ID, FieldKey: "birthDate", ValidationStatus: model.FieldValidationRejected},
		}, nil).Once()
		// Only the corrected rejected field is written back.
		mockRepo.On("UpsertFieldValuesInTx", ctx, (*gorm.DB)(nil), instance.ID,
			map[string]any{"birthDate": "1990-04-01"}, model.FieldValidationPending).Return(nil).Once()
		mockRepo.On("UpdateStepInstanceInTx", ctx, (*gorm.DB)(nil), instance, model.StepStatusRejected).Return(nil).Once()

		result, err := engine.Resubmit(ctx, nil, step, instance, &model.ResubmitStepDTO{
			Values: map[string]any{"birthDate": "1990-04-01", "fullName": "ignored update"},
		})
		assert.NoError(t, err)
		assert.Equal(t, model.StepStatusSubmitted, result.Instance.Status)
		assert.Nil(t, result.Instance.RejectionReason)
		mockRepo.AssertExpectations(t)
	})

	t.Run("Invalid Corrected Value Fails", func(t *testing.T) {
		mockRepo := new(MockStepInstanceRepository)
		engine := NewStepTransitionEngine(mockRepo)
		step := clientStep(fields...)
		instance := draftInstance()
		instance.Status = model.StepStatusRejected

		mockRepo.On("GetFieldValuesInTx", ctx, (*gorm.DB)(nil), instance.ID).Return([]model.FieldValue{
			{StepInstanceID: instance.ID, FieldKey: "birthDate", ValidationStatus: model.FieldValidationRejected},
		}, nil).Once()

		_, err := engine.Resubmit(ctx, nil, step, instance, &model.ResubmitStepDTO{
			Values: map[string]any{"birthDate": "not-a-date"},
		})
		var validationErr *ValidationError
		assert.ErrorAs(t, err, &validationErr)
		assert.Contains(t, validationErr.Fields, "birthDate")
	})

	t.Run("Only Rejected Status Accepts Resubmission", func(t *testing.T) {
		for _, status := range []model.StepStatus{
			model.StepStatusDraft,
			model.StepStatusSubmitted,
			model.StepStatusUnderReview,
			model.StepStatusApproved,
		} {
			mockRepo := new(MockStepInstanceRepository)
			engine := NewStepTransitionEngine(mockRepo)
			instance := draftInstance()
			instance.Status = status

			_, err := engine.Resubmit(ctx, nil, clientStep(fields...), instance, &model.ResubmitStepDTO{})
			assert.Error(t, err)
			assert.Contains(t, err.Error(), "cannot resubmit")
		}
	})
}

func TestStartReview(t *testing.T) {
	ctx := context.Background()

	t.Run("Assigns Agent", func(t *testing.T) {
		mockRepo := new(MockStepInstanceRepository)
		engine := NewStepTransitionEngine(mockRepo)
		instance := draftInstance()
		instance.Status = model.StepStatusSubmitted

		mockRepo.On("UpdateStepInstanceInTx", ctx, (*gorm.DB)(nil), instance, model.StepStatusSubmitted).Return(nil).Once()

		result, err := engine.StartReview(ctx, nil, "agent-7", instance)
		assert.NoError(t, err)
		assert.Equal(t, model.StepStatusUnderReview, result.Instance.Status)
		assert.Equal(t, "agent-7", *result.Instance.AssignedAgentID)
	})

	t.Run("Rejects Non Submitted", func(t *testing.T) {
		mockRepo := new(MockStepInstanceRepository)
		engine := NewStepTransitionEngine(mockRepo)
		instance := draftInstance()

		_, err := engine.StartReview(ctx, nil, "agent-7", instance)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "cannot start review")
	})
}

func TestApprove(t *testing.T) {
	ctx := context.Background()

	t.Run("Approves Pending Fields", func(t *testing.T) {
		mockRepo := new(MockStepInstanceRepository)
		engine := NewStepTransitionEngine(mockRepo)
		instance := draftInstance()
		instance.Status = model.StepStatusUnderReview

		mockRepo.On("GetFieldValuesInTx", ctx, (*gorm.DB)(nil), instance.ID).Return([]model.FieldValue{
			{FieldKey: "fullName", ValidationStatus: model.FieldValidationPending},
			{FieldKey: "birthDate", ValidationStatus: model.FieldValidationApproved},
		}, nil).Once()
		mockRepo.On("SetFieldValidationStatusesInTx", ctx, (*gorm.DB)(nil), instance.ID,
			map[string]model.FieldValidationStatus{"fullName": model.FieldValidationApproved}).Return(nil).Once()
		mockRepo.On("UpdateStepInstanceInTx", ctx, (*gorm.DB)(nil), instance, model.StepStatusUnderReview).Return(nil).Once()

		result, err := engine.Approve(ctx, nil, instance)
		assert.NoError(t, err)
		assert.Equal(t, model.StepStatusApproved, result.Instance.Status)
		mockRepo.AssertExpectations(t)
	})

	t.Run("Only Under Review Can Be Approved", func(t *testing.T) {
		for _, status := range []model.StepStatus{
			model.StepStatusDraft,
			model.StepStatusSubmitted,
			model.StepStatusApproved,
			model.StepStatusRejected,
		} {
			mockRepo := new(MockStepInstanceRepository)
			engine := NewStepTransitionEngine(mockRepo)
			instance := draftInstance()
			instance.Status = status

			_, err := engine.Approve(ctx, nil, instance)
			assert.Error(t, err)
		}
	})
}

func TestReject(t *testing.T) {
	ctx := context.Background()

	t.Run("Marks Listed Fields Rejected And Approves The Rest", func(t *testing.T) {
		mockRepo := new(MockStepInstanceRepository)
		engine := NewStepTransitionEngine(mockRepo)
		instance := draftInstance()
		instance.Status = model.StepStatusUnderReview
		completed := instance.CompletedAt

		mockRepo.On("GetFieldValuesInTx", ctx, (*gorm.DB)(nil), instance.ID).Return([]model.FieldValue{
			{FieldKey: "fullName", ValidationStatus: model.FieldValidationPending},
			{FieldKey: "birthDate", ValidationStatus: model.FieldValidationPending},
		}, nil).Once()
		mockRepo.On("SetFieldValidationStatusesInTx", ctx, (*gorm.DB)(nil), instance.ID,
			map[string]model.FieldValidationStatus{
				"birthDate": model.FieldValidationRejected,
				"fullName":  model.FieldValidationApproved,
			}).Return(nil).Once()
		mockRepo.On("UpdateStepInstanceInTx", ctx, (*gorm.DB)(nil), instance, model.StepStatusUnderReview).Return(nil).Once()

		result, err := engine.Reject(ctx, nil, instance, &model.RejectStepDTO{
			Reason:            "birth date unreadable",
			RejectedFieldKeys: []string{"birthDate"},
		})
		assert.NoError(t, err)
		assert.Equal(t, model.StepStatusRejected, result.Instance.Status)
		assert.Equal(t, "birth date unreadable", *result.Instance.RejectionReason)
		assert.Equal(t, completed, result.Instance.CompletedAt)
		mockRepo.AssertExpectations(t)
	})

	t.Run("Requires A Reason", func(t *testing.T) {
		mockRepo := new(MockStepInstanceRepository)
		engine := NewStepTransitionEngine(mockRepo)
		instance := draftInstance()
		instance.Status = model.StepStatusUnderReview

		_, err := engine.Reject(ctx, nil, instance, &model.RejectStepDTO{})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "requires a reason")
	})
}

func TestMarkAdminComplete(t *testing.T) {
	ctx := context.Background()
	role := "registry-officer"
	adminStep := &model.Step{
		BaseModel: model.BaseModel{ID: uuid.New()},
		Code:      "registry-check",
		Type:      model.StepTypeAdmin,
		AdminRole: &role,
	}

	t.Run("Requires Configured Role", func(t *testing.T) {
		mockRepo := new(MockStepInstanceRepository)
		engine := NewStepTransitionEngine(mockRepo)
		agent := &auth.Actor{ID: "agent-1", Roles: []string{auth.RoleAgent}}

		_, err := engine.MarkAdminComplete(ctx, nil, agent, adminStep, draftInstance())
		var permErr *PermissionError
		assert.ErrorAs(t, err, &permErr)
		assert.Equal(t, role, permErr.RequiredRole)
	})

	t.Run("Completes With Role", func(t *testing.T) {
		mockRepo := new(MockStepInstanceRepository)
		engine := NewStepTransitionEngine(mockRepo)
		officer := &auth.Actor{ID: "officer-1", Roles: []string{auth.RoleAgent, role}}
		instance := draftInstance()

		mockRepo.On("UpdateStepInstanceInTx", ctx, (*gorm.DB)(nil), instance, model.StepStatusDraft).Return(nil).Once()

		result, err := engine.MarkAdminComplete(ctx, nil, officer, adminStep, instance)
		assert.NoError(t, err)
		assert.Equal(t, model.StepStatusApproved, result.Instance.Status)
		assert.NotNil(t, result.Instance.CompletedAt)
		assert.Equal(t, "officer-1", *result.Instance.AssignedAgentID)
	})

	t.Run("Already Approved Is Idempotent", func(t *testing.T) {
		mockRepo := new(MockStepInstanceRepository)
		engine := NewStepTransitionEngine(mockRepo)
		officer := &auth.Actor{ID: "officer-1", Roles: []string{role}}
		instance := draftInstance()
		instance.Status = model.StepStatusApproved

		result, err := engine.MarkAdminComplete(ctx, nil, officer, adminStep, instance)
		assert.NoError(t, err)
		assert.Equal(t, model.StepStatusApproved, result.Instance.Status)
		mockRepo.AssertNotCalled(t, "UpdateStepInstanceInTx", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestCompleteFormation(t *testing.T) {
	ctx := context.Background()
	formationID := uuid.New()
	formationStep := &model.Step{
		BaseModel:   model.BaseModel{ID: uuid.New()},
		Code:        "intro-training",
		Type:        model.StepTypeFormation,
		FormationID: &formationID,
	}

	t.Run("Completes Unconditionally", func(t *testing.T) {
		mockRepo := new(MockStepInstanceRepository)
		engine := NewStepTransitionEngine(mockRepo)
		instance := draftInstance()

		mockRepo.On("UpdateStepInstanceInTx", ctx, (*gorm.DB)(nil), instance, model.StepStatusDraft).Return(nil).Once()

		result, err := engine.CompleteFormation(ctx, nil, formationStep, instance)
		assert.NoError(t, err)
		assert.Equal(t, model.StepStatusApproved, result.Instance.Status)
		assert.NotNil(t, result.Instance.CompletedAt)
	})

	t.Run("Repeat Completion Is A No-Op", func(t *testing.T) {
		mockRepo := new(MockStepInstanceRepository)
		engine := NewStepTransitionEngine(mockRepo)
		instance := draftInstance()
		instance.Status = model.StepStatusApproved

		result, err := engine.CompleteFormation(ctx, nil, formationStep, instance)
		assert.NoError(t, err)
		assert.Equal(t, model.StepStatusApproved, result.Instance.Status)
		mockRepo.AssertNotCalled(t, "UpdateStepInstanceInTx", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Wrong Step Type", func(t *testing.T) {
		mockRepo := new(MockStepInstanceRepository)
		engine := NewStepTransitionEngine(mockRepo)

		_, err := engine.CompleteFormation(ctx, nil, clientStep(), draftInstance())
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "not a formation step")
	})
}

func TestCanEdit(t *testing.T) {
	editable := map[model.StepStatus]bool{
		model.StepStatusDraft:       true,
		model.StepStatusSubmitted:   false,
		model.StepStatusUnderReview: false,
		model.StepStatusApproved:    false,
		model.StepStatusRejected:    true,
	}
	for status, want := range editable {
		instance := &model.StepInstance{Status: status}
		assert.Equal(t, want, instance.CanEdit(), "status %s", status)
	}
}

func TestActiveStepIndex(t *testing.T) {
	delay := 60
	steps := []model.Step{
		{BaseModel: model.BaseModel{ID: uuid.New()}, Position: 1, Type: model.StepTypeClient},
		{BaseModel: model.BaseModel{ID: uuid.New()}, Position: 2, Type: model.StepTypeTimer, TimerDelayMinutes: &delay},
		{BaseModel: model.BaseModel{ID: uuid.New()}, Position: 3, Type: model.StepTypeClient},
	}

	t.Run("First Step Active Without Instances", func(t *testing.T) {
		index, complete := ActiveStepIndex(steps, map[uuid.UUID]model.StepInstance{})
		assert.False(t, complete)
		assert.Equal(t, 0, index)
	})

	t.Run("Timer Steps Are Never Active", func(t *testing.T) {
		instances := map[uuid.UUID]model.StepInstance{
			steps[0].ID: {Status: model.StepStatusApproved},
		}
		index, complete := ActiveStepIndex(steps, instances)
		assert.False(t, complete)
		assert.Equal(t, 2, index)
	})

	t.Run("Submitted Step Is Passed Over", func(t *testing.T) {
		instances := map[uuid.UUID]model.StepInstance{
			steps[0].ID: {Status: model.StepStatusSubmitted},
		}
		index, complete := ActiveStepIndex(steps, instances)
		assert.False(t, complete)
		assert.Equal(t, 2, index)
	})

	t.Run("Under Review Step Is Passed Over", func(t *testing.T) {
		instances := map[uuid.UUID]model.StepInstance{
			steps[0].ID: {Status: model.StepStatusUnderReview},
		}
		index, complete := ActiveStepIndex(steps, instances)
		assert.False(t, complete)
		assert.Equal(t, 2, index)
	})

	t.Run("Every Step Submitted Means Nothing Awaits Action", func(t *testing.T) {
		instances := map[uuid.UUID]model.StepInstance{
			steps[0].ID: {Status: model.StepStatusSubmitted},
			steps[2].ID: {Status: model.StepStatusUnderReview},
		}
		index, complete := ActiveStepIndex(steps, instances)
		assert.True(t, complete)
		assert.Equal(t, -1, index)
	})

	t.Run("Rejected Step Stays Active", func(t *testing.T) {
		instances := map[uuid.UUID]model.StepInstance{
			steps[0].ID: {Status: model.StepStatusRejected},
			steps[2].ID: {Status: model.StepStatusSubmitted},
		}
		index, complete := ActiveStepIndex(steps, instances)
		assert.False(t, complete)
		assert.Equal(t, 0, index)
	})
}

func TestAllStepsApproved(t *testing.T) {
	delay := 60
	steps := []model.Step{
		{BaseModel: model.BaseModel{ID: uuid.New()}, Position: 1, Type: model.StepTypeClient},
		{BaseModel: model.BaseModel{ID: uuid.New()}, Position: 2, Type: model.StepTypeTimer, TimerDelayMinutes: &delay},
		{BaseModel: model.BaseModel{ID: uuid.New()}, Position: 3, Type: model.StepTypeClient},
	}

	t.Run("All Approved", func(t *testing.T) {
		instances := map[uuid.UUID]model.StepInstance{
			steps[0].ID: {Status: model.StepStatusApproved},
			steps[2].ID: {Status: model.StepStatusApproved},
		}
		assert.True(t, AllStepsApproved(steps, instances))
	})

	t.Run("Submitted Is Not Approved", func(t *testing.T) {
		instances := map[uuid.UUID]model.StepInstance{
			steps[0].ID: {Status: model.StepStatusApproved},
			steps[2].ID: {Status: model.StepStatusSubmitted},
		}
		assert.False(t, AllStepsApproved(steps, instances))
	})

	t.Run("Missing Instance Is Not Approved", func(t *testing.T) {
		instances := map[uuid.UUID]model.StepInstance{
			steps[0].ID: {Status: model.StepStatusApproved},
		}
		assert.False(t, AllStepsApproved(steps, instances))
	})
}

func TestTimerDelayedStepBecomesSubmittable(t *testing.T) {
	ctx := context.Background()
	delay := 60
	steps := []model.Step{
		{
			BaseModel:      model.BaseModel{ID: uuid.New()},
			Code:           "identity-form",
			Position:       1,
			Type:           model.StepTypeClient,
			RequiredFields: model.FieldDefList{{Key: "name", Kind: model.FieldKindText, Required: true}},
		},
		{
			BaseModel:         model.BaseModel{ID: uuid.New()},
			Code:              "cooling-off",
			Position:          2,
			Type:              model.StepTypeTimer,
			TimerDelayMinutes: &delay,
		},
		{
			BaseModel:      model.BaseModel{ID: uuid.New()},
			Code:           "address-form",
			Position:       3,
			Type:           model.StepTypeClient,
			RequiredFields: model.FieldDefList{{Key: "address", Kind: model.FieldKindText, Required: true}},
		},
	}

	submittedAt := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	instances := map[uuid.UUID]model.StepInstance{
		steps[0].ID: {Status: model.StepStatusSubmitted, CompletedAt: &submittedAt},
	}

	// The first submission moves the position past the timer to step 3.
	index, complete := ActiveStepIndex(steps, instances)
	require.False(t, complete)
	require.Equal(t, 2, index)

	unlockAt, gated := NextStepUnlockAt(steps, index, instances)
	require.True(t, gated)
	require.NotNil(t, unlockAt)
	assert.Equal(t, submittedAt.Add(60*time.Minute), *unlockAt)

	assert.True(t, TimerBlocked(submittedAt.Add(59*time.Minute), unlockAt, gated))
	assert.False(t, TimerBlocked(submittedAt.Add(61*time.Minute), unlockAt, gated))

	// Past the delay, step 3 accepts a submission while step 1 is still
	// only SUBMITTED.
	mockRepo := new(MockStepInstanceRepository)
	engine := NewStepTransitionEngine(mockRepo)
	instance := draftInstance()
	values := map[string]any{"address": "1 Main Street"}

	mockRepo.On("UpsertFieldValuesInTx", ctx, (*gorm.DB)(nil), instance.ID, values, model.FieldValidationPending).Return(nil).Once()
	mockRepo.On("UpdateStepInstanceInTx", ctx, (*gorm.DB)(nil), instance, model.StepStatusDraft).Return(nil).Once()

	result, err := engine.Submit(ctx, nil, clientActor(), &steps[2], instance, &model.SubmitStepDTO{Values: values})
	require.NoError(t, err)
	assert.Equal(t, model.StepStatusSubmitted, result.Instance.Status)
	mockRepo.AssertExpectations(t)
}
