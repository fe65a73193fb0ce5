package service

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/opendossier/dossier/internal/workflow/model"
)

// ValidationError reports field-level validation failures. It is recoverable
// locally and never persisted as a transition.
type ValidationError struct {
	Fields map[string]string // fieldKey -> message
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return fmt.Sprintf("validation failed for fields: %s", strings.Join(keys, ", "))
}

// GateNotSatisfiedError reports that the document gate failed. It carries the
// specific missing items so callers can render precise guidance.
type GateNotSatisfiedError struct {
	Issues model.DocumentIssues
}

func (e *GateNotSatisfiedError) Error() string {
	return fmt.Sprintf("document gate not satisfied: %d not submitted, %d pending, %d rejected",
		len(e.Issues.NotSubmitted), len(e.Issues.Pending), len(e.Issues.Rejected))
}

// StaleStateError reports that the optimistic commit check failed: the
// instance was mutated concurrently. Callers must reload and re-present,
// not retry blindly.
type StaleStateError struct {
	StepInstanceID uuid.UUID
	ExpectedStatus model.StepStatus
}

func (e *StaleStateError) Error() string {
	return fmt.Sprintf("step instance %s no longer in status %s, reload before retrying", e.StepInstanceID, e.ExpectedStatus)
}

// PermissionError reports that the actor lacks the role required for the
// attempted transition. Fatal for that attempt, no retry.
type PermissionError struct {
	RequiredRole string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("actor lacks required role %q", e.RequiredRole)
}
