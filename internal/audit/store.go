package audit

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// EventKind classifies audit events. Override usage is recorded distinctly
// from normal completion because it represents an intentional policy bypass.
type EventKind string

const (
	EventOverrideUsed      EventKind = "OVERRIDE_USED"
	EventStepSubmitted     EventKind = "STEP_SUBMITTED"
	EventStepResubmitted   EventKind = "STEP_RESUBMITTED"
	EventStepApproved      EventKind = "STEP_APPROVED"
	EventStepRejected      EventKind = "STEP_REJECTED"
	EventAdminCompleted    EventKind = "ADMIN_STEP_COMPLETED"
	EventDocumentReviewed  EventKind = "DOCUMENT_REVIEWED"
	EventFormationComplete EventKind = "FORMATION_COMPLETED"
)

// Event is one recorded workflow decision.
type Event struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Kind           EventKind  `gorm:"type:varchar(50);not null;index" json:"kind"`
	DossierID      uuid.UUID  `gorm:"type:uuid;index;not null" json:"dossierId"`
	StepInstanceID *uuid.UUID `gorm:"type:uuid;index" json:"stepInstanceId,omitempty"`
	ActorID        string     `gorm:"type:varchar(255);not null" json:"actorId"`
	Detail         string     `gorm:"type:text" json:"detail,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName returns the table name for Event.
func (Event) TableName() string {
	return "audit_events"
}

// Store persists audit events in a local SQLite database, separate from the
// main workflow store so the trail survives application-database resets.
type Store struct {
	db *gorm.DB
}

// NewStore creates a Store backed by SQLite at the given path.
func NewStore(dbPath string) (*Store, error) {
	if dbPath == "" {
		dbPath = "audit_events.db"
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}

	if err := db.AutoMigrate(&Event{}); err != nil {
		return nil, fmt.Errorf("failed to migrate audit database: %w", err)
	}

	return &Store{db: db}, nil
}

// NewInMemoryStore creates a Store with an in-memory database, useful for tests.
func NewInMemoryStore() (*Store, error) {
	return NewStore(":memory:")
}

// Record inserts a new audit event, assigning an ID when absent.
func (s *Store) Record(event *Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	return s.db.Create(event).Error
}

// ListByDossierID retrieves all events for a dossier, oldest first.
func (s *Store) ListByDossierID(dossierID uuid.UUID) ([]Event, error) {
	var events []Event
	if err := s.db.Where("dossier_id = ?", dossierID).Order("created_at asc").Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// ListByKind retrieves all events of one kind, oldest first.
func (s *Store) ListByKind(kind EventKind) ([]Event, error) {
	var events []Event
	if err := s.db.Where("kind = ?", kind).Order("created_at asc").Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
