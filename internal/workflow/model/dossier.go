package model

import "github.com/google/uuid"

// DossierState represents the overall state of a dossier in the workflow.
type DossierState string

const (
	DossierStateInProgress     DossierState = "IN_PROGRESS"
	DossierStateRequiresRework DossierState = "REQUIRES_REWORK" // At least one step has been rejected
	DossierStateCompleted      DossierState = "COMPLETED"
)

// Dossier is a client's application file progressing through a product's
// step sequence.
type Dossier struct {
	BaseModel
	ProductID uuid.UUID    `gorm:"type:uuid;column:product_id;not null;index" json:"productId"`
	ClientID  string       `gorm:"type:varchar(255);column:client_id;not null;index" json:"clientId"`
	State     DossierState `gorm:"type:varchar(20);column:state;not null" json:"state"`
}

func (d *Dossier) TableName() string {
	return "dossiers"
}
