package model

import (
	"time"

	"github.com/google/uuid"
)

// DocumentStatus is the live status of a required document. Only the latest
// version carries it; older versions are immutable audit records.
type DocumentStatus string

const (
	DocumentStatusNotSubmitted DocumentStatus = "NOT_SUBMITTED"
	DocumentStatusPending      DocumentStatus = "PENDING"
	DocumentStatusApproved     DocumentStatus = "APPROVED"
	DocumentStatusRejected     DocumentStatus = "REJECTED"
)

// RequiredDocument links a step instance to a document type it requires,
// holding zero or one submitted Document.
type RequiredDocument struct {
	BaseModel
	StepInstanceID uuid.UUID `gorm:"type:uuid;column:step_instance_id;not null;index" json:"stepInstanceId"`
	DocumentTypeID uuid.UUID `gorm:"type:uuid;column:document_type_id;not null" json:"documentTypeId"`

	Document *Document `gorm:"foreignKey:RequiredDocumentID;references:ID" json:"document,omitempty"`
}

func (rd *RequiredDocument) TableName() string {
	return "required_documents"
}

// Status resolves the effective status of the requirement: a slot with no
// submitted document counts as NOT_SUBMITTED.
func (rd *RequiredDocument) Status() DocumentStatus {
	if rd.Document == nil {
		return DocumentStatusNotSubmitted
	}
	return rd.Document.Status
}

// Document is the submitted document against a required slot. The underlying
// blobs belong to the document store; this row tracks review status and the
// ordered version history.
type Document struct {
	BaseModel
	RequiredDocumentID uuid.UUID      `gorm:"type:uuid;column:required_document_id;not null;uniqueIndex" json:"requiredDocumentId"`
	Status             DocumentStatus `gorm:"type:varchar(20);column:status;not null" json:"status"`
	ReviewReason       *string        `gorm:"type:text;column:review_reason" json:"reviewReason,omitempty"`
	ReviewedBy         *string        `gorm:"type:varchar(255);column:reviewed_by" json:"reviewedBy,omitempty"`

	Versions []DocumentVersion `gorm:"foreignKey:DocumentID;references:ID" json:"versions,omitempty"`
}

func (d *Document) TableName() string {
	return "documents"
}

// CurrentVersion returns the latest version, or nil when no version exists.
func (d *Document) CurrentVersion() *DocumentVersion {
	var latest *DocumentVersion
	for i := range d.Versions {
		if latest == nil || d.Versions[i].VersionNumber > latest.VersionNumber {
			latest = &d.Versions[i]
		}
	}
	return latest
}

// DocumentVersion is one immutable upload in a document's history.
type DocumentVersion struct {
	BaseModel
	DocumentID    uuid.UUID `gorm:"type:uuid;column:document_id;not null;index" json:"documentId"`
	VersionNumber int       `gorm:"column:version_number;not null" json:"versionNumber"`
	BlobKey       string    `gorm:"type:varchar(255);column:blob_key;not null" json:"blobKey"`
	FileName      string    `gorm:"type:varchar(255);column:file_name;not null" json:"fileName"`
	MimeType      string    `gorm:"type:varchar(100);column:mime_type;not null" json:"mimeType"`
	Size          int64     `gorm:"column:size;not null" json:"size"`
	UploadedBy    string    `gorm:"type:varchar(255);column:uploaded_by;not null" json:"uploadedBy"`
	UploadedAt    time.Time `gorm:"type:timestamptz;column:uploaded_at;not null" json:"uploadedAt"`
}

func (dv *DocumentVersion) TableName() string {
	return "document_versions"
}
