package service

import "github.com/opendossier/dossier/internal/workflow/model"

// AllRequiredApproved reports whether every required document type's current
// version is approved. A slot with no submitted document fails the gate.
func AllRequiredApproved(required []model.RequiredDocument) bool {
	for i := range required {
		if required[i].Status() != model.DocumentStatusApproved {
			return false
		}
	}
	return true
}

// ClassifyDocumentIssues buckets unmet requirements by what the client has to
// do about them, keyed by document type ID.
func ClassifyDocumentIssues(required []model.RequiredDocument) model.DocumentIssues {
	var issues model.DocumentIssues
	for i := range required {
		typeID := required[i].DocumentTypeID
		switch required[i].Status() {
		case model.DocumentStatusNotSubmitted:
			issues.NotSubmitted = append(issues.NotSubmitted, typeID)
		case model.DocumentStatusPending:
			issues.Pending = append(issues.Pending, typeID)
		case model.DocumentStatusRejected:
			issues.Rejected = append(issues.Rejected, typeID)
		}
	}
	return issues
}
