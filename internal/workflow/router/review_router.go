package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/opendossier/dossier/internal/auth"
	"github.com/opendossier/dossier/internal/workflow/model"
	"github.com/opendossier/dossier/internal/workflow/service"
)

// ReviewRouter exposes the agent-facing surface: reviewing submissions,
// deciding steps and documents, and completing admin steps.
type ReviewRouter struct {
	dossiers  *service.DossierService
	documents *service.DocumentService
}

// NewReviewRouter creates a new instance of ReviewRouter.
func NewReviewRouter(dossiers *service.DossierService, documents *service.DocumentService) *ReviewRouter {
	return &ReviewRouter{dossiers: dossiers, documents: documents}
}

// RegisterRoutes mounts the agent surface on the given group. The specific
// role an ADMIN step requires is checked by the engine against the step's
// configuration; the route guard only ensures the caller is an agent.
func (rr *ReviewRouter) RegisterRoutes(rg *gin.RouterGroup) {
	instances := rg.Group("/step-instances", auth.RequireRole(auth.RoleAgent))
	instances.POST("/:instanceId/review", rr.HandleStartReview)
	instances.POST("/:instanceId/approve", rr.HandleApproveStep)
	instances.POST("/:instanceId/reject", rr.HandleRejectStep)
	instances.POST("/:instanceId/admin-complete", rr.HandleMarkAdminComplete)

	documents := rg.Group("/documents", auth.RequireRole(auth.RoleAgent))
	documents.POST("/:documentId/review", rr.HandleReviewDocument)

	versions := rg.Group("/document-versions", auth.RequireAuth())
	versions.GET("/:versionId/content", rr.HandleDownloadVersion)
}

// HandleStartReview handles POST /api/v1/step-instances/:instanceId/review
func (rr *ReviewRouter) HandleStartReview(c *gin.Context) {
	instanceID, ok := pathUUID(c, "instanceId")
	if !ok {
		return
	}

	actor := auth.GetActor(c.Request.Context())
	instance, err := rr.dossiers.StartReview(c.Request.Context(), actor, instanceID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, instance)
}

// HandleApproveStep handles POST /api/v1/step-instances/:instanceId/approve
func (rr *ReviewRouter) HandleApproveStep(c *gin.Context) {
	instanceID, ok := pathUUID(c, "instanceId")
	if !ok {
		return
	}

	actor := auth.GetActor(c.Request.Context())
	instance, err := rr.dossiers.ApproveStep(c.Request.Context(), actor, instanceID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, instance)
}

// HandleRejectStep handles POST /api/v1/step-instances/:instanceId/reject
func (rr *ReviewRouter) HandleRejectStep(c *gin.Context) {
	instanceID, ok := pathUUID(c, "instanceId")
	if !ok {
		return
	}

	var req model.RejectStepDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	actor := auth.GetActor(c.Request.Context())
	instance, err := rr.dossiers.RejectStep(c.Request.Context(), actor, instanceID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, instance)
}

// HandleMarkAdminComplete handles POST /api/v1/step-instances/:instanceId/admin-complete
func (rr *ReviewRouter) HandleMarkAdminComplete(c *gin.Context) {
	instanceID, ok := pathUUID(c, "instanceId")
	if !ok {
		return
	}

	actor := auth.GetActor(c.Request.Context())
	instance, err := rr.dossiers.MarkAdminStepComplete(c.Request.Context(), actor, instanceID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, instance)
}

// HandleReviewDocument handles POST /api/v1/documents/:documentId/review
func (rr *ReviewRouter) HandleReviewDocument(c *gin.Context) {
	documentID, ok := pathUUID(c, "documentId")
	if !ok {
		return
	}

	var req model.ReviewDocumentDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	actor := auth.GetActor(c.Request.Context())
	document, err := rr.documents.ReviewDocument(c.Request.Context(), actor, documentID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, document)
}

// HandleDownloadVersion handles GET /api/v1/document-versions/:versionId/content
func (rr *ReviewRouter) HandleDownloadVersion(c *gin.Context) {
	versionID, ok := pathUUID(c, "versionId")
	if !ok {
		return
	}

	reader, version, err := rr.documents.OpenVersion(c.Request.Context(), versionID)
	if err != nil {
		respondError(c, err)
		return
	}
	defer reader.Close()

	c.Header("Content-Disposition", `attachment; filename="`+version.FileName+`"`)
	c.DataFromReader(http.StatusOK, version.Size, version.MimeType, reader, nil)
}
