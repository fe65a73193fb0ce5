package router

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/opendossier/dossier/internal/auth"
	"github.com/opendossier/dossier/internal/workflow/model"
	"github.com/opendossier/dossier/internal/workflow/service"
)

// DossierRouter exposes the client-facing surface: opening dossiers, polling
// the active step, submitting values and uploading documents.
type DossierRouter struct {
	dossiers  *service.DossierService
	documents *service.DocumentService
}

// NewDossierRouter creates a new instance of DossierRouter.
func NewDossierRouter(dossiers *service.DossierService, documents *service.DocumentService) *DossierRouter {
	return &DossierRouter{dossiers: dossiers, documents: documents}
}

// RegisterRoutes mounts the client surface on the given group.
func (dr *DossierRouter) RegisterRoutes(rg *gin.RouterGroup) {
	dossiers := rg.Group("/dossiers", auth.RequireAuth())
	dossiers.GET("", dr.HandleListDossiers)
	dossiers.POST("", dr.HandleCreateDossier)
	dossiers.GET("/:dossierId/active-step", dr.HandleGetActiveStep)

	instances := rg.Group("/step-instances", auth.RequireAuth())
	instances.POST("/:instanceId/submit", dr.HandleSubmitStep)
	instances.POST("/:instanceId/resubmit", dr.HandleResubmitStep)
	instances.POST("/:instanceId/formation-complete", dr.HandleCompleteFormation)
	instances.POST("/:instanceId/documents/:documentTypeId", dr.HandleUploadDocumentVersion)
}

// HandleListDossiers handles GET /api/v1/dossiers?clientId=&offset=&limit=
// Agents may list any client's dossiers; clients only their own.
func (dr *DossierRouter) HandleListDossiers(c *gin.Context) {
	actor := auth.GetActor(c.Request.Context())

	clientID := c.Query("clientId")
	if clientID == "" || !actor.HasRole(auth.RoleAgent) {
		clientID = actor.ID
	}

	var offset, limit *int
	if v := c.Query("offset"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'offset' query parameter, must be an integer"})
			return
		}
		offset = &parsed
	}
	if v := c.Query("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'limit' query parameter, must be an integer"})
			return
		}
		limit = &parsed
	}

	dossiers, total, err := dr.dossiers.GetDossiersByClientID(c.Request.Context(), clientID, offset, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dossiers": dossiers, "total": total})
}

// HandleCreateDossier handles POST /api/v1/dossiers
func (dr *DossierRouter) HandleCreateDossier(c *gin.Context) {
	var req model.CreateDossierDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	actor := auth.GetActor(c.Request.Context())
	dossier, err := dr.dossiers.CreateDossier(c.Request.Context(), actor.ID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dossier)
}

// HandleGetActiveStep handles GET /api/v1/dossiers/:dossierId/active-step
func (dr *DossierRouter) HandleGetActiveStep(c *gin.Context) {
	dossierID, ok := pathUUID(c, "dossierId")
	if !ok {
		return
	}

	view, err := dr.dossiers.GetActiveStepView(c.Request.Context(), dossierID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// HandleSubmitStep handles POST /api/v1/step-instances/:instanceId/submit
func (dr *DossierRouter) HandleSubmitStep(c *gin.Context) {
	instanceID, ok := pathUUID(c, "instanceId")
	if !ok {
		return
	}

	var req model.SubmitStepDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	actor := auth.GetActor(c.Request.Context())
	instance, err := dr.dossiers.SubmitStep(c.Request.Context(), actor, instanceID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, instance)
}

// HandleResubmitStep handles POST /api/v1/step-instances/:instanceId/resubmit
func (dr *DossierRouter) HandleResubmitStep(c *gin.Context) {
	instanceID, ok := pathUUID(c, "instanceId")
	if !ok {
		return
	}

	var req model.ResubmitStepDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	actor := auth.GetActor(c.Request.Context())
	instance, err := dr.dossiers.ResubmitStep(c.Request.Context(), actor, instanceID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, instance)
}

// HandleCompleteFormation handles POST /api/v1/step-instances/:instanceId/formation-complete
func (dr *DossierRouter) HandleCompleteFormation(c *gin.Context) {
	instanceID, ok := pathUUID(c, "instanceId")
	if !ok {
		return
	}

	actor := auth.GetActor(c.Request.Context())
	instance, err := dr.dossiers.CompleteFormationStep(c.Request.Context(), actor, instanceID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, instance)
}

// HandleUploadDocumentVersion handles
// POST /api/v1/step-instances/:instanceId/documents/:documentTypeId
// with a multipart "file" part.
func (dr *DossierRouter) HandleUploadDocumentVersion(c *gin.Context) {
	instanceID, ok := pathUUID(c, "instanceId")
	if !ok {
		return
	}
	documentTypeID, ok := pathUUID(c, "documentTypeId")
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing 'file' form field"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respondError(c, err)
		return
	}
	defer file.Close()

	actor := auth.GetActor(c.Request.Context())
	version, err := dr.documents.UploadVersion(
		c.Request.Context(),
		actor,
		instanceID,
		documentTypeID,
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		fileHeader.Size,
		file,
	)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, version)
}
