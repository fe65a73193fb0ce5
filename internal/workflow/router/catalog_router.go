package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/opendossier/dossier/internal/auth"
	"github.com/opendossier/dossier/internal/workflow/model"
	"github.com/opendossier/dossier/internal/workflow/service"
)

// CatalogRouter exposes the step catalog: reading a product's sequence and
// publishing one.
type CatalogRouter struct {
	catalog *service.CatalogService
}

// NewCatalogRouter creates a new instance of CatalogRouter.
func NewCatalogRouter(catalog *service.CatalogService) *CatalogRouter {
	return &CatalogRouter{catalog: catalog}
}

// RegisterRoutes mounts the catalog surface on the given group. Publishing
// a catalog is reserved to supervisors.
func (cr *CatalogRouter) RegisterRoutes(rg *gin.RouterGroup) {
	products := rg.Group("/products")
	products.GET("/:productId/steps", auth.RequireAuth(), cr.HandleGetSteps)
	products.POST("/:productId/steps", auth.RequireRole(auth.RoleSupervisor), cr.HandleCreateSteps)
}

// HandleGetSteps handles GET /api/v1/products/:productId/steps
func (cr *CatalogRouter) HandleGetSteps(c *gin.Context) {
	productID, ok := pathUUID(c, "productId")
	if !ok {
		return
	}

	steps, err := cr.catalog.GetStepsByProductID(c.Request.Context(), productID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, steps)
}

// HandleCreateSteps handles POST /api/v1/products/:productId/steps
func (cr *CatalogRouter) HandleCreateSteps(c *gin.Context) {
	productID, ok := pathUUID(c, "productId")
	if !ok {
		return
	}

	var steps []model.Step
	if err := c.ShouldBindJSON(&steps); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	created, err := cr.catalog.CreateSteps(c.Request.Context(), productID, steps)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, created)
}
