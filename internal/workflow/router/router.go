package router

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/opendossier/dossier/internal/workflow/service"
)

// respondError maps the service error taxonomy onto HTTP statuses:
// validation and document-gate failures are 422 with enough detail for the
// client to fix the input, stale optimistic checks are 409, missing roles
// are 403, unknown entities are 404. Everything else is a 500.
func respondError(c *gin.Context, err error) {
	var validationErr *service.ValidationError
	if errors.As(err, &validationErr) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":  "validation failed",
			"fields": validationErr.Fields,
		})
		return
	}

	var gateErr *service.GateNotSatisfiedError
	if errors.As(err, &gateErr) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":  "required documents are not approved",
			"issues": gateErr.Issues,
		})
		return
	}

	var staleErr *service.StaleStateError
	if errors.As(err, &staleErr) {
		c.JSON(http.StatusConflict, gin.H{
			"error":          "step instance changed concurrently, reload and retry",
			"stepInstanceId": staleErr.StepInstanceID,
		})
		return
	}

	var permErr *service.PermissionError
	if errors.As(err, &permErr) {
		c.JSON(http.StatusForbidden, gin.H{
			"error":        "insufficient permissions",
			"requiredRole": permErr.RequiredRole,
		})
		return
	}

	if strings.Contains(err.Error(), "not found") {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	slog.ErrorContext(c.Request.Context(), "request failed",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"error", err,
	)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}

// pathUUID parses a UUID path parameter, responding 400 on failure.
func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}
