package workflow

import (
	"context"
	"log/slog"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/opendossier/dossier/internal/audit"
	"github.com/opendossier/dossier/internal/docstore"
	"github.com/opendossier/dossier/internal/workflow/router"
	"github.com/opendossier/dossier/internal/workflow/service"
)

// auditChanSize buffers bursts of decisions so request paths never block on
// the audit writer.
const auditChanSize = 256

// Manager wires the workflow services and routers together and runs the
// audit event listener that drains decision events into the audit store.
type Manager struct {
	catalogService  *service.CatalogService
	instanceService *service.StepInstanceService
	dossierService  *service.DossierService
	documentService *service.DocumentService

	catalogRouter *router.CatalogRouter
	dossierRouter *router.DossierRouter
	reviewRouter  *router.ReviewRouter

	auditStore *audit.Store
	events     chan audit.Event
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewManager creates the workflow manager with all services wired and the
// audit listener running.
func NewManager(db *gorm.DB, driver docstore.Driver, auditStore *audit.Store) *Manager {
	events := make(chan audit.Event, auditChanSize)

	catalogService := service.NewCatalogService(db)
	instanceService := service.NewStepInstanceService(db)
	dossierService := service.NewDossierService(db, catalogService, instanceService, events)
	documentService := service.NewDocumentService(db, driver, events)

	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		catalogService:  catalogService,
		instanceService: instanceService,
		dossierService:  dossierService,
		documentService: documentService,
		catalogRouter:   router.NewCatalogRouter(catalogService),
		dossierRouter:   router.NewDossierRouter(dossierService, documentService),
		reviewRouter:    router.NewReviewRouter(dossierService, documentService),
		auditStore:      auditStore,
		events:          events,
		ctx:             ctx,
		cancel:          cancel,
	}

	m.startAuditListener()
	return m
}

// RegisterRoutes mounts the complete workflow HTTP surface on the group.
func (m *Manager) RegisterRoutes(rg *gin.RouterGroup) {
	m.catalogRouter.RegisterRoutes(rg)
	m.dossierRouter.RegisterRoutes(rg)
	m.reviewRouter.RegisterRoutes(rg)
}

// CatalogService exposes the catalog service for seeding.
func (m *Manager) CatalogService() *service.CatalogService {
	return m.catalogService
}

// startAuditListener starts a goroutine that persists audit events off the
// request path.
func (m *Manager) startAuditListener() {
	go func() {
		for {
			select {
			case <-m.ctx.Done():
				slog.Info("audit event listener stopped")
				return
			case event := <-m.events:
				if m.auditStore == nil {
					continue
				}
				if err := m.auditStore.Record(&event); err != nil {
					slog.Error("failed to record audit event",
						"kind", event.Kind,
						"dossierID", event.DossierID,
						"error", err)
				}
			}
		}
	}()
}

// Stop shuts down the audit listener after draining buffered events.
func (m *Manager) Stop() {
	for {
		select {
		case event := <-m.events:
			if m.auditStore != nil {
				if err := m.auditStore.Record(&event); err != nil {
					slog.Error("failed to record audit event during shutdown", "error", err)
				}
			}
		default:
			m.cancel()
			return
		}
	}
}
