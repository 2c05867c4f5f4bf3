package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/nfe-conciliacao/internal/application/importer"
	"github.com/jhoicas/nfe-conciliacao/internal/application/inconsistency"
	"github.com/jhoicas/nfe-conciliacao/internal/application/inventory"
	"github.com/jhoicas/nfe-conciliacao/internal/domain/entity"
	"github.com/jhoicas/nfe-conciliacao/internal/domain/repository"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	Imports         *importer.ImportService
	Batches         *importer.BatchService
	Reports         *importer.ReportUseCase
	Inconsistencies *inconsistency.ReviewUseCase
	Stock           *inventory.StockUseCase
	Replenishment   *inventory.ReplenishmentUseCase
	Units           repository.UnitRepository
	JWTSecret       string
}

// Router registra las rutas de la API. Todo cuelga de /api/units/:unit_id y exige Bearer Token.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api", AuthMiddleware(deps.JWTSecret))
	unit := api.Group("/units/:unit_id", RequireUnit(deps.Units))

	oversight := RequireRole(entity.RoleAdmin, entity.RoleSupervisor)

	// Importaciones
	importHandler := NewImportHandler(deps.Imports, deps.Reports)
	imports := unit.Group("/imports")
	imports.Post("/", importHandler.Upload)
	imports.Get("/:id", importHandler.Get)
	imports.Post("/:id/cancel", importHandler.Cancel)
	imports.Get("/:id/report", importHandler.Report)

	// Lotes
	batchHandler := NewBatchHandler(deps.Imports, deps.Batches)
	batches := unit.Group("/batches")
	batches.Post("/", batchHandler.Create)
	batches.Get("/:id", batchHandler.Get)
	batches.Post("/:id/cancel", oversight, batchHandler.Cancel)

	// Inconsistencias
	incHandler := NewInconsistencyHandler(deps.Inconsistencies)
	incs := unit.Group("/inconsistencies")
	incs.Get("/", incHandler.List)
	incs.Get("/:id", incHandler.Get)
	incs.Post("/:id/review", oversight, incHandler.StartReview)
	incs.Post("/:id/resolve", oversight, incHandler.Resolve)
	incs.Post("/:id/dismiss", oversight, incHandler.Dismiss)

	// Stock
	stockHandler := NewStockHandler(deps.Stock, deps.Replenishment)
	stock := unit.Group("/stock")
	stock.Get("/lots", stockHandler.ListLots)
	stock.Get("/lots/:id/audit", stockHandler.LotAudit)
	stock.Get("/replenishment", stockHandler.Replenishment)
}
