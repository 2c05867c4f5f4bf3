package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/nfe-conciliacao/internal/application/dto"
	"github.com/jhoicas/nfe-conciliacao/internal/application/inventory"
)

// StockHandler consultas de stock por unidad.
type StockHandler struct {
	stock         *inventory.StockUseCase
	replenishment *inventory.ReplenishmentUseCase
}

// NewStockHandler construye el handler.
func NewStockHandler(stock *inventory.StockUseCase, replenishment *inventory.ReplenishmentUseCase) *StockHandler {
	return &StockHandler{stock: stock, replenishment: replenishment}
}

// ListLots godoc
// @Summary      Listar lotes de stock
// @Tags         stock
// @Security     Bearer
// @Produce      json
// @Param        unit_id  path   string  true   "Unidad"
// @Param        limit    query  int     false  "Límite"
// @Param        offset   query  int     false  "Offset"
// @Success      200  {object}  dto.ListResponse[dto.LotResponse]
// @Router       /api/units/{unit_id}/stock/lots [get]
func (h *StockHandler) ListLots(c *fiber.Ctx) error {
	var page dto.PageRequest
	if err := c.QueryParser(&page); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_QUERY", Message: err.Error()})
	}
	if err := validateStruct(page); err != nil {
		return writeError(c, err)
	}
	page.DefaultPage()
	items, err := h.stock.ListLots(c.Context(), GetUnitID(c), page)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.ListResponse[dto.LotResponse]{
		Items: items,
		Page:  dto.PageResponse{Limit: page.Limit, Offset: page.Offset, Count: len(items)},
	})
}

// LotAudit godoc
// @Summary      Traza de un lote
// @Description  Ajustes e historial de valor del lote en orden de aplicación.
// @Tags         stock
// @Security     Bearer
// @Produce      json
// @Param        unit_id  path  string  true  "Unidad"
// @Param        id       path  string  true  "Lote"
// @Success      200  {object}  dto.LotAuditResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/units/{unit_id}/stock/lots/{id}/audit [get]
func (h *StockHandler) LotAudit(c *fiber.Ctx) error {
	out, err := h.stock.LotAudit(c.Context(), GetUnitID(c), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(out)
}

// Replenishment godoc
// @Summary      Sugerencias de reposición
// @Tags         stock
// @Security     Bearer
// @Produce      json
// @Param        unit_id  path  string  true  "Unidad"
// @Success      200  {array}  dto.ReplenishmentSuggestionDTO
// @Router       /api/units/{unit_id}/stock/replenishment [get]
func (h *StockHandler) Replenishment(c *fiber.Ctx) error {
	out, err := h.replenishment.GenerateReplenishmentList(c.Context(), GetUnitID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(out)
}
