package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/nfe-conciliacao/internal/application/dto"
	"github.com/jhoicas/nfe-conciliacao/internal/application/inconsistency"
)

// InconsistencyHandler maneja la revisión de inconsistencias.
type InconsistencyHandler struct {
	uc *inconsistency.ReviewUseCase
}

// NewInconsistencyHandler construye el handler.
func NewInconsistencyHandler(uc *inconsistency.ReviewUseCase) *InconsistencyHandler {
	return &InconsistencyHandler{uc: uc}
}

// List godoc
// @Summary      Listar inconsistencias
// @Tags         inconsistencies
// @Security     Bearer
// @Produce      json
// @Param        unit_id    path   string  true   "Unidad"
// @Param        status     query  string  false  "PENDING | UNDER_REVIEW | RESOLVED | DISMISSED"
// @Param        import_id  query  string  false  "Importación"
// @Param        invoice_id query  string  false  "Nota fiscal"
// @Param        limit      query  int     false  "Límite"
// @Param        offset     query  int     false  "Offset"
// @Success      200  {object}  dto.ListResponse[dto.InconsistencyResponse]
// @Failure      400  {object}  dto.ErrorResponse
// @Router       /api/units/{unit_id}/inconsistencies [get]
func (h *InconsistencyHandler) List(c *fiber.Ctx) error {
	var q dto.ListInconsistenciesQuery
	if err := c.QueryParser(&q); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_QUERY", Message: err.Error()})
	}
	q.UnitID = GetUnitID(c)
	if err := validateStruct(q); err != nil {
		return writeError(c, err)
	}
	q.DefaultPage()
	items, err := h.uc.List(c.Context(), q)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.ListResponse[dto.InconsistencyResponse]{
		Items: items,
		Page:  dto.PageResponse{Limit: q.Limit, Offset: q.Offset, Count: len(items)},
	})
}

// Get godoc
// @Summary      Obtener inconsistencia
// @Tags         inconsistencies
// @Security     Bearer
// @Produce      json
// @Param        unit_id  path  string  true  "Unidad"
// @Param        id       path  string  true  "Inconsistencia"
// @Success      200  {object}  dto.InconsistencyResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/units/{unit_id}/inconsistencies/{id} [get]
func (h *InconsistencyHandler) Get(c *fiber.Ctx) error {
	out, err := h.uc.Get(c.Context(), GetUnitID(c), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(out)
}

// StartReview godoc
// @Summary      Tomar inconsistencia en revisión
// @Tags         inconsistencies
// @Security     Bearer
// @Produce      json
// @Param        unit_id  path  string  true  "Unidad"
// @Param        id       path  string  true  "Inconsistencia"
// @Success      200  {object}  dto.InconsistencyResponse
// @Failure      409  {object}  dto.ErrorResponse
// @Router       /api/units/{unit_id}/inconsistencies/{id}/review [post]
func (h *InconsistencyHandler) StartReview(c *fiber.Ctx) error {
	out, err := h.uc.StartReview(c.Context(), GetUnitID(c), c.Params("id"), GetUserID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(out)
}

// Resolve godoc
// @Summary      Resolver inconsistencia
// @Tags         inconsistencies
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        unit_id  path  string             true  "Unidad"
// @Param        id       path  string             true  "Inconsistencia"
// @Param        body     body  dto.ReviewRequest  true  "Nota"
// @Success      200  {object}  dto.InconsistencyResponse
// @Failure      409  {object}  dto.ErrorResponse
// @Router       /api/units/{unit_id}/inconsistencies/{id}/resolve [post]
func (h *InconsistencyHandler) Resolve(c *fiber.Ctx) error {
	req, ok := h.reviewBody(c)
	if !ok {
		return badBody(c)
	}
	if err := validateStruct(req); err != nil {
		return writeError(c, err)
	}
	out, err := h.uc.Resolve(c.Context(), GetUnitID(c), c.Params("id"), GetUserID(c), req.Note)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(out)
}

// Dismiss godoc
// @Summary      Descartar inconsistencia
// @Tags         inconsistencies
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        unit_id  path  string             true  "Unidad"
// @Param        id       path  string             true  "Inconsistencia"
// @Param        body     body  dto.ReviewRequest  true  "Nota"
// @Success      200  {object}  dto.InconsistencyResponse
// @Failure      409  {object}  dto.ErrorResponse
// @Router       /api/units/{unit_id}/inconsistencies/{id}/dismiss [post]
func (h *InconsistencyHandler) Dismiss(c *fiber.Ctx) error {
	req, ok := h.reviewBody(c)
	if !ok {
		return badBody(c)
	}
	if err := validateStruct(req); err != nil {
		return writeError(c, err)
	}
	out, err := h.uc.Dismiss(c.Context(), GetUnitID(c), c.Params("id"), GetUserID(c), req.Note)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(out)
}

// reviewBody admite cuerpo vacío.
func (h *InconsistencyHandler) reviewBody(c *fiber.Ctx) (dto.ReviewRequest, bool) {
	var req dto.ReviewRequest
	if len(c.Body()) == 0 {
		return req, true
	}
	if err := c.BodyParser(&req); err != nil {
		return req, false
	}
	return req, true
}
