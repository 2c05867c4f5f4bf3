package http

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/nfe-conciliacao/internal/application/dto"
	"github.com/jhoicas/nfe-conciliacao/internal/application/importer"
	"github.com/jhoicas/nfe-conciliacao/internal/domain"
	"github.com/jhoicas/nfe-conciliacao/internal/domain/entity"
)

// BatchHandler maneja lotes de documentos.
type BatchHandler struct {
	imports *importer.ImportService
	batches *importer.BatchService
}

// NewBatchHandler construye el handler.
func NewBatchHandler(imports *importer.ImportService, batches *importer.BatchService) *BatchHandler {
	return &BatchHandler{imports: imports, batches: batches}
}

// Create godoc
// @Summary      Crear lote de importación
// @Description  Registra una importación PENDING por archivo y procesa el lote en segundo plano.
// @Tags         batches
// @Security     Bearer
// @Accept       multipart/form-data
// @Produce      json
// @Param        unit_id      path      string  true   "Unidad"
// @Param        files        formData  file    true   "Documentos NFe (.xml)"
// @Param        description  formData  string  false  "Descripción"
// @Success      202  {object}  dto.BatchResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Router       /api/units/{unit_id}/batches [post]
func (h *BatchHandler) Create(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_FORM", Message: "multipart/form-data requerido"})
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "MISSING_FILE", Message: "campo 'files' requerido"})
	}

	files := make([]importer.BatchFile, 0, len(headers))
	for _, fh := range headers {
		if err := h.imports.ValidateFile(fh.Filename, fh.Size); err != nil {
			return writeError(c, err)
		}
		content, err := readFormFile(fh)
		if err != nil {
			return writeError(c, err)
		}
		files = append(files, importer.BatchFile{FileName: fh.Filename, Content: content})
	}

	batch, children, err := h.batches.Create(c.Context(), importer.CreateBatchRequest{
		UnitID:      GetUnitID(c),
		ActorID:     GetUserID(c),
		Description: c.FormValue("description"),
		Files:       files,
	})
	if err != nil {
		return writeError(c, err)
	}
	// el RequestCtx de fasthttp se recicla al responder
	h.batches.Start(context.Background(), batch.ID)
	return c.Status(fiber.StatusAccepted).JSON(dto.FromBatch(batch, children))
}

// Get godoc
// @Summary      Estado de un lote
// @Tags         batches
// @Security     Bearer
// @Produce      json
// @Param        unit_id  path  string  true  "Unidad"
// @Param        id       path  string  true  "Lote"
// @Success      200  {object}  dto.BatchResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/units/{unit_id}/batches/{id} [get]
func (h *BatchHandler) Get(c *fiber.Ctx) error {
	batch, err := h.load(c)
	if err != nil {
		return writeError(c, err)
	}
	children, err := h.batches.Children(c.Context(), batch.ID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.FromBatch(batch, children))
}

// Cancel godoc
// @Summary      Cancelar lote
// @Tags         batches
// @Security     Bearer
// @Produce      json
// @Param        unit_id  path  string  true  "Unidad"
// @Param        id       path  string  true  "Lote"
// @Success      202  {object}  dto.BatchResponse
// @Failure      409  {object}  dto.ErrorResponse
// @Router       /api/units/{unit_id}/batches/{id}/cancel [post]
func (h *BatchHandler) Cancel(c *fiber.Ctx) error {
	batch, err := h.load(c)
	if err != nil {
		return writeError(c, err)
	}
	batch, err = h.batches.Cancel(c.Context(), batch.ID)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(dto.FromBatch(batch, nil))
}

func (h *BatchHandler) load(c *fiber.Ctx) (*entity.Batch, error) {
	batch, err := h.batches.Get(c.Context(), c.Params("id"))
	if err != nil {
		return nil, err
	}
	if batch.UnitID != GetUnitID(c) {
		return nil, domain.ErrForbidden
	}
	return batch, nil
}
