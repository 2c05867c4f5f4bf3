package http

import (
	"errors"
	"io"
	"mime/multipart"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/nfe-conciliacao/internal/application/dto"
	"github.com/jhoicas/nfe-conciliacao/internal/application/importer"
	"github.com/jhoicas/nfe-conciliacao/internal/domain"
	"github.com/jhoicas/nfe-conciliacao/internal/domain/entity"
)

// ImportHandler maneja la importación de documentos NFe individuales (protegido).
type ImportHandler struct {
	imports *importer.ImportService
	reports *importer.ReportUseCase
}

// NewImportHandler construye el handler.
func NewImportHandler(imports *importer.ImportService, reports *importer.ReportUseCase) *ImportHandler {
	return &ImportHandler{imports: imports, reports: reports}
}

// Upload godoc
// @Summary      Importar documento NFe
// @Description  Analiza el XML, resuelve entidades, detecta inconsistencias y concilia el stock
//
//	de la unidad en una única unidad de trabajo.
//
// @Tags         imports
// @Security     Bearer
// @Accept       multipart/form-data
// @Produce      json
// @Param        unit_id  path      string  true  "Unidad"
// @Param        file     formData  file    true  "Documento NFe (.xml)"
// @Success      201  {object}  dto.ImportResultResponse
// @Failure      400  {object}  dto.ImportResultResponse
// @Failure      409  {object}  dto.ImportResultResponse
// @Failure      422  {object}  dto.ImportResultResponse
// @Router       /api/units/{unit_id}/imports [post]
func (h *ImportHandler) Upload(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "MISSING_FILE", Message: "campo 'file' requerido"})
	}
	if err := h.imports.ValidateFile(fh.Filename, fh.Size); err != nil {
		return writeError(c, err)
	}
	content, err := readFormFile(fh)
	if err != nil {
		return writeError(c, err)
	}

	res, err := h.imports.ImportDocument(c.Context(), importer.SubmitRequest{
		UnitID:   GetUnitID(c),
		ActorID:  GetUserID(c),
		FileName: fh.Filename,
		Content:  content,
	})
	body := toResultResponse(res)
	if err != nil {
		status, _ := statusFor(err)
		return c.Status(status).JSON(body)
	}
	return c.Status(fiber.StatusCreated).JSON(body)
}

// Get godoc
// @Summary      Estado de una importación
// @Tags         imports
// @Security     Bearer
// @Produce      json
// @Param        unit_id  path  string  true  "Unidad"
// @Param        id       path  string  true  "Importación"
// @Success      200  {object}  dto.ImportResponse
// @Failure      403  {object}  dto.ErrorResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/units/{unit_id}/imports/{id} [get]
func (h *ImportHandler) Get(c *fiber.Ctx) error {
	imp, err := h.load(c)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.FromImport(imp))
}

// Cancel godoc
// @Summary      Cancelar importación
// @Description  PENDING pasa a CANCELLED; PROCESSING se detiene antes de mutar stock.
// @Tags         imports
// @Security     Bearer
// @Produce      json
// @Param        unit_id  path  string  true  "Unidad"
// @Param        id       path  string  true  "Importación"
// @Success      202  {object}  dto.ImportResponse
// @Failure      409  {object}  dto.ErrorResponse
// @Router       /api/units/{unit_id}/imports/{id}/cancel [post]
func (h *ImportHandler) Cancel(c *fiber.Ctx) error {
	imp, err := h.load(c)
	if err != nil {
		return writeError(c, err)
	}
	imp, err = h.imports.Cancel(c.Context(), imp.ID)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(dto.FromImport(imp))
}

// Report godoc
// @Summary      Reporte PDF de la importación
// @Tags         imports
// @Security     Bearer
// @Produce      application/pdf
// @Param        unit_id  path  string  true  "Unidad"
// @Param        id       path  string  true  "Importación"
// @Success      200  {file}    binary
// @Failure      409  {object}  dto.ErrorResponse
// @Router       /api/units/{unit_id}/imports/{id}/report [get]
func (h *ImportHandler) Report(c *fiber.Ctx) error {
	pdf, name, err := h.reports.DownloadPDF(c.Context(), GetUnitID(c), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+name+`"`)
	return c.Send(pdf)
}

func (h *ImportHandler) load(c *fiber.Ctx) (*entity.Import, error) {
	imp, err := h.imports.Get(c.Context(), c.Params("id"))
	if err != nil {
		return nil, err
	}
	if imp.UnitID != GetUnitID(c) {
		return nil, domain.ErrForbidden
	}
	return imp, nil
}

func readFormFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.Join(domain.ErrInvalidInput, err)
	}
	return content, nil
}

func toResultResponse(r *importer.ImportResult) dto.ImportResultResponse {
	if r == nil {
		return dto.ImportResultResponse{Status: importer.ResultError}
	}
	return dto.ImportResultResponse{
		Status:          r.Status,
		ImportID:        r.ImportID,
		InvoiceID:       r.InvoiceID,
		SupplierID:      r.SupplierID,
		ItemsProcessed:  r.ItemsProcessed,
		Inconsistencies: r.Inconsistencies,
		Message:         r.Message,
	}
}
