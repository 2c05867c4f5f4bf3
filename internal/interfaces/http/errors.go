package http

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/nfe-conciliacao/internal/application/dto"
	"github.com/jhoicas/nfe-conciliacao/internal/domain"
)

var validate = validator.New()

// errorMapping error de dominio -> status y código de la respuesta.
var errorMapping = []struct {
	err    error
	status int
	code   string
}{
	{domain.ErrMalformedDocument, fiber.StatusUnprocessableEntity, "MALFORMED_DOCUMENT"},
	{domain.ErrSchemaVersionUnsupported, fiber.StatusUnprocessableEntity, "UNSUPPORTED_SCHEMA"},
	{domain.ErrBlockingInconsistency, fiber.StatusUnprocessableEntity, "BLOCKING_INCONSISTENCY"},
	{domain.ErrDuplicateDocument, fiber.StatusConflict, "DUPLICATE_DOCUMENT"},
	{domain.ErrInsufficientStock, fiber.StatusConflict, "INSUFFICIENT_STOCK"},
	{domain.ErrImportCancelled, fiber.StatusConflict, "IMPORT_CANCELLED"},
	{domain.ErrInvalidTransition, fiber.StatusConflict, "INVALID_TRANSITION"},
	{domain.ErrEntityResolutionConflict, fiber.StatusConflict, "RESOLUTION_CONFLICT"},
	{domain.ErrConflict, fiber.StatusConflict, "CONFLICT"},
	{domain.ErrDuplicate, fiber.StatusConflict, "DUPLICATE"},
	{domain.ErrInvalidInput, fiber.StatusBadRequest, "VALIDATION"},
	{domain.ErrStockLotNotFound, fiber.StatusNotFound, "NOT_FOUND"},
	{domain.ErrNotFound, fiber.StatusNotFound, "NOT_FOUND"},
	{domain.ErrForbidden, fiber.StatusForbidden, "FORBIDDEN"},
	{domain.ErrUnauthorized, fiber.StatusUnauthorized, "UNAUTHORIZED"},
}

// statusFor traduce un error de dominio a status HTTP y código.
func statusFor(err error) (int, string) {
	for _, m := range errorMapping {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return fiber.StatusInternalServerError, "INTERNAL"
}

// writeError responde con dto.ErrorResponse según el error.
func writeError(c *fiber.Ctx, err error) error {
	status, code := statusFor(err)
	return c.Status(status).JSON(dto.ErrorResponse{Code: code, Message: err.Error()})
}

// validateStruct valida tags `validate` y devuelve ErrInvalidInput con los campos fallidos.
func validateStruct(v any) error {
	if err := validate.Struct(v); err != nil {
		var ve validator.ValidationErrors
		if !errors.As(err, &ve) {
			return fmt.Errorf("%v: %w", err, domain.ErrInvalidInput)
		}
		fields := make([]string, 0, len(ve))
		for _, fe := range ve {
			fields = append(fields, fe.Field()+"="+fe.Tag())
		}
		return fmt.Errorf("campos inválidos (%s): %w", strings.Join(fields, ", "), domain.ErrInvalidInput)
	}
	return nil
}

func badBody(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
}
