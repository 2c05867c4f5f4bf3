package http

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/nfe-conciliacao/internal/application/dto"
	"github.com/jhoicas/nfe-conciliacao/internal/domain/entity"
)

// LocalUnitID unidad autorizada de la ruta.
const LocalUnitID = "unit_id"

// unitLookup contrato mínimo para verificar la unidad; lo implementa repository.UnitRepository.
type unitLookup interface {
	GetByID(ctx context.Context, id string) (*entity.Unit, error)
}

// RequireUnit verifica que la unidad del parámetro :unit_id exista, pertenezca a la
// organización del token y esté entre las unidades autorizadas. Debe usarse después de AuthMiddleware.
//
// Comportamiento:
//   - 404 Not Found   → la unidad no existe.
//   - 403 Forbidden   → la unidad es de otra organización o no está en el token.
//   - 503 Service Unavailable → fallo al consultar la unidad.
func RequireUnit(units unitLookup) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims := GetClaims(c)
		if claims == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
		}
		unitID := c.Params("unit_id")

		unit, err := units.GetByID(c.Context(), unitID)
		if err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{
				Code:    "UNIT_CHECK_FAILED",
				Message: "no se pudo verificar la unidad, intente más tarde",
			})
		}
		if unit == nil || !unit.Active {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "unidad no encontrada"})
		}
		if unit.OrganizationID != claims.OrganizationID || !claims.CanAccessUnit(unit.ID) {
			return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Code: "FORBIDDEN", Message: "sin acceso a la unidad " + unit.ID})
		}

		c.Locals(LocalUnitID, unit.ID)
		return c.Next()
	}
}

// GetUnitID unidad autorizada por RequireUnit.
func GetUnitID(c *fiber.Ctx) string { return localString(c, LocalUnitID) }
