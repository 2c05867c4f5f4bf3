package http_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/nfe-conciliacao/internal/domain/entity"
	"github.com/jhoicas/nfe-conciliacao/internal/infrastructure/memory"
	apphttp "github.com/jhoicas/nfe-conciliacao/internal/interfaces/http"
	pkgjwt "github.com/jhoicas/nfe-conciliacao/pkg/jwt"
)

// ──────────────────────────────────────────────────────────────────────────────
// Helpers de test
// ──────────────────────────────────────────────────────────────────────────────

const (
	testJWTSecret = "test-secret-key-for-unit-tests"
	testUserID    = "00000000-0000-0000-0000-000000000001"
	testOrgID     = "00000000-0000-0000-0000-000000000002"
	testIssuer    = "nfe-conciliacao-test"
	testExpMin    = 60
)

// buildRoleApp aplicación mínima con AuthMiddleware + RequireRole y un handler dummy.
func buildRoleApp(allowedRoles ...string) *fiber.App {
	app := fiber.New()
	app.Get("/protected",
		apphttp.AuthMiddleware(testJWTSecret),
		apphttp.RequireRole(allowedRoles...),
		func(c *fiber.Ctx) error {
			return c.JSON(fiber.Map{"ok": true, "role": apphttp.GetRole(c)})
		},
	)
	return app
}

// tokenFor genera un JWT para el rol; unitIDs vacío = todas las unidades.
func tokenFor(t *testing.T, role string, unitIDs ...string) string {
	t.Helper()
	tok, err := pkgjwt.Generate(testJWTSecret, testUserID, testOrgID, role, testIssuer, testExpMin, unitIDs...)
	require.NoError(t, err, "debe generarse un token JWT válido")
	return "Bearer " + tok
}

func doGet(t *testing.T, app *fiber.App, path, authHeader string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, v), string(body))
}

// ──────────────────────────────────────────────────────────────────────────────
// Tests RequireRole
// ──────────────────────────────────────────────────────────────────────────────

func TestRequireRole_AdminAccede(t *testing.T) {
	app := buildRoleApp(entity.RoleAdmin)
	resp := doGet(t, app, "/protected", tokenFor(t, entity.RoleAdmin))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body map[string]any
	decodeBody(t, resp, &body)
	assert.Equal(t, entity.RoleAdmin, body["role"])
}

func TestRequireRole_SupervisorEnRutaDeSupervision(t *testing.T) {
	app := buildRoleApp(entity.RoleAdmin, entity.RoleSupervisor)
	resp := doGet(t, app, "/protected", tokenFor(t, entity.RoleSupervisor))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestRequireRole_OperadorBloqueado(t *testing.T) {
	app := buildRoleApp(entity.RoleAdmin, entity.RoleSupervisor)
	resp := doGet(t, app, "/protected", tokenFor(t, entity.RoleOperator))
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, "FORBIDDEN", body["code"])
}

func TestRequireRole_TokenSinRol_Retorna401(t *testing.T) {
	app := buildRoleApp(entity.RoleAdmin)
	resp := doGet(t, app, "/protected", tokenFor(t, ""))
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, "MISSING_ROLE", body["code"])
}

func TestAuthMiddleware_SinHeader_Retorna401(t *testing.T) {
	app := buildRoleApp(entity.RoleAdmin)
	resp := doGet(t, app, "/protected", "")
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestAuthMiddleware_TokenInvalido_Retorna401(t *testing.T) {
	app := buildRoleApp(entity.RoleAdmin)
	for _, header := range []string{"Bearer esto.no.es.jwt", "Basic abc", "Bearer "} {
		resp := doGet(t, app, "/protected", header)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode, header)
	}
}

func TestAuthMiddleware_ExtraeClaims(t *testing.T) {
	app := fiber.New()
	app.Get("/me", apphttp.AuthMiddleware(testJWTSecret), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"user_id":         apphttp.GetUserID(c),
			"organization_id": apphttp.GetOrganizationID(c),
			"role":            apphttp.GetRole(c),
		})
	})
	resp := doGet(t, app, "/me", tokenFor(t, entity.RoleOperator))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, testUserID, body["user_id"])
	assert.Equal(t, testOrgID, body["organization_id"])
	assert.Equal(t, entity.RoleOperator, body["role"])
}

// ──────────────────────────────────────────────────────────────────────────────
// Tests RequireUnit
// ──────────────────────────────────────────────────────────────────────────────

func buildUnitApp() *fiber.App {
	store := memory.NewStore()
	store.AddUnit(&entity.Unit{Audit: entity.Audit{ID: "unit-1", Active: true}, OrganizationID: testOrgID, Name: "Central"})
	store.AddUnit(&entity.Unit{Audit: entity.Audit{ID: "unit-2", Active: true}, OrganizationID: testOrgID, Name: "Norte"})
	store.AddUnit(&entity.Unit{Audit: entity.Audit{ID: "unit-off", Active: false}, OrganizationID: testOrgID, Name: "Cerrada"})
	store.AddUnit(&entity.Unit{Audit: entity.Audit{ID: "unit-ajena", Active: true}, OrganizationID: "otra-org", Name: "Ajena"})

	app := fiber.New()
	app.Get("/units/:unit_id",
		apphttp.AuthMiddleware(testJWTSecret),
		apphttp.RequireUnit(memory.NewUnitRepository(store)),
		func(c *fiber.Ctx) error {
			return c.JSON(fiber.Map{"unit_id": apphttp.GetUnitID(c)})
		},
	)
	return app
}

func TestRequireUnit(t *testing.T) {
	app := buildUnitApp()

	tests := []struct {
		name   string
		path   string
		units  []string
		status int
	}{
		{"unidad propia sin restricción", "/units/unit-1", nil, fiber.StatusOK},
		{"unidad autorizada en el token", "/units/unit-1", []string{"unit-1"}, fiber.StatusOK},
		{"unidad fuera del token", "/units/unit-2", []string{"unit-1"}, fiber.StatusForbidden},
		{"unidad de otra organización", "/units/unit-ajena", nil, fiber.StatusForbidden},
		{"unidad inexistente", "/units/no-existe", nil, fiber.StatusNotFound},
		{"unidad inactiva", "/units/unit-off", nil, fiber.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doGet(t, app, tt.path, tokenFor(t, entity.RoleOperator, tt.units...))
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}

	resp := doGet(t, app, "/units/unit-1", tokenFor(t, entity.RoleOperator))
	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, "unit-1", body["unit_id"])
}
