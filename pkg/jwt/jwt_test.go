package jwt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgjwt "github.com/jhoicas/nfe-conciliacao/pkg/jwt"
)

const secret = "test-secret"

func TestGenerateAndParse(t *testing.T) {
	tok, err := pkgjwt.Generate(secret, "user-1", "org-1", "operator", "nfe-test", 60, "unit-1", "unit-2")
	require.NoError(t, err)

	claims, err := pkgjwt.Parse(secret, tok)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "org-1", claims.OrganizationID)
	assert.Equal(t, "operator", claims.Role)
	assert.True(t, claims.CanAccessUnit("unit-2"))
	assert.False(t, claims.CanAccessUnit("unit-3"))
}

func TestCanAccessUnit_SinRestriccion(t *testing.T) {
	tok, err := pkgjwt.Generate(secret, "user-1", "org-1", "admin", "nfe-test", 60)
	require.NoError(t, err)
	claims, err := pkgjwt.Parse(secret, tok)
	require.NoError(t, err)
	assert.True(t, claims.CanAccessUnit("cualquiera"))
}

func TestParse_Errores(t *testing.T) {
	_, err := pkgjwt.Generate("", "user-1", "org-1", "admin", "nfe-test", 60)
	assert.Error(t, err, "secret vacío")

	expired, err := pkgjwt.Generate(secret, "user-1", "org-1", "admin", "nfe-test", -1)
	require.NoError(t, err)
	_, err = pkgjwt.Parse(secret, expired)
	assert.Error(t, err, "token expirado")

	tok, err := pkgjwt.Generate(secret, "user-1", "org-1", "admin", "nfe-test", 60)
	require.NoError(t, err)
	_, err = pkgjwt.Parse("otro-secret", tok)
	assert.Error(t, err, "secret incorrecto")
}
