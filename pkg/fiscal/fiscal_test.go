package fiscal_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/nfe-conciliacao/pkg/fiscal"
)

// ── CNPJ / CPF ──

func TestValidateCNPJ(t *testing.T) {
	assert.NoError(t, fiscal.ValidateCNPJ("11.222.333/0001-81"))
	assert.NoError(t, fiscal.ValidateCNPJ("12345678000195"))
	assert.Error(t, fiscal.ValidateCNPJ("11222333000182"), "dígito verificador alterado")
	assert.Error(t, fiscal.ValidateCNPJ("11111111111111"), "dígitos repetidos")
	assert.Error(t, fiscal.ValidateCNPJ("1122233300018"), "longitud incorrecta")
}

func TestValidateTaxID_CPF(t *testing.T) {
	assert.NoError(t, fiscal.ValidateTaxID("529.982.247-25"))
	assert.Error(t, fiscal.ValidateTaxID("52998224726"))
	assert.Error(t, fiscal.ValidateTaxID("123"))
}

func TestCompleteCNPJ(t *testing.T) {
	cnpj, err := fiscal.CompleteCNPJ("98.765.432/0001")
	require.NoError(t, err)
	assert.Equal(t, "98765432000198", cnpj)
}

// ── Chave de acesso ──

func TestParseAccessKey_Valida(t *testing.T) {
	key, err := fiscal.ParseAccessKey("35240111222333000181550010000012341123456784")
	require.NoError(t, err)
	assert.Equal(t, "35", key.StateCode)
	assert.Equal(t, "2401", key.YearMonth)
	assert.Equal(t, "11222333000181", key.IssuerTaxID)
	assert.Equal(t, "55", key.Model)
	assert.Equal(t, "001", key.Series)
	assert.Equal(t, 1234, key.NumberInt())
}

func TestParseAccessKey_DigitoInvalido(t *testing.T) {
	_, err := fiscal.ParseAccessKey("35240111222333000181550010000012341123456785")
	assert.Error(t, err)
}

func TestParseAccessKey_LongitudYCaracteres(t *testing.T) {
	_, err := fiscal.ParseAccessKey("3524011122233300018155001")
	assert.Error(t, err)
	_, err = fiscal.ParseAccessKey("3524011122233300018155001000001234112345678A")
	assert.Error(t, err)
}

func TestBuildAccessKey_RoundTrip(t *testing.T) {
	key, err := fiscal.BuildAccessKey("35", "2401", "11222333000181", "55", 1, 1234, "1", "12345678")
	require.NoError(t, err)
	assert.Equal(t, "35240111222333000181550010000012341123456784", key)
	_, err = fiscal.ParseAccessKey(key)
	assert.NoError(t, err)
}

// ── GTIN / NCM / CFOP ──

func TestValidGTIN(t *testing.T) {
	assert.True(t, fiscal.ValidGTIN("7891000100011"))
	assert.True(t, fiscal.ValidGTIN("7891000200025"))
	assert.False(t, fiscal.ValidGTIN("7891000100012"))
	assert.False(t, fiscal.ValidGTIN("78910001"), "EAN-8 con dígito incorrecto")
	assert.False(t, fiscal.ValidGTIN("ABC"))
}

func TestNormalizeGTIN(t *testing.T) {
	assert.Equal(t, "", fiscal.NormalizeGTIN("SEM GTIN"))
	assert.Equal(t, "", fiscal.NormalizeGTIN("  sem gtin "))
	assert.Equal(t, "7891000100011", fiscal.NormalizeGTIN(" 7891000100011 "))
}

func TestNCMyCFOP(t *testing.T) {
	assert.True(t, fiscal.ValidNCM("30049099"))
	assert.False(t, fiscal.ValidNCM("3004909"))
	assert.True(t, fiscal.IsInboundCFOP("1102"))
	assert.True(t, fiscal.IsOutboundCFOP("5102"))
	assert.False(t, fiscal.IsInboundCFOP("5102"))
	assert.False(t, fiscal.ValidCFOP("51A2"))
}

func TestNormalizeUnit(t *testing.T) {
	assert.Equal(t, "UN", fiscal.NormalizeUnit(" und "))
	assert.Equal(t, "CX", fiscal.NormalizeUnit("Caixa"))
	assert.Equal(t, "XYZ", fiscal.NormalizeUnit("xyz"))
}
