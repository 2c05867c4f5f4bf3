package nfe_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/jhoicas/nfe-conciliacao/internal/domain"
	"github.com/jhoicas/nfe-conciliacao/internal/domain/entity"
	infranfe "github.com/jhoicas/nfe-conciliacao/internal/infrastructure/nfe"
	"github.com/jhoicas/nfe-conciliacao/internal/infrastructure/nfe/nfetest"
)

// ── Documento completo ──

func TestParse_CompraCompleta(t *testing.T) {
	b := nfetest.Purchase(1234,
		nfetest.Paracetamol("100", "2.50", "LOTE001"),
		nfetest.Dipirona("50", "1.60", "LOTE002"),
	)
	doc, err := infranfe.NewParser().Parse(b.XML(), nfetest.UnitCNPJ)
	require.NoError(t, err)

	assert.Equal(t, b.Key(), doc.Header.AccessKey)
	assert.Equal(t, "1234", doc.Header.Number)
	assert.Equal(t, "1", doc.Header.Series)
	assert.Equal(t, "4.00", doc.Header.SchemaVersion)
	assert.Equal(t, entity.OperationPurchase, doc.Header.Kind)
	assert.True(t, decimal.RequireFromString("330.00").Equal(doc.Header.TotalValue))
	assert.Equal(t, b.EmittedAt, doc.Header.EmittedAt.Format(time.RFC3339))

	assert.Equal(t, nfetest.SupplierCNPJ, doc.Issuer.TaxID)
	assert.Equal(t, "DISTRIBUIDORA FARMA LTDA", doc.Issuer.LegalName)
	assert.Equal(t, "SAO PAULO", doc.Issuer.Address.City)
	assert.Equal(t, "RUA DAS FLORES, 100, CENTRO", doc.Issuer.Address.Line())
	assert.Equal(t, "1133334444", doc.Issuer.Phone)
	assert.Equal(t, nfetest.UnitCNPJ, doc.Recipient.TaxID)
	assert.Equal(t, doc.Issuer, doc.Party(), "en compras la contraparte es el emisor")

	require.Len(t, doc.Items, 2)
	first := doc.Items[0]
	assert.Equal(t, 1, first.Number)
	assert.Equal(t, "PARA500", first.Code)
	assert.Equal(t, nfetest.EANParacetamol, first.EAN)
	assert.Equal(t, "30049099", first.NCM)
	assert.Equal(t, "1102", first.CFOP)
	assert.Equal(t, "LOTE001", first.LotCode)
	require.NotNil(t, first.ExpiresAt)
	assert.Equal(t, 2026, first.ExpiresAt.Year())
	assert.True(t, decimal.NewFromInt(100).Equal(first.Quantity))
	assert.True(t, decimal.RequireFromString("250").Equal(first.TotalValue))
	assert.True(t, doc.ComputedTotal().Equal(doc.Header.TotalValue))
	assert.Len(t, doc.Digest, 64)
}

func TestParse_SemGTINYSinVersion(t *testing.T) {
	item := nfetest.Paracetamol("1", "10", "")
	item.EAN = ""
	b := nfetest.Purchase(10, item)
	b.Version = ""
	doc, err := infranfe.NewParser().Parse(b.XML())
	require.NoError(t, err)
	assert.Empty(t, doc.Items[0].EAN, "SEM GTIN se normaliza a vacío")
	assert.Empty(t, doc.Items[0].LotCode)
	assert.Nil(t, doc.Items[0].ExpiresAt)
}

func TestParse_ISO88591(t *testing.T) {
	item := nfetest.Paracetamol("1", "10", "L1")
	item.Name = "SABONETE GLICERINA AÇÚCAR"
	b := nfetest.Purchase(11, item)
	b.Encoding = "ISO-8859-1"
	latin, err := charmap.ISO8859_1.NewEncoder().Bytes(b.XML())
	require.NoError(t, err)

	doc, err := infranfe.NewParser().Parse(latin, nfetest.UnitCNPJ)
	require.NoError(t, err)
	assert.Equal(t, "SABONETE GLICERINA AÇÚCAR", doc.Items[0].Name)
}

// ── Tipo de operación ──

func TestParse_VentaPorEmisorDeLaOrganizacion(t *testing.T) {
	item := nfetest.Paracetamol("5", "4.00", "LOTE001")
	item.CFOP = "5102"
	doc, err := infranfe.NewParser().Parse(nfetest.Sale(20, item).XML(), nfetest.UnitCNPJ)
	require.NoError(t, err)
	assert.Equal(t, entity.OperationSale, doc.Header.Kind)
	assert.Equal(t, nfetest.ForeignCNPJ, doc.Party().TaxID)
	assert.Equal(t, nfetest.UnitCNPJ, doc.OwnParty().TaxID)
}

func TestParse_TipoPorCFOPSinCoincidencia(t *testing.T) {
	item := nfetest.Paracetamol("5", "4.00", "LOTE001")
	item.CFOP = "6102"
	b := nfetest.Purchase(21, item)
	b.RecipientTaxID = nfetest.ForeignCNPJ
	doc, err := infranfe.NewParser().Parse(b.XML(), nfetest.UnitCNPJ)
	require.NoError(t, err)
	assert.Equal(t, entity.OperationSale, doc.Header.Kind)

	b.Items[0].CFOP = "1102"
	doc, err = infranfe.NewParser().Parse(b.XML(), nfetest.UnitCNPJ)
	require.NoError(t, err)
	assert.Equal(t, entity.OperationPurchase, doc.Header.Kind)
}

// ── Errores ──

func TestParse_Malformados(t *testing.T) {
	base := func() *nfetest.Builder {
		return nfetest.Purchase(30, nfetest.Paracetamol("1", "1", "L"))
	}
	cases := map[string][]byte{
		"vacío":       []byte("   "),
		"xml roto":    []byte("<nfeProc><NFe>"),
		"sin infNFe":  []byte(`<?xml version="1.0"?><nfeProc><NFe/></nfeProc>`),
		"chave corta": func() []byte { b := base(); b.AccessKey = "3524"; return b.XML() }(),
		"chave dv": func() []byte {
			b := base()
			b.AccessKey = "35240111222333000181550010000012341123456785"
			return b.XML()
		}(),
		"sin ítems":        func() []byte { b := base(); b.Items = nil; return b.XML() }(),
		"sin emisor":       func() []byte { b := base(); b.IssuerTaxID = ""; b.AccessKey = base().Key(); return b.XML() }(),
		"sin destinatario": func() []byte { b := base(); b.RecipientTaxID = ""; return b.XML() }(),
		"fecha inválida":   func() []byte { b := base(); b.EmittedAt = "15/01/2024"; return b.XML() }(),
		"cantidad texto":   func() []byte { b := base(); b.Items[0].Quantity = "abc"; b.Items[0].Total = "1"; return b.XML() }(),
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := infranfe.NewParser().Parse(raw, nfetest.UnitCNPJ)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrMalformedDocument)
		})
	}
}

func TestParse_VersionNoSoportada(t *testing.T) {
	b := nfetest.Purchase(31, nfetest.Paracetamol("1", "1", "L"))
	b.Version = "2.00"
	_, err := infranfe.NewParser().Parse(b.XML())
	assert.ErrorIs(t, err, domain.ErrSchemaVersionUnsupported)
}

func TestParse_DigestEstable(t *testing.T) {
	raw := nfetest.Purchase(32, nfetest.Paracetamol("1", "1", "L")).XML()
	a, err := infranfe.NewParser().Parse(raw)
	require.NoError(t, err)
	b, err := infranfe.NewParser().Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, a.Digest, b.Digest)
}
