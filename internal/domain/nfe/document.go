// Package nfe modelo de dominio de un documento NFe ya interpretado.
package nfe

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/nfe-conciliacao/internal/domain/entity"
)

// Versiones de layout aceptadas (atributo infNFe@versao).
var SupportedSchemaVersions = []string{"3.10", "4.00"}

// MoneyPlaces decimales para redondear agregados monetarios.
const MoneyPlaces = 2

// Header cabecera del documento.
type Header struct {
	AccessKey     string // chave de acesso, 44 dígitos
	Number        string
	Series        string
	Model         string
	SchemaVersion string
	EmittedAt     time.Time
	TotalValue    decimal.Decimal // vNF declarado
	Kind          string          // entity.OperationPurchase | entity.OperationSale
}

// Address dirección de una parte.
type Address struct {
	Street       string
	Number       string
	Complement   string
	Neighborhood string
	City         string
	State        string
	ZipCode      string
}

// Line dirección en una sola línea, omitiendo partes vacías.
func (a Address) Line() string {
	parts := make([]string, 0, 4)
	for _, p := range []string{a.Street, a.Number, a.Complement, a.Neighborhood} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// Party emisor o destinatario.
type Party struct {
	TaxID             string // CNPJ o CPF, solo dígitos
	LegalName         string
	TradeName         string
	StateRegistration string
	Address           Address
	Phone             string
	Email             string
}

// LineItem ítem del documento (det/prod).
type LineItem struct {
	Number     int
	Code       string
	Name       string
	EAN        string // vacío si "SEM GTIN"
	NCM        string
	CFOP       string
	Unit       string
	Quantity   decimal.Decimal
	UnitValue  decimal.Decimal
	TotalValue decimal.Decimal
	LotCode    string
	ExpiresAt  *time.Time
}

// Document documento NFe normalizado.
type Document struct {
	Header    Header
	Issuer    Party
	Recipient Party
	Items     []LineItem
	Digest    string // SHA-256 de la forma canónica del XML
}

// IsSale indica si la operación es de venta.
func (d *Document) IsSale() bool { return d.Header.Kind == entity.OperationSale }

// Party contraparte: emisor en compras, destinatario en ventas.
func (d *Document) Party() Party {
	if d.IsSale() {
		return d.Recipient
	}
	return d.Issuer
}

// OwnParty parte que debe corresponder a una unidad de la organización.
func (d *Document) OwnParty() Party {
	if d.IsSale() {
		return d.Issuer
	}
	return d.Recipient
}

// ComputedTotal suma de los totales de línea, redondeada solo al final.
func (d *Document) ComputedTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range d.Items {
		sum = sum.Add(it.TotalValue)
	}
	return RoundMoney(sum)
}

// RoundMoney redondeo half-up a MoneyPlaces (valores no negativos).
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// IsSupportedVersion indica si la versión de layout es aceptada. Vacío se acepta.
func IsSupportedVersion(v string) bool {
	if v == "" {
		return true
	}
	for _, s := range SupportedSchemaVersions {
		if s == v {
			return true
		}
	}
	return false
}
