// Package nfetest arma documentos NFe sintéticos para pruebas.
package nfetest

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/nfe-conciliacao/pkg/fiscal"
)

// CNPJs válidos usados en las pruebas.
const (
	SupplierCNPJ  = "11222333000181"
	UnitCNPJ      = "12345678000195"
	OtherUnitCNPJ = "98765432000198"
	ForeignCNPJ   = "11144477000167"
)

// EANs con dígito verificador correcto.
const (
	EANParacetamol = "7891000100011"
	EANDipirona    = "7891000200025"
	EANAmoxicilina = "7891000300039"
)

// Item ítem del documento con valores en texto tal como van en el XML.
type Item struct {
	Code      string
	Name      string
	EAN       string
	NCM       string
	CFOP      string
	Unit      string
	Quantity  string
	UnitValue string
	Total     string // vacío = Quantity × UnitValue
	Lot       string
	Expiry    string
}

// Builder documento NFe configurable.
type Builder struct {
	AccessKey      string
	Number         int
	Version        string
	EmittedAt      string
	IssuerTaxID    string
	IssuerName     string
	IssuerPhone    string
	RecipientTaxID string
	RecipientName  string
	Total          string // vacío = suma de ítems
	Encoding       string
	Items          []Item
}

// Purchase compra del proveedor de prueba para la unidad de prueba.
func Purchase(number int, items ...Item) *Builder {
	return &Builder{
		Number:         number,
		Version:        "4.00",
		EmittedAt:      RecentEmission(),
		IssuerTaxID:    SupplierCNPJ,
		IssuerName:     "DISTRIBUIDORA FARMA LTDA",
		IssuerPhone:    "1133334444",
		RecipientTaxID: UnitCNPJ,
		RecipientName:  "FARMACIA CENTRAL",
		Items:          items,
	}
}

// RecentEmission fecha de emisión de ayer, dentro de la ventana de antigüedad aceptada.
func RecentEmission() string {
	return time.Now().AddDate(0, 0, -1).Truncate(time.Second).Format(time.RFC3339)
}

// Sale venta de la unidad de prueba a un cliente.
func Sale(number int, items ...Item) *Builder {
	b := Purchase(number, items...)
	b.IssuerTaxID, b.IssuerName, b.IssuerPhone = UnitCNPJ, "FARMACIA CENTRAL", ""
	b.RecipientTaxID, b.RecipientName = ForeignCNPJ, "CLIENTE HOSPITAL"
	return b
}

// Paracetamol ítem de referencia con cantidad y valor unitario dados.
func Paracetamol(qty, unitValue, lot string) Item {
	return Item{Code: "PARA500", Name: "PARACETAMOL 500MG", EAN: EANParacetamol, NCM: "30049099",
		CFOP: "1102", Unit: "CX", Quantity: qty, UnitValue: unitValue, Lot: lot, Expiry: "2026-12-31"}
}

// Dipirona segundo ítem de referencia.
func Dipirona(qty, unitValue, lot string) Item {
	return Item{Code: "DIPI500", Name: "DIPIRONA 500MG", EAN: EANDipirona, NCM: "30049069",
		CFOP: "1102", Unit: "CX", Quantity: qty, UnitValue: unitValue, Lot: lot, Expiry: "2026-06-30"}
}

// Key chave de acesso válida para el número y emisor del documento.
func (b *Builder) Key() string {
	if b.AccessKey != "" {
		return b.AccessKey
	}
	key, err := fiscal.BuildAccessKey("35", "2401", b.IssuerTaxID, "55", 1, b.Number, "1", "12345678")
	if err != nil {
		panic(err)
	}
	return key
}

// XML serializa el documento como nfeProc.
func (b *Builder) XML() []byte {
	var sb strings.Builder
	enc := b.Encoding
	if enc == "" {
		enc = "UTF-8"
	}
	fmt.Fprintf(&sb, `<?xml version="1.0" encoding="%s"?>`, enc)
	sb.WriteString(`<nfeProc xmlns="http://www.portalfiscal.inf.br/nfe" versao="4.00"><NFe>`)
	version := ""
	if b.Version != "" {
		version = fmt.Sprintf(` versao="%s"`, b.Version)
	}
	fmt.Fprintf(&sb, `<infNFe Id="NFe%s"%s>`, b.Key(), version)
	fmt.Fprintf(&sb, `<ide><cUF>35</cUF><mod>55</mod><serie>1</serie><nNF>%d</nNF><dhEmi>%s</dhEmi></ide>`, b.Number, b.EmittedAt)
	fmt.Fprintf(&sb, `<emit><CNPJ>%s</CNPJ><xNome>%s</xNome><enderEmit><xLgr>RUA DAS FLORES</xLgr><nro>100</nro><xBairro>CENTRO</xBairro><xMun>SAO PAULO</xMun><UF>SP</UF><CEP>01000000</CEP><fone>%s</fone></enderEmit><IE>123456789</IE></emit>`,
		b.IssuerTaxID, b.IssuerName, b.IssuerPhone)
	fmt.Fprintf(&sb, `<dest><CNPJ>%s</CNPJ><xNome>%s</xNome></dest>`, b.RecipientTaxID, b.RecipientName)

	sum := decimal.Zero
	for i, it := range b.Items {
		total := it.Total
		if total == "" {
			total = decimal.RequireFromString(it.Quantity).Mul(decimal.RequireFromString(it.UnitValue)).StringFixed(2)
		}
		sum = sum.Add(decimal.RequireFromString(total))
		ean := it.EAN
		if ean == "" {
			ean = fiscal.NoGTIN
		}
		fmt.Fprintf(&sb, `<det nItem="%d"><prod><cProd>%s</cProd><cEAN>%s</cEAN><xProd>%s</xProd><NCM>%s</NCM><CFOP>%s</CFOP><uCom>%s</uCom><qCom>%s</qCom><vUnCom>%s</vUnCom><vProd>%s</vProd>`,
			i+1, it.Code, ean, it.Name, it.NCM, it.CFOP, it.Unit, it.Quantity, it.UnitValue, total)
		if it.Lot != "" {
			fmt.Fprintf(&sb, `<rastro><nLote>%s</nLote><qLote>%s</qLote><dFab>2024-01-01</dFab><dVal>%s</dVal></rastro>`, it.Lot, it.Quantity, it.Expiry)
		}
		sb.WriteString(`</prod></det>`)
	}
	total := b.Total
	if total == "" {
		total = sum.StringFixed(2)
	}
	fmt.Fprintf(&sb, `<total><ICMSTot><vProd>%s</vProd><vNF>%s</vNF></ICMSTot></total>`, sum.StringFixed(2), total)
	sb.WriteString(`</infNFe></NFe></nfeProc>`)
	return []byte(sb.String())
}
