// Package nfe interpreta el XML de la NFe (layouts 3.10 y 4.00) sobre beevik/etree.
package nfe

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
	"github.com/ucarion/c14n"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/jhoicas/nfe-conciliacao/internal/domain"
	"github.com/jhoicas/nfe-conciliacao/internal/domain/entity"
	domnfe "github.com/jhoicas/nfe-conciliacao/internal/domain/nfe"
	"github.com/jhoicas/nfe-conciliacao/pkg/fiscal"
)

// brasilia zona usada cuando la fecha no trae offset.
var brasilia = time.FixedZone("BRT", -3*60*60)

// Parser transforma bytes XML en un domnfe.Document. No tiene estado ni efectos.
type Parser struct{}

// NewParser construye el parser.
func NewParser() *Parser { return &Parser{} }

// Parse interpreta el documento. organizationTaxIDs son los CNPJ de las unidades de la
// organización importadora y se usan para inferir el tipo de operación.
func (p *Parser) Parse(raw []byte, organizationTaxIDs ...string) (*domnfe.Document, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, malformed("documento vacío")
	}
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = charsetReader
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, malformed("XML ilegible: %v", err)
	}
	inf := doc.FindElement("//infNFe")
	if inf == nil {
		return nil, malformed("elemento infNFe ausente")
	}

	version := strings.TrimSpace(inf.SelectAttrValue("versao", ""))
	if !domnfe.IsSupportedVersion(version) {
		return nil, fmt.Errorf("versao %q: %w", version, domain.ErrSchemaVersionUnsupported)
	}

	out := &domnfe.Document{}
	out.Header.SchemaVersion = version

	if err := parseHeader(inf, &out.Header); err != nil {
		return nil, err
	}

	emit := inf.FindElement("emit")
	if emit == nil {
		return nil, malformed("emitente ausente")
	}
	out.Issuer = parseParty(emit, "enderEmit")
	if out.Issuer.TaxID == "" {
		return nil, malformed("CNPJ/CPF del emitente ausente")
	}
	dest := inf.FindElement("dest")
	if dest == nil {
		return nil, malformed("destinatário ausente")
	}
	out.Recipient = parseParty(dest, "enderDest")
	if out.Recipient.TaxID == "" {
		return nil, malformed("CNPJ/CPF del destinatário ausente")
	}

	dets := inf.SelectElements("det")
	if len(dets) == 0 {
		return nil, malformed("documento sin ítems (det)")
	}
	out.Items = make([]domnfe.LineItem, 0, len(dets))
	for i, det := range dets {
		item, err := parseItem(det, i+1)
		if err != nil {
			return nil, err
		}
		out.Items = append(out.Items, item)
	}

	out.Header.Kind = operationKind(out, organizationTaxIDs)
	out.Digest = digest(raw)
	return out, nil
}

func parseHeader(inf *etree.Element, h *domnfe.Header) error {
	key := strings.TrimPrefix(strings.TrimSpace(inf.SelectAttrValue("Id", "")), "NFe")
	if key == "" {
		if prot := inf.FindElement("//protNFe/infProt/chNFe"); prot != nil {
			key = strings.TrimSpace(prot.Text())
		}
	}
	if _, err := fiscal.ParseAccessKey(key); err != nil {
		return malformed("chave de acesso: %v", err)
	}
	h.AccessKey = key

	ide := inf.FindElement("ide")
	if ide == nil {
		return malformed("grupo ide ausente")
	}
	h.Number = childText(ide, "nNF")
	if h.Number == "" {
		return malformed("número da nota (nNF) ausente")
	}
	h.Series = childText(ide, "serie")
	h.Model = childText(ide, "mod")

	emitted := childText(ide, "dhEmi")
	if emitted == "" {
		emitted = childText(ide, "dEmi")
	}
	if emitted == "" {
		return malformed("data de emissão ausente")
	}
	at, err := parseTimestamp(emitted)
	if err != nil {
		return malformed("data de emissão %q: %v", emitted, err)
	}
	h.EmittedAt = at

	vnf := childText(inf, "total/ICMSTot/vNF")
	if vnf == "" {
		return malformed("valor total (vNF) ausente")
	}
	total, err := decimal.NewFromString(vnf)
	if err != nil {
		return malformed("valor total %q: %v", vnf, err)
	}
	h.TotalValue = total
	return nil
}

func parseParty(el *etree.Element, addressTag string) domnfe.Party {
	taxID := childText(el, "CNPJ")
	if taxID == "" {
		taxID = childText(el, "CPF")
	}
	party := domnfe.Party{
		TaxID:             fiscal.OnlyDigits(taxID),
		LegalName:         childText(el, "xNome"),
		TradeName:         childText(el, "xFant"),
		StateRegistration: childText(el, "IE"),
		Email:             childText(el, "email"),
	}
	if addr := el.FindElement(addressTag); addr != nil {
		party.Address = domnfe.Address{
			Street:       childText(addr, "xLgr"),
			Number:       childText(addr, "nro"),
			Complement:   childText(addr, "xCpl"),
			Neighborhood: childText(addr, "xBairro"),
			City:         childText(addr, "xMun"),
			State:        childText(addr, "UF"),
			ZipCode:      childText(addr, "CEP"),
		}
		party.Phone = childText(addr, "fone")
	}
	if party.Phone == "" {
		party.Phone = childText(el, "fone")
	}
	return party
}

func parseItem(det *etree.Element, position int) (domnfe.LineItem, error) {
	prod := det.FindElement("prod")
	if prod == nil {
		return domnfe.LineItem{}, malformed("ítem %d sin grupo prod", position)
	}
	item := domnfe.LineItem{
		Number: position,
		Code:   childText(prod, "cProd"),
		Name:   childText(prod, "xProd"),
		EAN:    fiscal.NormalizeGTIN(childText(prod, "cEAN")),
		NCM:    childText(prod, "NCM"),
		CFOP:   childText(prod, "CFOP"),
		Unit:   childText(prod, "uCom"),
	}
	if n, err := strconv.Atoi(strings.TrimSpace(det.SelectAttrValue("nItem", ""))); err == nil && n > 0 {
		item.Number = n
	}
	if item.Code == "" {
		return item, malformed("ítem %d sin código de producto (cProd)", position)
	}

	var err error
	if item.Quantity, err = requiredDecimal(prod, "qCom", position); err != nil {
		return item, err
	}
	if item.UnitValue, err = requiredDecimal(prod, "vUnCom", position); err != nil {
		return item, err
	}
	if item.TotalValue, err = requiredDecimal(prod, "vProd", position); err != nil {
		return item, err
	}

	item.LotCode = childText(prod, "rastro/nLote")
	if item.LotCode == "" {
		item.LotCode = childText(prod, ".//xLote")
	}
	expires := childText(prod, "rastro/dVal")
	if expires == "" {
		expires = childText(prod, ".//dVal")
	}
	if expires != "" {
		at, err := parseTimestamp(expires)
		if err != nil {
			return item, malformed("ítem %d: data de validade %q: %v", position, expires, err)
		}
		item.ExpiresAt = &at
	}
	return item, nil
}

// operationKind: emisor de la organización -> venta; destinatario de la organización -> compra;
// si ninguno coincide se usa el primer dígito del CFOP del primer ítem.
func operationKind(doc *domnfe.Document, organizationTaxIDs []string) string {
	for _, id := range organizationTaxIDs {
		if fiscal.OnlyDigits(id) == doc.Issuer.TaxID {
			return entity.OperationSale
		}
	}
	for _, id := range organizationTaxIDs {
		if fiscal.OnlyDigits(id) == doc.Recipient.TaxID {
			return entity.OperationPurchase
		}
	}
	if fiscal.IsOutboundCFOP(doc.Items[0].CFOP) {
		return entity.OperationSale
	}
	return entity.OperationPurchase
}

func requiredDecimal(el *etree.Element, tag string, position int) (decimal.Decimal, error) {
	s := childText(el, tag)
	if s == "" {
		return decimal.Zero, malformed("ítem %d sin %s", position, tag)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, malformed("ítem %d: %s %q no numérico", position, tag, s)
	}
	return d, nil
}

func childText(el *etree.Element, path string) string {
	if c := el.FindElement(path); c != nil {
		return strings.TrimSpace(c.Text())
	}
	return ""
}

func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, brasilia); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("formato de fecha no reconocido")
}

func charsetReader(label string, input io.Reader) (io.Reader, error) {
	switch strings.ToUpper(strings.TrimSpace(label)) {
	case "ISO-8859-1", "ISO8859-1", "LATIN1":
		return transform.NewReader(input, charmap.ISO8859_1.NewDecoder()), nil
	case "WINDOWS-1252", "CP1252":
		return transform.NewReader(input, charmap.Windows1252.NewDecoder()), nil
	}
	return input, nil
}

// digest SHA-256 de la forma canónica; si el canonicalizador rechaza el XML se usan los bytes crudos.
func digest(raw []byte) string {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	dec.CharsetReader = charsetReader
	dec.Entity = map[string]string{}
	data, err := c14n.Canonicalize(dec)
	if err != nil {
		data = raw
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), domain.ErrMalformedDocument)
}
