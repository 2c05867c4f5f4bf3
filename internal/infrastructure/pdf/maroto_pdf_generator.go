// Package pdf genera el reporte de una importación NFe.
//
// Layout de la página A4:
//
//	┌─────────────────────────────────────────────────────────────┐
//	│  HEADER: Unidad + CNPJ       │  Nota N° / serie + estado     │
//	│  ─────────────────────────────────────────────────────────  │
//	│  RESUMEN: archivo, operación, contadores de ítems            │
//	│  ─────────────────────────────────────────────────────────  │
//	│  TABLA: ajustes de stock (anterior | delta | nuevo)          │
//	│  ─────────────────────────────────────────────────────────  │
//	│  TABLA: inconsistencias (tipo | severidad | descripción)     │
//	│  ─────────────────────────────────────────────────────────  │
//	│  FOOTER: chave de acesso + QR                                │
//	└─────────────────────────────────────────────────────────────┘
package pdf

import (
	"context"
	"fmt"
	"strings"

	maroto "github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/code"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"

	"github.com/jhoicas/nfe-conciliacao/internal/application/importer"
	"github.com/jhoicas/nfe-conciliacao/internal/domain/entity"
)

// ── Paleta de colores ─────────────────────────────────────────────────────────

var (
	colorPrimary = &props.Color{Red: 0, Green: 70, Blue: 127}
	colorGray    = &props.Color{Red: 100, Green: 100, Blue: 100}
	colorDanger  = &props.Color{Red: 170, Green: 30, Blue: 30}
)

// ── Generator ─────────────────────────────────────────────────────────────────

// MarotoPDFGenerator implementa importer.ReportGenerator usando Maroto v2.
type MarotoPDFGenerator struct{}

var _ importer.ReportGenerator = (*MarotoPDFGenerator)(nil)

// NewMarotoPDFGenerator construye el generador.
func NewMarotoPDFGenerator() *MarotoPDFGenerator { return &MarotoPDFGenerator{} }

// GenerateImportReport genera el PDF y devuelve sus bytes.
func (g *MarotoPDFGenerator) GenerateImportReport(_ context.Context, report *importer.ImportReport) ([]byte, error) {
	author := "nfe-conciliacao"
	if report.Unit != nil {
		author = report.Unit.Name
	}
	cfg := config.NewBuilder().
		WithPageSize(pagesize.A4).
		WithLeftMargin(10).WithRightMargin(10).
		WithTopMargin(10).WithBottomMargin(10).
		WithDefaultFont(&props.Font{Family: "helvetica", Size: 9}).
		WithTitle("Reporte de importación NFe", true).
		WithAuthor(author, true).
		Build()

	m := maroto.New(cfg)

	m.AddRows(headerRow(report))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.5}))
	m.AddRows(summaryRows(report.Import)...)
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))

	m.AddRows(sectionTitle(fmt.Sprintf("AJUSTES DE STOCK (%d)", len(report.Adjustments))))
	if len(report.Adjustments) > 0 {
		m.AddRows(adjustmentHeaderRow())
		m.AddRows(adjustmentRows(report.Adjustments)...)
	}

	m.AddRows(line.NewRow(3))
	m.AddRows(sectionTitle(fmt.Sprintf("INCONSISTENCIAS (%d)", len(report.Inconsistencies))))
	if len(report.Inconsistencies) > 0 {
		m.AddRows(inconsistencyRows(report.Inconsistencies)...)
	}

	if errs := report.Import.ErrorLog; len(errs) > 0 {
		m.AddRows(line.NewRow(3))
		m.AddRows(sectionTitle("ERRORES"))
		for _, e := range errs {
			m.AddRows(row.New(5).Add(col.New(12).Add(
				text.New(e, props.Text{Size: 7.5, Color: colorDanger, Top: 1}),
			)))
		}
	}

	m.AddRows(line.NewRow(3))
	m.AddRows(line.NewRow(1, props.Line{Color: colorGray, Thickness: 0.3}))
	m.AddRows(footerRows(report.Import)...)

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("pdf: generar documento: %w", err)
	}
	return doc.GetBytes(), nil
}

// ── Secciones ─────────────────────────────────────────────────────────────────

// headerRow: unidad (izq) y nota + estado (der).
func headerRow(report *importer.ImportReport) core.Row {
	unitName, unitTax := "—", "—"
	if report.Unit != nil {
		unitName = report.Unit.Name
		unitTax = formatCNPJ(report.Unit.TaxID)
	}
	docLabel := "Sin nota conciliada"
	emitted := ""
	if inv := report.Invoice; inv != nil {
		docLabel = fmt.Sprintf("NF-e %s / serie %s", inv.Number, inv.Series)
		emitted = "Emisión: " + inv.EmittedAt.Format("02/01/2006")
	}

	return row.New(18).Add(
		col.New(7).Add(
			text.New(unitName, props.Text{
				Style: fontstyle.Bold, Size: 13, Color: colorPrimary, Top: 1,
			}),
			text.New("CNPJ: "+unitTax, props.Text{
				Size: 9, Top: 9, Color: colorGray,
			}),
		),
		col.New(5).Add(
			text.New("REPORTE DE IMPORTACIÓN", props.Text{
				Style: fontstyle.Bold, Size: 8, Align: align.Right,
				Color: colorPrimary, Top: 1,
			}),
			text.New(docLabel, props.Text{
				Style: fontstyle.Bold, Size: 11, Align: align.Right, Top: 7,
			}),
			text.New(strings.TrimSpace(emitted+"  Estado: "+report.Import.Status), props.Text{
				Size: 8, Align: align.Right, Top: 14, Color: colorGray,
			}),
		),
	)
}

// summaryRows: archivo, operación y contadores.
func summaryRows(imp *entity.Import) []core.Row {
	c := imp.Counters
	return []core.Row{
		row.New(6).Add(col.New(12).Add(
			text.New(fmt.Sprintf("Archivo: %s   |   Operación: %s   |   Etapa: %s",
				imp.FileName,
				nonEmpty(imp.OperationKind, "—"),
				nonEmpty(imp.Stage, "—"),
			), props.Text{Size: 8, Top: 1, Color: colorGray}),
		)),
		row.New(6).Add(col.New(12).Add(
			text.New(fmt.Sprintf("Ítems: %d   |   Procesados: %d   |   Exitosos: %d   |   Fallidos: %d   |   Inconsistencias: %d",
				c.Total, c.Processed, c.Succeeded, c.Failed, imp.InconsistencyCount,
			), props.Text{Size: 8, Top: 1, Style: fontstyle.Bold}),
		)),
	}
}

func sectionTitle(title string) core.Row {
	return row.New(7).Add(col.New(12).Add(
		text.New(title, props.Text{Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 2}),
	))
}

func adjustmentHeaderRow() core.Row {
	h := func(label string, size int, a align.Type) core.Col {
		return col.New(size).Add(text.New(label, props.Text{
			Style: fontstyle.Bold, Size: 8, Align: a, Top: 1, Left: 1, Right: 1,
		}))
	}
	return row.New(6).Add(
		h("Lote", 4, align.Left),
		h("Motivo", 2, align.Center),
		h("Anterior", 2, align.Right),
		h("Delta", 2, align.Right),
		h("Nuevo", 2, align.Right),
	)
}

func adjustmentRows(adjustments []*entity.StockAdjustment) []core.Row {
	rows := make([]core.Row, 0, len(adjustments))
	for _, a := range adjustments {
		deltaColor := colorPrimary
		if a.Delta.IsNegative() {
			deltaColor = colorDanger
		}
		rows = append(rows, row.New(5).Add(
			col.New(4).Add(text.New(shortID(a.StockLotID), props.Text{Size: 7.5, Left: 1, Top: 0.5})),
			col.New(2).Add(text.New(a.Reason, props.Text{Size: 7.5, Align: align.Center, Top: 0.5})),
			col.New(2).Add(text.New(a.PreviousQuantity.String(), props.Text{Size: 7.5, Align: align.Right, Right: 1, Top: 0.5})),
			col.New(2).Add(text.New(a.Delta.String(), props.Text{Size: 7.5, Align: align.Right, Right: 1, Top: 0.5, Color: deltaColor})),
			col.New(2).Add(text.New(a.NewQuantity.String(), props.Text{Size: 7.5, Align: align.Right, Right: 1, Top: 0.5})),
		))
	}
	return rows
}

func inconsistencyRows(items []*entity.Inconsistency) []core.Row {
	rows := make([]core.Row, 0, len(items))
	for _, inc := range items {
		label := inc.Type
		if inc.LineNumber > 0 {
			label = fmt.Sprintf("%s (ítem %d)", inc.Type, inc.LineNumber)
		}
		sevColor := colorGray
		if inc.Blocking {
			sevColor = colorDanger
		}
		rows = append(rows, row.New(9).Add(
			col.New(4).Add(text.New(label, props.Text{Size: 7.5, Style: fontstyle.Bold, Top: 0.5, Left: 1})),
			col.New(2).Add(text.New(inc.Severity, props.Text{Size: 7.5, Align: align.Center, Top: 0.5, Color: sevColor})),
			col.New(6).Add(
				text.New(inc.Description, props.Text{Size: 7.5, Top: 0.5}),
				text.New(inc.Suggestion, props.Text{Size: 6.5, Top: 4.5, Color: colorGray}),
			),
		))
	}
	return rows
}

// footerRows: chave de acesso partida en grupos de 4 y QR.
func footerRows(imp *entity.Import) []core.Row {
	if imp.AccessKey == "" {
		return []core.Row{row.New(8).Add(col.New(12).Add(
			text.New("Documento sin chave de acesso válida.", props.Text{Size: 8, Align: align.Center, Color: colorGray, Top: 2}),
		))}
	}
	return []core.Row{
		row.New(40).Add(
			col.New(3).Add(code.NewQr(imp.AccessKey, props.Rect{Percent: 95, Center: true})),
			col.New(9).Add(
				text.New("CHAVE DE ACESSO", props.Text{Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 4, Left: 3}),
				text.New(strings.Join(splitEvery(imp.AccessKey, 4), " "), props.Text{Size: 9, Top: 10, Left: 3}),
				text.New("Digest SHA-256: "+imp.Digest, props.Text{Size: 6, Top: 18, Left: 3, Color: colorGray}),
			),
		),
	}
}

// ── helpers ───────────────────────────────────────────────────────────────────

func nonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}

// formatCNPJ aplica la máscara 00.000.000/0000-00; otros valores se devuelven igual.
func formatCNPJ(s string) string {
	if len(s) != 14 {
		return nonEmpty(s, "—")
	}
	return s[0:2] + "." + s[2:5] + "." + s[5:8] + "/" + s[8:12] + "-" + s[12:]
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// splitEvery divide s en trozos de max n caracteres.
func splitEvery(s string, n int) []string {
	var parts []string
	for len(s) > n {
		parts = append(parts, s[:n])
		s = s[n:]
	}
	if s != "" {
		parts = append(parts, s)
	}
	return parts
}
