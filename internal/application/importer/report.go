package importer

import (
	"context"
	"fmt"

	"github.com/jhoicas/nfe-conciliacao/internal/domain"
	"github.com/jhoicas/nfe-conciliacao/internal/domain/entity"
	"github.com/jhoicas/nfe-conciliacao/internal/domain/repository"
)

// ImportReport datos del reporte de una importación.
type ImportReport struct {
	Import          *entity.Import
	Invoice         *entity.Invoice // nil si la importación no concilió
	Unit            *entity.Unit
	Inconsistencies []*entity.Inconsistency
	Adjustments     []*entity.StockAdjustment
}

// ReportGenerator genera la representación PDF del reporte.
type ReportGenerator interface {
	GenerateImportReport(ctx context.Context, report *ImportReport) ([]byte, error)
}

// ReportUseCase arma y genera el reporte de una importación.
type ReportUseCase struct {
	imports         repository.ImportRepository
	invoices        repository.InvoiceRepository
	units           repository.UnitRepository
	inconsistencies repository.InconsistencyRepository
	adjustments     repository.StockAdjustmentRepository
	generator       ReportGenerator
}

// NewReportUseCase construye el caso de uso.
func NewReportUseCase(
	imports repository.ImportRepository,
	invoices repository.InvoiceRepository,
	units repository.UnitRepository,
	inconsistencies repository.InconsistencyRepository,
	adjustments repository.StockAdjustmentRepository,
	generator ReportGenerator,
) *ReportUseCase {
	return &ReportUseCase{
		imports:         imports,
		invoices:        invoices,
		units:           units,
		inconsistencies: inconsistencies,
		adjustments:     adjustments,
		generator:       generator,
	}
}

// Build reúne los datos del reporte. unitID restringe el acceso.
func (uc *ReportUseCase) Build(ctx context.Context, unitID, importID string) (*ImportReport, error) {
	imp, err := uc.imports.GetByID(ctx, importID)
	if err != nil {
		return nil, err
	}
	if imp == nil {
		return nil, domain.ErrNotFound
	}
	if unitID != "" && imp.UnitID != unitID {
		return nil, domain.ErrForbidden
	}

	report := &ImportReport{Import: imp}
	if imp.InvoiceID != "" {
		if report.Invoice, err = uc.invoices.GetByID(ctx, imp.InvoiceID); err != nil {
			return nil, err
		}
	}
	if report.Unit, err = uc.units.GetByID(ctx, imp.UnitID); err != nil {
		return nil, err
	}
	if report.Inconsistencies, err = uc.inconsistencies.List(ctx, repository.InconsistencyFilter{ImportID: imp.ID}); err != nil {
		return nil, err
	}
	if report.Adjustments, err = uc.adjustments.ListByImport(ctx, imp.ID); err != nil {
		return nil, err
	}
	return report, nil
}

// DownloadPDF genera el PDF y el nombre de archivo sugerido.
func (uc *ReportUseCase) DownloadPDF(ctx context.Context, unitID, importID string) ([]byte, string, error) {
	report, err := uc.Build(ctx, unitID, importID)
	if err != nil {
		return nil, "", err
	}
	if !report.Import.IsTerminal() {
		return nil, "", fmt.Errorf("importación %s en estado %s: %w", importID, report.Import.Status, domain.ErrConflict)
	}
	pdf, err := uc.generator.GenerateImportReport(ctx, report)
	if err != nil {
		return nil, "", fmt.Errorf("generar reporte: %w", err)
	}
	name := "importacion-" + importID + ".pdf"
	if report.Import.AccessKey != "" {
		name = "NFe" + report.Import.AccessKey + ".pdf"
	}
	return pdf, name, nil
}
