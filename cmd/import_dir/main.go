// import_dir importa como un lote todos los XML NFe de un directorio.
//
// Uso: go run ./cmd/import_dir -dir ./notas -unit <unit_id> [-unit-tax-id <CNPJ>]
// Con APP_STORAGE=memory la unidad se crea en memoria a partir de -unit-tax-id.
// Con postgres, -unit-tax-id da de alta (o actualiza) la unidad antes de importar.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/jhoicas/nfe-conciliacao/internal/application/importer"
	"github.com/jhoicas/nfe-conciliacao/internal/bootstrap"
	"github.com/jhoicas/nfe-conciliacao/internal/domain/entity"
	"github.com/jhoicas/nfe-conciliacao/internal/infrastructure/postgres"
	"github.com/jhoicas/nfe-conciliacao/pkg/config"
	"github.com/jhoicas/nfe-conciliacao/pkg/fiscal"
	"github.com/jhoicas/nfe-conciliacao/pkg/logger"
)

func main() {
	dir := flag.String("dir", "", "Requerido: directorio con los XML")
	unitID := flag.String("unit", "", "Requerido: unidad destino")
	unitTaxID := flag.String("unit-tax-id", "", "Opcional: CNPJ de la unidad para darla de alta")
	unitName := flag.String("unit-name", "", "Opcional: nombre de la unidad")
	actorID := flag.String("actor", "import-cli", "Actor registrado en ajustes y auditoría")
	description := flag.String("description", "", "Descripción del lote")
	flag.Parse()

	if strings.TrimSpace(*dir) == "" || strings.TrimSpace(*unitID) == "" {
		fmt.Fprintln(os.Stderr, "-dir y -unit son requeridos")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cargar configuración: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel, Service: "import_dir"})

	files, err := readDir(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Leer directorio: %v\n", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintf(os.Stderr, "Sin archivos .xml en %s\n", *dir)
		os.Exit(1)
	}

	ctx := context.Background()
	svc, err := bootstrap.Build(ctx, cfg, log.Zerolog())
	if err != nil {
		log.Fatal().Err(err).Msg("inicializar servicios")
	}
	defer svc.Close()

	if *unitTaxID != "" {
		if err := registerUnit(ctx, svc, cfg, *unitID, *unitTaxID, *unitName); err != nil {
			log.Fatal().Err(err).Msg("alta de unidad")
		}
	}

	batch, _, err := svc.Batches.Create(ctx, importer.CreateBatchRequest{
		UnitID:      *unitID,
		ActorID:     *actorID,
		Description: *description,
		Files:       files,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("crear lote")
	}

	// Ctrl+C cancela el lote: lo no iniciado queda CANCELLED, lo ya conciliado se conserva
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Warn().Str("batch_id", batch.ID).Msg("cancelando lote")
		if _, err := svc.Batches.Cancel(context.Background(), batch.ID); err != nil {
			log.Error().Err(err).Msg("cancelar lote")
		}
	}()

	started := time.Now()
	batch, err = svc.Batches.Run(ctx, batch.ID)
	if err != nil {
		log.Fatal().Err(err).Msg("procesar lote")
	}
	children, err := svc.Batches.Children(ctx, batch.ID)
	if err != nil {
		log.Fatal().Err(err).Msg("importaciones del lote")
	}

	printSummary(batch, children, time.Since(started))
	if batch.ImportsFailed > 0 {
		svc.Close()
		os.Exit(1)
	}
}

// readDir lee los .xml del directorio en orden de nombre.
func readDir(dir string) ([]importer.BatchFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".xml") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	files := make([]importer.BatchFile, 0, len(names))
	for _, name := range names {
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		files = append(files, importer.BatchFile{FileName: name, Content: content})
	}
	return files, nil
}

func registerUnit(ctx context.Context, svc *bootstrap.Services, cfg *config.Config, id, taxID, name string) error {
	taxID = fiscal.OnlyDigits(taxID)
	if err := fiscal.ValidateCNPJ(taxID); err != nil {
		return err
	}
	if name == "" {
		name = id
	}
	now := time.Now()
	unit := &entity.Unit{
		Audit:          entity.Audit{ID: id, Active: true, CreatedAt: now, UpdatedAt: now},
		OrganizationID: cfg.App.OrganizationID,
		Name:           name,
		TaxID:          taxID,
	}
	if svc.Memory != nil {
		svc.Memory.AddUnit(unit)
		return nil
	}
	return postgres.NewUnitRepository(svc.Pool).Upsert(ctx, unit)
}

func printSummary(batch *entity.Batch, children []*entity.Import, elapsed time.Duration) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ARCHIVO\tESTADO\tÍTEMS\tINCONSISTENCIAS\tERROR")
	for _, c := range children {
		lastErr := ""
		if n := len(c.ErrorLog); n > 0 {
			lastErr = c.ErrorLog[n-1]
		}
		fmt.Fprintf(w, "%s\t%s\t%d/%d\t%d\t%s\n",
			c.FileName, c.Status, c.Counters.Succeeded, c.Counters.Total, c.InconsistencyCount, lastErr)
	}
	_ = w.Flush()
	fmt.Printf("\nLote %s: %s en %s (ok=%d, error=%d, canceladas=%d)\n",
		batch.ID, batch.Status, elapsed.Round(time.Millisecond),
		batch.ImportsDone, batch.ImportsFailed, batch.ImportsCancelled)
}
