// Package detector evalúa un conjunto cerrado de reglas sobre un documento ya resuelto y
// produce hallazgos (inconsistencias) bloqueantes o informativos.
package detector

import (
	"context"
	"fmt"
	"time"

	"github.com/jhoicas/nfe-conciliacao/internal/application/resolver"
	"github.com/jhoicas/nfe-conciliacao/internal/domain/entity"
	domnfe "github.com/jhoicas/nfe-conciliacao/internal/domain/nfe"
)

// Finding hallazgo de una regla.
type Finding struct {
	Type        string
	Severity    string
	Blocking    bool
	Description string
	Suggestion  string
	LineNumber  int // 0 = documento completo
}

// Input datos de entrada de la detección.
type Input struct {
	ImportID           string
	UnitID             string
	OrganizationTaxIDs []string
	Doc                *domnfe.Document
	Resolution         *resolver.Resolution
}

// Detector evalúa las reglas de etapa documento en orden estable.
type Detector struct {
	rules *RuleSet
	now   func() time.Time
}

// NewDetector construye el detector.
func NewDetector(rules *RuleSet) *Detector {
	return &Detector{rules: rules, now: time.Now}
}

// Rules devuelve el conjunto de reglas configurado.
func (d *Detector) Rules() *RuleSet { return d.rules }

// Detect ejecuta las reglas habilitadas. El orden de ejecución solo afecta el orden del reporte.
func (d *Detector) Detect(ctx context.Context, in Input) ([]Finding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ec := evalContext{input: in, now: d.now()}

	var findings []Finding
	for _, rule := range d.rules.Ordered(StageDocument) {
		eval, ok := evaluators[rule.Kind]
		if !ok {
			continue
		}
		ec.rule = rule
		if f := eval(ec); f != nil {
			f.Type = rule.Kind
			f.Severity = rule.Severity
			f.Blocking = rule.Blocking
			findings = append(findings, *f)
		}
	}
	return findings, nil
}

// NewFinding hallazgo con la configuración de la regla indicada (para reglas evaluadas fuera del detector).
func (rs *RuleSet) NewFinding(kind, description, suggestion string, line int) Finding {
	r := rs.Policy(kind)
	return Finding{
		Type:        kind,
		Severity:    r.Severity,
		Blocking:    r.Blocking,
		Description: description,
		Suggestion:  suggestion,
		LineNumber:  line,
	}
}

// DuplicateFinding hallazgo de chave ya conciliada; ok=false si la regla está deshabilitada.
func (rs *RuleSet) DuplicateFinding(accessKey, invoiceID string) (Finding, bool) {
	if !rs.Policy(entity.InconsistencyDuplicateAccessKey).Enabled {
		return Finding{}, false
	}
	return rs.NewFinding(entity.InconsistencyDuplicateAccessKey,
		fmt.Sprintf("la chave %s ya fue conciliada en la nota %s", accessKey, invoiceID),
		"descartar el archivo o revisar la nota existente", 0), true
}

// HasBlocking indica si alguno de los hallazgos es bloqueante.
func HasBlocking(findings []Finding) bool {
	for _, f := range findings {
		if f.Blocking {
			return true
		}
	}
	return false
}
