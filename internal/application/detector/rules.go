package detector

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/jhoicas/nfe-conciliacao/internal/domain/entity"
)

// Etapas en las que se evalúa una regla.
const (
	StageIntake         = "intake"         // la evalúa el orquestador contra las notas ya conciliadas
	StageDocument       = "document"       // antes de mutar stock
	StageReconciliation = "reconciliation" // la evalúa el motor de conciliación con el lote bloqueado
)

// Parámetros conocidos.
const (
	ParamTolerance           = "tolerance"
	ParamThresholdPct        = "threshold_pct"
	ParamFutureToleranceHour = "future_tolerance_hours"
	ParamMaxAgeDays          = "max_age_days"
)

// Rule configuración de una regla; Kind coincide con el tipo de inconsistencia que produce.
type Rule struct {
	Kind     string
	Stage    string
	Enabled  bool
	Priority int
	Severity string
	Blocking bool
	Params   map[string]string
}

// Param devuelve el parámetro o def si no está configurado.
func (r Rule) Param(name, def string) string {
	if v, ok := r.Params[name]; ok && v != "" {
		return v
	}
	return def
}

// RuleSet conjunto cerrado de reglas indexado por tipo.
type RuleSet struct {
	rules map[string]Rule
}

// Options valores que vienen de la configuración de la aplicación.
type Options struct {
	TotalTolerance       string // "0.01"
	PriceDivergencePct   string // "10"
	BlockOnNegativeStock bool
}

// DefaultRuleSet reglas por defecto.
func DefaultRuleSet(opts Options) *RuleSet {
	if opts.TotalTolerance == "" {
		opts.TotalTolerance = "0.01"
	}
	if opts.PriceDivergencePct == "" {
		opts.PriceDivergencePct = "10"
	}
	doc := func(kind string, priority int, severity string, blocking bool, params map[string]string) Rule {
		return Rule{Kind: kind, Stage: StageDocument, Enabled: true, Priority: priority, Severity: severity, Blocking: blocking, Params: params}
	}
	list := []Rule{
		{
			Kind: entity.InconsistencyDuplicateAccessKey, Stage: StageIntake, Enabled: true,
			Priority: 10, Severity: entity.SeverityCritical, Blocking: true,
		},
		doc(entity.InconsistencyUnregisteredRecipient, 20, entity.SeverityHigh, true, nil),
		doc(entity.InconsistencyInvalidSupplier, 30, entity.SeverityHigh, false, nil),
		doc(entity.InconsistencyInvalidQuantity, 32, entity.SeverityHigh, true, nil),
		doc(entity.InconsistencyInvalidUnitValue, 34, entity.SeverityHigh, true, nil),
		doc(entity.InconsistencyTotalValueMismatch, 40, entity.SeverityHigh, false, map[string]string{ParamTolerance: opts.TotalTolerance}),
		doc(entity.InconsistencyInvalidEmissionDate, 50, entity.SeverityMedium, false, map[string]string{
			ParamFutureToleranceHour: "24",
			ParamMaxAgeDays:          "30",
		}),
		doc(entity.InconsistencyCFOPMismatch, 60, entity.SeverityMedium, false, nil),
		doc(entity.InconsistencyInvalidNCM, 70, entity.SeverityMedium, false, nil),
		doc(entity.InconsistencyInvalidEAN, 80, entity.SeverityLow, false, nil),
		doc(entity.InconsistencyUnitOfMeasureMismatch, 90, entity.SeverityLow, false, nil),
		doc(entity.InconsistencyPriceDivergence, 100, entity.SeverityMedium, false, map[string]string{ParamThresholdPct: opts.PriceDivergencePct}),
		doc(entity.InconsistencyUnregisteredSupplier, 110, entity.SeverityLow, false, nil),
		doc(entity.InconsistencyUnregisteredProduct, 120, entity.SeverityLow, false, nil),
		{
			Kind: entity.InconsistencyInsufficientStock, Stage: StageReconciliation, Enabled: true,
			Priority: 130, Severity: entity.SeverityHigh, Blocking: opts.BlockOnNegativeStock,
		},
	}
	rs := &RuleSet{rules: make(map[string]Rule, len(list))}
	for _, r := range list {
		rs.rules[r.Kind] = r
	}
	return rs
}

// Policy devuelve la configuración de una regla (Enabled=false si no existe).
func (rs *RuleSet) Policy(kind string) Rule {
	return rs.rules[kind]
}

// Ordered reglas de una etapa en orden de ejecución: prioridad y luego tipo.
func (rs *RuleSet) Ordered(stage string) []Rule {
	out := make([]Rule, 0, len(rs.rules))
	for _, r := range rs.rules {
		if r.Stage == stage && r.Enabled {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

// ruleOverride entrada del archivo YAML; los campos ausentes conservan el valor por defecto.
type ruleOverride struct {
	Kind     string            `yaml:"kind"`
	Enabled  *bool             `yaml:"enabled"`
	Priority *int              `yaml:"priority"`
	Severity string            `yaml:"severity"`
	Blocking *bool             `yaml:"blocking"`
	Params   map[string]string `yaml:"params"`
}

type ruleFile struct {
	Rules []ruleOverride `yaml:"rules"`
}

// LoadRuleFile aplica sobre rs las sobrescrituras del archivo YAML en path.
func LoadRuleFile(path string, rs *RuleSet) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("leer reglas %s: %w", path, err)
	}
	return ApplyOverrides(data, rs)
}

// ApplyOverrides aplica sobrescrituras YAML. Un tipo desconocido es error.
func ApplyOverrides(data []byte, rs *RuleSet) error {
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parsear reglas: %w", err)
	}
	for _, o := range f.Rules {
		r, ok := rs.rules[o.Kind]
		if !ok {
			return fmt.Errorf("regla desconocida %q", o.Kind)
		}
		if o.Enabled != nil {
			r.Enabled = *o.Enabled
		}
		if o.Priority != nil {
			r.Priority = *o.Priority
		}
		if o.Severity != "" {
			switch o.Severity {
			case entity.SeverityLow, entity.SeverityMedium, entity.SeverityHigh, entity.SeverityCritical:
				r.Severity = o.Severity
			default:
				return fmt.Errorf("regla %s: severidad inválida %q", o.Kind, o.Severity)
			}
		}
		if o.Blocking != nil {
			r.Blocking = *o.Blocking
		}
		if len(o.Params) > 0 {
			params := make(map[string]string, len(r.Params)+len(o.Params))
			for k, v := range r.Params {
				params[k] = v
			}
			for k, v := range o.Params {
				params[k] = v
			}
			r.Params = params
		}
		rs.rules[o.Kind] = r
	}
	return nil
}
