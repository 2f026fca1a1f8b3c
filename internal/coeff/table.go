// Package coeff implements the correction-coefficient engine and the
// benchmark comparator used by the enhanced valuation pipeline. It applies
// property-specific adjustments (coefficienti correttivi di merito, the
// standard Italian appraisal methodology) on top of OMI zone-average
// price ranges, then reconciles the result against real transactions.
package coeff

import (
	_ "embed"
	"sync"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed coefficients.yaml
var defaultTableYAML []byte

// Option is one selectable answer for a factor, carrying its percentage
// adjustment and display labels.
type Option struct {
	Key     string  `yaml:"key" json:"key"`
	Label   string  `yaml:"label" json:"label"`
	LabelEN string  `yaml:"label_en" json:"label_en"`
	Pct     float64 `yaml:"pct" json:"pct"`
}

// Factor is a property characteristic with its options, e.g. floor level
// or energy class.
type Factor struct {
	Name    string   `yaml:"name" json:"-"`
	Label   string   `yaml:"label" json:"label"`
	LabelEN string   `yaml:"label_en" json:"label_en"`
	Options []Option `yaml:"options" json:"options"`
}

// Table is the full coefficient configuration. It is immutable after load
// and safe for unsynchronized concurrent reads; factor order follows the
// source document so breakdown output is deterministic.
type Table struct {
	factors []Factor
	byName  map[string]int
}

type tableDoc struct {
	Factors []Factor `yaml:"factors"`
}

// Parse builds a Table from YAML.
func Parse(data []byte) (*Table, error) {
	var doc tableDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "coeff: parse table yaml")
	}
	if len(doc.Factors) == 0 {
		return nil, eris.New("coeff: table has no factors")
	}

	t := &Table{
		factors: doc.Factors,
		byName:  make(map[string]int, len(doc.Factors)),
	}
	for i, factor := range doc.Factors {
		if factor.Name == "" {
			return nil, eris.Errorf("coeff: factor %d has no name", i)
		}
		if _, dup := t.byName[factor.Name]; dup {
			return nil, eris.Errorf("coeff: duplicate factor %q", factor.Name)
		}
		t.byName[factor.Name] = i
	}
	return t, nil
}

var (
	defaultTable     *Table
	defaultTableOnce sync.Once
)

// Default returns the process-wide coefficient table loaded from the
// embedded configuration. The embedded table is validated at build time
// by the package tests, so a parse failure here is a programmer error.
func Default() *Table {
	defaultTableOnce.Do(func() {
		t, err := Parse(defaultTableYAML)
		if err != nil {
			panic(err)
		}
		defaultTable = t
	})
	return defaultTable
}

// Factors returns the factors in display order.
func (t *Table) Factors() []Factor {
	return t.factors
}

// Factor returns the named factor, or false when unknown.
func (t *Table) Factor(name string) (Factor, bool) {
	i, ok := t.byName[name]
	if !ok {
		return Factor{}, false
	}
	return t.factors[i], true
}

// Option returns the factor's option by key, or false when unknown.
func (f Factor) Option(key string) (Option, bool) {
	for _, opt := range f.Options {
		if opt.Key == key {
			return opt, true
		}
	}
	return Option{}, false
}

// FactorOptions is the API shape of one factor for the frontend wizard.
type FactorOptions struct {
	Label   string   `json:"label"`
	LabelEN string   `json:"label_en"`
	Options []Option `json:"options"`
}

// Options returns all factors with their options keyed by factor name,
// for the coefficient listing endpoint.
func (t *Table) Options() map[string]FactorOptions {
	out := make(map[string]FactorOptions, len(t.factors))
	for _, factor := range t.factors {
		out[factor.Name] = FactorOptions{
			Label:   factor.Label,
			LabelEN: factor.LabelEN,
			Options: factor.Options,
		}
	}
	return out
}
