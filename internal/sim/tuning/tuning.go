package tuning

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/APSIMInitiative/ApsimX-sub030/internal/sim/functions"
	"github.com/APSIMInitiative/ApsimX-sub030/internal/sim/simerr"
)

type Tuning struct {
	RunIDPrefix       string `yaml:"run_id_prefix" json:"run_id_prefix"`
	Days              int    `yaml:"days" json:"days"`
	SnapshotEveryDays int    `yaml:"snapshot_every_days" json:"snapshot_every_days"`
	RotateEveryDays   int    `yaml:"rotate_every_days" json:"rotate_every_days"`

	Leaf   LeafConfig   `yaml:"leaf" json:"leaf"`
	Organs []PoolConfig `yaml:"organs" json:"organs"`
}

type DemandsConfig struct {
	Structural          *functions.Spec `yaml:"structural,omitempty" json:"structural,omitempty"`
	Metabolic           *functions.Spec `yaml:"metabolic,omitempty" json:"metabolic,omitempty"`
	Storage             *functions.Spec `yaml:"storage,omitempty" json:"storage,omitempty"`
	QStructuralPriority *functions.Spec `yaml:"q_structural_priority,omitempty" json:"q_structural_priority,omitempty"`
	QMetabolicPriority  *functions.Spec `yaml:"q_metabolic_priority,omitempty" json:"q_metabolic_priority,omitempty"`
	QStoragePriority    *functions.Spec `yaml:"q_storage_priority,omitempty" json:"q_storage_priority,omitempty"`
}

type LeafConfig struct {
	Name string `yaml:"name" json:"name"`

	InitialWt        *functions.Spec `yaml:"initial_wt" json:"initial_wt,omitempty"`
	MinimumNConc     *functions.Spec `yaml:"minimum_n_conc" json:"minimum_n_conc,omitempty"`
	MaximumNConc     *functions.Spec `yaml:"maximum_n_conc" json:"maximum_n_conc,omitempty"`
	SpecificLeafArea *functions.Spec `yaml:"specific_leaf_area" json:"specific_leaf_area,omitempty"`

	LeafResidenceTime   *functions.Spec `yaml:"leaf_residence_time" json:"leaf_residence_time,omitempty"`
	LeafDevelopmentRate *functions.Spec `yaml:"leaf_development_rate" json:"leaf_development_rate,omitempty"`
	LeafDetachmentTime  *functions.Spec `yaml:"leaf_detachment_time" json:"leaf_detachment_time,omitempty"`
	LeafKillFraction    *functions.Spec `yaml:"leaf_kill_fraction" json:"leaf_kill_fraction,omitempty"`
	MinimumLAI          *functions.Spec `yaml:"minimum_lai" json:"minimum_lai,omitempty"`

	NRetranslocationFactor  *functions.Spec `yaml:"n_retranslocation_factor" json:"n_retranslocation_factor,omitempty"`
	NReallocationFactor     *functions.Spec `yaml:"n_reallocation_factor" json:"n_reallocation_factor,omitempty"`
	DMRetranslocationFactor *functions.Spec `yaml:"dm_retranslocation_factor" json:"dm_retranslocation_factor,omitempty"`
	DMConversionEfficiency  *functions.Spec `yaml:"dm_conversion_efficiency" json:"dm_conversion_efficiency,omitempty"`
	CarbonConcentration     *functions.Spec `yaml:"carbon_concentration" json:"carbon_concentration,omitempty"`

	ExtinctionCoefficient     *functions.Spec `yaml:"extinction_coefficient" json:"extinction_coefficient,omitempty"`
	ExtinctionCoefficientDead *functions.Spec `yaml:"extinction_coefficient_dead" json:"extinction_coefficient_dead,omitempty"`
	MaintenanceRespiration    *functions.Spec `yaml:"maintenance_respiration,omitempty" json:"maintenance_respiration,omitempty"`

	DMDemands DemandsConfig `yaml:"dm_demands" json:"dm_demands"`
	NDemands  DemandsConfig `yaml:"n_demands" json:"n_demands"`

	Harvest HarvestConfig `yaml:"harvest" json:"harvest"`
}

// HarvestConfig is the share of live and dead leaf taken off the field or
// left as residue on a harvest day.
type HarvestConfig struct {
	LiveToRemove  float64 `yaml:"live_to_remove" json:"live_to_remove"`
	DeadToRemove  float64 `yaml:"dead_to_remove" json:"dead_to_remove"`
	LiveToResidue float64 `yaml:"live_to_residue" json:"live_to_residue"`
	DeadToResidue float64 `yaml:"dead_to_residue" json:"dead_to_residue"`
}

type PoolConfig struct {
	Name string `yaml:"name" json:"name"`

	InitialWt    *functions.Spec `yaml:"initial_wt" json:"initial_wt,omitempty"`
	MinimumNConc *functions.Spec `yaml:"minimum_n_conc" json:"minimum_n_conc,omitempty"`
	MaximumNConc *functions.Spec `yaml:"maximum_n_conc" json:"maximum_n_conc,omitempty"`

	SenescenceRate *functions.Spec `yaml:"senescence_rate" json:"senescence_rate,omitempty"`
	DetachmentRate *functions.Spec `yaml:"detachment_rate" json:"detachment_rate,omitempty"`

	NRetranslocationFactor *functions.Spec `yaml:"n_retranslocation_factor" json:"n_retranslocation_factor,omitempty"`
	NReallocationFactor    *functions.Spec `yaml:"n_reallocation_factor" json:"n_reallocation_factor,omitempty"`

	DMDemands DemandsConfig `yaml:"dm_demands" json:"dm_demands"`
	NDemands  DemandsConfig `yaml:"n_demands" json:"n_demands"`
}

//go:embed schema.json
var schemaJSON []byte

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource("tuning.schema.json", bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = c.Compile("tuning.schema.json")
	})
	return schema, schemaErr
}

// Load reads a tuning file. An empty path yields the defaults.
func Load(path string) (Tuning, error) {
	if strings.TrimSpace(path) == "" {
		t := Defaults()
		t.Normalize()
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Tuning{}, err
	}
	t, err := Parse(raw)
	if err != nil {
		return t, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Parse checks raw against the embedded schema, decodes it over the defaults,
// then normalizes and validates the result.
func Parse(raw []byte) (Tuning, error) {
	t := Defaults()
	if err := checkSchema(raw); err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, simerr.Newf(simerr.CodeBadConfig, "tuning", "%v", err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, err
	}
	return t, nil
}

func checkSchema(raw []byte) error {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return simerr.Newf(simerr.CodeBadConfig, "tuning", "%v", err)
	}
	if doc == nil {
		return nil
	}
	// Round-trip through JSON so the validator sees JSON-typed values.
	b, err := json.Marshal(doc)
	if err != nil {
		return simerr.Newf(simerr.CodeBadConfig, "tuning", "not representable as JSON: %v", err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return simerr.Newf(simerr.CodeBadConfig, "tuning", "%v", err)
	}
	s, err := compiledSchema()
	if err != nil {
		return err
	}
	if err := s.Validate(v); err != nil {
		return simerr.Newf(simerr.CodeBadConfig, "tuning", "schema: %v", err)
	}
	return nil
}

func num(v float64) *functions.Spec { return functions.ConstSpec(v) }

// Defaults is a temperate perennial grass: a leaf plus stem and root pools.
func Defaults() Tuning {
	return Tuning{
		RunIDPrefix:       "leafsim",
		Days:              365,
		SnapshotEveryDays: 30,
		RotateEveryDays:   100,
		Leaf: LeafConfig{
			Name:                      "leaf",
			InitialWt:                 num(0.5),
			MinimumNConc:              num(0.015),
			MaximumNConc:              num(0.04),
			SpecificLeafArea:          num(0.02),
			LeafResidenceTime:         num(40),
			LeafDevelopmentRate:       num(1),
			LeafDetachmentTime:        num(20),
			LeafKillFraction:          num(0),
			MinimumLAI:                num(0),
			NRetranslocationFactor:    num(0.1),
			NReallocationFactor:       num(0.5),
			DMRetranslocationFactor:   num(0.05),
			DMConversionEfficiency:    num(0.75),
			CarbonConcentration:       num(0.4),
			ExtinctionCoefficient:     num(0.5),
			ExtinctionCoefficientDead: num(0.3),
			DMDemands:                 DemandsConfig{Structural: num(1.5)},
			NDemands:                  DemandsConfig{Structural: num(0.03), Storage: num(0.01)},
			Harvest:                   HarvestConfig{LiveToRemove: 0.7, LiveToResidue: 0.1, DeadToResidue: 0.5},
		},
		Organs: []PoolConfig{
			{
				Name:                   "stem",
				InitialWt:              num(1),
				MinimumNConc:           num(0.005),
				MaximumNConc:           num(0.015),
				SenescenceRate:         num(0.01),
				DetachmentRate:         num(0.05),
				NRetranslocationFactor: num(0.05),
				NReallocationFactor:    num(0.5),
				DMDemands:              DemandsConfig{Structural: num(0.8)},
				NDemands:               DemandsConfig{Structural: num(0.008), Storage: num(0.002)},
			},
			{
				Name:                   "root",
				InitialWt:              num(2),
				MinimumNConc:           num(0.008),
				MaximumNConc:           num(0.02),
				SenescenceRate:         num(0.005),
				DetachmentRate:         num(0.02),
				NRetranslocationFactor: num(0.02),
				NReallocationFactor:    num(0.3),
				DMDemands:              DemandsConfig{Structural: num(0.6)},
				NDemands:               DemandsConfig{Structural: num(0.006), Storage: num(0.002)},
			},
		},
	}
}

func (t *Tuning) Normalize() {
	if t == nil {
		return
	}
	t.RunIDPrefix = strings.TrimSpace(t.RunIDPrefix)
	if t.RunIDPrefix == "" {
		t.RunIDPrefix = "leafsim"
	}
	if t.SnapshotEveryDays < 0 {
		t.SnapshotEveryDays = 0
	}
	if t.RotateEveryDays <= 0 {
		t.RotateEveryDays = 100
	}
	t.Leaf.Name = strings.TrimSpace(t.Leaf.Name)
	if t.Leaf.Name == "" {
		t.Leaf.Name = "leaf"
	}
	for i := range t.Organs {
		t.Organs[i].Name = strings.TrimSpace(t.Organs[i].Name)
	}
}

func (t Tuning) Validate() error {
	if t.Days <= 0 {
		return badConfig("days must be > 0")
	}
	l := t.Leaf
	required := map[string]*functions.Spec{
		"initial_wt":                l.InitialWt,
		"minimum_n_conc":            l.MinimumNConc,
		"maximum_n_conc":            l.MaximumNConc,
		"specific_leaf_area":        l.SpecificLeafArea,
		"leaf_residence_time":       l.LeafResidenceTime,
		"leaf_development_rate":     l.LeafDevelopmentRate,
		"leaf_detachment_time":      l.LeafDetachmentTime,
		"n_retranslocation_factor":  l.NRetranslocationFactor,
		"n_reallocation_factor":     l.NReallocationFactor,
		"dm_retranslocation_factor": l.DMRetranslocationFactor,
		"dm_conversion_efficiency":  l.DMConversionEfficiency,
	}
	for _, key := range sortedKeys(required) {
		if required[key] == nil {
			return badConfig("leaf %s is required", key)
		}
	}
	if err := checkConcentrations("leaf", l.MinimumNConc, l.MaximumNConc); err != nil {
		return err
	}
	if eff := l.DMConversionEfficiency; eff.Const != nil && *eff.Const <= 0 {
		return badConfig("leaf dm_conversion_efficiency must be > 0")
	}
	if h := l.Harvest; h.LiveToRemove+h.LiveToResidue > 1 || h.DeadToRemove+h.DeadToResidue > 1 {
		return badConfig("leaf harvest fractions of live or dead tissue sum above 1")
	}

	seen := map[string]bool{l.Name: true}
	for i, o := range t.Organs {
		if o.Name == "" {
			return badConfig("organs[%d] name must not be empty", i)
		}
		if seen[o.Name] {
			return badConfig("duplicate organ name: %s", o.Name)
		}
		seen[o.Name] = true
		if o.InitialWt == nil || o.MinimumNConc == nil || o.MaximumNConc == nil {
			return badConfig("organ %s needs initial_wt, minimum_n_conc and maximum_n_conc", o.Name)
		}
		if err := checkConcentrations(o.Name, o.MinimumNConc, o.MaximumNConc); err != nil {
			return err
		}
	}
	return nil
}

// checkConcentrations compares constant concentrations. Day tables are not
// checked.
func checkConcentrations(organ string, minN, maxN *functions.Spec) error {
	if minN.Const == nil || maxN.Const == nil {
		return nil
	}
	if *minN.Const < 0 || *maxN.Const < *minN.Const {
		return badConfig("%s needs 0 <= minimum_n_conc <= maximum_n_conc", organ)
	}
	return nil
}

func sortedKeys(m map[string]*functions.Spec) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func badConfig(format string, args ...any) error {
	return simerr.Newf(simerr.CodeBadConfig, "tuning", format, args...)
}

// JSON renders the tuning for storage alongside a run.
func (t Tuning) JSON() ([]byte, error) { return json.Marshal(t) }
