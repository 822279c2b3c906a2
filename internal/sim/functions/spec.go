package functions

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Spec is the file form of a Function. In YAML it is either a bare number
// (a constant) or a mapping {days: [...], values: [...]}.
type Spec struct {
	Const  *float64  `json:"const,omitempty"`
	Days   []float64 `json:"days,omitempty"`
	Values []float64 `json:"values,omitempty"`
}

func ConstSpec(v float64) *Spec { return &Spec{Const: &v} }

func (s *Spec) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var v float64
		if err := node.Decode(&v); err != nil {
			return fmt.Errorf("line %d: function: %w", node.Line, err)
		}
		*s = Spec{Const: &v}
		return nil
	case yaml.MappingNode:
		var raw struct {
			Days   []float64 `yaml:"days"`
			Values []float64 `yaml:"values"`
		}
		if err := node.Decode(&raw); err != nil {
			return fmt.Errorf("line %d: function table: %w", node.Line, err)
		}
		if len(raw.Days) == 0 || len(raw.Days) != len(raw.Values) {
			return fmt.Errorf("line %d: function table needs equal, non-empty days and values", node.Line)
		}
		*s = Spec{Days: raw.Days, Values: raw.Values}
		return nil
	default:
		return fmt.Errorf("line %d: function must be a number or a {days, values} table", node.Line)
	}
}

func (s Spec) MarshalYAML() (any, error) {
	if s.Const != nil {
		return *s.Const, nil
	}
	return map[string][]float64{"days": s.Days, "values": s.Values}, nil
}

func (s Spec) MarshalJSON() ([]byte, error) {
	if s.Const != nil {
		return json.Marshal(*s.Const)
	}
	return json.Marshal(map[string][]float64{"days": s.Days, "values": s.Values})
}

// Build returns the Function described by s. A nil spec builds nil.
func (s *Spec) Build(clock *Clock) Function {
	if s == nil {
		return nil
	}
	if s.Const != nil {
		return Constant(*s.Const)
	}
	return NewDayTable(clock, s.Days, s.Values)
}
