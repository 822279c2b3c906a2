package functions

import (
	"testing"

	"gopkg.in/yaml.v3"
)

func TestDayTableInterpolates(t *testing.T) {
	clock := &Clock{}
	tab := NewDayTable(clock, []float64{10, 0, 20}, []float64{1, 0, 1})

	cases := []struct {
		day  int
		want float64
	}{
		{-5, 0},
		{0, 0},
		{5, 0.5},
		{10, 1},
		{15, 1},
		{40, 1},
	}
	for _, tc := range cases {
		clock.Set(tc.day)
		if got := tab.Value(); got != tc.want {
			t.Fatalf("day %d: got %v want %v", tc.day, got, tc.want)
		}
	}
}

func TestDemandsDefaults(t *testing.T) {
	d := Demands{Structural: Constant(2), Storage: Constant(0.5)}
	p := d.Pool()
	if p.Structural != 2 || p.Storage != 0.5 || p.Metabolic != 0 {
		t.Fatalf("demands: %+v", p)
	}
	if p.QStructuralPriority != 1 || p.QMetabolicPriority != 1 || p.QStoragePriority != 1 {
		t.Fatalf("nil priorities should default to 1: %+v", p)
	}
}

func TestSpecYAML(t *testing.T) {
	var doc struct {
		A *Spec `yaml:"a"`
		B *Spec `yaml:"b"`
		C *Spec `yaml:"c"`
	}
	src := "a: 0.25\nb:\n  days: [0, 10]\n  values: [0, 2]\n"
	if err := yaml.Unmarshal([]byte(src), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	clock := &Clock{}
	if got := doc.A.Build(clock).Value(); got != 0.25 {
		t.Fatalf("constant: got %v", got)
	}
	clock.Set(5)
	if got := doc.B.Build(clock).Value(); got != 1 {
		t.Fatalf("table: got %v", got)
	}
	if doc.C.Build(clock) != nil {
		t.Fatalf("missing spec should build nil")
	}

	var bad struct {
		A *Spec `yaml:"a"`
	}
	if err := yaml.Unmarshal([]byte("a:\n  days: [0, 1]\n  values: [1]\n"), &bad); err == nil {
		t.Fatalf("expected mismatched table to fail")
	}
	if err := yaml.Unmarshal([]byte("a: [1, 2]\n"), &bad); err == nil {
		t.Fatalf("expected sequence to fail")
	}
}
