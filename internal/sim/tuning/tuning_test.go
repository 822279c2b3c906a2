package tuning

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/APSIMInitiative/ApsimX-sub030/internal/sim/simerr"
)

func TestLoadRepoConfig(t *testing.T) {
	tu, err := Load(filepath.Join("..", "..", "..", "configs", "tuning.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tu.RunIDPrefix != "ryegrass" || tu.Days != 120 {
		t.Fatalf("unexpected header: %+v", tu)
	}
	if tu.Leaf.LeafDevelopmentRate == nil || len(tu.Leaf.LeafDevelopmentRate.Days) != 3 {
		t.Fatalf("development rate table not decoded: %+v", tu.Leaf.LeafDevelopmentRate)
	}
	if len(tu.Organs) != 2 || tu.Organs[0].Name != "stem" || tu.Organs[1].Name != "root" {
		t.Fatalf("organs: %+v", tu.Organs)
	}
	if want := (HarvestConfig{LiveToRemove: 0.7, LiveToResidue: 0.1, DeadToResidue: 0.5}); tu.Leaf.Harvest != want {
		t.Fatalf("harvest: %+v", tu.Leaf.Harvest)
	}
}

func TestEmptyPathUsesDefaults(t *testing.T) {
	tu, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := tu.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	tu, err := Parse([]byte("days: 10\nleaf:\n  specific_leaf_area: 0.03\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if tu.Days != 10 || *tu.Leaf.SpecificLeafArea.Const != 0.03 {
		t.Fatalf("overrides not applied: %+v", tu)
	}
	if tu.Leaf.InitialWt == nil || *tu.Leaf.InitialWt.Const != 0.5 {
		t.Fatalf("defaults lost: %+v", tu.Leaf.InitialWt)
	}
	if len(tu.Organs) != 2 {
		t.Fatalf("default organs lost: %+v", tu.Organs)
	}
}

func TestSchemaRejects(t *testing.T) {
	cases := map[string]string{
		"unknown key":     "dayz: 10\n",
		"bad function":    "leaf:\n  initial_wt: \"heavy\"\n",
		"table no values": "leaf:\n  initial_wt:\n    days: [0]\n",
		"organ no name":   "organs:\n  - initial_wt: 1\n",
		"zero days":       "days: 0\n",
		"harvest above 1": "leaf:\n  harvest: {live_to_remove: 1.5}\n",
	}
	for name, src := range cases {
		_, err := Parse([]byte(src))
		if !errors.Is(err, simerr.ErrBadConfig) {
			t.Fatalf("%s: expected bad config, got %v", name, err)
		}
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"inverted concentrations": "leaf:\n  minimum_n_conc: 0.05\n  maximum_n_conc: 0.01\n",
		"duplicate organ":         "organs:\n  - {name: stem, initial_wt: 1, minimum_n_conc: 0, maximum_n_conc: 0}\n  - {name: stem, initial_wt: 1, minimum_n_conc: 0, maximum_n_conc: 0}\n",
		"organ named like leaf":   "organs:\n  - {name: leaf, initial_wt: 1, minimum_n_conc: 0, maximum_n_conc: 0}\n",
		"organ missing initial":   "organs:\n  - {name: stem}\n",
		"zero efficiency":         "leaf:\n  dm_conversion_efficiency: 0\n",
		"harvest sums above 1":    "leaf:\n  harvest: {live_to_remove: 0.95}\n",
	}
	for name, src := range cases {
		_, err := Parse([]byte(src))
		if simerr.CodeOf(err) != simerr.CodeBadConfig {
			t.Fatalf("%s: expected bad config, got %v", name, err)
		}
	}
}

func TestJSONRendersFunctions(t *testing.T) {
	b, err := Defaults().JSON()
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(b) == 0 || b[0] != '{' {
		t.Fatalf("unexpected json: %s", b)
	}
}

func TestJSONParsesBack(t *testing.T) {
	tu, err := Load(filepath.Join("..", "..", "..", "configs", "tuning.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	b, err := tu.JSON()
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	back, err := Parse(b)
	if err != nil {
		t.Fatalf("parse json: %v", err)
	}
	if diff := cmp.Diff(tu, back); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}
