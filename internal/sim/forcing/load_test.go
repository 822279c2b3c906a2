package forcing

import (
	"path/filepath"
	"testing"

	"github.com/APSIMInitiative/ApsimX-sub030/internal/sim/biomass"
	"github.com/APSIMInitiative/ApsimX-sub030/internal/sim/simerr"
)

func TestLoadRepoForcing(t *testing.T) {
	s, err := Load(filepath.Join("..", "..", "..", "configs", "forcing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.LastDay() != 120 {
		t.Fatalf("last day: %d", s.LastDay())
	}
	d := s.At(30)
	if d.Day != 30 || d.Photosynthesis != 2.5 || d.Through != 0 {
		t.Fatalf("day 30: %+v", d)
	}
	if _, ok := d.Organs["stem"]; !ok {
		t.Fatalf("day 30 should carry stem allocations")
	}
	if g := s.At(60); g.Removal.LiveToRemove != 0.6 {
		t.Fatalf("grazing day: %+v", g.Removal)
	}
	if f := s.At(90); f.KillFraction != 0.4 {
		t.Fatalf("frost day: %+v", f)
	}
	if z := s.At(500); z.Day != 500 || z.Photosynthesis != 0 || z.Organs != nil {
		t.Fatalf("uncovered day should be zero: %+v", z)
	}
}

func TestRejectsBadEntries(t *testing.T) {
	cases := map[string]string{
		"overlap":        "days:\n  - {day: 1, through: 5}\n  - {day: 5}\n",
		"day zero":       "days:\n  - {day: 0}\n",
		"through before": "days:\n  - {day: 4, through: 2}\n",
		"kill above one": "days:\n  - {day: 1, kill_fraction: 1.5}\n",
		"fraction":       "days:\n  - {day: 1, leaf_n: {retranslocation_fraction: 2}}\n",
		"negative organ": "days:\n  - {day: 1, organs: {stem: {dm: {structural: -1}}}}\n",
	}
	for name, src := range cases {
		if _, err := Parse([]byte(src)); simerr.CodeOf(err) != simerr.CodeBadConfig {
			t.Fatalf("%s: expected bad config, got %v", name, err)
		}
	}
}

func TestResolveScalesOutflows(t *testing.T) {
	a := Allocation{Structural: 1, RetranslocationFraction: 0.5, ReallocationFraction: 1}
	got := a.Resolve(biomass.SupplyType{Retranslocation: 0.4, Reallocation: 0.2})
	if got.Structural != 1 || got.Retranslocation != 0.2 || got.Reallocation != 0.2 {
		t.Fatalf("resolve: %+v", got)
	}
}

func TestNilSeries(t *testing.T) {
	var s *Series
	if d := s.At(3); d.Day != 3 {
		t.Fatalf("nil series: %+v", d)
	}
	if s.Len() != 0 || s.LastDay() != 0 {
		t.Fatalf("nil series should be empty")
	}
}

func TestHarvestFlagCoversRange(t *testing.T) {
	s, err := Parse([]byte("days:\n  - {day: 5, through: 6, harvest: true}\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !s.At(5).Harvest || !s.At(6).Harvest || s.At(7).Harvest {
		t.Fatalf("harvest flag: %+v %+v %+v", s.At(5), s.At(6), s.At(7))
	}
}
