package organ

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/APSIMInitiative/ApsimX-sub030/internal/sim/biomass"
	"github.com/APSIMInitiative/ApsimX-sub030/internal/sim/cohort"
	"github.com/APSIMInitiative/ApsimX-sub030/internal/sim/functions"
	"github.com/APSIMInitiative/ApsimX-sub030/internal/sim/simerr"
)

var approx = cmpopts.EquateApprox(0, 1e-9)

func testLeafParams() LeafParams {
	c := func(v float64) functions.Function { return functions.Constant(v) }
	return LeafParams{
		InitialWt:                 c(1),
		MinimumNConc:              c(0.02),
		MaximumNConc:              c(0.05),
		SpecificLeafArea:          c(0.01),
		LeafResidenceTime:         c(10),
		LeafDevelopmentRate:       c(1),
		LeafDetachmentTime:        c(5),
		LeafKillFraction:          c(0),
		MinimumLAI:                c(0),
		NRetranslocationFactor:    c(0.5),
		NReallocationFactor:       c(0.5),
		DMRetranslocationFactor:   c(0.1),
		DMConversionEfficiency:    c(0.8),
		CarbonConcentration:       c(0.4),
		ExtinctionCoefficient:     c(0.5),
		ExtinctionCoefficientDead: c(0.3),
		DMDemands:                 functions.Demands{Structural: c(2)},
		NDemands:                  functions.Demands{Structural: c(0.05), Storage: c(0.02)},
	}
}

// stepLeaf runs one full daily cycle, drawing every supply the leaf offers.
func stepLeaf(t *testing.T, l *PerennialLeaf) {
	t.Helper()
	l.DoDailyInitialisation()
	l.DoPotentialGrowth()
	l.SetDMSupply(3)
	l.SetNSupply()
	l.SetDMDemand()
	l.SetNDemand()
	dm := biomass.AllocationType{Structural: 2, Storage: 0.5, Retranslocation: l.DMSupply().Retranslocation}
	if err := l.SetDryMatterAllocation(dm); err != nil {
		t.Fatalf("SetDryMatterAllocation: %v", err)
	}
	n := biomass.AllocationType{
		Structural:      0.04,
		Storage:         0.01,
		Retranslocation: l.NSupply().Retranslocation,
		Reallocation:    l.NSupply().Reallocation,
	}
	if err := l.SetNitrogenAllocation(n); err != nil {
		t.Fatalf("SetNitrogenAllocation: %v", err)
	}
	l.DoActualGrowth()
	if err := l.CheckAggregates(1e-9); err != nil {
		t.Fatalf("aggregates: %v", err)
	}
}

func TestLeafFirstDaySeedsCohort(t *testing.T) {
	l := NewPerennialLeaf("leaf", testLeafParams(), nil)
	l.Sow()
	l.DoPotentialGrowth()

	want := biomass.Biomass{StructuralWt: 1, StructuralN: 0.02, StorageN: 0.03}
	if diff := cmp.Diff(want, l.StartLive(), approx); diff != "" {
		t.Fatalf("start live (-want +got):\n%s", diff)
	}
	if got := l.LAI(); math.Abs(got-0.01) > 1e-12 {
		t.Fatalf("LAI: got %v want 0.01", got)
	}
	l.SetNSupply()
	if got := l.NSupply(); got.Reallocation != 0 || math.Abs(got.Retranslocation-0.015) > 1e-12 {
		t.Fatalf("N supply: %+v", got)
	}
}

func TestLeafDryMatterAllocation(t *testing.T) {
	l := NewPerennialLeaf("leaf", testLeafParams(), nil)
	l.Sow()
	l.DoPotentialGrowth()
	l.SetDMDemand()
	if err := l.SetDryMatterAllocation(biomass.AllocationType{Structural: 2, Storage: 0.5}); err != nil {
		t.Fatalf("SetDryMatterAllocation: %v", err)
	}
	wantResp := 2.5 * ((1/0.8)*(12.0/30.0) - 0.4) * 44.0 / 12.0
	if math.Abs(l.GrowthRespiration()-wantResp) > 1e-12 {
		t.Fatalf("growth respiration: got %v want %v", l.GrowthRespiration(), wantResp)
	}
	live := l.Live()
	if math.Abs(live.StructuralWt-2.6) > 1e-12 || math.Abs(live.StorageWt-0.4) > 1e-12 {
		t.Fatalf("live after allocation: %+v", live)
	}
}

func TestLeafDaysKeepAggregates(t *testing.T) {
	l := NewPerennialLeaf("leaf", testLeafParams(), nil)
	l.Sow()
	var detached float64
	for day := 0; day < 30; day++ {
		stepLeaf(t, l)
		detached += l.Detached().Wt()
	}
	if detached <= 0 {
		t.Fatalf("expected old cohorts to detach")
	}
	if n := len(l.Leaves()); n >= 30 {
		t.Fatalf("expected detached cohorts to be dropped, have %d", n)
	}
	for _, leaf := range l.Leaves() {
		if leaf.Age >= 15 {
			t.Fatalf("cohort past detachment time still present: age %v", leaf.Age)
		}
	}
	if l.Dead().Wt() <= 0 {
		t.Fatalf("expected senesced tissue in the dead pool")
	}
}

func TestLeafKillKeepsMinimumLAI(t *testing.T) {
	p := testLeafParams()
	p.LeafKillFraction = functions.Constant(0.9)
	p.MinimumLAI = functions.Constant(0.5)
	l := NewPerennialLeaf("leaf", p, nil)
	l.Sow()
	stepLeaf(t, l)
	// LAI is tiny, so (1 - MinimumLAI) / LAI is far above the kill fraction.
	if l.Dead().Wt() <= 0 {
		t.Fatalf("expected kill to move tissue to dead")
	}
}

func TestLeafRemoveBiomass(t *testing.T) {
	l := NewPerennialLeaf("leaf", testLeafParams(), nil)
	l.Sow()
	for day := 0; day < 12; day++ {
		stepLeaf(t, l)
	}
	live, dead := l.Live(), l.Dead()
	l.DoDailyInitialisation()

	r := Removal{LiveToRemove: 0.3, DeadToRemove: 0.5, LiveToResidue: 0.1, DeadToResidue: 0.2}
	removed, err := l.RemoveBiomass(r)
	if err != nil {
		t.Fatalf("RemoveBiomass: %v", err)
	}
	want := live.Scaled(0.3).Plus(dead.Scaled(0.5))
	if diff := cmp.Diff(want, removed, approx); diff != "" {
		t.Fatalf("removed (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(live.Scaled(0.1).Plus(dead.Scaled(0.2)), l.Detached(), approx); diff != "" {
		t.Fatalf("residue (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(live.Scaled(0.6), l.Live(), approx); diff != "" {
		t.Fatalf("live after removal (-want +got):\n%s", diff)
	}
	if err := l.CheckAggregates(1e-9); err != nil {
		t.Fatalf("aggregates: %v", err)
	}

	if _, err := l.RemoveBiomass(Removal{LiveToRemove: 0.7, LiveToResidue: 0.4}); simerr.CodeOf(err) != simerr.CodeBadConfig {
		t.Fatalf("expected bad config for fractions above 1, got %v", err)
	}
}

func TestLeafHarvestUsesConfiguredFractions(t *testing.T) {
	p := testLeafParams()
	p.Harvest = Removal{LiveToRemove: 0.5, DeadToRemove: 0.2, LiveToResidue: 0.25, DeadToResidue: 0.4}
	l := NewPerennialLeaf("leaf", p, nil)
	l.Sow()
	for day := 0; day < 12; day++ {
		stepLeaf(t, l)
	}
	live, dead := l.Live(), l.Dead()
	l.DoDailyInitialisation()

	removed, err := l.Harvest()
	if err != nil {
		t.Fatalf("Harvest: %v", err)
	}
	if diff := cmp.Diff(live.Scaled(0.5).Plus(dead.Scaled(0.2)), removed, approx); diff != "" {
		t.Fatalf("removed (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(live.Scaled(0.25).Plus(dead.Scaled(0.4)), l.Detached(), approx); diff != "" {
		t.Fatalf("residue (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(dead.Scaled(0.4), l.Dead(), approx); diff != "" {
		t.Fatalf("dead after harvest (-want +got):\n%s", diff)
	}
	if err := l.CheckAggregates(1e-9); err != nil {
		t.Fatalf("aggregates: %v", err)
	}
}

func TestLeafHarvestWithoutFractionsRemovesNothing(t *testing.T) {
	l := NewPerennialLeaf("leaf", testLeafParams(), nil)
	l.Sow()
	stepLeaf(t, l)
	live := l.Live()

	removed, err := l.Harvest()
	if err != nil {
		t.Fatalf("Harvest: %v", err)
	}
	if removed != (biomass.Biomass{}) {
		t.Fatalf("removed=%+v want zero", removed)
	}
	if diff := cmp.Diff(live, l.Live(), approx); diff != "" {
		t.Fatalf("live changed (-want +got):\n%s", diff)
	}
}

func TestLeafEnd(t *testing.T) {
	l := NewPerennialLeaf("leaf", testLeafParams(), nil)
	l.Sow()
	for day := 0; day < 12; day++ {
		stepLeaf(t, l)
	}
	total := l.Live().Plus(l.Dead()).Plus(l.Detached())
	l.End()
	if diff := cmp.Diff(total, l.Detached(), approx); diff != "" {
		t.Fatalf("End should send everything to detached (-want +got):\n%s", diff)
	}
	if l.Wt() != 0 || l.LAI() != 0 || len(l.Leaves()) != 0 {
		t.Fatalf("End should reset the organ: wt %v lai %v cohorts %d", l.Wt(), l.LAI(), len(l.Leaves()))
	}
}

func TestLeafCovers(t *testing.T) {
	l := NewPerennialLeaf("leaf", testLeafParams(), nil)
	l.Sow()
	for day := 0; day < 12; day++ {
		stepLeaf(t, l)
	}
	green := 1 - math.Exp(-0.5*l.LAI())
	dead := 1 - math.Exp(-0.3*l.LAIDead())
	if math.Abs(l.CoverGreen()-green) > 1e-12 || math.Abs(l.CoverDead()-dead) > 1e-12 {
		t.Fatalf("covers: green %v dead %v", l.CoverGreen(), l.CoverDead())
	}
	if want := 1 - (1-green)*(1-dead); math.Abs(l.CoverTotal()-want) > 1e-12 {
		t.Fatalf("total cover: got %v want %v", l.CoverTotal(), want)
	}
	if l.LAITotal() != l.LAI()+l.LAIDead() {
		t.Fatalf("LAITotal mismatch")
	}
	if got := cover(1, 1e9); got != maxCover {
		t.Fatalf("cover should be capped, got %v", got)
	}
}

func TestLeafStateRoundTrip(t *testing.T) {
	a := NewPerennialLeaf("leaf", testLeafParams(), nil)
	a.Sow()
	for day := 0; day < 8; day++ {
		stepLeaf(t, a)
	}
	b := NewPerennialLeaf("leaf", testLeafParams(), nil)
	b.Restore(a.State())
	if diff := cmp.Diff(a.State(), b.State()); diff != "" {
		t.Fatalf("restored state (-want +got):\n%s", diff)
	}
	stepLeaf(t, a)
	stepLeaf(t, b)
	if diff := cmp.Diff(a.State(), b.State()); diff != "" {
		t.Fatalf("restored leaf diverged (-a +b):\n%s", diff)
	}
}

func TestLeafRetranslocationNetsStartReallocation(t *testing.T) {
	l := NewPerennialLeaf("leaf", testLeafParams(), nil)
	old := cohort.Leaf{
		Age:  20,
		Area: 0.02,
		Live: biomass.Biomass{StructuralWt: 2, StorageWt: 1, StructuralN: 0.04, StorageN: 0.1},
	}
	l.Restore(LeafState{
		Leaves:  []cohort.Leaf{old},
		Live:    old.Live,
		NSupply: biomass.SupplyType{Reallocation: 0.004},
	})

	l.DoDailyInitialisation()
	l.DoPotentialGrowth()
	l.SetNSupply()

	if got := l.LastNSupply().Reallocation; got != 0.004 {
		t.Fatalf("start reallocation supply: got %v want 0.004", got)
	}
	// Start live storage N 0.13 over storage wt 1: labile N 0.11.
	// The old cohort senesces 0.1 storage N, so today's reallocation is 0.05;
	// retranslocation nets yesterday's 0.004 instead.
	want := biomass.SupplyType{Reallocation: 0.05, Retranslocation: (0.11 - 0.004) * 0.5}
	if diff := cmp.Diff(want, l.NSupply(), approx); diff != "" {
		t.Fatalf("N supply (-want +got):\n%s", diff)
	}
}

func TestLeafRetranslocationSupplyNeverNegative(t *testing.T) {
	l := NewPerennialLeaf("leaf", testLeafParams(), nil)
	l.Sow()
	l.Restore(LeafState{
		Leaves:  l.Leaves(),
		Live:    l.Live(),
		NSupply: biomass.SupplyType{Reallocation: 1},
	})
	l.DoPotentialGrowth()
	l.SetNSupply()
	if got := l.NSupply().Retranslocation; got != 0 {
		t.Fatalf("retranslocation supply: got %v want 0", got)
	}
}
