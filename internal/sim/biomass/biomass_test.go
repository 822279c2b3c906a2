package biomass

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

var approx = cmpopts.EquateApprox(0, 1e-12)

func TestArithmetic(t *testing.T) {
	a := Biomass{StructuralWt: 10, StorageWt: 2, MetabolicWt: 1, StructuralN: 0.4, StorageN: 0.6, MetabolicN: 0.1}
	b := Biomass{StructuralWt: 1, StorageWt: 1, StructuralN: 0.1}

	got := a.Plus(b).Minus(b)
	if diff := cmp.Diff(a, got, approx); diff != "" {
		t.Fatalf("plus/minus round trip (-want +got):\n%s", diff)
	}

	half := a.Scaled(0.5)
	want := Biomass{StructuralWt: 5, StorageWt: 1, MetabolicWt: 0.5, StructuralN: 0.2, StorageN: 0.3, MetabolicN: 0.05}
	if diff := cmp.Diff(want, half, approx); diff != "" {
		t.Fatalf("scaled (-want +got):\n%s", diff)
	}
	if a.StructuralWt != 10 {
		t.Fatalf("Scaled must not mutate the receiver")
	}

	if a.Wt() != 13 {
		t.Fatalf("Wt: got %v", a.Wt())
	}
	if d := a.N() - 1.1; d > 1e-12 || d < -1e-12 {
		t.Fatalf("N: got %v", a.N())
	}
}

func TestClearAndZero(t *testing.T) {
	b := Biomass{StructuralWt: 1, StorageN: 2}
	if b.IsZero() {
		t.Fatalf("non-empty pool reported zero")
	}
	b.Clear()
	if !b.IsZero() {
		t.Fatalf("cleared pool not zero: %+v", b)
	}
	if b.NConc() != 0 {
		t.Fatalf("NConc of empty pool should be 0")
	}
}

func TestCopySemantics(t *testing.T) {
	orig := Biomass{StructuralWt: 3}
	cp := orig
	cp.Add(Biomass{StructuralWt: 1})
	if orig.StructuralWt != 3 {
		t.Fatalf("copy aliased the original")
	}
}

func TestPoolClear(t *testing.T) {
	p := PoolType{Structural: 1, Metabolic: 2, Storage: 3, QStructuralPriority: 1, QMetabolicPriority: 1, QStoragePriority: 1}
	if p.Total() != 6 {
		t.Fatalf("Total: got %v", p.Total())
	}
	p.Clear()
	if p != (PoolType{}) {
		t.Fatalf("Clear left values: %+v", p)
	}
	s := SupplyType{Fixation: 1, Reallocation: 2, Uptake: 3, Retranslocation: 4}
	if s.Total() != 10 {
		t.Fatalf("supply Total: got %v", s.Total())
	}
	s.Clear()
	if s != (SupplyType{}) {
		t.Fatalf("supply Clear left values: %+v", s)
	}
}
