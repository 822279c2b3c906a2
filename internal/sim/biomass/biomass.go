// Package biomass holds the dry-weight/nitrogen value types shared by organs,
// the cohort ledger and the nutrient arbitration agent. All amounts are g/m^2.
package biomass

import "github.com/APSIMInitiative/ApsimX-sub030/internal/sim/mathx"

// Biomass is a mutable aggregate of structural, metabolic and storage dry
// weight and nitrogen. It is a plain value: assigning or returning it copies it.
type Biomass struct {
	StructuralWt float64 `json:"structural_wt"`
	MetabolicWt  float64 `json:"metabolic_wt"`
	StorageWt    float64 `json:"storage_wt"`
	StructuralN  float64 `json:"structural_n"`
	MetabolicN   float64 `json:"metabolic_n"`
	StorageN     float64 `json:"storage_n"`
}

func (b Biomass) Wt() float64 { return b.StructuralWt + b.MetabolicWt + b.StorageWt }
func (b Biomass) N() float64  { return b.StructuralN + b.MetabolicN + b.StorageN }

// NConc is N/Wt, or 0 for an empty pool.
func (b Biomass) NConc() float64 { return mathx.Divide(b.N(), b.Wt(), 0) }

func (b *Biomass) Add(o Biomass) {
	b.StructuralWt += o.StructuralWt
	b.MetabolicWt += o.MetabolicWt
	b.StorageWt += o.StorageWt
	b.StructuralN += o.StructuralN
	b.MetabolicN += o.MetabolicN
	b.StorageN += o.StorageN
}

func (b *Biomass) Subtract(o Biomass) {
	b.StructuralWt -= o.StructuralWt
	b.MetabolicWt -= o.MetabolicWt
	b.StorageWt -= o.StorageWt
	b.StructuralN -= o.StructuralN
	b.MetabolicN -= o.MetabolicN
	b.StorageN -= o.StorageN
}

func (b *Biomass) Multiply(f float64) {
	b.StructuralWt *= f
	b.MetabolicWt *= f
	b.StorageWt *= f
	b.StructuralN *= f
	b.MetabolicN *= f
	b.StorageN *= f
}

func (b *Biomass) Clear() { *b = Biomass{} }

func (b Biomass) Plus(o Biomass) Biomass {
	b.Add(o)
	return b
}

func (b Biomass) Minus(o Biomass) Biomass {
	b.Subtract(o)
	return b
}

func (b Biomass) Scaled(f float64) Biomass {
	b.Multiply(f)
	return b
}

// IsZero reports whether every component is zero within mathx.Tolerance.
func (b Biomass) IsZero() bool {
	for _, v := range b.components() {
		if !mathx.FloatsAreEqual(v, 0) {
			return false
		}
	}
	return true
}

// ApproxEqual compares component-wise with an absolute tolerance.
func (b Biomass) ApproxEqual(o Biomass, tol float64) bool {
	x, y := b.components(), o.components()
	for i := range x {
		d := x[i] - y[i]
		if d > tol || d < -tol {
			return false
		}
	}
	return true
}

func (b Biomass) components() [6]float64 {
	return [6]float64{b.StructuralWt, b.MetabolicWt, b.StorageWt, b.StructuralN, b.MetabolicN, b.StorageN}
}

// Components returns the six fields in a fixed order (wt structural, metabolic,
// storage, then N in the same order). Used for digests.
func (b Biomass) Components() [6]float64 { return b.components() }
