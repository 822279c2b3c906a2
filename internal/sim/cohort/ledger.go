// Package cohort keeps a perennial leaf organ's tissue as an ordered list of
// leaf cohorts plus organ-level live and dead aggregates.
//
// The aggregates are maintained incrementally, never recomputed by summation:
// every change to a cohort's live or dead biomass goes through the delta
// helpers at the bottom of this file, which apply the identical delta to the
// aggregate in the same call.
package cohort

import (
	"github.com/APSIMInitiative/ApsimX-sub030/internal/sim/biomass"
	"github.com/APSIMInitiative/ApsimX-sub030/internal/sim/mathx"
	"github.com/APSIMInitiative/ApsimX-sub030/internal/sim/simerr"
)

// Leaf is one cohort: tissue created on the same day that ages, senesces and
// detaches as a unit.
type Leaf struct {
	Age      float64         `json:"age"`
	Area     float64         `json:"area"`
	AreaDead float64         `json:"area_dead"`
	Live     biomass.Biomass `json:"live"`
	Dead     biomass.Biomass `json:"dead"`
}

type Ledger struct {
	leaves []*Leaf
	live   biomass.Biomass
	dead   biomass.Biomass
}

func New() *Ledger { return &Ledger{} }

// Live returns a copy of the live aggregate.
func (l *Ledger) Live() biomass.Biomass { return l.live }

// Dead returns a copy of the dead aggregate.
func (l *Ledger) Dead() biomass.Biomass { return l.dead }

func (l *Ledger) Len() int { return len(l.leaves) }

// Leaves returns copies of the cohorts, oldest first.
func (l *Ledger) Leaves() []Leaf {
	out := make([]Leaf, len(l.leaves))
	for i, leaf := range l.leaves {
		out[i] = *leaf
	}
	return out
}

// Restore replaces the ledger's contents, e.g. from a snapshot. The
// aggregates are taken as given so a restored ledger carries the same
// rounding history as the one that was exported.
func (l *Ledger) Restore(leaves []Leaf, live, dead biomass.Biomass) {
	l.leaves = make([]*Leaf, len(leaves))
	for i := range leaves {
		leaf := leaves[i]
		l.leaves[i] = &leaf
	}
	l.live = live
	l.dead = dead
}

// LAI is the summed live area of all cohorts.
func (l *Ledger) LAI() float64 {
	var sum float64
	for _, leaf := range l.leaves {
		sum += leaf.Area
	}
	return sum
}

// LAIDead is the summed dead area of all cohorts.
func (l *Ledger) LAIDead() float64 {
	var sum float64
	for _, leaf := range l.leaves {
		sum += leaf.AreaDead
	}
	return sum
}

// SetLAI shrinks every cohort's live area in proportion to its share of the
// total so the total becomes v, moving the removed area to dead area. There
// is no growth path: v at or above the current LAI, or an organ with no live
// area, leaves the ledger unchanged.
func (l *Ledger) SetLAI(v float64) {
	total := l.LAI()
	if total <= 0 {
		return
	}
	if v < 0 {
		v = 0
	}
	if v >= total {
		return
	}
	prop := (total - v) / total
	for _, leaf := range l.leaves {
		removed := leaf.Area * prop
		leaf.Area -= removed
		leaf.AreaDead += removed
	}
}

// AddNewLeafMaterial grows the most recently added cohort.
func (l *Ledger) AddNewLeafMaterial(structuralWt, storageWt, structuralN, storageN, specificLeafArea float64) error {
	if len(l.leaves) == 0 {
		return simerr.Newf(simerr.CodeNoCohort, "AddNewLeafMaterial", "no leaf cohort to add material to")
	}
	l.addMaterial(l.leaves[len(l.leaves)-1], structuralWt, storageWt, structuralN, storageN, specificLeafArea)
	return nil
}

func (l *Ledger) addMaterial(leaf *Leaf, structuralWt, storageWt, structuralN, storageN, specificLeafArea float64) {
	l.addLive(leaf, biomass.Biomass{
		StructuralWt: structuralWt,
		StorageWt:    storageWt,
		StructuralN:  structuralN,
		StorageN:     storageN,
	})
	leaf.Area += (structuralWt + storageWt) * specificLeafArea
}

// ReduceLeavesUniformly keeps liveFraction of every cohort's live tissue and
// deadFraction of its dead tissue (biomass and area). Used after grazing,
// harvest and other removals.
func (l *Ledger) ReduceLeavesUniformly(liveFraction, deadFraction float64) {
	liveFraction = mathx.Clamp01(liveFraction)
	deadFraction = mathx.Clamp01(deadFraction)
	for _, leaf := range l.leaves {
		l.removeLive(leaf, leaf.Live.Scaled(1-liveFraction))
		l.removeDead(leaf, leaf.Dead.Scaled(1-deadFraction))
		leaf.Area *= liveFraction
		leaf.AreaDead *= deadFraction
	}
}

// RespireLeafFraction removes fraction of the live storage and metabolic
// weight of every cohort. Structural weight, nitrogen and area are untouched.
func (l *Ledger) RespireLeafFraction(fraction float64) {
	fraction = mathx.Clamp01(fraction)
	for _, leaf := range l.leaves {
		l.removeLive(leaf, biomass.Biomass{
			StorageWt:   leaf.Live.StorageWt * fraction,
			MetabolicWt: leaf.Live.MetabolicWt * fraction,
		})
	}
}

// GetSenescingLeafBiomass sums the live biomass of cohorts at or past
// residenceTime without changing anything.
func (l *Ledger) GetSenescingLeafBiomass(residenceTime float64) biomass.Biomass {
	var sum biomass.Biomass
	for _, leaf := range l.leaves {
		if leaf.Age >= residenceTime {
			sum.Add(leaf.Live)
		}
	}
	return sum
}

// SumWhere adds up selector over the cohorts matching pred.
func (l *Ledger) SumWhere(pred func(Leaf) bool, selector func(Leaf) float64) float64 {
	var sum float64
	for _, leaf := range l.leaves {
		if pred(*leaf) {
			sum += selector(*leaf)
		}
	}
	return sum
}

// SenesceLeaves moves all live tissue of cohorts at or past residenceTime to
// dead. Cohorts that have already senesced have nothing live left to move.
func (l *Ledger) SenesceLeaves(residenceTime float64) {
	for _, leaf := range l.leaves {
		if leaf.Age < residenceTime {
			continue
		}
		moved := leaf.Live
		l.removeLive(leaf, moved)
		l.addDead(leaf, moved)
		leaf.Live.Clear()
		leaf.AreaDead += leaf.Area
		leaf.Area = 0
	}
}

// KillLeavesUniformly moves fraction of every cohort's live tissue to dead,
// regardless of age.
func (l *Ledger) KillLeavesUniformly(fraction float64) {
	fraction = mathx.Clamp01(fraction)
	for _, leaf := range l.leaves {
		killed := leaf.Live.Scaled(fraction)
		l.removeLive(leaf, killed)
		l.addDead(leaf, killed)
		areaKilled := leaf.Area * fraction
		leaf.Area -= areaKilled
		leaf.AreaDead += areaKilled
	}
}

// DetachLeaves removes every cohort at or past residenceTime+detachmentTime
// and returns the dead biomass they carried. Only removed cohorts are taken
// out of the dead aggregate.
func (l *Ledger) DetachLeaves(residenceTime, detachmentTime float64) biomass.Biomass {
	threshold := residenceTime + detachmentTime
	var detached biomass.Biomass
	kept := l.leaves[:0]
	for _, leaf := range l.leaves {
		if leaf.Age >= threshold {
			detached.Add(leaf.Dead)
			l.removeDead(leaf, leaf.Dead)
			continue
		}
		kept = append(kept, leaf)
	}
	for i := len(kept); i < len(l.leaves); i++ {
		l.leaves[i] = nil
	}
	l.leaves = kept
	return detached
}

// AddLeaf appends an empty cohort. The very first cohort is seeded with
// initialMass of structural tissue at minNConc, plus storage N up to maxNConc.
func (l *Ledger) AddLeaf(initialMass, minNConc, maxNConc, specificLeafArea float64) {
	leaf := &Leaf{}
	l.leaves = append(l.leaves, leaf)
	if len(l.leaves) == 1 {
		l.addMaterial(leaf, initialMass, 0, initialMass*minNConc, initialMass*(maxNConc-minNConc), specificLeafArea)
	}
}

// Clear drops every cohort. The aggregates are left as they are; the owning
// organ resets them separately when it wants a full reset.
func (l *Ledger) Clear() {
	l.leaves = nil
}

// ResetAggregates zeroes the live and dead aggregates.
func (l *Ledger) ResetAggregates() {
	l.live.Clear()
	l.dead.Clear()
}

func (l *Ledger) IncreaseAge(delta float64) {
	if delta < 0 {
		delta = 0
	}
	for _, leaf := range l.leaves {
		leaf.Age += delta
	}
}

// DoBiomassRetranslocation removes removal g/m^2 of live storage weight,
// walking cohorts oldest first.
func (l *Ledger) DoBiomassRetranslocation(removal float64) error {
	remaining := removal
	for _, leaf := range l.leaves {
		if remaining <= 0 {
			break
		}
		take := min(leaf.Live.StorageWt, remaining)
		if take <= 0 {
			continue
		}
		l.removeLive(leaf, biomass.Biomass{StorageWt: take})
		remaining -= take
	}
	if mathx.IsGreaterThan(remaining, 0) {
		return simerr.New(simerr.CodeInsufficientSupply, "DoBiomassRetranslocation", removal, removal-remaining)
	}
	return nil
}

// DoNitrogenRetranslocation removes removal g/m^2 of live storage nitrogen,
// walking cohorts oldest first.
func (l *Ledger) DoNitrogenRetranslocation(removal float64) error {
	remaining := removal
	for _, leaf := range l.leaves {
		if remaining <= 0 {
			break
		}
		take := min(leaf.Live.StorageN, remaining)
		if take <= 0 {
			continue
		}
		l.removeLive(leaf, biomass.Biomass{StorageN: take})
		remaining -= take
	}
	if mathx.IsGreaterThan(remaining, 0) {
		return simerr.New(simerr.CodeInsufficientSupply, "DoNitrogenRetranslocation", removal, removal-remaining)
	}
	return nil
}

// Delta helpers. Each one touches the cohort and the aggregate together.

func (l *Ledger) addLive(leaf *Leaf, d biomass.Biomass) {
	leaf.Live.Add(d)
	l.live.Add(d)
}

func (l *Ledger) removeLive(leaf *Leaf, d biomass.Biomass) {
	leaf.Live.Subtract(d)
	l.live.Subtract(d)
}

func (l *Ledger) addDead(leaf *Leaf, d biomass.Biomass) {
	leaf.Dead.Add(d)
	l.dead.Add(d)
}

func (l *Ledger) removeDead(leaf *Leaf, d biomass.Biomass) {
	leaf.Dead.Subtract(d)
	l.dead.Subtract(d)
}
