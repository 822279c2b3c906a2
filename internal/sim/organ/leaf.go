// Package organ implements the plant organs stepped by the simulation: a
// perennial leaf whose tissue is kept as age cohorts, and pool organs whose
// nitrogen is arbitrated by a nutrient agent.
package organ

import (
	"math"

	"go.uber.org/zap"

	"github.com/APSIMInitiative/ApsimX-sub030/internal/sim/biomass"
	"github.com/APSIMInitiative/ApsimX-sub030/internal/sim/cohort"
	"github.com/APSIMInitiative/ApsimX-sub030/internal/sim/functions"
	"github.com/APSIMInitiative/ApsimX-sub030/internal/sim/mathx"
	"github.com/APSIMInitiative/ApsimX-sub030/internal/sim/simerr"
)

// maxCover keeps covers strictly below 1 so light-interception logs stay finite.
const maxCover = 0.999999999

// LeafParams are the perennial leaf's parameter functions, evaluated on the
// day they are used. MaintenanceRespiration is optional. Harvest holds the
// fixed fractions a harvest removes.
type LeafParams struct {
	InitialWt        functions.Function
	MinimumNConc     functions.Function
	MaximumNConc     functions.Function
	SpecificLeafArea functions.Function

	LeafResidenceTime   functions.Function
	LeafDevelopmentRate functions.Function
	LeafDetachmentTime  functions.Function
	LeafKillFraction    functions.Function
	MinimumLAI          functions.Function

	NRetranslocationFactor  functions.Function
	NReallocationFactor     functions.Function
	DMRetranslocationFactor functions.Function
	DMConversionEfficiency  functions.Function
	CarbonConcentration     functions.Function

	ExtinctionCoefficient     functions.Function
	ExtinctionCoefficientDead functions.Function
	MaintenanceRespiration    functions.Function

	DMDemands functions.Demands
	NDemands  functions.Demands

	Harvest Removal
}

// Removal is the fraction of live and dead tissue taken off the organ and
// the fraction sent to surface residue by a grazing or harvest event.
type Removal struct {
	LiveToRemove  float64 `json:"live_to_remove" yaml:"live_to_remove"`
	DeadToRemove  float64 `json:"dead_to_remove" yaml:"dead_to_remove"`
	LiveToResidue float64 `json:"live_to_residue" yaml:"live_to_residue"`
	DeadToResidue float64 `json:"dead_to_residue" yaml:"dead_to_residue"`
}

func (r Removal) IsZero() bool { return r == Removal{} }

type PerennialLeaf struct {
	name string
	p    LeafParams
	log  *zap.Logger

	ledger    *cohort.Ledger
	startLive biomass.Biomass

	dmSupply    biomass.SupplyType
	nSupply     biomass.SupplyType
	lastNSupply biomass.SupplyType
	dmDemand    biomass.PoolType
	nDemand     biomass.PoolType

	detached biomass.Biomass
	removed  biomass.Biomass

	growthRespiration      float64
	maintenanceRespiration float64
}

func NewPerennialLeaf(name string, p LeafParams, log *zap.Logger) *PerennialLeaf {
	if log == nil {
		log = zap.NewNop()
	}
	return &PerennialLeaf{
		name:   name,
		p:      p,
		log:    log.With(zap.String("organ", name)),
		ledger: cohort.New(),
	}
}

func (l *PerennialLeaf) Name() string { return l.name }

// Sow resets the organ. The first cohort is seeded on the first
// DoPotentialGrowth.
func (l *PerennialLeaf) Sow() {
	l.reset()
	l.log.Debug("sown")
}

func (l *PerennialLeaf) reset() {
	l.ledger.Clear()
	l.ledger.ResetAggregates()
	l.startLive.Clear()
	l.dmSupply.Clear()
	l.nSupply.Clear()
	l.lastNSupply.Clear()
	l.dmDemand.Clear()
	l.nDemand.Clear()
	l.growthRespiration = 0
	l.maintenanceRespiration = 0
}

func (l *PerennialLeaf) DoDailyInitialisation() {
	l.detached.Clear()
	l.removed.Clear()
	l.growthRespiration = 0
	l.maintenanceRespiration = 0
}

// DoPotentialGrowth starts today's cohort, ages the canopy and captures the
// start-of-day live pool.
func (l *PerennialLeaf) DoPotentialGrowth() {
	l.ledger.AddLeaf(
		functions.Value(l.p.InitialWt, 0),
		functions.Value(l.p.MinimumNConc, 0),
		functions.Value(l.p.MaximumNConc, 0),
		functions.Value(l.p.SpecificLeafArea, 0),
	)
	l.ledger.IncreaseAge(functions.Value(l.p.LeafDevelopmentRate, 1))
	l.startLive = l.ledger.Live()
	l.lastNSupply = l.nSupply
}

func (l *PerennialLeaf) SetDMSupply(photosynthesis float64) {
	l.dmSupply = biomass.SupplyType{
		Fixation:        photosynthesis,
		Retranslocation: l.startLive.StorageWt * functions.Value(l.p.DMRetranslocationFactor, 0),
	}
}

func (l *PerennialLeaf) SetNSupply() {
	minN := functions.Value(l.p.MinimumNConc, 0)
	labileN := math.Max(0, l.startLive.StorageN-l.startLive.StorageWt*minN)
	senescing := l.ledger.GetSenescingLeafBiomass(functions.Value(l.p.LeafResidenceTime, 0))

	realloc := senescing.StorageN * functions.Value(l.p.NReallocationFactor, 0)
	// Labile N net of the reallocation supply offered at the start of the day;
	// a negative remainder offers nothing.
	retrans := math.Max(0, labileN-l.lastNSupply.Reallocation) * functions.Value(l.p.NRetranslocationFactor, 0)
	l.nSupply = biomass.SupplyType{Reallocation: realloc, Retranslocation: retrans}
}

func (l *PerennialLeaf) SetDMDemand() {
	d := l.p.DMDemands.Pool()
	d.Storage = 0
	d.Metabolic = 0
	l.dmDemand = d
}

func (l *PerennialLeaf) SetNDemand() {
	d := l.p.NDemands.Pool()
	d.Metabolic = 0
	l.nDemand = d
}

// SetDryMatterAllocation converts allocated assimilate to leaf tissue on the
// newest cohort and pays the day's DM retranslocation out of storage.
func (l *PerennialLeaf) SetDryMatterAllocation(a biomass.AllocationType) error {
	eff := functions.Value(l.p.DMConversionEfficiency, 1)
	cConc := functions.Value(l.p.CarbonConcentration, 0.4)
	sla := functions.Value(l.p.SpecificLeafArea, 0)

	l.growthRespiration = (a.Structural + a.Storage) * (mathx.Divide(1, eff, 0)*(12.0/30.0) - cConc) * 44.0 / 12.0

	structural := math.Min(a.Structural*eff, l.dmDemand.Structural)
	if err := l.ledger.AddNewLeafMaterial(structural, a.Storage*eff, 0, 0, sla); err != nil {
		return err
	}
	return l.ledger.DoBiomassRetranslocation(a.Retranslocation)
}

func (l *PerennialLeaf) SetNitrogenAllocation(a biomass.AllocationType) error {
	sla := functions.Value(l.p.SpecificLeafArea, 0)
	if err := l.ledger.AddNewLeafMaterial(0, 0, a.Structural, a.Storage, sla); err != nil {
		return err
	}
	return l.ledger.DoNitrogenRetranslocation(a.Retranslocation + a.Reallocation)
}

// DoActualGrowth senesces old cohorts, kills canopy above the minimum LAI,
// detaches cohorts past their detachment time and respires maintenance.
func (l *PerennialLeaf) DoActualGrowth() {
	residence := functions.Value(l.p.LeafResidenceTime, 0)
	l.ledger.SenesceLeaves(residence)

	kill := functions.Value(l.p.LeafKillFraction, 0)
	minLAI := functions.Value(l.p.MinimumLAI, 0)
	lkf := math.Max(0, math.Min(kill, mathx.Divide(1-minLAI, l.ledger.LAI(), 0)))
	if lkf > 0 {
		l.ledger.KillLeavesUniformly(lkf)
	}

	detached := l.ledger.DetachLeaves(residence, functions.Value(l.p.LeafDetachmentTime, 0))
	l.detached.Add(detached)

	if l.p.MaintenanceRespiration == nil {
		return
	}
	live := l.ledger.Live()
	if nonStructural := live.MetabolicWt + live.StorageWt; nonStructural > 0 {
		f := mathx.Clamp01(l.p.MaintenanceRespiration.Value())
		l.maintenanceRespiration = nonStructural * f
		l.ledger.RespireLeafFraction(f)
	}
}

// Kill moves fraction of the live canopy to dead, e.g. after frost.
func (l *PerennialLeaf) Kill(fraction float64) {
	l.log.Info("killing leaves", zap.Float64("fraction", fraction))
	l.ledger.KillLeavesUniformly(fraction)
}

// RemoveBiomass applies a removal event and returns the biomass taken off
// the field. Residue fractions join today's detached flow.
func (l *PerennialLeaf) RemoveBiomass(r Removal) (biomass.Biomass, error) {
	for _, f := range []float64{r.LiveToRemove, r.DeadToRemove, r.LiveToResidue, r.DeadToResidue} {
		if f < 0 || f > 1 {
			return biomass.Biomass{}, simerr.Newf(simerr.CodeBadConfig, "RemoveBiomass", "fraction %g outside [0, 1]", f)
		}
	}
	if mathx.IsGreaterThan(r.LiveToRemove+r.LiveToResidue, 1) || mathx.IsGreaterThan(r.DeadToRemove+r.DeadToResidue, 1) {
		return biomass.Biomass{}, simerr.Newf(simerr.CodeBadConfig, "RemoveBiomass", "live or dead fractions sum above 1")
	}
	live, dead := l.ledger.Live(), l.ledger.Dead()

	removed := live.Scaled(r.LiveToRemove).Plus(dead.Scaled(r.DeadToRemove))
	l.removed.Add(removed)
	l.detached.Add(live.Scaled(r.LiveToResidue).Plus(dead.Scaled(r.DeadToResidue)))

	l.ledger.ReduceLeavesUniformly(1-r.LiveToRemove-r.LiveToResidue, 1-r.DeadToRemove-r.DeadToResidue)
	l.log.Debug("biomass removed",
		zap.Float64("removed_wt", removed.Wt()),
		zap.Float64("removed_n", removed.N()),
	)
	return removed, nil
}

// Harvest removes the configured harvest fractions of live and dead tissue.
func (l *PerennialLeaf) Harvest() (biomass.Biomass, error) {
	l.log.Info("harvesting", zap.Float64("live_to_remove", l.p.Harvest.LiveToRemove), zap.Float64("dead_to_remove", l.p.Harvest.DeadToRemove))
	return l.RemoveBiomass(l.p.Harvest)
}

// End sends all remaining tissue to residue and resets the organ.
func (l *PerennialLeaf) End() {
	l.detached.Add(l.ledger.Live().Plus(l.ledger.Dead()))
	l.reset()
	l.log.Info("organ ended")
}

// CheckAggregates verifies that the ledger's incremental aggregates still
// equal the cohort sums within tol.
func (l *PerennialLeaf) CheckAggregates(tol float64) error {
	var live, dead biomass.Biomass
	for _, leaf := range l.ledger.Leaves() {
		live.Add(leaf.Live)
		dead.Add(leaf.Dead)
	}
	if !live.ApproxEqual(l.ledger.Live(), tol) {
		return simerr.Newf(simerr.CodeAggregateDrift, "CheckAggregates", "live aggregate %+v, cohort sum %+v", l.ledger.Live(), live)
	}
	if !dead.ApproxEqual(l.ledger.Dead(), tol) {
		return simerr.Newf(simerr.CodeAggregateDrift, "CheckAggregates", "dead aggregate %+v, cohort sum %+v", l.ledger.Dead(), dead)
	}
	return nil
}

func (l *PerennialLeaf) Live() biomass.Biomass      { return l.ledger.Live() }
func (l *PerennialLeaf) Dead() biomass.Biomass      { return l.ledger.Dead() }
func (l *PerennialLeaf) StartLive() biomass.Biomass { return l.startLive }
func (l *PerennialLeaf) Detached() biomass.Biomass  { return l.detached }
func (l *PerennialLeaf) Removed() biomass.Biomass   { return l.removed }
func (l *PerennialLeaf) Leaves() []cohort.Leaf      { return l.ledger.Leaves() }

func (l *PerennialLeaf) DMSupply() biomass.SupplyType    { return l.dmSupply }
func (l *PerennialLeaf) NSupply() biomass.SupplyType     { return l.nSupply }
func (l *PerennialLeaf) LastNSupply() biomass.SupplyType { return l.lastNSupply }
func (l *PerennialLeaf) DMDemand() biomass.PoolType      { return l.dmDemand }
func (l *PerennialLeaf) NDemand() biomass.PoolType       { return l.nDemand }

func (l *PerennialLeaf) GrowthRespiration() float64      { return l.growthRespiration }
func (l *PerennialLeaf) MaintenanceRespiration() float64 { return l.maintenanceRespiration }

func (l *PerennialLeaf) LAI() float64      { return l.ledger.LAI() }
func (l *PerennialLeaf) LAIDead() float64  { return l.ledger.LAIDead() }
func (l *PerennialLeaf) LAITotal() float64 { return l.ledger.LAI() + l.ledger.LAIDead() }

func (l *PerennialLeaf) CoverGreen() float64 {
	return cover(functions.Value(l.p.ExtinctionCoefficient, 0), l.LAI())
}

func (l *PerennialLeaf) CoverDead() float64 {
	return cover(functions.Value(l.p.ExtinctionCoefficientDead, 0), l.LAIDead())
}

func (l *PerennialLeaf) CoverTotal() float64 {
	return 1 - (1-l.CoverGreen())*(1-l.CoverDead())
}

// SpecificLeafArea is the canopy's current area per unit live weight.
func (l *PerennialLeaf) SpecificLeafArea() float64 {
	return mathx.Divide(l.LAI(), l.ledger.Live().Wt(), 0)
}

// Fn is live N relative to the N the live weight could hold at maximum
// concentration.
func (l *PerennialLeaf) Fn() float64 {
	live := l.ledger.Live()
	return mathx.Divide(live.N(), live.Wt()*functions.Value(l.p.MaximumNConc, 0), 1)
}

func (l *PerennialLeaf) Wt() float64 { return l.ledger.Live().Wt() + l.ledger.Dead().Wt() }
func (l *PerennialLeaf) N() float64  { return l.ledger.Live().N() + l.ledger.Dead().N() }

func cover(k, lai float64) float64 {
	return mathx.Bound(1-math.Exp(-k*lai), 0, maxCover)
}

// LeafState is the perennial leaf's full carried-over state.
type LeafState struct {
	Leaves      []cohort.Leaf      `json:"leaves"`
	Live        biomass.Biomass    `json:"live"`
	Dead        biomass.Biomass    `json:"dead"`
	StartLive   biomass.Biomass    `json:"start_live"`
	DMSupply    biomass.SupplyType `json:"dm_supply"`
	NSupply     biomass.SupplyType `json:"n_supply"`
	LastNSupply biomass.SupplyType `json:"last_n_supply"`
	DMDemand    biomass.PoolType   `json:"dm_demand"`
	NDemand     biomass.PoolType   `json:"n_demand"`
	Detached    biomass.Biomass    `json:"detached"`
	Removed     biomass.Biomass    `json:"removed"`

	GrowthRespiration      float64 `json:"growth_respiration"`
	MaintenanceRespiration float64 `json:"maintenance_respiration"`
}

func (l *PerennialLeaf) State() LeafState {
	return LeafState{
		Leaves:                 l.ledger.Leaves(),
		Live:                   l.ledger.Live(),
		Dead:                   l.ledger.Dead(),
		StartLive:              l.startLive,
		DMSupply:               l.dmSupply,
		NSupply:                l.nSupply,
		LastNSupply:            l.lastNSupply,
		DMDemand:               l.dmDemand,
		NDemand:                l.nDemand,
		Detached:               l.detached,
		Removed:                l.removed,
		GrowthRespiration:      l.growthRespiration,
		MaintenanceRespiration: l.maintenanceRespiration,
	}
}

func (l *PerennialLeaf) Restore(s LeafState) {
	l.ledger.Restore(s.Leaves, s.Live, s.Dead)
	l.startLive = s.StartLive
	l.dmSupply = s.DMSupply
	l.nSupply = s.NSupply
	l.lastNSupply = s.LastNSupply
	l.dmDemand = s.DMDemand
	l.nDemand = s.NDemand
	l.detached = s.Detached
	l.removed = s.Removed
	l.growthRespiration = s.GrowthRespiration
	l.maintenanceRespiration = s.MaintenanceRespiration
}
