package organ

import (
	"math"

	"go.uber.org/zap"

	"github.com/APSIMInitiative/ApsimX-sub030/internal/sim/biomass"
	"github.com/APSIMInitiative/ApsimX-sub030/internal/sim/functions"
	"github.com/APSIMInitiative/ApsimX-sub030/internal/sim/mathx"
	"github.com/APSIMInitiative/ApsimX-sub030/internal/sim/nutrient"
	"github.com/APSIMInitiative/ApsimX-sub030/internal/sim/simerr"
)

// PoolParams configure a pool organ such as a stem or root.
type PoolParams struct {
	InitialWt    functions.Function
	MinimumNConc functions.Function
	MaximumNConc functions.Function

	SenescenceRate functions.Function
	DetachmentRate functions.Function

	NRetranslocationFactor functions.Function
	NReallocationFactor    functions.Function

	DMDemands functions.Demands
	NDemands  functions.Demands
}

// PoolOrgan keeps its tissue as single live and dead pools. Nitrogen supply,
// demand and allocation go through its nutrient agent.
type PoolOrgan struct {
	name string
	p    PoolParams
	log  *zap.Logger

	live      biomass.Biomass
	dead      biomass.Biomass
	allocated biomass.Biomass
	senesced  biomass.Biomass
	detached  biomass.Biomass
	startLive biomass.Biomass

	senescenceRate float64
	detachmentRate float64
	dmDemand       biomass.PoolType

	agent *nutrient.Agent
}

func NewPoolOrgan(name string, p PoolParams, log *zap.Logger) *PoolOrgan {
	if log == nil {
		log = zap.NewNop()
	}
	o := &PoolOrgan{name: name, p: p, log: log.With(zap.String("organ", name))}
	o.agent = nutrient.NewAgent(o, nutrient.Config{
		RetranslocationFactor: p.NRetranslocationFactor,
		ReallocationFactor:    p.NReallocationFactor,
		Demands:               p.NDemands,
	})
	return o
}

func (o *PoolOrgan) Name() string           { return o.name }
func (o *PoolOrgan) Agent() *nutrient.Agent { return o.agent }

// nutrient.Organ
func (o *PoolOrgan) StartLive() biomass.Biomass  { return o.startLive }
func (o *PoolOrgan) Live() *biomass.Biomass      { return &o.live }
func (o *PoolOrgan) Dead() *biomass.Biomass      { return &o.dead }
func (o *PoolOrgan) Allocated() *biomass.Biomass { return &o.allocated }
func (o *PoolOrgan) Senesced() *biomass.Biomass  { return &o.senesced }
func (o *PoolOrgan) SenescenceRate() float64     { return o.senescenceRate }

func (o *PoolOrgan) Detached() biomass.Biomass  { return o.detached }
func (o *PoolOrgan) DMDemand() biomass.PoolType { return o.dmDemand }

// Sow sets the live pool to the initial structural weight carrying minimum
// N concentration, plus storage N up to the maximum concentration.
func (o *PoolOrgan) Sow() {
	wt := functions.Value(o.p.InitialWt, 0)
	minN := functions.Value(o.p.MinimumNConc, 0)
	maxN := functions.Value(o.p.MaximumNConc, 0)
	o.live = biomass.Biomass{
		StructuralWt: wt,
		StructuralN:  wt * minN,
		StorageN:     wt * math.Max(0, maxN-minN),
	}
	o.dead.Clear()
	o.allocated.Clear()
	o.senesced.Clear()
	o.detached.Clear()
	o.startLive.Clear()
	o.dmDemand.Clear()
	o.agent.Clear()
	o.log.Debug("sown", zap.Float64("wt", wt))
}

func (o *PoolOrgan) DoDailyInitialisation() {
	o.allocated.Clear()
	o.senesced.Clear()
	o.detached.Clear()
	o.agent.ClearDaily()
}

// DoPotentialGrowth captures the start-of-day live pool and computes the
// day's rates, demands and supplies.
func (o *PoolOrgan) DoPotentialGrowth() error {
	o.startLive = o.live
	o.senescenceRate = mathx.Clamp01(functions.Value(o.p.SenescenceRate, 0))
	o.detachmentRate = mathx.Clamp01(functions.Value(o.p.DetachmentRate, 0))
	o.dmDemand = o.p.DMDemands.Pool()
	o.agent.SetNDemand()
	return o.agent.SetNSupply()
}

func (o *PoolOrgan) SetDryMatterPotentialAllocation(p biomass.PoolType) {
	o.agent.SetDryMatterPotentialAllocation(p)
}

// SetDryMatterAllocation adds the allocated weight and pays retranslocated
// weight out of storage first, then metabolic.
func (o *PoolOrgan) SetDryMatterAllocation(a biomass.AllocationType) error {
	capacity := o.startLive.StorageWt + o.startLive.MetabolicWt
	if mathx.IsGreaterThan(a.Retranslocation, capacity) {
		return simerr.New(simerr.CodeAllocationExceedsCapacity, "SetDryMatterAllocation.Retranslocation", a.Retranslocation, capacity)
	}
	fresh := biomass.Biomass{StructuralWt: a.Structural, StorageWt: a.Storage, MetabolicWt: a.Metabolic}
	o.live.Add(fresh)
	o.allocated.Add(fresh)

	retrans := math.Max(0, a.Retranslocation)
	fromStorage := math.Min(retrans, o.startLive.StorageWt)
	out := biomass.Biomass{StorageWt: fromStorage, MetabolicWt: retrans - fromStorage}
	o.live.Subtract(out)
	o.allocated.Subtract(out)
	return nil
}

func (o *PoolOrgan) SetNitrogenAllocation(a biomass.AllocationType) error {
	return o.agent.SetNitrogenAllocation(a)
}

// DoActualGrowth detaches the day's share of dead tissue. A dead pool too
// small to leave a trackable remainder detaches completely.
func (o *PoolOrgan) DoActualGrowth() {
	rate := o.detachmentRate
	if o.dead.Wt()*(1-rate) < nutrient.ResidualBiomassTolerance {
		rate = 1
	}
	if rate <= 0 {
		return
	}
	d := o.dead.Scaled(rate)
	o.detached.Add(d)
	o.dead.Subtract(d)
}

func (o *PoolOrgan) Wt() float64 { return o.live.Wt() + o.dead.Wt() }
func (o *PoolOrgan) N() float64  { return o.live.N() + o.dead.N() }

// PoolState is a pool organ's full carried-over state.
type PoolState struct {
	Name           string          `json:"name"`
	Live           biomass.Biomass `json:"live"`
	Dead           biomass.Biomass `json:"dead"`
	Allocated      biomass.Biomass `json:"allocated"`
	Senesced       biomass.Biomass `json:"senesced"`
	Detached       biomass.Biomass `json:"detached"`
	StartLive      biomass.Biomass `json:"start_live"`
	SenescenceRate float64         `json:"senescence_rate"`
	DetachmentRate float64         `json:"detachment_rate"`

	DMDemand biomass.PoolType `json:"dm_demand"`
	Agent    nutrient.State   `json:"agent"`
}

func (o *PoolOrgan) State() PoolState {
	return PoolState{
		Name:           o.name,
		Live:           o.live,
		Dead:           o.dead,
		Allocated:      o.allocated,
		Senesced:       o.senesced,
		Detached:       o.detached,
		StartLive:      o.startLive,
		SenescenceRate: o.senescenceRate,
		DetachmentRate: o.detachmentRate,
		DMDemand:       o.dmDemand,
		Agent:          o.agent.State(),
	}
}

func (o *PoolOrgan) Restore(s PoolState) {
	o.live = s.Live
	o.dead = s.Dead
	o.allocated = s.Allocated
	o.senesced = s.Senesced
	o.detached = s.Detached
	o.startLive = s.StartLive
	o.senescenceRate = s.SenescenceRate
	o.detachmentRate = s.DetachmentRate
	o.dmDemand = s.DMDemand
	o.agent.Restore(s.Agent)
}
