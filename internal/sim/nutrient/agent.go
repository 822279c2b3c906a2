// Package nutrient implements an organ's nitrogen arbitration agent: it turns
// the organ's start-of-day pools into N supplies and demands for the plant
// arbitrator, then applies the arbitrator's decision back onto the organ.
package nutrient

import (
	"math"

	"github.com/APSIMInitiative/ApsimX-sub030/internal/sim/biomass"
	"github.com/APSIMInitiative/ApsimX-sub030/internal/sim/functions"
	"github.com/APSIMInitiative/ApsimX-sub030/internal/sim/mathx"
	"github.com/APSIMInitiative/ApsimX-sub030/internal/sim/simerr"
)

// ResidualBiomassTolerance is the start-of-day live weight (g/m^2) below which
// whatever survives senescence is too small to track and senesces as well.
const ResidualBiomassTolerance = 1e-8

// Organ is what the agent needs from the organ it serves. StartLive must be
// captured before any of the day's mutations and held for the whole cycle.
type Organ interface {
	StartLive() biomass.Biomass
	Live() *biomass.Biomass
	Dead() *biomass.Biomass
	Allocated() *biomass.Biomass
	Senesced() *biomass.Biomass
	SenescenceRate() float64
}

type Config struct {
	RetranslocationFactor functions.Function
	ReallocationFactor    functions.Function
	Demands               functions.Demands
}

type Agent struct {
	organ Organ
	cfg   Config

	nSupply               biomass.SupplyType
	nDemand               biomass.PoolType
	potentialDMAllocation biomass.PoolType
}

func NewAgent(organ Organ, cfg Config) *Agent {
	return &Agent{organ: organ, cfg: cfg}
}

func (a *Agent) NSupply() biomass.SupplyType             { return a.nSupply }
func (a *Agent) NDemand() biomass.PoolType               { return a.nDemand }
func (a *Agent) PotentialDMAllocation() biomass.PoolType { return a.potentialDMAllocation }

// Clear zeroes supplies, demands and the potential DM allocation. Called at
// the start of a run.
func (a *Agent) Clear() {
	a.nSupply.Clear()
	a.nDemand.Clear()
	a.potentialDMAllocation.Clear()
}

// ClearDaily zeroes supplies and demands at the start of a daily cycle. The
// potential DM allocation carries over until the next Clear.
func (a *Agent) ClearDaily() {
	a.nSupply.Clear()
	a.nDemand.Clear()
}

// SetNSupply computes reallocation from the senescing share of the mobile
// (storage + metabolic) N and retranslocation from the surviving share.
func (a *Agent) SetNSupply() error {
	start := a.organ.StartLive()
	mobile := start.StorageN + start.MetabolicN
	rate := a.organ.SenescenceRate()

	realloc := math.Max(0, mobile*rate*functions.Value(a.cfg.ReallocationFactor, 0))
	retrans := math.Max(0, mobile*(1-rate)*functions.Value(a.cfg.RetranslocationFactor, 0))

	// NaN slips through math.Max; treat it like a negative supply.
	if !(realloc >= -mathx.Tolerance) {
		return simerr.New(simerr.CodeNegativeSupply, "SetNSupply.Reallocation", realloc, mobile)
	}
	if !(retrans >= -mathx.Tolerance) {
		return simerr.New(simerr.CodeNegativeSupply, "SetNSupply.Retranslocation", retrans, mobile)
	}

	a.nSupply = biomass.SupplyType{Reallocation: realloc, Retranslocation: retrans}
	return nil
}

// SetNDemand copies the demand provider's current values.
func (a *Agent) SetNDemand() {
	a.nDemand = a.cfg.Demands.Pool()
}

func (a *Agent) SetDryMatterPotentialAllocation(dm biomass.PoolType) {
	a.potentialDMAllocation.Structural = dm.Structural
	a.potentialDMAllocation.Metabolic = dm.Metabolic
}

// SetNitrogenAllocation applies the arbitrator's N decision: fresh N into the
// live and allocated pools, retranslocated and reallocated N out of the live
// pools, and the day's senescence from live to dead.
func (a *Agent) SetNitrogenAllocation(n biomass.AllocationType) error {
	start := a.organ.StartLive()
	live := a.organ.Live()
	dead := a.organ.Dead()
	allocated := a.organ.Allocated()
	senesced := a.organ.Senesced()
	reallocFactor := functions.Value(a.cfg.ReallocationFactor, 0)
	mobile := start.StorageN + start.MetabolicN

	fresh := biomass.Biomass{StructuralN: n.Structural, StorageN: n.Storage, MetabolicN: n.Metabolic}
	live.Add(fresh)
	allocated.Add(fresh)

	if mathx.IsGreaterThan(n.Retranslocation, mobile-a.nSupply.Reallocation) {
		return simerr.New(simerr.CodeAllocationExceedsCapacity, "SetNitrogenAllocation.Retranslocation", n.Retranslocation, mobile-a.nSupply.Reallocation)
	}

	// Retranslocation comes out of storage first, the rest out of metabolic N.
	retransStorage := math.Min(math.Max(n.Retranslocation, 0), start.StorageN)
	retransMetabolic := math.Max(n.Retranslocation, 0) - retransStorage
	retransDelta := biomass.Biomass{StorageN: retransStorage, MetabolicN: retransMetabolic}
	live.Subtract(retransDelta)
	allocated.Subtract(retransDelta)

	senescedFraction := a.organ.SenescenceRate()
	if start.Wt()*(1-senescedFraction) < ResidualBiomassTolerance {
		senescedFraction = 1
	}

	if mathx.IsGreaterThan(n.Reallocation, mobile) {
		return simerr.New(simerr.CodeAllocationExceedsCapacity, "SetNitrogenAllocation.Reallocation", n.Reallocation, mobile)
	}

	reallocStorage := math.Min(math.Max(n.Reallocation, 0), start.StorageN*senescedFraction*reallocFactor)
	reallocMetabolic := math.Max(n.Reallocation, 0) - reallocStorage
	live.Subtract(biomass.Biomass{StorageN: reallocStorage, MetabolicN: reallocMetabolic})
	// The allocated tracker only records reallocation against storage.
	allocated.StorageN -= n.Reallocation

	// N already moved out today is no longer there to senesce.
	loss := biomass.Biomass{
		StructuralWt: start.StructuralWt * senescedFraction,
		MetabolicWt:  start.MetabolicWt * senescedFraction,
		StorageWt:    start.StorageWt * senescedFraction,
		StructuralN:  start.StructuralN * senescedFraction,
		StorageN:     math.Max(0, start.StorageN*senescedFraction-reallocStorage-retransStorage),
		MetabolicN:   math.Max(0, start.MetabolicN*senescedFraction-reallocMetabolic-retransMetabolic),
	}
	live.Subtract(loss)
	dead.Add(loss)
	senesced.Add(loss)
	return nil
}

// State is the agent's carried-over bookkeeping, for snapshots.
type State struct {
	NSupply               biomass.SupplyType `json:"n_supply"`
	NDemand               biomass.PoolType   `json:"n_demand"`
	PotentialDMAllocation biomass.PoolType   `json:"potential_dm_allocation"`
}

func (a *Agent) State() State {
	return State{NSupply: a.nSupply, NDemand: a.nDemand, PotentialDMAllocation: a.potentialDMAllocation}
}

func (a *Agent) Restore(s State) {
	a.nSupply = s.NSupply
	a.nDemand = s.NDemand
	a.potentialDMAllocation = s.PotentialDMAllocation
}
