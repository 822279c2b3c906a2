// Package plant steps one perennial plant day by day: a cohort leaf plus any
// number of pool organs, driven by external forcing.
package plant

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/APSIMInitiative/ApsimX-sub030/internal/persistence/snapshot"
	"github.com/APSIMInitiative/ApsimX-sub030/internal/sim/biomass"
	"github.com/APSIMInitiative/ApsimX-sub030/internal/sim/forcing"
	"github.com/APSIMInitiative/ApsimX-sub030/internal/sim/functions"
	"github.com/APSIMInitiative/ApsimX-sub030/internal/sim/organ"
	"github.com/APSIMInitiative/ApsimX-sub030/internal/sim/simerr"
	"github.com/APSIMInitiative/ApsimX-sub030/internal/sim/tuning"
)

// DriftTolerance bounds how far the leaf ledger's incremental aggregates may
// wander from the cohort sums before a step fails.
const DriftTolerance = 1e-6

type Plant struct {
	tu    tuning.Tuning
	log   *zap.Logger
	clock *functions.Clock

	leaf   *organ.PerennialLeaf
	organs []*organ.PoolOrgan
	byName map[string]*organ.PoolOrgan

	runID string
	ended bool
}

type LeafRecord struct {
	Live     biomass.Biomass `json:"live"`
	Dead     biomass.Biomass `json:"dead"`
	Detached biomass.Biomass `json:"detached"`
	Removed  biomass.Biomass `json:"removed"`
	Cohorts  int             `json:"cohorts"`

	LAI        float64 `json:"lai"`
	LAIDead    float64 `json:"lai_dead"`
	CoverGreen float64 `json:"cover_green"`
	CoverTotal float64 `json:"cover_total"`
	Fn         float64 `json:"fn"`

	GrowthRespiration      float64 `json:"growth_respiration"`
	MaintenanceRespiration float64 `json:"maintenance_respiration"`
}

type OrganRecord struct {
	Name     string          `json:"name"`
	Live     biomass.Biomass `json:"live"`
	Dead     biomass.Biomass `json:"dead"`
	Detached biomass.Biomass `json:"detached"`
	Senesced biomass.Biomass `json:"senesced"`

	NSupply biomass.SupplyType `json:"n_supply"`
	NDemand biomass.PoolType   `json:"n_demand"`
}

// DayRecord is what one step reports.
type DayRecord struct {
	RunID  string        `json:"run_id,omitempty"`
	Day    int           `json:"day"`
	Leaf   LeafRecord    `json:"leaf"`
	Organs []OrganRecord `json:"organs"`
	Ended  bool          `json:"ended,omitempty"`
	Digest string        `json:"digest"`
}

// New builds the plant at day 0 and sows every organ.
func New(tu tuning.Tuning, log *zap.Logger) (*Plant, error) {
	if log == nil {
		log = zap.NewNop()
	}
	tu.Normalize()
	if err := tu.Validate(); err != nil {
		return nil, err
	}
	clock := &functions.Clock{}
	p := &Plant{
		tu:     tu,
		log:    log,
		clock:  clock,
		byName: map[string]*organ.PoolOrgan{},
	}
	p.leaf = organ.NewPerennialLeaf(tu.Leaf.Name, buildLeafParams(tu.Leaf, clock), log)
	for _, c := range tu.Organs {
		o := organ.NewPoolOrgan(c.Name, buildPoolParams(c, clock), log)
		p.organs = append(p.organs, o)
		p.byName[c.Name] = o
	}
	p.leaf.Sow()
	for _, o := range p.organs {
		o.Sow()
	}
	log.Debug("plant sown", zap.Int("pool_organs", len(p.organs)))
	return p, nil
}

func (p *Plant) Day() int                   { return p.clock.Day() }
func (p *Plant) Ended() bool                { return p.ended }
func (p *Plant) Tuning() tuning.Tuning      { return p.tu }
func (p *Plant) Leaf() *organ.PerennialLeaf { return p.leaf }
func (p *Plant) Organs() []*organ.PoolOrgan { return p.organs }
func (p *Plant) SetRunID(id string)         { p.runID = id }
func (p *Plant) RunID() string              { return p.runID }

func (p *Plant) Organ(name string) (*organ.PoolOrgan, bool) {
	o, ok := p.byName[name]
	return o, ok
}

// Step advances one day and runs the daily sequence. A zero d.Day means the
// forcing is not tied to a day. An error leaves the plant mid-day; callers
// stop the run.
func (p *Plant) Step(d forcing.Day) (DayRecord, error) {
	if d.Day != 0 && d.Day != p.clock.Day()+1 {
		return DayRecord{}, simerr.Newf(simerr.CodeBadConfig, "Step", "forcing for day %d given on day %d", d.Day, p.clock.Day()+1)
	}
	for name := range d.Organs {
		if _, ok := p.byName[name]; !ok {
			return DayRecord{}, simerr.Newf(simerr.CodeBadConfig, "Step", "forcing names unknown organ %q", name)
		}
	}
	p.clock.Advance()
	day := p.clock.Day()
	wrap := func(organName string, err error) error {
		return fmt.Errorf("day %d: %s: %w", day, organName, err)
	}

	if p.ended {
		return p.record(), nil
	}

	p.leaf.DoDailyInitialisation()
	for _, o := range p.organs {
		o.DoDailyInitialisation()
	}

	p.leaf.DoPotentialGrowth()
	for _, o := range p.organs {
		if err := o.DoPotentialGrowth(); err != nil {
			return DayRecord{}, wrap(o.Name(), err)
		}
	}

	p.leaf.SetDMSupply(d.Photosynthesis)
	p.leaf.SetNSupply()
	p.leaf.SetDMDemand()
	p.leaf.SetNDemand()

	if err := p.leaf.SetDryMatterAllocation(d.LeafDM.Resolve(p.leaf.DMSupply())); err != nil {
		return DayRecord{}, wrap(p.leaf.Name(), err)
	}
	if err := p.leaf.SetNitrogenAllocation(d.LeafN.Resolve(p.leaf.NSupply())); err != nil {
		return DayRecord{}, wrap(p.leaf.Name(), err)
	}
	for _, o := range p.organs {
		od := d.Organs[o.Name()]
		start := o.StartLive()
		dm := od.DM.Resolve(biomass.SupplyType{Retranslocation: start.StorageWt + start.MetabolicWt})
		o.SetDryMatterPotentialAllocation(biomass.PoolType{Structural: dm.Structural, Metabolic: dm.Metabolic})
		if err := o.SetDryMatterAllocation(dm); err != nil {
			return DayRecord{}, wrap(o.Name(), err)
		}
		if err := o.SetNitrogenAllocation(od.N.Resolve(o.Agent().NSupply())); err != nil {
			return DayRecord{}, wrap(o.Name(), err)
		}
	}

	p.leaf.DoActualGrowth()
	for _, o := range p.organs {
		o.DoActualGrowth()
	}

	if d.KillFraction > 0 {
		p.leaf.Kill(d.KillFraction)
	}
	if !d.Removal.IsZero() {
		if _, err := p.leaf.RemoveBiomass(d.Removal); err != nil {
			return DayRecord{}, wrap(p.leaf.Name(), err)
		}
	}
	if d.Harvest {
		if _, err := p.leaf.Harvest(); err != nil {
			return DayRecord{}, wrap(p.leaf.Name(), err)
		}
	}
	if d.End {
		p.leaf.End()
		p.ended = true
		p.log.Info("plant ended", zap.Int("day", day))
	}

	if err := p.leaf.CheckAggregates(DriftTolerance); err != nil {
		return DayRecord{}, wrap(p.leaf.Name(), err)
	}
	return p.record(), nil
}

func (p *Plant) record() DayRecord {
	rec := DayRecord{
		RunID: p.runID,
		Day:   p.clock.Day(),
		Leaf: LeafRecord{
			Live:                   p.leaf.Live(),
			Dead:                   p.leaf.Dead(),
			Detached:               p.leaf.Detached(),
			Removed:                p.leaf.Removed(),
			Cohorts:                len(p.leaf.Leaves()),
			LAI:                    p.leaf.LAI(),
			LAIDead:                p.leaf.LAIDead(),
			CoverGreen:             p.leaf.CoverGreen(),
			CoverTotal:             p.leaf.CoverTotal(),
			Fn:                     p.leaf.Fn(),
			GrowthRespiration:      p.leaf.GrowthRespiration(),
			MaintenanceRespiration: p.leaf.MaintenanceRespiration(),
		},
		Organs: make([]OrganRecord, 0, len(p.organs)),
		Ended:  p.ended,
		Digest: p.stateDigest(),
	}
	for _, o := range p.organs {
		rec.Organs = append(rec.Organs, OrganRecord{
			Name:     o.Name(),
			Live:     *o.Live(),
			Dead:     *o.Dead(),
			Detached: o.Detached(),
			Senesced: *o.Senesced(),
			NSupply:  o.Agent().NSupply(),
			NDemand:  o.Agent().NDemand(),
		})
	}
	return rec
}

// Digest is the current state digest.
func (p *Plant) Digest() string { return p.stateDigest() }

// Export captures the full plant state after the last completed day.
func (p *Plant) Export() (snapshot.SnapshotV1, error) {
	tj, err := p.tu.JSON()
	if err != nil {
		return snapshot.SnapshotV1{}, err
	}
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			RunID:   p.runID,
			Day:     p.clock.Day(),
			Digest:  p.stateDigest(),
		},
		Tuning: tj,
		Leaf:   p.leaf.State(),
		Ended:  p.ended,
	}
	for _, o := range p.organs {
		snap.Organs = append(snap.Organs, o.State())
	}
	return snap, nil
}

// Import replaces the plant's state with snap. The snapshot's organs must
// match the plant's by name and order. On any error the plant keeps the state
// it had before the call.
func (p *Plant) Import(snap snapshot.SnapshotV1) error {
	if len(snap.Organs) != len(p.organs) {
		return simerr.Newf(simerr.CodeBadConfig, "Import", "snapshot has %d pool organs, plant has %d", len(snap.Organs), len(p.organs))
	}
	for i, s := range snap.Organs {
		if s.Name != p.organs[i].Name() {
			return simerr.Newf(simerr.CodeBadConfig, "Import", "snapshot organ %d is %q, plant has %q", i, s.Name, p.organs[i].Name())
		}
	}
	prev, err := p.Export()
	if err != nil {
		return err
	}
	p.restore(snap)
	if got := p.stateDigest(); snap.Header.Digest != "" && got != snap.Header.Digest {
		p.restore(prev)
		return fmt.Errorf("snapshot digest mismatch: header %s, restored %s", snap.Header.Digest, got)
	}
	return nil
}

func (p *Plant) restore(snap snapshot.SnapshotV1) {
	p.clock.Set(snap.Header.Day)
	p.leaf.Restore(snap.Leaf)
	for i, s := range snap.Organs {
		p.organs[i].Restore(s)
	}
	p.runID = snap.Header.RunID
	p.ended = snap.Ended
}
