// Package forcing loads the external daily drivers of a run: photosynthesis,
// the arbitrator's per-organ allocation decisions and disturbance events.
package forcing

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/APSIMInitiative/ApsimX-sub030/internal/sim/biomass"
	"github.com/APSIMInitiative/ApsimX-sub030/internal/sim/mathx"
	"github.com/APSIMInitiative/ApsimX-sub030/internal/sim/organ"
	"github.com/APSIMInitiative/ApsimX-sub030/internal/sim/simerr"
)

// Allocation is an arbitration decision for one organ and one resource.
// Fresh amounts are absolute; outflows are fractions of what the organ
// offered that day.
type Allocation struct {
	Structural float64 `yaml:"structural" json:"structural"`
	Storage    float64 `yaml:"storage" json:"storage"`
	Metabolic  float64 `yaml:"metabolic" json:"metabolic"`

	RetranslocationFraction float64 `yaml:"retranslocation_fraction" json:"retranslocation_fraction"`
	ReallocationFraction    float64 `yaml:"reallocation_fraction" json:"reallocation_fraction"`
}

// Resolve turns the decision into amounts against the organ's offered supply.
func (a Allocation) Resolve(supply biomass.SupplyType) biomass.AllocationType {
	return biomass.AllocationType{
		Structural:      a.Structural,
		Storage:         a.Storage,
		Metabolic:       a.Metabolic,
		Retranslocation: mathx.Clamp01(a.RetranslocationFraction) * supply.Retranslocation,
		Reallocation:    mathx.Clamp01(a.ReallocationFraction) * supply.Reallocation,
	}
}

type OrganDay struct {
	DM Allocation `yaml:"dm" json:"dm"`
	N  Allocation `yaml:"n" json:"n"`
}

// Day is one entry of the forcing file. An entry with Through set applies to
// every day in [Day, Through].
type Day struct {
	Day     int `yaml:"day" json:"day"`
	Through int `yaml:"through,omitempty" json:"through,omitempty"`

	Photosynthesis float64             `yaml:"photosynthesis" json:"photosynthesis"`
	LeafDM         Allocation          `yaml:"leaf_dm" json:"leaf_dm"`
	LeafN          Allocation          `yaml:"leaf_n" json:"leaf_n"`
	Organs         map[string]OrganDay `yaml:"organs,omitempty" json:"organs,omitempty"`

	KillFraction float64       `yaml:"kill_fraction" json:"kill_fraction"`
	Removal      organ.Removal `yaml:"removal" json:"removal"`
	Harvest      bool          `yaml:"harvest,omitempty" json:"harvest,omitempty"`
	End          bool          `yaml:"end" json:"end"`
}

func (d Day) last() int {
	if d.Through > d.Day {
		return d.Through
	}
	return d.Day
}

type Series struct {
	days []Day
}

type file struct {
	Days []Day `yaml:"days"`
}

func Load(path string) (*Series, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

func Parse(raw []byte) (*Series, error) {
	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, simerr.Newf(simerr.CodeBadConfig, "forcing", "%v", err)
	}
	return NewSeries(f.Days)
}

// NewSeries validates and orders entries. Overlapping ranges are rejected.
func NewSeries(days []Day) (*Series, error) {
	out := make([]Day, len(days))
	copy(out, days)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	for i, d := range out {
		if err := validateDay(d); err != nil {
			return nil, err
		}
		if i > 0 && d.Day <= out[i-1].last() {
			return nil, simerr.Newf(simerr.CodeBadConfig, "forcing", "day %d overlaps the entry starting at day %d", d.Day, out[i-1].Day)
		}
	}
	return &Series{days: out}, nil
}

func validateDay(d Day) error {
	bad := func(format string, args ...any) error {
		return simerr.Newf(simerr.CodeBadConfig, "forcing", "day %d: "+format, append([]any{d.Day}, args...)...)
	}
	if d.Day < 1 {
		return bad("day must be >= 1")
	}
	if d.Through != 0 && d.Through < d.Day {
		return bad("through %d is before day", d.Through)
	}
	if d.Photosynthesis < 0 {
		return bad("photosynthesis must be >= 0")
	}
	if d.KillFraction < 0 || d.KillFraction > 1 {
		return bad("kill_fraction must be in [0, 1]")
	}
	allocs := map[string]Allocation{"leaf_dm": d.LeafDM, "leaf_n": d.LeafN}
	for name, o := range d.Organs {
		allocs[name+".dm"] = o.DM
		allocs[name+".n"] = o.N
	}
	for name, a := range allocs {
		if a.Structural < 0 || a.Storage < 0 || a.Metabolic < 0 {
			return bad("%s amounts must be >= 0", name)
		}
		if a.RetranslocationFraction < 0 || a.RetranslocationFraction > 1 || a.ReallocationFraction < 0 || a.ReallocationFraction > 1 {
			return bad("%s fractions must be in [0, 1]", name)
		}
	}
	return nil
}

// At returns the forcing for day, or a zero Day carrying only the day number
// when no entry covers it.
func (s *Series) At(day int) Day {
	if s == nil {
		return Day{Day: day}
	}
	i := sort.Search(len(s.days), func(i int) bool { return s.days[i].last() >= day })
	if i < len(s.days) && s.days[i].Day <= day {
		d := s.days[i]
		d.Day = day
		d.Through = 0
		return d
	}
	return Day{Day: day}
}

// LastDay is the final day any entry covers, or 0 for an empty series.
func (s *Series) LastDay() int {
	if s == nil || len(s.days) == 0 {
		return 0
	}
	return s.days[len(s.days)-1].last()
}

func (s *Series) Len() int {
	if s == nil {
		return 0
	}
	return len(s.days)
}
