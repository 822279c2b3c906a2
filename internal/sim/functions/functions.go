// Package functions provides the parameter functions organs evaluate once per
// simulated day: constants and day-indexed piecewise-linear tables.
package functions

import (
	"sort"

	"github.com/APSIMInitiative/ApsimX-sub030/internal/sim/biomass"
)

type Function interface {
	Value() float64
}

type Constant float64

func (c Constant) Value() float64 { return float64(c) }

// Clock is the simulated day shared by every DayTable of one plant.
type Clock struct {
	day int
}

func (c *Clock) Day() int    { return c.day }
func (c *Clock) Set(day int) { c.day = day }
func (c *Clock) Advance()    { c.day++ }

// DayTable interpolates linearly between (day, value) points and holds the end
// values flat outside the table.
type DayTable struct {
	clock  *Clock
	days   []float64
	values []float64
}

func NewDayTable(clock *Clock, days, values []float64) *DayTable {
	type pt struct{ d, v float64 }
	n := len(days)
	if len(values) < n {
		n = len(values)
	}
	pts := make([]pt, n)
	for i := 0; i < n; i++ {
		pts[i] = pt{days[i], values[i]}
	}
	sort.SliceStable(pts, func(i, j int) bool { return pts[i].d < pts[j].d })
	t := &DayTable{clock: clock, days: make([]float64, n), values: make([]float64, n)}
	for i, p := range pts {
		t.days[i] = p.d
		t.values[i] = p.v
	}
	return t
}

func (t *DayTable) Value() float64 {
	if len(t.days) == 0 {
		return 0
	}
	x := float64(t.clock.Day())
	if x <= t.days[0] {
		return t.values[0]
	}
	last := len(t.days) - 1
	if x >= t.days[last] {
		return t.values[last]
	}
	i := sort.SearchFloat64s(t.days, x)
	if t.days[i] == x {
		return t.values[i]
	}
	x0, x1 := t.days[i-1], t.days[i]
	y0, y1 := t.values[i-1], t.values[i]
	return y0 + (y1-y0)*(x-x0)/(x1-x0)
}

// Demands is a demand-with-priority provider: three pool demands and their
// priority weights. A nil demand evaluates to 0 and a nil priority to 1.
type Demands struct {
	Structural          Function
	Metabolic           Function
	Storage             Function
	QStructuralPriority Function
	QMetabolicPriority  Function
	QStoragePriority    Function
}

func (d Demands) Pool() biomass.PoolType {
	return biomass.PoolType{
		Structural:          valueOr(d.Structural, 0),
		Metabolic:           valueOr(d.Metabolic, 0),
		Storage:             valueOr(d.Storage, 0),
		QStructuralPriority: valueOr(d.QStructuralPriority, 1),
		QMetabolicPriority:  valueOr(d.QMetabolicPriority, 1),
		QStoragePriority:    valueOr(d.QStoragePriority, 1),
	}
}

// Value evaluates f, returning def when f is nil.
func Value(f Function, def float64) float64 { return valueOr(f, def) }

func valueOr(f Function, def float64) float64 {
	if f == nil {
		return def
	}
	return f.Value()
}
