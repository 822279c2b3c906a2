package biomass

// PoolType is a demand (or a potential allocation) split by pool, with the
// priority weights the plant-level arbitrator uses to rank organs.
type PoolType struct {
	Structural          float64 `json:"structural"`
	Metabolic           float64 `json:"metabolic"`
	Storage             float64 `json:"storage"`
	QStructuralPriority float64 `json:"q_structural_priority"`
	QMetabolicPriority  float64 `json:"q_metabolic_priority"`
	QStoragePriority    float64 `json:"q_storage_priority"`
}

func (p PoolType) Total() float64 { return p.Structural + p.Metabolic + p.Storage }

func (p *PoolType) Clear() { *p = PoolType{} }

// SupplyType is what an organ can offer the plant on a given day.
type SupplyType struct {
	Fixation        float64 `json:"fixation"`
	Reallocation    float64 `json:"reallocation"`
	Uptake          float64 `json:"uptake"`
	Retranslocation float64 `json:"retranslocation"`
}

func (s SupplyType) Total() float64 {
	return s.Fixation + s.Reallocation + s.Uptake + s.Retranslocation
}

func (s *SupplyType) Clear() { *s = SupplyType{} }

// AllocationType is the arbitrator's decision for one organ on one day.
type AllocationType struct {
	Structural      float64 `json:"structural" yaml:"structural"`
	Storage         float64 `json:"storage" yaml:"storage"`
	Metabolic       float64 `json:"metabolic" yaml:"metabolic"`
	Retranslocation float64 `json:"retranslocation" yaml:"retranslocation"`
	Reallocation    float64 `json:"reallocation" yaml:"reallocation"`
	Respired        float64 `json:"respired" yaml:"respired"`
	Uptake          float64 `json:"uptake" yaml:"uptake"`
	Fixation        float64 `json:"fixation" yaml:"fixation"`
}

// Total is the net addition to the organ (structural + storage + metabolic).
func (a AllocationType) Total() float64 { return a.Structural + a.Storage + a.Metabolic }
