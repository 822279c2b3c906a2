package plant

import (
	"github.com/APSIMInitiative/ApsimX-sub030/internal/sim/functions"
	"github.com/APSIMInitiative/ApsimX-sub030/internal/sim/organ"
	"github.com/APSIMInitiative/ApsimX-sub030/internal/sim/tuning"
)

func buildDemands(c tuning.DemandsConfig, clock *functions.Clock) functions.Demands {
	return functions.Demands{
		Structural:          c.Structural.Build(clock),
		Metabolic:           c.Metabolic.Build(clock),
		Storage:             c.Storage.Build(clock),
		QStructuralPriority: c.QStructuralPriority.Build(clock),
		QMetabolicPriority:  c.QMetabolicPriority.Build(clock),
		QStoragePriority:    c.QStoragePriority.Build(clock),
	}
}

func buildLeafParams(c tuning.LeafConfig, clock *functions.Clock) organ.LeafParams {
	return organ.LeafParams{
		InitialWt:                 c.InitialWt.Build(clock),
		MinimumNConc:              c.MinimumNConc.Build(clock),
		MaximumNConc:              c.MaximumNConc.Build(clock),
		SpecificLeafArea:          c.SpecificLeafArea.Build(clock),
		LeafResidenceTime:         c.LeafResidenceTime.Build(clock),
		LeafDevelopmentRate:       c.LeafDevelopmentRate.Build(clock),
		LeafDetachmentTime:        c.LeafDetachmentTime.Build(clock),
		LeafKillFraction:          c.LeafKillFraction.Build(clock),
		MinimumLAI:                c.MinimumLAI.Build(clock),
		NRetranslocationFactor:    c.NRetranslocationFactor.Build(clock),
		NReallocationFactor:       c.NReallocationFactor.Build(clock),
		DMRetranslocationFactor:   c.DMRetranslocationFactor.Build(clock),
		DMConversionEfficiency:    c.DMConversionEfficiency.Build(clock),
		CarbonConcentration:       c.CarbonConcentration.Build(clock),
		ExtinctionCoefficient:     c.ExtinctionCoefficient.Build(clock),
		ExtinctionCoefficientDead: c.ExtinctionCoefficientDead.Build(clock),
		MaintenanceRespiration:    c.MaintenanceRespiration.Build(clock),
		DMDemands:                 buildDemands(c.DMDemands, clock),
		NDemands:                  buildDemands(c.NDemands, clock),
		Harvest: organ.Removal{
			LiveToRemove:  c.Harvest.LiveToRemove,
			DeadToRemove:  c.Harvest.DeadToRemove,
			LiveToResidue: c.Harvest.LiveToResidue,
			DeadToResidue: c.Harvest.DeadToResidue,
		},
	}
}

func buildPoolParams(c tuning.PoolConfig, clock *functions.Clock) organ.PoolParams {
	return organ.PoolParams{
		InitialWt:              c.InitialWt.Build(clock),
		MinimumNConc:           c.MinimumNConc.Build(clock),
		MaximumNConc:           c.MaximumNConc.Build(clock),
		SenescenceRate:         c.SenescenceRate.Build(clock),
		DetachmentRate:         c.DetachmentRate.Build(clock),
		NRetranslocationFactor: c.NRetranslocationFactor.Build(clock),
		NReallocationFactor:    c.NReallocationFactor.Build(clock),
		DMDemands:              buildDemands(c.DMDemands, clock),
		NDemands:               buildDemands(c.NDemands, clock),
	}
}
