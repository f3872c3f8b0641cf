// Package physics implements the checker-packed regenerator
// thermal/hydraulic correlation model: a pure, deterministic function
// from a regenerator configuration and a set of design variables to a
// PerformanceMetrics record. It performs no I/O, holds no state, and
// never queries the clock.
package physics

import (
	"math"

	"roc/internal/domain"
)

// Model constants. These are the checker-pack and combustion-gas
// correlation constants the regenerator model is calibrated against;
// they are not configurable per request.
const (
	porosity           = 0.7   // ε, packed-bed void fraction
	gasDensityKgM3     = 0.4   // ρ_g, hot combustion gas
	crossSectionM2     = 60.0  // A_c, assumed channel cross-section
	gasViscosityPaS    = 5e-5  // μ_g
	prandtl            = 0.7   // Pr
	gasConductivityWMK = 0.08  // k_g
	specificHeatGasJKgK = 1100 // c_p,gas
	wallConductivityWMK = 1.2  // k_wall
	wallAreaM2          = 200  // A_wall
	ambientTempC        = 50   // T_ambient_eff
)

// Evaluate computes the steady-state performance of a checker-packed
// regenerator at the given design point. Any design variable absent
// from vars is substituted by domain.DefaultValues so the function is
// total even when only a subset of variables is supplied. Same inputs
// always produce the same outputs; if an input is non-finite, the
// corresponding outputs are non-finite rather than silently clamped.
// thermal_efficiency is clamped to [0, 1] per the model's own
// definition, except that a NaN passes through unclamped.
func Evaluate(cfg domain.RegeneratorConfiguration, vars map[domain.DesignVariableName]float64) domain.PerformanceMetrics {
	height := value(vars, domain.VarCheckerHeight)
	spacing := value(vars, domain.VarCheckerSpacing)
	wallThickness := value(vars, domain.VarWallThickness)

	checkerVolume := cfg.LengthM * cfg.WidthM * height * (1 - porosity)
	specificSurface := 400.0 / spacing
	surfaceArea := checkerVolume * specificSurface

	velocity := cfg.MassFlowRateKgS / (gasDensityKgM3 * crossSectionM2)
	reynolds := gasDensityKgM3 * velocity * spacing / gasViscosityPaS

	var nusselt float64
	if reynolds < 10 {
		nusselt = 2.0 + 1.1*math.Pow(reynolds*prandtl, 0.6)
	} else {
		nusselt = 2.0 + 0.6*math.Pow(reynolds, 0.5)*math.Pow(prandtl, 0.33)
	}

	htc := nusselt * gasConductivityWMK / spacing

	heatCapacityRate := cfg.MassFlowRateKgS * specificHeatGasJKgK
	ntu := htc * surfaceArea / heatCapacityRate
	effectiveness := ntu / (1 + ntu)

	availableHeat := heatCapacityRate * (cfg.GasTempInletC - cfg.GasTempOutletC)
	heatTransferred := effectiveness * availableHeat

	var grossEfficiency float64
	if availableHeat > 0 {
		grossEfficiency = heatTransferred / availableHeat
	}

	frictionFactor := 150/reynolds + 1.75
	pressureDrop := frictionFactor * (height / spacing) * 0.5 * gasDensityKgM3 * velocity * velocity

	wallHeatLoss := wallConductivityWMK * wallAreaM2 * (cfg.GasTempInletC - ambientTempC) / wallThickness

	netEfficiency := clamp(grossEfficiency-wallHeatLoss/math.Max(availableHeat, 1), 0, 1)

	return domain.PerformanceMetrics{
		ThermalEfficiency:           netEfficiency,
		HeatTransferRateW:           heatTransferred,
		PressureDropPa:              pressureDrop,
		NTU:                         ntu,
		Effectiveness:               effectiveness,
		HeatTransferCoefficientWM2K: htc,
		SurfaceAreaM2:               surfaceArea,
		WallHeatLossW:               wallHeatLoss,
		Reynolds:                    reynolds,
		Nusselt:                     nusselt,
	}
}

func value(vars map[domain.DesignVariableName]float64, name domain.DesignVariableName) float64 {
	if v, ok := vars[name]; ok {
		return v
	}
	return domain.DefaultValues[name]
}

func clamp(x, lo, hi float64) float64 {
	if math.IsNaN(x) {
		return x
	}
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
