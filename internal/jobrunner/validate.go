package jobrunner

import (
	"fmt"
	"math"

	"roc/internal/apperror"
	"roc/internal/domain"
)

// Validate checks an OptimizationRequest's shape without running it,
// for use by the HTTP transport to produce a 422 response before a Job
// is ever created.
func Validate(req domain.OptimizationRequest) error {
	_, _, _, _, err := resolveRequest(req)
	return err
}

// resolveRequest checks request shape per spec §4.3 step 1 and §6's
// 422 triggers, collecting every offending field through a
// ValidationErrors collector rather than failing on the first one, then
// resolves the canonical variable order, the effective bounds (request
// overrides, falling back to defaults), the initial point (request
// value, else midpoint, clamped into range by the optimizer), and the
// effective constraint limits.
func resolveRequest(req domain.OptimizationRequest) (
	variableOrder []domain.DesignVariableName,
	bounds map[domain.DesignVariableName][2]float64,
	initialPoint map[domain.DesignVariableName]float64,
	constraints domain.ConstraintLimits,
	err error,
) {
	errs := apperror.NewValidationErrors()

	if req.Algorithm != "" && req.Algorithm != "SLSQP" {
		errs.AddField(fmt.Sprintf("unsupported algorithm: %s, only SLSQP is supported", req.Algorithm), "algorithm")
	}
	if !req.Objective.Valid() {
		errs.AddField(fmt.Sprintf("unsupported objective: %s", req.Objective), "objective")
	}
	if len(req.DesignVariables) == 0 {
		errs.AddField("design_variables cannot be empty", "design_variables")
	}

	cfg := req.Configuration
	if cfg.GasTempInletC <= cfg.GasTempOutletC {
		errs.AddField("gas_temp_inlet_c must be greater than gas_temp_outlet_c", "configuration.gas_temp_inlet_c")
	}
	if cfg.MassFlowRateKgS <= 0 {
		errs.AddField("mass_flow_rate_kg_s must be positive", "configuration.mass_flow_rate_kg_s")
	}
	if cfg.LengthM <= 0 {
		errs.AddField("length_m must be positive", "configuration.length_m")
	}
	if cfg.WidthM <= 0 {
		errs.AddField("width_m must be positive", "configuration.width_m")
	}

	if req.MaxIterations < 0 {
		errs.AddField("max_iterations must be positive", "max_iterations")
	}
	if req.Tolerance < 0 {
		errs.AddField("tolerance must be positive", "tolerance")
	}

	variableOrder = make([]domain.DesignVariableName, 0, len(req.DesignVariables))
	bounds = make(map[domain.DesignVariableName][2]float64, len(req.DesignVariables))
	initialPoint = make(map[domain.DesignVariableName]float64, len(req.DesignVariables))

	for _, spec := range req.DesignVariables {
		if _, known := domain.DefaultValues[spec.Name]; !known {
			errs.AddField(fmt.Sprintf("unknown design variable: %s", spec.Name), string(spec.Name))
			continue
		}
		lower, upper := spec.Lower, spec.Upper
		if lower == 0 && upper == 0 {
			def, ok := domain.DefaultBounds[spec.Name]
			if !ok {
				errs.AddField(fmt.Sprintf("no bounds available for variable %s", spec.Name), string(spec.Name))
				continue
			}
			lower, upper = def[0], def[1]
		}
		if !(lower < upper) {
			errs.AddField(fmt.Sprintf("bounds for %s must have lower < upper", spec.Name), string(spec.Name))
			continue
		}

		var initial float64
		switch {
		case spec.Initial != nil:
			initial = *spec.Initial
		default:
			initial = (lower + upper) / 2
		}
		if math.IsNaN(initial) || math.IsInf(initial, 0) {
			errs.AddField(fmt.Sprintf("initial value for %s is not finite", spec.Name), string(spec.Name))
			continue
		}

		variableOrder = append(variableOrder, spec.Name)
		bounds[spec.Name] = [2]float64{lower, upper}
		initialPoint[spec.Name] = initial
	}

	if errs.HasErrors() {
		return nil, nil, nil, domain.ConstraintLimits{}, errs.Err()
	}

	constraints = domain.DefaultConstraintLimits()
	if req.Constraints != nil {
		constraints = *req.Constraints
	}

	return variableOrder, bounds, initialPoint, constraints, nil
}
