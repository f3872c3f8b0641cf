// Package optimizer implements the SLSQP-style constrained minimizer
// that drives the physics model: it wraps physics.Evaluate as an
// objective and constraint oracle, manages bounds and the initial
// point, captures one Iteration per functional evaluation, and reports
// progress to a caller-supplied callback.
//
// No scipy-equivalent constrained NLP solver exists in the Go
// ecosystem reachable from this repository's dependency graph, so the
// driver below is a hand-rolled loop: each major iteration takes a
// forward-difference gradient of a merit function (the signed objective
// plus a quadratic penalty on every violated constraint), steps along
// the negative gradient with the result clipped to the box bounds, and
// backtracks the step length until the merit function improves. It
// does not linearize the constraints or solve a quadratic subproblem,
// and it is not a scipy SLSQP reimplementation; it is sized for the
// three-constraint, low-dimensional problems this core solves.
package optimizer

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.opentelemetry.io/otel/attribute"

	"roc/internal/apperror"
	"roc/internal/domain"
	"roc/internal/logging"
	"roc/internal/physics"
	"roc/internal/telemetry"
)

// CancelledError is raised (returned) from inside the objective
// callback when the caller's cancellation token has been observed.
// JobRunner catches it specifically and never treats it as a Failed
// transition.
type CancelledError struct{}

func (CancelledError) Error() string { return "optimization cancelled" }

// ProgressFunc is invoked after every objective evaluation with the
// current 1-based iteration count, the configured maximum, and the raw
// objective value. Implementations must be fast and must not panic;
// the driver recovers and logs any panic from this callback and never
// lets it escape into the SQP loop.
type ProgressFunc func(iteration, maxIterations int, objectiveValue float64)

// CancelToken is checked at the top of every objective evaluation.
// Cancelled must be safe to call concurrently with the optimization
// loop running on another goroutine.
type CancelToken interface {
	Cancelled() bool
}

// Request bundles everything Run needs beyond the configuration: the
// frozen, ordered design-variable list (the iteration order of this
// slice is the canonical coordinate order used for the parameter
// vector and its unpacking, end to end), the resolved bounds and
// initial point, the objective kind, the constraint limits, and the
// termination parameters.
type Request struct {
	Context         context.Context
	Configuration   domain.RegeneratorConfiguration
	VariableOrder   []domain.DesignVariableName
	Bounds          map[domain.DesignVariableName][2]float64
	InitialPoint    map[domain.DesignVariableName]float64
	Objective       domain.ObjectiveKind
	Constraints     domain.ConstraintLimits
	MaxIterations   int
	Tolerance       float64
	Progress        ProgressFunc
	Cancel          CancelToken
}

// Result is the Go analogue of scipy's OptimizeResult plus the
// captured iteration log.
type Result struct {
	Success   bool
	Message   string
	X         map[domain.DesignVariableName]float64
	Fun       float64
	NFev      int
	NJev      int
	NIt       int
	Iterations []domain.Iteration
}

// driver holds the per-run mutable state: the iteration counter, the
// captured history, and the running best objective value used to
// compute is_improvement. A driver is constructed fresh for every Run
// call; it is not re-entrant and not safe for concurrent use, matching
// spec §4.2's "single-threaded, synchronous, not re-entrant" contract.
type driver struct {
	ctx            context.Context
	req            Request
	iterationCount int
	bestObjective  float64
	haveBest       bool
	history        []domain.Iteration
	nfev           int
}

// Run executes the SQP loop and returns the scipy-shaped result plus
// the iteration log. It validates the request first (ValidationError),
// then runs the minimizer, wrapping any non-cancellation failure as an
// OptimizationError tagged with the stage in which it occurred.
func Run(req Request) (Result, error) {
	if err := validate(req); err != nil {
		return Result{}, err
	}

	ctx := req.Context
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := telemetry.StartSpan(ctx, "optimizer.Run")
	defer span.End()
	telemetry.SetAttributes(ctx, attribute.String("objective", string(req.Objective)), attribute.Int("design_variables", len(req.VariableOrder)))

	d := &driver{ctx: ctx, req: req}

	x0 := make([]float64, len(req.VariableOrder))
	lower := make([]float64, len(req.VariableOrder))
	upper := make([]float64, len(req.VariableOrder))
	for i, name := range req.VariableOrder {
		b := req.Bounds[name]
		lower[i], upper[i] = b[0], b[1]
		init := req.InitialPoint[name]
		if init < lower[i] {
			logging.Warn("initial value below lower bound, clamping", "variable", name, "value", init, "lower", lower[i])
			init = lower[i]
		} else if init > upper[i] {
			logging.Warn("initial value above upper bound, clamping", "variable", name, "value", init, "upper", upper[i])
			init = upper[i]
		}
		x0[i] = init
	}

	xFinal, fFinal, status, nit, err := d.sqp(x0, lower, upper)
	if err != nil {
		if _, ok := err.(CancelledError); ok {
			telemetry.AddEvent(ctx, "optimization cancelled")
			return Result{Iterations: d.history}, err
		}
		telemetry.SetError(ctx, err)
		var appErr *apperror.Error
		if errors.As(err, &appErr) {
			return Result{Iterations: d.history}, appErr
		}
		return Result{Iterations: d.history}, apperror.Wrap(err, apperror.CodeOptimization, "solver", err.Error())
	}

	xMap := d.unpack(xFinal)
	success := status == statusConverged

	return Result{
		Success:    success,
		Message:    statusMessage(status),
		X:          xMap,
		Fun:        fFinal,
		NFev:       d.nfev,
		NJev:       0,
		NIt:        nit,
		Iterations: d.history,
	}, nil
}

func validate(req Request) error {
	if len(req.VariableOrder) == 0 {
		return apperror.NewWithField(apperror.CodeValidation, "design_variables cannot be empty", "design_variables")
	}
	if !req.Objective.Valid() {
		return apperror.NewWithField(apperror.CodeValidation, fmt.Sprintf("unsupported objective: %s", req.Objective), "objective")
	}
	for _, name := range req.VariableOrder {
		b, ok := req.Bounds[name]
		if !ok {
			return apperror.NewWithField(apperror.CodeValidation, fmt.Sprintf("no bounds available for variable %s", name), string(name))
		}
		if !(b[0] < b[1]) {
			return apperror.NewWithField(apperror.CodeValidation, fmt.Sprintf("bounds for %s must have lower < upper", name), string(name))
		}
		init, ok := req.InitialPoint[name]
		if ok && math.IsNaN(init) {
			return apperror.NewWithField(apperror.CodeValidation, fmt.Sprintf("initial value for %s is not finite", name), string(name))
		}
	}
	if req.MaxIterations <= 0 {
		return apperror.NewWithField(apperror.CodeValidation, "max_iterations must be positive", "max_iterations")
	}
	if req.Tolerance <= 0 {
		return apperror.NewWithField(apperror.CodeValidation, "tolerance must be positive", "tolerance")
	}
	return nil
}

// unpack turns an optimizer-coordinate vector into the dense design
// variable mapping, applying PhysicsModel defaults for every recognized
// variable absent from the request's VariableOrder, so downstream
// consumers always see a complete design point (spec §8 scenario 4).
func (d *driver) unpack(x []float64) map[domain.DesignVariableName]float64 {
	out := make(map[domain.DesignVariableName]float64, len(domain.DefaultValues))
	for name, v := range domain.DefaultValues {
		out[name] = v
	}
	for i, name := range d.req.VariableOrder {
		out[name] = x[i]
	}
	return out
}

// objective evaluates the physics model at x, adapts the sign
// convention per the requested objective kind, records an Iteration,
// reports progress, and checks the cancellation token. It is the single
// choke point through which every logged functional evaluation passes;
// the merit-function probes in sqp.go go through evalRaw instead.
func (d *driver) objective(x []float64) (float64, error) {
	if d.req.Cancel != nil && d.req.Cancel.Cancelled() {
		return 0, CancelledError{}
	}

	d.iterationCount++
	d.nfev++

	vars := d.unpack(x)
	metrics := d.evaluatePhysics(vars)

	if math.IsNaN(metrics.ThermalEfficiency) || math.IsInf(metrics.ThermalEfficiency, 0) {
		return 0, apperror.Wrap(fmt.Errorf("non-finite thermal_efficiency at iteration %d", d.iterationCount), apperror.CodeOptimization, "physics evaluation", "physics model produced a non-finite result")
	}

	objValue := signedObjective(d.req.Objective, metrics)

	feasible, _ := evaluateConstraints(metrics, d.req.Constraints)

	isImprovement := !d.haveBest || objValue < d.bestObjective
	if isImprovement {
		d.bestObjective = objValue
		d.haveBest = true
	}

	iter := domain.Iteration{
		Index:          d.iterationCount,
		DesignVars:     vars,
		ObjectiveValue: objValue,
		Metrics:        metrics,
		Feasible:       feasible,
		IsImprovement:  isImprovement,
	}
	d.history = append(d.history, iter)

	if d.req.Progress != nil {
		d.safeProgress(d.iterationCount, d.req.MaxIterations, objValue)
	}

	return objValue, nil
}

// evaluatePhysics wraps physics.Evaluate in a span, sampled at whatever
// rate the tracing provider was configured with; this is the one choke
// point every functional evaluation (logged or gradient-probe) passes
// through on its way to the physics model.
func (d *driver) evaluatePhysics(vars map[domain.DesignVariableName]float64) domain.PerformanceMetrics {
	_, span := telemetry.StartSpan(d.ctx, "physics.Evaluate")
	defer span.End()
	return physics.Evaluate(d.req.Configuration, vars)
}

// safeProgress invokes the caller's progress callback, recovering any
// panic so a misbehaving callback can never abort the optimization.
func (d *driver) safeProgress(iteration, maxIterations int, objectiveValue float64) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("progress callback panicked, ignoring", "panic", r)
		}
	}()
	d.req.Progress(iteration, maxIterations, objectiveValue)
}

// signedObjective applies spec §4.2's sign convention: SLSQP (and this
// driver) minimizes, so the three efficiency-flavored objectives are
// negated and pressure-drop minimization is passed through unchanged.
func signedObjective(kind domain.ObjectiveKind, metrics domain.PerformanceMetrics) float64 {
	switch kind {
	case domain.ObjectiveMaximizeEfficiency, domain.ObjectiveMinimizeFuelConsumption, domain.ObjectiveMinimizeCO2Emissions:
		return -metrics.ThermalEfficiency
	case domain.ObjectiveMinimizePressureDrop:
		return metrics.PressureDropPa
	default:
		return -metrics.ThermalEfficiency
	}
}

// constraintValues returns the three inequality constraint values
// g_i(x) >= 0 described in spec §4.2.
func constraintValues(metrics domain.PerformanceMetrics, limits domain.ConstraintLimits) [3]float64 {
	return [3]float64{
		limits.MaxPressureDropPa - metrics.PressureDropPa,
		metrics.ThermalEfficiency - limits.MinThermalEfficiency,
		metrics.HeatTransferCoefficientWM2K - limits.MinHeatTransferCoefficient,
	}
}

func evaluateConstraints(metrics domain.PerformanceMetrics, limits domain.ConstraintLimits) (bool, map[string]float64) {
	g := constraintValues(metrics, limits)
	violations := make(map[string]float64)
	if g[0] < 0 {
		violations["pressure_drop"] = -g[0]
	}
	if g[1] < 0 {
		violations["thermal_efficiency"] = -g[1]
	}
	if g[2] < 0 {
		violations["heat_transfer_coefficient"] = -g[2]
	}
	return len(violations) == 0, violations
}

type status int

const (
	statusConverged status = iota
	statusMaxIterations
	statusInfeasible
)

func statusMessage(s status) string {
	switch s {
	case statusConverged:
		return "Optimization terminated successfully"
	case statusMaxIterations:
		return "Maximum iterations reached"
	default:
		return "Optimization terminated with an infeasible final point"
	}
}
