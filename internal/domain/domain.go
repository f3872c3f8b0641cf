// Package domain defines the value types shared across the regenerator
// optimization core: configuration, design variables, constraints,
// objectives, performance metrics, iterations, results, and jobs.
package domain

import "time"

// RegeneratorConfiguration is the static physical description of one
// checker-packed regenerator.
type RegeneratorConfiguration struct {
	LengthM          float64 `json:"length_m"`
	WidthM           float64 `json:"width_m"`
	GasTempInletC    float64 `json:"gas_temp_inlet_c"`
	GasTempOutletC   float64 `json:"gas_temp_outlet_c"`
	MassFlowRateKgS  float64 `json:"mass_flow_rate_kg_s"`
	CycleTimeS       float64 `json:"cycle_time_s"`
}

// DesignVariableName enumerates the recognized optimizer input
// dimensions. Any other string is rejected at validation.
type DesignVariableName string

const (
	VarCheckerHeight       DesignVariableName = "checker_height"
	VarCheckerSpacing      DesignVariableName = "checker_spacing"
	VarWallThickness       DesignVariableName = "wall_thickness"
	VarThermalConductivity DesignVariableName = "thermal_conductivity"
	VarSpecificHeat        DesignVariableName = "specific_heat"
	VarDensity             DesignVariableName = "density"
)

// DefaultBounds gives the default [lower, upper] range for each
// recognized design variable when a request does not override it.
var DefaultBounds = map[DesignVariableName][2]float64{
	VarCheckerHeight:       {0.3, 2.0},
	VarCheckerSpacing:      {0.05, 0.3},
	VarWallThickness:       {0.2, 0.8},
	VarThermalConductivity: {1.0, 5.0},
	VarSpecificHeat:        {700, 1200},
	VarDensity:             {1800, 2800},
}

// DefaultValues gives the PhysicsModel's hard-coded defaults substituted
// for any design variable absent from the dense mapping handed to
// Evaluate.
var DefaultValues = map[DesignVariableName]float64{
	VarCheckerHeight:       0.5,
	VarCheckerSpacing:      0.1,
	VarWallThickness:       0.3,
	VarThermalConductivity: 2.5,
	VarSpecificHeat:        900,
	VarDensity:             2300,
}

// DesignVariableSpec describes one optimizer input dimension as supplied
// by a request.
type DesignVariableSpec struct {
	Name     DesignVariableName `json:"name"`
	Lower    float64            `json:"lower"`
	Upper    float64            `json:"upper"`
	Initial  *float64           `json:"initial,omitempty"`
	Baseline *float64           `json:"baseline,omitempty"`
}

// ConstraintLimits holds inequality limits enforced during optimization.
type ConstraintLimits struct {
	MaxPressureDropPa         float64 `json:"max_pressure_drop_pa"`
	MinThermalEfficiency      float64 `json:"min_thermal_efficiency"`
	MinHeatTransferCoefficient float64 `json:"min_heat_transfer_coefficient"`
}

// DefaultConstraintLimits returns the spec-defined defaults.
func DefaultConstraintLimits() ConstraintLimits {
	return ConstraintLimits{
		MaxPressureDropPa:          2000,
		MinThermalEfficiency:       0.2,
		MinHeatTransferCoefficient: 50,
	}
}

// ObjectiveKind is a closed enumeration of optimization objectives.
// maximize_efficiency, minimize_fuel_consumption, and
// minimize_co2_emissions are semantically identical inside the core:
// all three reduce to maximizing thermal efficiency.
type ObjectiveKind string

const (
	ObjectiveMaximizeEfficiency     ObjectiveKind = "maximize_efficiency"
	ObjectiveMinimizeFuelConsumption ObjectiveKind = "minimize_fuel_consumption"
	ObjectiveMinimizeCO2Emissions   ObjectiveKind = "minimize_co2_emissions"
	ObjectiveMinimizePressureDrop   ObjectiveKind = "minimize_pressure_drop"
)

// Valid reports whether k is one of the recognized objective kinds.
func (k ObjectiveKind) Valid() bool {
	switch k {
	case ObjectiveMaximizeEfficiency, ObjectiveMinimizeFuelConsumption,
		ObjectiveMinimizeCO2Emissions, ObjectiveMinimizePressureDrop:
		return true
	default:
		return false
	}
}

// OptimizationRequest is the single entry payload to JobRunner.
type OptimizationRequest struct {
	Algorithm        string                `json:"algorithm,omitempty"`
	Configuration    RegeneratorConfiguration `json:"configuration"`
	DesignVariables  []DesignVariableSpec  `json:"design_variables"`
	Constraints      *ConstraintLimits     `json:"constraints,omitempty"`
	Objective        ObjectiveKind         `json:"objective"`
	MaxIterations    int                   `json:"max_iterations,omitempty"`
	Tolerance        float64               `json:"tolerance,omitempty"`
}

// PerformanceMetrics is the deterministic output of PhysicsModel.Evaluate.
type PerformanceMetrics struct {
	ThermalEfficiency          float64 `json:"thermal_efficiency"`
	HeatTransferRateW          float64 `json:"heat_transfer_rate_w"`
	PressureDropPa             float64 `json:"pressure_drop_pa"`
	NTU                        float64 `json:"ntu"`
	Effectiveness              float64 `json:"effectiveness"`
	HeatTransferCoefficientWM2K float64 `json:"heat_transfer_coefficient_w_m2k"`
	SurfaceAreaM2              float64 `json:"surface_area_m2"`
	WallHeatLossW              float64 `json:"wall_heat_loss_w"`
	Reynolds                   float64 `json:"reynolds"`
	Nusselt                    float64 `json:"nusselt"`
}

// Iteration is one functional evaluation observed by the Optimizer.
type Iteration struct {
	Index          int                           `json:"index"`
	DesignVars     map[DesignVariableName]float64 `json:"design_vars"`
	ObjectiveValue float64                       `json:"objective_value"`
	Metrics        PerformanceMetrics            `json:"metrics"`
	Feasible       bool                          `json:"feasible"`
	IsImprovement  bool                          `json:"is_improvement"`
}

// ConvergenceInfo preserves the driver's termination bookkeeping:
// whether it converged and its evaluation and iteration counts. Status
// and NJev are always 0; the termination reason is carried only by
// Converged and the result's Message.
type ConvergenceInfo struct {
	Converged bool   `json:"converged"`
	Status    int    `json:"status"`
	NFev      int    `json:"nfev"`
	NJev      int    `json:"njev"`
	NIt       int    `json:"nit"`
}

// OptimizationResult is the final artifact JobRunner assembles from the
// Optimizer's result and carries, unchanged, into the Job on Completed.
type OptimizationResult struct {
	Success               bool                          `json:"success"`
	Message               string                        `json:"message"`
	Iterations            int                           `json:"iterations"`
	FinalObjectiveValue   float64                       `json:"final_objective_value"`
	OptimizedDesignVars   map[DesignVariableName]float64 `json:"optimized_design_variables"`
	FinalMetrics          PerformanceMetrics            `json:"performance_metrics"`
	ConvergenceInfo       ConvergenceInfo               `json:"convergence_info"`
	ConstraintsSatisfied  bool                          `json:"constraints_satisfied"`
	ConstraintViolations  map[string]float64            `json:"constraint_violations,omitempty"`
}

// JobStatus enumerates the Job lifecycle states of spec §4.3.
type JobStatus string

const (
	JobPending      JobStatus = "Pending"
	JobInitializing JobStatus = "Initializing"
	JobRunning      JobStatus = "Running"
	JobCompleted    JobStatus = "Completed"
	JobFailed       JobStatus = "Failed"
	JobCancelled    JobStatus = "Cancelled"
)

// Terminal reports whether status is one from which no further
// transition is allowed.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	default:
		return false
	}
}

// Job is the lifecycle record around one optimization run.
type Job struct {
	ID                    string              `json:"id"`
	Status                JobStatus           `json:"status"`
	StartedAt             *time.Time          `json:"started_at,omitempty"`
	CompletedAt           *time.Time          `json:"completed_at,omitempty"`
	RuntimeS              float64             `json:"runtime_s,omitempty"`
	CurrentIteration      int                 `json:"current_iteration"`
	ProgressPercentage    float64             `json:"progress_percentage"`
	EstimatedCompletionAt *time.Time          `json:"estimated_completion_at,omitempty"`
	ErrorMessage          string              `json:"error_message,omitempty"`
	IterationLog          []Iteration         `json:"iteration_log"`
	Result                *OptimizationResult `json:"result,omitempty"`
	MemoryUsageMB         *float64            `json:"memory_usage_mb,omitempty"`
	CPUUsagePercentage    *float64            `json:"cpu_usage_percentage,omitempty"`
	UpdatedAt             time.Time           `json:"updated_at"`
}

// ProgressSnapshot is what JobRunner pushes to a ProgressSink after
// every objective evaluation.
type ProgressSnapshot struct {
	JobID                 string     `json:"job_id"`
	Status                JobStatus  `json:"status"`
	Iteration             Iteration  `json:"iteration"`
	CurrentIteration      int        `json:"current_iteration"`
	ProgressPercentage    float64    `json:"progress_percentage"`
	EstimatedCompletionAt *time.Time `json:"estimated_completion_at,omitempty"`
}
