// Package jobrunner implements the single-run lifecycle envelope around
// one Optimizer invocation: request validation, the Job state machine,
// progress and result sinks, and failure/cancellation capture.
package jobrunner

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"roc/internal/apperror"
	"roc/internal/domain"
	"roc/internal/logging"
	"roc/internal/optimizer"
	"roc/internal/physics"
	"roc/internal/telemetry"
)

// DefaultMaxIterations and DefaultTolerance seed a job's termination
// parameters when the request omits them. cmd/roc-svc overwrites these
// from config.Optimizer at startup.
var (
	DefaultMaxIterations = 100
	DefaultTolerance     = 1e-6
)

// ProgressSink is a write-only interface with a single operation:
// append a progress snapshot. It must tolerate duplicates and
// out-of-order writes.
type ProgressSink interface {
	Push(snapshot domain.ProgressSnapshot)
}

// ResultSink is a write-only interface with a single operation: commit
// one OptimizationResult plus the final Job snapshot. It is called
// exactly once per Job that reaches Completed or Failed; never for
// Cancelled.
type ResultSink interface {
	Commit(job domain.Job)
}

// CancelToken is the caller-facing handle used to request cooperative
// cancellation of a running Job. A zero value is ready to use and
// starts un-cancelled.
type CancelToken struct {
	mu        sync.Mutex
	cancelled bool
}

// Cancel marks the token cancelled. Safe to call at most once or many
// times from any goroutine.
func (t *CancelToken) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelled = true
}

// Cancelled reports whether Cancel has been called.
func (t *CancelToken) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// Run validates req, executes one optimization, and drives job through
// the state machine to a terminal state, pushing progress snapshots to
// progressSink and the final result to resultSink. cancel may be nil,
// meaning the run cannot be cancelled. ctx bounds the span wrapping the
// whole run; a nil ctx is treated as context.Background().
func Run(ctx context.Context, req domain.OptimizationRequest, progressSink ProgressSink, resultSink ResultSink, cancel *CancelToken) domain.Job {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := telemetry.StartSpan(ctx, "jobrunner.Run")
	defer span.End()

	job := domain.Job{
		ID:           uuid.NewString(),
		Status:       domain.JobPending,
		IterationLog: make([]domain.Iteration, 0),
		UpdatedAt:    time.Now(),
	}
	telemetry.SetAttributes(ctx, attribute.String("job_id", job.ID), attribute.String("objective", string(req.Objective)))

	log := logging.WithJobID(job.ID)
	log.Info("job created", "status", job.Status)

	variableOrder, bounds, initialPoint, constraints, valErr := resolveRequest(req)
	if valErr != nil {
		log.Warn("validation failed, job never leaves Pending", "error", valErr.Error())
		telemetry.SetError(ctx, valErr)
		return job
	}

	transition(ctx, &job, domain.JobInitializing, log)

	maxIterations := req.MaxIterations
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	tolerance := req.Tolerance
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}

	started := time.Now()

	progress := func(iteration, maxIter int, objectiveValue float64) {
		elapsed := time.Since(started)
		job.CurrentIteration = iteration
		job.ProgressPercentage = math.Min(100, 100*float64(iteration)/float64(maxIter))

		if iteration >= 1 {
			totalEstimated := elapsed.Seconds() / (job.ProgressPercentage / 100)
			remaining := totalEstimated - elapsed.Seconds()
			eta := time.Now().Add(time.Duration(remaining * float64(time.Second)))
			job.EstimatedCompletionAt = &eta
		}

		snapshot := domain.ProgressSnapshot{
			JobID:                 job.ID,
			Status:                job.Status,
			CurrentIteration:      job.CurrentIteration,
			ProgressPercentage:    job.ProgressPercentage,
			EstimatedCompletionAt: job.EstimatedCompletionAt,
			Iteration:             domain.Iteration{Index: iteration, ObjectiveValue: objectiveValue},
		}

		if progressSink != nil {
			progressSink.Push(snapshot)
		}
	}

	optReq := optimizer.Request{
		Context:       ctx,
		Configuration: req.Configuration,
		VariableOrder: variableOrder,
		Bounds:        bounds,
		InitialPoint:  initialPoint,
		Objective:     req.Objective,
		Constraints:   constraints,
		MaxIterations: maxIterations,
		Tolerance:     tolerance,
		Progress:      progress,
	}
	if cancel != nil {
		optReq.Cancel = cancel
	}

	transition(ctx, &job, domain.JobRunning, log)

	result, err := optimizer.Run(optReq)
	job.IterationLog = result.Iterations

	if err != nil {
		if _, ok := err.(optimizer.CancelledError); ok {
			transition(ctx, &job, domain.JobCancelled, log)
			log.Info("job cancelled", "iterations_completed", len(job.IterationLog))
			return job
		}

		job.ErrorMessage = err.Error()
		transition(ctx, &job, domain.JobFailed, log)
		telemetry.SetError(ctx, err)
		log.Error("job failed", "error", err.Error(), "code", apperror.GetCode(err))
		if resultSink != nil {
			resultSink.Commit(job)
		}
		return job
	}

	finalMetrics, finalVars := recomputeFinal(req, result)
	feasible, violations := checkFeasibility(finalMetrics, constraints)

	optResult := domain.OptimizationResult{
		Success:              result.Success && feasible,
		Message:              finalMessage(result, feasible),
		Iterations:           len(job.IterationLog),
		FinalObjectiveValue:  result.Fun,
		OptimizedDesignVars:  finalVars,
		FinalMetrics:         finalMetrics,
		ConvergenceInfo: domain.ConvergenceInfo{
			Converged: result.Success,
			Status:    0,
			NFev:      result.NFev,
			NJev:      result.NJev,
			NIt:       result.NIt,
		},
		ConstraintsSatisfied: feasible,
		ConstraintViolations: violations,
	}

	job.Result = &optResult
	transition(ctx, &job, domain.JobCompleted, log)
	attachResourceUsage(&job)

	log.Info("job completed", "success", optResult.Success, "iterations", optResult.Iterations)

	if resultSink != nil {
		resultSink.Commit(job)
	}

	return job
}

// validNextStatus enumerates the state machine's allowed edges. Any
// transition not listed here is a programming error, not a runtime
// condition to recover from.
var validNextStatus = map[domain.JobStatus]map[domain.JobStatus]bool{
	domain.JobPending:      {domain.JobInitializing: true, domain.JobCancelled: true},
	domain.JobInitializing: {domain.JobRunning: true, domain.JobFailed: true, domain.JobCancelled: true},
	domain.JobRunning:      {domain.JobCompleted: true, domain.JobFailed: true, domain.JobCancelled: true},
}

// transition moves job to next, stamping timestamps per spec §4.3:
// entering Running sets started_at; entering a terminal state sets
// completed_at and computes runtime_s when started_at is present. It
// panics on any edge not in validNextStatus, including any attempt to
// leave a terminal state.
func transition(ctx context.Context, job *domain.Job, next domain.JobStatus, log *slog.Logger) {
	if !validNextStatus[job.Status][next] {
		panic(fmt.Sprintf("jobrunner: invalid transition %s -> %s", job.Status, next))
	}

	now := time.Now()
	job.Status = next
	job.UpdatedAt = now

	if next == domain.JobRunning && job.StartedAt == nil {
		job.StartedAt = &now
	}
	if next.Terminal() {
		job.CompletedAt = &now
		if job.StartedAt != nil {
			job.RuntimeS = now.Sub(*job.StartedAt).Seconds()
		}
	}
	telemetry.AddEvent(ctx, "state_transition", attribute.String("status", string(next)))
	log.Info("job transition", "status", next)
}

func finalMessage(result optimizer.Result, feasible bool) string {
	if !result.Success {
		return fmt.Sprintf("Optimization failed to converge: %s", result.Message)
	}
	if !feasible {
		return "Optimization converged but the final point violates one or more constraints"
	}
	return result.Message
}

// recomputeFinal re-evaluates PhysicsModel at the optimizer's final
// point, since SLSQP (and this driver) may return a point whose metrics
// were never captured as the last logged iteration.
func recomputeFinal(req domain.OptimizationRequest, result optimizer.Result) (domain.PerformanceMetrics, map[domain.DesignVariableName]float64) {
	vars := result.X
	if vars == nil {
		vars = map[domain.DesignVariableName]float64{}
	}
	metrics := physics.Evaluate(req.Configuration, vars)
	return metrics, vars
}

func checkFeasibility(metrics domain.PerformanceMetrics, limits domain.ConstraintLimits) (bool, map[string]float64) {
	violations := make(map[string]float64)
	if metrics.PressureDropPa > limits.MaxPressureDropPa {
		violations["pressure_drop"] = metrics.PressureDropPa - limits.MaxPressureDropPa
	}
	if metrics.ThermalEfficiency < limits.MinThermalEfficiency {
		violations["thermal_efficiency"] = limits.MinThermalEfficiency - metrics.ThermalEfficiency
	}
	if metrics.HeatTransferCoefficientWM2K < limits.MinHeatTransferCoefficient {
		violations["heat_transfer_coefficient"] = limits.MinHeatTransferCoefficient - metrics.HeatTransferCoefficientWM2K
	}
	if len(violations) == 0 {
		return true, nil
	}
	return false, violations
}

// attachResourceUsage fills in the Job's best-effort resource fields
// from the Go runtime. The process's own memory statistics are always
// available, so MemoryUsageMB is always populated; CPU usage is not
// measured and CPUUsagePercentage stays nil.
func attachResourceUsage(job *domain.Job) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	mb := float64(mem.Alloc) / (1024 * 1024)
	job.MemoryUsageMB = &mb
}
