package jobrunner

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roc/internal/domain"
	"roc/internal/logging"
)

func TestMain(m *testing.M) {
	logging.Init("error")
	os.Exit(m.Run())
}

type recordingProgressSink struct {
	snapshots []domain.ProgressSnapshot
}

func (s *recordingProgressSink) Push(snapshot domain.ProgressSnapshot) {
	s.snapshots = append(s.snapshots, snapshot)
}

type recordingResultSink struct {
	jobs []domain.Job
}

func (s *recordingResultSink) Commit(job domain.Job) {
	s.jobs = append(s.jobs, job)
}

func baselineConfig() domain.RegeneratorConfiguration {
	return domain.RegeneratorConfiguration{
		LengthM:         10,
		WidthM:          8,
		GasTempInletC:   1600,
		GasTempOutletC:  600,
		MassFlowRateKgS: 50,
		CycleTimeS:      1200,
	}
}

func baselineRequest() domain.OptimizationRequest {
	return domain.OptimizationRequest{
		Configuration: baselineConfig(),
		DesignVariables: []domain.DesignVariableSpec{
			{Name: domain.VarCheckerHeight, Lower: 0.3, Upper: 2.0},
			{Name: domain.VarCheckerSpacing, Lower: 0.05, Upper: 0.3},
			{Name: domain.VarWallThickness, Lower: 0.2, Upper: 0.8},
		},
		Objective:     domain.ObjectiveMaximizeEfficiency,
		MaxIterations: 100,
		Tolerance:     1e-6,
	}
}

func TestRunBaselineScenario(t *testing.T) {
	progress := &recordingProgressSink{}
	results := &recordingResultSink{}

	job := Run(context.Background(), baselineRequest(), progress, results, nil)

	require.Equal(t, domain.JobCompleted, job.Status)
	require.NotNil(t, job.Result)
	assert.True(t, job.Result.Success)
	assert.Greater(t, job.Result.FinalMetrics.ThermalEfficiency, 0.5)
	assert.Less(t, job.Result.FinalMetrics.PressureDropPa, 2000.0)
	assert.Greater(t, job.Result.FinalMetrics.HeatTransferCoefficientWM2K, 50.0)
	assert.GreaterOrEqual(t, job.Result.Iterations, 5)
	assert.LessOrEqual(t, job.Result.Iterations, 100)
	require.Len(t, results.jobs, 1)
	assert.NotEmpty(t, progress.snapshots)
}

func TestRunInfeasibleConstraintScenario(t *testing.T) {
	req := baselineRequest()
	req.Constraints = &domain.ConstraintLimits{
		MaxPressureDropPa:         2000,
		MinThermalEfficiency:      0.99,
		MinHeatTransferCoefficient: 50,
	}

	job := Run(context.Background(), req, nil, nil, nil)

	require.Equal(t, domain.JobCompleted, job.Status)
	require.NotNil(t, job.Result)
	assert.False(t, job.Result.Success)
	assert.False(t, job.Result.ConstraintsSatisfied)
	assert.Contains(t, job.Result.ConstraintViolations, "thermal_efficiency")
	assert.NotEmpty(t, job.IterationLog)
}

func TestRunPurePressureDropMinimization(t *testing.T) {
	req := baselineRequest()
	req.Objective = domain.ObjectiveMinimizePressureDrop

	job := Run(context.Background(), req, nil, nil, nil)

	require.Equal(t, domain.JobCompleted, job.Status)
	require.NotNil(t, job.Result)
	initial := job.IterationLog[0].Metrics.PressureDropPa
	assert.Less(t, job.Result.FinalMetrics.PressureDropPa, initial)
	assert.InDelta(t, job.Result.FinalObjectiveValue, job.Result.FinalMetrics.PressureDropPa, 1e-9)
}

func TestRunSubsetOptimizationScenario(t *testing.T) {
	req := baselineRequest()
	req.DesignVariables = []domain.DesignVariableSpec{
		{Name: domain.VarCheckerSpacing, Lower: 0.05, Upper: 0.3},
	}

	job := Run(context.Background(), req, nil, nil, nil)

	require.Equal(t, domain.JobCompleted, job.Status)
	require.NotNil(t, job.Result)
	assert.Equal(t, domain.DefaultValues[domain.VarCheckerHeight], job.Result.OptimizedDesignVars[domain.VarCheckerHeight])
	assert.Equal(t, domain.DefaultValues[domain.VarWallThickness], job.Result.OptimizedDesignVars[domain.VarWallThickness])
	assert.Equal(t, domain.DefaultValues[domain.VarThermalConductivity], job.Result.OptimizedDesignVars[domain.VarThermalConductivity])
	require.Len(t, job.IterationLog[0].DesignVars, len(domain.DefaultValues))
}

func TestRunCooperativeCancellationScenario(t *testing.T) {
	req := baselineRequest()
	cancel := &CancelToken{}

	evaluations := 0
	progress := progressCountingSink(func() { evaluations++; if evaluations == 3 { cancel.Cancel() } })

	job := Run(context.Background(), req, progress, nil, cancel)

	require.Equal(t, domain.JobCancelled, job.Status)
	assert.Len(t, job.IterationLog, 3)
	assert.Nil(t, job.Result)
}

type progressCountingSink func()

func (f progressCountingSink) Push(domain.ProgressSnapshot) { f() }

func TestRunInputValidationScenario(t *testing.T) {
	req := baselineRequest()
	req.DesignVariables = []domain.DesignVariableSpec{
		{Name: domain.VarCheckerHeight, Lower: 1.0, Upper: 1.0},
	}

	job := Run(context.Background(), req, nil, nil, nil)

	assert.Equal(t, domain.JobPending, job.Status)
	assert.Nil(t, job.Result)
	assert.Nil(t, job.StartedAt)
}

func TestRunNeverTransitionsOutOfTerminalStates(t *testing.T) {
	job := Run(context.Background(), baselineRequest(), nil, nil, nil)
	require.True(t, job.Status.Terminal())

	assert.Panics(t, func() {
		transition(context.Background(), &job, domain.JobRunning, logging.Log)
	}, "any transition attempt out of a terminal state is a programming error")
}
