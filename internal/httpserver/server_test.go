package httpserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roc/internal/domain"
	"roc/internal/logging"
)

func init() {
	logging.Init("error")
}

func baselineRequestBody() domain.OptimizationRequest {
	return domain.OptimizationRequest{
		Configuration: domain.RegeneratorConfiguration{
			LengthM:         10,
			WidthM:          8,
			GasTempInletC:   1600,
			GasTempOutletC:  600,
			MassFlowRateKgS: 50,
			CycleTimeS:      1200,
		},
		DesignVariables: []domain.DesignVariableSpec{
			{Name: domain.VarCheckerHeight, Lower: 0.3, Upper: 2.0},
			{Name: domain.VarCheckerSpacing, Lower: 0.05, Upper: 0.3},
			{Name: domain.VarWallThickness, Lower: 0.2, Upper: 0.8},
		},
		Objective:     domain.ObjectiveMaximizeEfficiency,
		MaxIterations: 50,
		Tolerance:     1e-6,
	}
}

func TestHandleHealth(t *testing.T) {
	s := New(Config{Port: 0})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body healthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.True(t, body.NumericsBackendAvailable)
}

func TestHandleOptimizeSuccess(t *testing.T) {
	s := New(Config{Port: 0})

	payload, err := json.Marshal(baselineRequestBody())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/optimize", bytes.NewReader(payload))
	w := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var result domain.OptimizationResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Greater(t, result.FinalMetrics.ThermalEfficiency, 0.0)
}

func TestHandleOptimizeValidationError(t *testing.T) {
	s := New(Config{Port: 0})

	reqBody := baselineRequestBody()
	reqBody.DesignVariables = []domain.DesignVariableSpec{
		{Name: domain.VarCheckerHeight, Lower: 1.0, Upper: 1.0},
	}
	payload, err := json.Marshal(reqBody)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/optimize", bytes.NewReader(payload))
	w := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var envelope errorEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, "checker_height", envelope.Details["field"])
}

func TestHandleOptimizeMalformedBody(t *testing.T) {
	s := New(Config{Port: 0})

	req := httptest.NewRequest(http.MethodPost, "/optimize", bytes.NewReader([]byte("not json")))
	w := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestHandleOptimizeRejectsNonPost(t *testing.T) {
	s := New(Config{Port: 0})

	req := httptest.NewRequest(http.MethodGet, "/optimize", nil)
	w := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestWithRequestIDAssignsHeaderWhenAbsent(t *testing.T) {
	s := New(Config{Port: 0})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(w, req)

	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestWithRequestIDPreservesIncomingHeader(t *testing.T) {
	s := New(Config{Port: 0})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "caller-supplied-id")
	w := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(w, req)

	assert.Equal(t, "caller-supplied-id", w.Header().Get("X-Request-ID"))
}
