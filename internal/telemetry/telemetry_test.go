package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitDisabledReturnsNoopProvider(t *testing.T) {
	cfg := Config{Enabled: false, ServiceName: "roc-svc"}

	provider, err := Init(context.Background(), cfg)
	require.NoError(t, err)

	assert.NotNil(t, provider)
	assert.NotNil(t, provider.tracer)
	assert.Nil(t, provider.tp)
}

func TestShutdownOnNoopProviderIsSafe(t *testing.T) {
	provider, err := Init(context.Background(), Config{Enabled: false})
	require.NoError(t, err)

	assert.NoError(t, provider.Shutdown(context.Background()))
}

func TestGetFallsBackToDefaultWhenUninitialized(t *testing.T) {
	globalProvider = nil

	provider := Get()

	assert.NotNil(t, provider)
	assert.NotNil(t, provider.Tracer())
}

func TestStartSpanAndEventHelpersDoNotPanic(t *testing.T) {
	globalProvider = nil

	ctx, span := StartSpan(context.Background(), "physics.evaluate")
	defer span.End()

	AddEvent(ctx, "iteration")
	SetAttributes(ctx)
	SetError(ctx, assertErr{})
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
