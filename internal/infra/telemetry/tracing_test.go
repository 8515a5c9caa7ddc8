package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/openctemio/sipguard/pkg/logger"
)

func TestSetup_Disabled(t *testing.T) {
	before := otel.GetTracerProvider()

	shutdown, err := Setup(context.Background(), Config{}, logger.NewNop())
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
	assert.Equal(t, before, otel.GetTracerProvider())
}

func TestSetup_Enabled(t *testing.T) {
	before := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(before) })

	shutdown, err := Setup(context.Background(), Config{
		Endpoint:    "127.0.0.1:4318",
		Insecure:    true,
		ServiceName: "sipguard-test",
		SampleRatio: 0.5,
	}, logger.NewNop())
	require.NoError(t, err)
	assert.NotEqual(t, before, otel.GetTracerProvider())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, shutdown(ctx))
}

func TestSampleRatio(t *testing.T) {
	assert.InDelta(t, 1.0, sampleRatio(0), 0)
	assert.InDelta(t, 1.0, sampleRatio(-1), 0)
	assert.InDelta(t, 1.0, sampleRatio(2), 0)
	assert.InDelta(t, 0.25, sampleRatio(0.25), 0)
}
