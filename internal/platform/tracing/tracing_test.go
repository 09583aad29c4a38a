package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

func sampleDecision(s sdktrace.Sampler) sdktrace.SamplingDecision {
	return s.ShouldSample(sdktrace.SamplingParameters{
		ParentContext: context.Background(),
		TraceID:       oteltrace.TraceID{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
		Name:          "tracing-test",
	}).Decision
}

func TestSampler_ClampsRatio(t *testing.T) {
	assert.Equal(t, sdktrace.RecordAndSample, sampleDecision(Sampler(2)))
	assert.Equal(t, sdktrace.Drop, sampleDecision(Sampler(-1)))
	assert.Equal(t, sdktrace.Drop, sampleDecision(Sampler(0)))
}
