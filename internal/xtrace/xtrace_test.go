package xtrace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInitDisabledLeavesNoopProvider(t *testing.T) {
	err := Init(Options{Enabled: false})
	assert.NoError(t, err)

	_, span := StartSpan(context.Background(), "test-span")
	defer span.End()
	assert.False(t, span.SpanContext().IsValid(), "no-op tracer never produces a valid span context")
}

func TestInitUnknownExporterErrors(t *testing.T) {
	err := Init(Options{Enabled: true, Exporter: "bogus"})
	assert.Error(t, err)
}
