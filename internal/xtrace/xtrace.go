/*
 *    Copyright 2021 chenquan
 *
 *    Licensed under the Apache License, Version 2.0 (the "License");
 *    you may not use this file except in compliance with the License.
 *    You may obtain a copy of the License at
 *
 *        http://www.apache.org/licenses/LICENSE-2.0
 *
 *    Unless required by applicable law or agreed to in writing, software
 *    distributed under the License is distributed on an "AS IS" BASIS,
 *    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *    See the License for the specific language governing permissions and
 *    limitations under the License.
 */

// Package xtrace installs the broker's opentelemetry TracerProvider.
// Mirrors the teacher's `otel.GetTracerProvider().Tracer(xtrace.Name)`
// call convention: when tracing is disabled, the global no-op provider
// is left in place so every Tracer() call stays safe to make
// unconditionally.
package xtrace

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/zipkin"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Name is the tracer name every broker span is created under.
const Name = "github.com/yunqi/beaconmq"

// Exporter selects the tracing.exporter config enum.
type Exporter string

const (
	ExporterNone   Exporter = "none"
	ExporterJaeger Exporter = "jaeger"
	ExporterZipkin Exporter = "zipkin"
)

// Options configures Init.
type Options struct {
	Enabled  bool
	Exporter Exporter
	Endpoint string
}

// Init installs a TracerProvider per opts. With Enabled=false (or
// Exporter=ExporterNone) the global no-op provider is left untouched.
func Init(opts Options) error {
	if !opts.Enabled || opts.Exporter == ExporterNone {
		return nil
	}

	var sp sdktrace.SpanExporter
	var err error
	switch opts.Exporter {
	case ExporterJaeger:
		sp, err = jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(opts.Endpoint)))
	case ExporterZipkin:
		sp, err = zipkin.New(opts.Endpoint)
	default:
		return fmt.Errorf("xtrace: unknown exporter %q", opts.Exporter)
	}
	if err != nil {
		return fmt.Errorf("xtrace: build exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(sp))
	otel.SetTracerProvider(tp)
	return nil
}

// Tracer returns the process-wide broker tracer, safe to call whether or
// not Init installed a real exporter.
func Tracer() trace.Tracer {
	return otel.GetTracerProvider().Tracer(Name)
}

// StartSpan is a small convenience wrapper matching the two call sites
// SPEC_FULL.md names: CONNECT handshake and PUBLISH routing.
func StartSpan(ctx context.Context, spanName string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, spanName)
}
