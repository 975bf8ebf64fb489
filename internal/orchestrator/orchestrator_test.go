package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonet-social/search-service/infrastructure/service"
)

func TestAggregateHealthyWhenAllComponentsHealthy(t *testing.T) {
	components := []*service.ComponentHealth{
		{Name: "backend", Status: "healthy"},
		{Name: "pipeline.notes", Status: "healthy"},
	}
	assert.Equal(t, HealthHealthy, aggregate(components))
}

func TestAggregateDegradedWhenOneComponentDegraded(t *testing.T) {
	components := []*service.ComponentHealth{
		{Name: "backend", Status: "healthy"},
		{Name: "pipeline.notes", Status: "degraded"},
	}
	assert.Equal(t, HealthDegraded, aggregate(components))
}

func TestAggregateUnhealthyWhenOnlyPipelineDown(t *testing.T) {
	components := []*service.ComponentHealth{
		{Name: "backend", Status: "healthy"},
		{Name: "pipeline.notes", Status: "unhealthy"},
	}
	assert.Equal(t, HealthUnhealthy, aggregate(components))
}

func TestAggregateCriticalWhenBackendAndPipelineBothDown(t *testing.T) {
	components := []*service.ComponentHealth{
		{Name: "backend", Status: "unhealthy"},
		{Name: "pipeline.notes", Status: "unhealthy"},
	}
	assert.Equal(t, HealthCritical, aggregate(components))
}

type fakePipeline struct {
	flushed   bool
	flushErr  error
	shutdown  bool
}

func (f *fakePipeline) FlushNow(ctx context.Context) error {
	f.flushed = true
	return f.flushErr
}

func (f *fakePipeline) Shutdown() { f.shutdown = true }

type fakeComponent struct {
	started bool
	stopped bool
	startErr error
}

func (f *fakeComponent) Start(ctx context.Context) error {
	f.started = true
	return f.startErr
}

func (f *fakeComponent) Stop(ctx context.Context) error {
	f.stopped = true
	return nil
}

func TestStartRunsAllRegisteredComponents(t *testing.T) {
	o := New(time.Second, zerolog.Nop())
	c1 := &fakeComponent{}
	c2 := &fakeComponent{}
	o.RegisterComponent(c1)
	o.RegisterComponent(c2)

	require.NoError(t, o.Start(context.Background()))
	assert.True(t, c1.started)
	assert.True(t, c2.started)
}

func TestStartPropagatesComponentError(t *testing.T) {
	o := New(time.Second, zerolog.Nop())
	o.RegisterComponent(&fakeComponent{startErr: errors.New("boom")})

	err := o.Start(context.Background())
	assert.Error(t, err)
}

func TestStopFlushesPipelinesAndStopsComponents(t *testing.T) {
	o := New(time.Second, zerolog.Nop())
	p := &fakePipeline{}
	c := &fakeComponent{}
	o.RegisterPipeline(p)
	o.RegisterComponent(c)

	o.Stop(context.Background())

	assert.True(t, p.flushed)
	assert.True(t, p.shutdown)
	assert.True(t, c.stopped)
	assert.False(t, o.Healthy())
}

func TestStopIsIdempotent(t *testing.T) {
	o := New(time.Second, zerolog.Nop())
	p := &fakePipeline{}
	o.RegisterPipeline(p)

	o.Stop(context.Background())
	o.Stop(context.Background())

	assert.False(t, o.Healthy())
}

func TestHealthyBeforeStop(t *testing.T) {
	o := New(time.Second, zerolog.Nop())
	assert.True(t, o.Healthy())
}
