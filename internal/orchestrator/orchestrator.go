// Package orchestrator implements service lifecycle and health aggregation
// (C12): startup/shutdown sequencing for the backend client, the two
// indexing pipelines, the bus subscriber, and the controller, plus a
// four-level health rollup built on top of infrastructure/service's
// three-level DeepHealthChecker, grounded on the original service bootstrap
// sequence implied by §5's ordering/shutdown rules.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sonet-social/search-service/infrastructure/service"
)

// ServiceHealth is a four-level rollup: infrastructure/service's
// DeepHealthChecker only distinguishes healthy/degraded/unhealthy; this adds
// a CRITICAL tier for "backend and at least one pipeline are down
// simultaneously", the outage shape this service cares most about.
type ServiceHealth string

const (
	HealthHealthy   ServiceHealth = "HEALTHY"
	HealthDegraded  ServiceHealth = "DEGRADED"
	HealthUnhealthy ServiceHealth = "UNHEALTHY"
	HealthCritical  ServiceHealth = "CRITICAL"
)

// Component is anything with a lifecycle the orchestrator manages. Stop
// must be safe to call once and should respect the passed context's
// deadline.
type Component interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Pipeline is the subset of *pipeline.Pipeline the orchestrator needs for
// graceful shutdown (flush queued work before the backend connection dies).
type Pipeline interface {
	FlushNow(ctx context.Context) error
	Shutdown()
}

// Status is the orchestrator's own view of process health, reported
// alongside the infrastructure/service component breakdown.
type Status struct {
	Overall    ServiceHealth               `json:"overall"`
	Components []*service.ComponentHealth  `json:"components"`
	Uptime     time.Duration               `json:"uptime"`
	CheckedAt  time.Time                   `json:"checked_at"`
}

// Orchestrator owns the subsystem singletons' lifecycle and aggregates their
// health into one rollup.
type Orchestrator struct {
	log             zerolog.Logger
	shutdownTimeout time.Duration
	startedAt       time.Time

	checker *service.DeepHealthChecker

	mu        sync.Mutex
	shutdown  bool
	pipelines []Pipeline
	extras    []Component
}

// New constructs an Orchestrator. shutdownTimeout bounds the graceful-stop
// sequence (config.RuntimeConfig.ShutdownTimeout).
func New(shutdownTimeout time.Duration, log zerolog.Logger) *Orchestrator {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 15 * time.Second
	}
	return &Orchestrator{
		log:             log.With().Str("component", "orchestrator").Logger(),
		shutdownTimeout: shutdownTimeout,
		checker:         service.NewDeepHealthChecker(5 * time.Second),
	}
}

// RegisterHealthCheck wires one named component health probe into the
// aggregate health report.
func (o *Orchestrator) RegisterHealthCheck(name string, check service.HealthCheckFunc) {
	o.checker.Register(name, check)
}

// RegisterPipeline tracks a pipeline for the graceful-shutdown flush step.
func (o *Orchestrator) RegisterPipeline(p Pipeline) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pipelines = append(o.pipelines, p)
}

// RegisterComponent tracks a lifecycle-managed component (e.g. the bus
// subscriber) started at Start and stopped at Stop.
func (o *Orchestrator) RegisterComponent(c Component) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.extras = append(o.extras, c)
}

// Start marks the orchestrator live and starts every registered component.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.startedAt = time.Now()
	o.mu.Lock()
	extras := append([]Component(nil), o.extras...)
	o.mu.Unlock()

	for _, c := range extras {
		if err := c.Start(ctx); err != nil {
			return err
		}
	}
	o.log.Info().Msg("orchestrator started")
	return nil
}

// Stop runs the graceful shutdown sequence: stop accepting new work, flush
// queued pipeline tasks within the configured timeout, then stop every
// registered component.
func (o *Orchestrator) Stop(ctx context.Context) {
	o.mu.Lock()
	if o.shutdown {
		o.mu.Unlock()
		return
	}
	o.shutdown = true
	pipelines := append([]Pipeline(nil), o.pipelines...)
	extras := append([]Component(nil), o.extras...)
	o.mu.Unlock()

	flushCtx, cancel := context.WithTimeout(ctx, o.shutdownTimeout)
	defer cancel()

	for _, p := range pipelines {
		if err := p.FlushNow(flushCtx); err != nil {
			o.log.Warn().Err(err).Msg("pipeline flush did not complete before shutdown timeout")
		}
		p.Shutdown()
	}

	for _, c := range extras {
		if err := c.Stop(ctx); err != nil {
			o.log.Warn().Err(err).Msg("component stop returned an error")
		}
	}

	o.log.Info().Msg("orchestrator stopped")
}

// Healthy reports whether the process is accepting new work.
func (o *Orchestrator) Healthy() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return !o.shutdown
}

// Status runs every registered health check and returns the four-level
// rollup alongside the per-component breakdown.
func (o *Orchestrator) Status(ctx context.Context, serviceName, version string) Status {
	resp := o.checker.Check(ctx, serviceName, version, false, time.Since(o.startedAt))
	return Status{
		Overall:    aggregate(resp.Components),
		Components: resp.Components,
		Uptime:     time.Since(o.startedAt),
		CheckedAt:  resp.CheckedAt,
	}
}

// aggregate implements the CRITICAL escalation rule: if the backend
// component and at least one pipeline component are both unhealthy, the
// overall status is CRITICAL rather than merely UNHEALTHY, since the system
// can neither serve queries nor make indexing progress.
func aggregate(components []*service.ComponentHealth) ServiceHealth {
	backendDown := false
	pipelineDownCount := 0
	anyUnhealthy := false
	anyDegraded := false

	for _, c := range components {
		switch c.Status {
		case "unhealthy":
			anyUnhealthy = true
			if c.Name == "backend" {
				backendDown = true
			}
			if isPipelineComponent(c.Name) {
				pipelineDownCount++
			}
		case "degraded":
			anyDegraded = true
		}
	}

	if backendDown && pipelineDownCount > 0 {
		return HealthCritical
	}
	if anyUnhealthy {
		return HealthUnhealthy
	}
	if anyDegraded {
		return HealthDegraded
	}
	return HealthHealthy
}

func isPipelineComponent(name string) bool {
	return name == "pipeline.notes" || name == "pipeline.users"
}
