// Command searchd runs the search service: it wires the index backend
// client, the two indexing pipelines, the bus subscriber, the response
// cache, the rate limiter, the auth gate, and the controller into one HTTP
// process, grounded on the teacher's cmd/gateway bootstrap shape.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.uber.org/zap"

	"github.com/sonet-social/search-service/infrastructure/logging"
	"github.com/sonet-social/search-service/infrastructure/utils"
	sbmetrics "github.com/sonet-social/search-service/infrastructure/metrics"
	"github.com/sonet-social/search-service/infrastructure/middleware"
	"github.com/sonet-social/search-service/infrastructure/service"
	"github.com/sonet-social/search-service/internal/authgate"
	"github.com/sonet-social/search-service/internal/backend"
	"github.com/sonet-social/search-service/internal/bus"
	"github.com/sonet-social/search-service/internal/controller"
	httpapi "github.com/sonet-social/search-service/internal/httpapi"
	"github.com/sonet-social/search-service/internal/orchestrator"
	"github.com/sonet-social/search-service/internal/pipeline"
	"github.com/sonet-social/search-service/internal/ratelimiter"
	"github.com/sonet-social/search-service/internal/respcache"
	"github.com/sonet-social/search-service/pkg/config"
	"github.com/sonet-social/search-service/pkg/version"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.NewFromEnv("search-service")
	zlog := zerolog.New(os.Stdout).With().Timestamp().Str("service", "search-service").Logger()

	m := sbmetrics.New("search-service")

	backendClient := backend.New(cfg.Backend, authModeFor(cfg), cfg.Backend.Password, zlog.With().Str("component", "backend").Logger())

	notesPipeline := pipeline.New(cfg.Pipeline.Notes, "notes", backendClient)
	usersPipeline := pipeline.New(cfg.Pipeline.Users, "users", backendClient)

	cache := respcache.New(respcache.Config{
		MaxSize:         cfg.Cache.MaxSize,
		TTL:             time.Duration(cfg.Cache.TTLMinutes) * time.Minute,
		CleanupInterval: time.Minute,
	})

	limiter := ratelimiter.New()

	var gate *authgate.Gate
	{
		var validator authgate.Validator
		gate = authgate.New(validator, []byte(os.Getenv("AUTH_JWT_SECRET")), cfg.Auth.CacheTTL)
	}

	ctrl := controller.New(controller.Config{
		NotesIndex:      "notes",
		UsersIndex:      "users",
		SlowQueryThresh: cfg.SlowQueryThreshold,
	}, backendClient, cache, limiter, gate, m, zlog.With().Str("component", "controller").Logger())

	orch := orchestrator.New(cfg.Runtime.ShutdownTimeout, zlog)
	orch.RegisterPipeline(notesPipeline)
	orch.RegisterPipeline(usersPipeline)
	orch.RegisterHealthCheck("backend", backendHealthCheck(backendClient))
	orch.RegisterHealthCheck("pipeline.notes", pipelineHealthCheck(notesPipeline))
	orch.RegisterHealthCheck("pipeline.users", pipelineHealthCheck(usersPipeline))

	if cfg.Features.RealTimeIndexing {
		subscriber := bus.New(bus.Config{
			Addrs:       cfg.Bus.Addrs,
			ConsumerTag: cfg.Bus.ConsumerTag,
		}, notesPipeline, usersPipeline, busLogger())
		orch.RegisterComponent(busComponent{subscriber})
	}

	if err := orch.Start(ctx); err != nil {
		log.Fatalf("start orchestrator: %v", err)
	}

	router := mux.NewRouter()
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.NewRecoveryMiddleware(logger).Handler)
	router.Use(middleware.IdentityMiddleware(gate))
	router.Use(middleware.NewRateLimiter(limiter, logger).Handler)
	router.Use(middleware.NewCORSMiddleware(corsConfig()).Handler)
	router.Use(middleware.NewSecurityHeadersMiddleware(middleware.DefaultSecurityHeaders()).Handler)
	if sbmetrics.Enabled() {
		router.Use(middleware.MetricsMiddleware("search-service", m))
		router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}

	api := httpapi.New(ctrl, orch, "search-service", version.Version)
	api.Register(router)

	port := utils.GetEnv("PORT", "8080")

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Printf("search-service listening on port %s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	shutdown := middleware.NewGracefulShutdown(server, cfg.Runtime.ShutdownTimeout)
	shutdown.OnShutdown(func() { ctrl.Stop() })
	shutdown.OnShutdown(func() {
		stopCtx, cancel := context.WithTimeout(ctx, cfg.Runtime.ShutdownTimeout)
		defer cancel()
		orch.Stop(stopCtx)
	})
	shutdown.ListenForSignals()
	shutdown.Wait()
	log.Println("shutdown complete")
}

// corsConfig builds the CORS policy from CORS_ALLOWED_ORIGINS, a
// comma-separated list (".example.com" suffix entries match subdomains);
// unset means no browser origin is allowed to call this API directly.
func corsConfig() *middleware.CORSConfig {
	origins := utils.SplitTrim(utils.GetEnv("CORS_ALLOWED_ORIGINS", ""), ",")
	return &middleware.CORSConfig{
		AllowedOrigins:   origins,
		AllowCredentials: false,
	}
}

// busLogger builds the zap logger used only by the bus subscriber, which
// logs through zap rather than the service's ambient zerolog/logrus loggers.
func busLogger() *zap.Logger {
	l, err := zap.NewProduction()
	if err != nil {
		return zap.NewNop()
	}
	return l.With(zap.String("component", "bus"))
}

func authModeFor(cfg *config.Config) string {
	switch {
	case cfg.Backend.Username != "" && cfg.Backend.Password != "":
		return "basic"
	case cfg.Backend.Password != "":
		return "api-key"
	default:
		return "none"
	}
}

func backendHealthCheck(c *backend.Client) service.HealthCheckFunc {
	return func(ctx context.Context) *service.ComponentHealth {
		if _, err := c.HealthCheck(ctx); err != nil {
			return &service.ComponentHealth{Status: "unhealthy", Message: err.Error()}
		}
		return &service.ComponentHealth{Status: "healthy"}
	}
}

func pipelineHealthCheck(p *pipeline.Pipeline) service.HealthCheckFunc {
	return func(ctx context.Context) *service.ComponentHealth {
		metrics := p.Metrics()
		if metrics.QueueSize > 0 && metrics.Failed > metrics.Indexed+metrics.Updated+metrics.Deleted {
			return &service.ComponentHealth{Status: "degraded", Message: "failure rate exceeds success rate"}
		}
		return &service.ComponentHealth{Status: "healthy"}
	}
}

// busComponent adapts *bus.Subscriber to orchestrator.Component.
type busComponent struct{ s *bus.Subscriber }

func (b busComponent) Start(ctx context.Context) error { return b.s.Start(ctx) }
func (b busComponent) Stop(ctx context.Context) error   { b.s.Stop(); return nil }
