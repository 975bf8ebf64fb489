// Package httpapi exposes the controller's RPC surface over HTTP+JSON,
// translating request headers into a controller.RequestContext and JSON
// bodies or query-string parameters into typed queries, grounded on the teacher's gorilla/mux route
// registration style used in cmd/gateway.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/sonet-social/search-service/infrastructure/utils"
	"github.com/sonet-social/search-service/internal/controller"
	"github.com/sonet-social/search-service/internal/model"
)

// API wires the controller and orchestrator into mux routes.
type API struct {
	ctrl        *controller.Controller
	orch        healthStatusSource
	serviceName string
	version     string
}

type healthStatusSource interface {
	Healthy() bool
}

// New constructs an API. orch may be any type exposing Healthy(); the
// concrete *orchestrator.Orchestrator additionally satisfies this.
func New(ctrl *controller.Controller, orch healthStatusSource, serviceName, version string) *API {
	return &API{ctrl: ctrl, orch: orch, serviceName: serviceName, version: version}
}

// Register mounts every route onto r.
func (a *API) Register(r *mux.Router) {
	r.HandleFunc("/api/v1/search/notes", a.handleSearchNotes).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/search/users", a.handleSearchUsers).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/trending/hashtags", a.handleTrendingHashtags).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/trending/users", a.handleTrendingUsers).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/suggestions", a.handleSuggestions).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/autocomplete", a.handleAutocomplete).Methods(http.MethodGet)
	r.HandleFunc("/healthz", a.handleHealth).Methods(http.MethodGet)
}

func requestContext(r *http.Request) controller.RequestContext {
	return controller.RequestContext{
		ClientIP:       clientIP(r),
		SessionID:      r.Header.Get("X-Session-ID"),
		AuthHeader:     r.Header.Get("Authorization"),
		AcceptLanguage: r.Header.Get("Accept-Language"),
		Referer:        r.Header.Get("Referer"),
		UserAgent:      r.Header.Get("User-Agent"),
		RequestID:      utils.Coalesce(r.Header.Get("X-Request-ID"), uuid.NewString()),
	}
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	return r.RemoteAddr
}

func (a *API) handleSearchNotes(w http.ResponseWriter, r *http.Request) {
	a.handleSearch(w, r, a.ctrl.SearchNotes)
}

func (a *API) handleSearchUsers(w http.ResponseWriter, r *http.Request) {
	a.handleSearch(w, r, a.ctrl.SearchUsers)
}

func (a *API) handleSearch(w http.ResponseWriter, r *http.Request, run func(context.Context, controller.RequestContext, model.SearchQuery) controller.Envelope) {
	var q model.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeJSON(w, http.StatusBadRequest, controller.Envelope{
			Success: false, ErrorCode: controller.ErrInvalidQuery, Message: "malformed request body", Timestamp: time.Now(),
		})
		return
	}
	env := run(r.Context(), requestContext(r), q)
	writeJSON(w, statusFor(env), env)
}

func (a *API) handleTrendingHashtags(w http.ResponseWriter, r *http.Request) {
	env := a.ctrl.GetTrendingHashtags(r.Context(), requestContext(r))
	writeJSON(w, statusFor(env), env)
}

func (a *API) handleTrendingUsers(w http.ResponseWriter, r *http.Request) {
	env := a.ctrl.GetTrendingUsers(r.Context(), requestContext(r))
	writeJSON(w, statusFor(env), env)
}

func (a *API) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	env := a.ctrl.GetSuggestions(r.Context(), requestContext(r), r.URL.Query().Get("q"))
	writeJSON(w, statusFor(env), env)
}

func (a *API) handleAutocomplete(w http.ResponseWriter, r *http.Request) {
	env := a.ctrl.Autocomplete(r.Context(), requestContext(r), r.URL.Query().Get("q"))
	writeJSON(w, statusFor(env), env)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	healthy := a.orch.Healthy()
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]interface{}{
		"healthy": healthy,
		"service": a.serviceName,
		"version": a.version,
	})
}

func statusFor(env controller.Envelope) int {
	if env.Success {
		return http.StatusOK
	}
	switch env.ErrorCode {
	case controller.ErrAuthenticationRequired:
		return http.StatusUnauthorized
	case controller.ErrRateLimitExceeded:
		return http.StatusTooManyRequests
	case controller.ErrInvalidQuery:
		return http.StatusBadRequest
	case controller.ErrTimeout:
		return http.StatusGatewayTimeout
	case controller.ErrBackendUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
