// Package v1 provides the REST API handlers of the dashboard render layer.
package v1

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hemobank/bo-dashboard/internal/api/common"
	"github.com/hemobank/bo-dashboard/internal/dashboard"
	"github.com/hemobank/bo-dashboard/internal/versions"
)

// ViewListResponse is the response of GET /api/v1/views
type ViewListResponse struct {
	Views       []dashboard.ViewStatus `json:"views"`
	AutoRefresh bool                   `json:"autoRefresh"`
}

// AutoRefreshRequest is the body of PUT /api/v1/preferences/auto-refresh
type AutoRefreshRequest struct {
	Enabled *bool `json:"enabled"`
}

// AutoRefreshResponse reports the shared preference
type AutoRefreshResponse struct {
	Enabled bool `json:"enabled"`
}

// Routes defines the routes for the dashboard API
type Routes struct {
	service dashboard.Service
}

// NewRoutes creates a new Routes instance with the provided service
func NewRoutes(svc dashboard.Service) *Routes {
	return &Routes{
		service: svc,
	}
}

// Router creates the /api/v1 router
func Router(svc dashboard.Service) http.Handler {
	routes := NewRoutes(svc)

	r := chi.NewRouter()

	r.Route("/views", func(r chi.Router) {
		r.Get("/", routes.listViews)
		r.Get("/{name}", routes.getView)
		r.Post("/{name}/refresh", routes.forceRefresh)
		r.Put("/{name}/params", routes.setParams)
	})

	r.Get("/preferences/auto-refresh", routes.getAutoRefresh)
	r.Put("/preferences/auto-refresh", routes.setAutoRefresh)

	return r
}

// listViews handles GET /api/v1/views
func (rr *Routes) listViews(w http.ResponseWriter, r *http.Request) {
	common.WriteJSONResponse(w, ViewListResponse{
		Views:       rr.service.ListViews(r.Context()),
		AutoRefresh: rr.service.AutoRefresh(r.Context()),
	}, http.StatusOK)
}

// getView handles GET /api/v1/views/{name}
func (rr *Routes) getView(w http.ResponseWriter, r *http.Request) {
	name, ok := viewName(w, r)
	if !ok {
		return
	}

	view, err := rr.service.GetView(r.Context(), name)
	if err != nil {
		writeServiceError(w, name, err)
		return
	}
	common.WriteJSONResponse(w, view, http.StatusOK)
}

// forceRefresh handles POST /api/v1/views/{name}/refresh.
// The refresh runs in the background; poll the view for its outcome.
func (rr *Routes) forceRefresh(w http.ResponseWriter, r *http.Request) {
	name, ok := viewName(w, r)
	if !ok {
		return
	}

	if err := rr.service.ForceRefresh(r.Context(), name); err != nil {
		writeServiceError(w, name, err)
		return
	}
	common.WriteJSONResponse(w, map[string]string{"status": "accepted"}, http.StatusAccepted)
}

// setParams handles PUT /api/v1/views/{name}/params
func (rr *Routes) setParams(w http.ResponseWriter, r *http.Request) {
	name, ok := viewName(w, r)
	if !ok {
		return
	}

	var params map[string]string
	if err := common.DecodeJSONBody(w, r, &params); err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := rr.service.SetParams(r.Context(), name, params); err != nil {
		writeServiceError(w, name, err)
		return
	}
	common.WriteJSONResponse(w, map[string]string{"status": "accepted"}, http.StatusAccepted)
}

// getAutoRefresh handles GET /api/v1/preferences/auto-refresh
func (rr *Routes) getAutoRefresh(w http.ResponseWriter, r *http.Request) {
	common.WriteJSONResponse(w, AutoRefreshResponse{Enabled: rr.service.AutoRefresh(r.Context())}, http.StatusOK)
}

// setAutoRefresh handles PUT /api/v1/preferences/auto-refresh
func (rr *Routes) setAutoRefresh(w http.ResponseWriter, r *http.Request) {
	var req AutoRefreshRequest
	if err := common.DecodeJSONBody(w, r, &req); err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Enabled == nil {
		common.WriteErrorResponse(w, "enabled is required", http.StatusBadRequest)
		return
	}

	rr.service.SetAutoRefresh(r.Context(), *req.Enabled)
	common.WriteJSONResponse(w, AutoRefreshResponse{Enabled: *req.Enabled}, http.StatusOK)
}

func viewName(w http.ResponseWriter, r *http.Request) (string, bool) {
	name, err := common.GetAndValidateURLParam(r, "name")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return "", false
	}
	return name, true
}

func writeServiceError(w http.ResponseWriter, name string, err error) {
	if errors.Is(err, dashboard.ErrViewNotFound) {
		common.WriteErrorResponse(w, "view not found: "+name, http.StatusNotFound)
		return
	}
	slog.Error("Dashboard request failed", "view", name, "error", err)
	common.WriteErrorResponse(w, "internal error", http.StatusInternalServerError)
}

// HealthRouter creates a router for health check endpoints
func HealthRouter(svc dashboard.Service) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", healthHandler)
	r.Get("/readiness", readinessHandler(svc))
	r.Get("/version", versionHandler)

	return r
}

// healthHandler handles health check requests
func healthHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, map[string]string{"status": "healthy"}, http.StatusOK)
}

// readinessHandler reports whether the views are mounted
func readinessHandler(svc dashboard.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.CheckReadiness(r.Context()); err != nil {
			common.WriteErrorResponse(w, "dashboard not ready: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		common.WriteJSONResponse(w, map[string]string{"status": "ready"}, http.StatusOK)
	}
}

// versionHandler handles version information requests
func versionHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, versions.GetVersionInfo(), http.StatusOK)
}
