package api

import (
	"context"
	"log/slog"
	"net/http"
)

// Pinger reports whether a dependency is reachable.
type Pinger func(ctx context.Context) error

type SystemHandler struct {
	checks   map[string]Pinger
	advisory map[string]Pinger
}

func NewSystemHandler(checks map[string]Pinger) *SystemHandler {
	return &SystemHandler{checks: checks, advisory: map[string]Pinger{}}
}

// Advise registers a check that is reported but never degrades the service.
func (h *SystemHandler) Advise(name string, ping Pinger) *SystemHandler {
	h.advisory[name] = ping
	return h
}

// HealthHandler runs every registered check. A failing required check turns
// the response into a 503 listing the failing dependency.
func (h *SystemHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{}
	code := http.StatusOK
	for name, ping := range h.checks {
		if !runCheck(r.Context(), name, ping) {
			status[name] = "down"
			code = http.StatusServiceUnavailable
			continue
		}
		status[name] = "ok"
	}
	for name, ping := range h.advisory {
		status[name] = "ok"
		if !runCheck(r.Context(), name, ping) {
			status[name] = "down"
		}
	}

	overall := "ok"
	if code != http.StatusOK {
		overall = "degraded"
	}
	writeJSON(w, map[string]any{"status": overall, "service": "qna", "checks": status}, code)
}

func runCheck(ctx context.Context, name string, ping Pinger) bool {
	if err := ping(ctx); err != nil {
		logger.Warn("health check failed", slog.String("check", name), slog.Any("err", err))
		return false
	}
	return true
}

func (h *SystemHandler) VersionHandler(version, buildTime string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"version": version, "buildTime": buildTime}, http.StatusOK)
	}
}
