package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/otafleet/otafleet/internal/services"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	firmware  *services.FirmwareService
	telemetry *services.TelemetryService
	auth      *services.AuthService

	buildArtifactPath string
	webhookSecret     string
}

func NewServer(
	firmware *services.FirmwareService,
	telemetry *services.TelemetryService,
	auth *services.AuthService,
	buildArtifactPath string,
	webhookSecret string,
) *Server {
	return &Server{
		firmware:          firmware,
		telemetry:         telemetry,
		auth:              auth,
		buildArtifactPath: buildArtifactPath,
		webhookSecret:     webhookSecret,
	}
}

func (s *Server) Router(limiter *RateLimiter) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	if limiter != nil {
		router.Use(limiter.Middleware)
	}

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	router.Handle("/metrics", promhttp.Handler())

	router.Route("/api", func(r chi.Router) {
		r.Post("/auth/token", s.handleIssueToken)

		r.Get("/firmware/version", s.handleResolveVersion)
		r.Get("/firmware/download", s.handleDownload)
		r.Get("/firmware/history", s.handleListReleases)
		r.With(s.requireRole(services.RolePublisher)).
			Post("/firmware/upload", s.handleUpload)
		r.With(s.requireRole(services.RoleAdmin)).
			Delete("/firmware/{releaseID}", s.handleRetract)

		r.Post("/github/webhook", s.handleGithubWebhook)

		r.Post("/heartbeat", s.handleHeartbeat)
		r.Post("/log", s.handleOutcome)
		r.Post("/sensor", s.handleSensorPost)
		r.With(s.requireRole(services.RolePublisher)).
			Get("/sensor", s.handleSensorList)
		r.Get("/devices", s.handleListDevices)
		r.Get("/log", s.handleListOutcomes)

		r.With(s.requireRole(services.RoleAdmin)).
			Get("/export/outcomes.csv", s.handleExportOutcomes)
		r.With(s.requireRole(services.RoleAdmin)).
			Get("/export/sensors.csv", s.handleExportSensors)
	})

	return router
}
