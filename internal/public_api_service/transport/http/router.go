package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"log/slog"

	"github.com/numberport/golang_services/internal/public_api_service/middleware"
)

// RouterDeps are the handlers and settings the API router mounts.
type RouterDeps struct {
	Porting        *PortingHandler
	Circles        *CircleHandler
	Relay          *RelayHandler
	Failures       *FailureHandler
	JWTSecret      []byte
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

func NewRouter(d RouterDeps) http.Handler {
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(d.RequestTimeout))
	r.Use(PrometheusMetricsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	authMW := middleware.AuthMiddleware(d.JWTSecret, d.Logger)
	adminMW := middleware.AdminOnly(d.Logger)

	r.Route("/api/v1", func(v1 chi.Router) {
		v1.Use(authMW)

		v1.Route("/porting-requests", func(pr chi.Router) {
			pr.Post("/", d.Porting.CreatePortingRequest)
			pr.Route("/{id}", func(one chi.Router) {
				one.Get("/", d.Porting.GetPortingRequest)
				one.Post("/notifications", d.Porting.ScheduleNotifications)
				one.Post("/automation", d.Porting.ToggleAutomation)
				one.Post("/status-check", d.Porting.CheckStatus)
				one.Post("/cancel", d.Porting.CancelPortingRequest)
				one.With(adminMW).Post("/initiate", d.Porting.InitiatePorting)
			})
		})

		v1.Get("/circles", d.Circles.ListCircles)
		v1.Route("/circles/{circle}", func(cr chi.Router) {
			cr.Get("/rules", d.Circles.GetRules)
			cr.Get("/lead-date", d.Circles.GetLeadDate)
			cr.Get("/porting-date", d.Circles.GetPortingDate)
		})

		v1.Route("/mobile-sms", func(mr chi.Router) {
			mr.Get("/pending", d.Relay.GetPending)
			mr.Post("/{id}/result", d.Relay.ReportResult)
		})

		v1.Route("/admin/sms-failures", func(ar chi.Router) {
			ar.Use(adminMW)
			ar.Get("/", d.Failures.ListFailures)
			ar.Post("/{id}/retry", d.Failures.RetryFailure)
			ar.Post("/{id}/resolve", d.Failures.ResolveFailure)
		})
	})

	return r
}
