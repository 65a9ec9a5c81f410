package http

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Nithesh414/Bloom-Alert/internal/observability"
)

// NewRouter wires every route. /auth, /health and /metrics are open; pages
// redirect anonymous visitors to /auth; /api and /detect answer 401 JSON.
// limiter may be nil to disable rate limiting.
func NewRouter(h *Handler, logger *zap.Logger, limiter *rate.Limiter) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)

	router.HandleFunc("/health", h.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler()).Methods("GET")

	router.HandleFunc("/auth", h.AuthPage).Methods("GET")
	router.HandleFunc("/auth", h.PostAuth).Methods("POST")

	api := router.PathPrefix("/api").Subrouter()
	api.Use(RateLimitMiddleware(limiter))
	api.Use(h.RequireAPILogin)
	api.HandleFunc("/reports", h.GetReports).Methods("GET")
	api.HandleFunc("/reports/{id}", h.PutReport).Methods("PUT")
	api.HandleFunc("/user_reports", h.GetUserReports).Methods("GET")
	api.HandleFunc("/ndvi_monthly", h.GetNDVIMonthly).Methods("GET")
	api.HandleFunc("/bloom_summary", h.GetBloomSummary).Methods("GET")
	api.HandleFunc("/weather", h.GetWeather).Methods("GET")
	api.HandleFunc("/forecast", h.GetForecast).Methods("GET")
	api.HandleFunc("/air_quality", h.GetAirQuality).Methods("GET")

	detect := RateLimitMiddleware(limiter)(h.RequireAPILogin(http.HandlerFunc(h.PostDetect)))
	router.Handle("/detect", detect).Methods("POST")

	page := func(f http.HandlerFunc) http.Handler {
		return h.RequirePageLogin(f)
	}
	router.Handle("/", page(h.Home)).Methods("GET")
	router.Handle("/report", page(h.ReportPage)).Methods("GET")
	router.Handle("/camera", page(h.Camera)).Methods("GET")
	router.Handle("/calendar", page(h.Calendar)).Methods("GET")
	router.Handle("/about", page(h.About)).Methods("GET")
	router.Handle("/user_reports_page", page(h.UserReportsPage)).Methods("GET")
	router.Handle("/logout", page(h.Logout)).Methods("GET")
	router.Handle("/upload", page(h.PostUpload)).Methods("POST")
	router.Handle("/update_report/{id}", page(h.UpdateReportPage)).Methods("GET")
	router.Handle("/update_report/{id}", page(h.PostUpdateReport)).Methods("POST")
	router.PathPrefix("/static/uploads/").Handler(h.RequirePageLogin(h.Uploads())).Methods("GET")

	return router
}
