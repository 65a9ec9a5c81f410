package http

import (
	"context"
	"encoding/json"
	"html/template"
	"io"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/Nithesh414/Bloom-Alert/internal/auth"
	"github.com/Nithesh414/Bloom-Alert/internal/models"
	"github.com/Nithesh414/Bloom-Alert/internal/ndvi"
	"github.com/Nithesh414/Bloom-Alert/internal/observability"
	"github.com/Nithesh414/Bloom-Alert/internal/service"
	"github.com/Nithesh414/Bloom-Alert/internal/upload"
	"github.com/Nithesh414/Bloom-Alert/internal/validation"
)

// ReportStore is the report persistence used by handlers; *store.Store implements it.
type ReportStore interface {
	ListReports(ctx context.Context) ([]models.Report, error)
	ListReportsByUser(ctx context.Context, userID int64) ([]models.Report, error)
	GetReport(ctx context.Context, userID, id int64) (models.Report, error)
	UpdateReport(ctx context.Context, userID, id int64, f models.ReportFields) (models.Report, error)
	Ping(ctx context.Context) error
}

// Deps are the collaborators a Handler needs. CachePing and BreakerState are optional.
type Deps struct {
	Weather       *service.WeatherService
	Reports       ReportStore
	Auth          *auth.Service
	Uploads       *upload.Handler
	NDVI          *ndvi.Loader
	Logger        *zap.Logger
	SecureCookies bool
	CachePing     func() error
	BreakerState  func() string
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	weather       *service.WeatherService
	reports       ReportStore
	auth          *auth.Service
	uploads       *upload.Handler
	ndvi          *ndvi.Loader
	tmpl          *template.Template
	logger        *zap.Logger
	secureCookies bool
	cachePing     func() error
	breakerState  func() string

	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(d Deps) *Handler {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		weather:       d.Weather,
		reports:       d.Reports,
		auth:          d.Auth,
		uploads:       d.Uploads,
		ndvi:          d.NDVI,
		tmpl:          newTemplates(),
		logger:        logger,
		secureCookies: d.SecureCookies,
		cachePing:     d.CachePing,
		breakerState:  d.BreakerState,
	}
}

type reportResponse struct {
	ID         int64  `json:"id"`
	DateTime   string `json:"date_time"`
	FlowerName string `json:"flower_name"`
	Location   string `json:"location"`
	Intensity  string `json:"intensity"`
	Image      string `json:"image"`
}

func toReportResponse(r models.Report) reportResponse {
	return reportResponse{
		ID:         r.ID,
		DateTime:   r.DateTime,
		FlowerName: r.FlowerName,
		Location:   r.Location,
		Intensity:  r.Intensity,
		Image:      "/static/uploads/" + r.ImageFilename,
	}
}

func toReportResponses(reports []models.Report) []reportResponse {
	out := make([]reportResponse, 0, len(reports))
	for _, r := range reports {
		out = append(out, toReportResponse(r))
	}
	return out
}

// GetReports handles GET /api/reports: every report, for the calendar.
func (h *Handler) GetReports(w http.ResponseWriter, r *http.Request) {
	reports, err := h.reports.ListReports(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReportResponses(reports))
}

// GetUserReports handles GET /api/user_reports.
func (h *Handler) GetUserReports(w http.ResponseWriter, r *http.Request) {
	reports, err := h.reports.ListReportsByUser(r.Context(), identity(r).UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReportResponses(reports))
}

type updateReportRequest struct {
	Location   string `json:"location"`
	DateTime   string `json:"date_time"`
	FlowerName string `json:"flower_name"`
	Intensity  string `json:"intensity"`
}

// PutReport handles PUT /api/reports/{id} with a JSON body.
func (h *Handler) PutReport(w http.ResponseWriter, r *http.Request) {
	id, err := validation.ParseID(mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	var body updateReportRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, CodeMalformedInput, "Malformed input", "request body must be a JSON object")
		return
	}
	fields, err := validation.ValidateReportFields(models.ReportFields(body))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	updated, err := h.reports.UpdateReport(r.Context(), identity(r).UserID, id, fields)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	observability.ReportsUpdatedTotal.Inc()
	writeJSON(w, http.StatusOK, toReportResponse(updated))
}

// PostDetect handles POST /detect: stores the image and returns a bloom prediction.
func (h *Handler) PostDetect(w http.ResponseWriter, r *http.Request) {
	f, name, err := upload.FormFile(r, "detectImage")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	defer f.Close()

	prediction, err := h.uploads.DetectFile(r.Context(), name, f)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"prediction": prediction})
}

// GetNDVIMonthly handles GET /api/ndvi_monthly.
func (h *Handler) GetNDVIMonthly(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ndvi.Load())
}

// GetBloomSummary handles GET /api/bloom_summary.
func (h *Handler) GetBloomSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ndvi.Classify(ndvi.Values(h.ndvi.Load())))
}

func coordinates(r *http.Request) models.Coordinates {
	q := r.URL.Query()
	return validation.ParseCoordinates(q.Get("lat"), q.Get("lon"))
}

// GetWeather handles GET /api/weather?lat=&lon=.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	result, err := h.weather.CurrentWeather(r.Context(), coordinates(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetForecast handles GET /api/forecast?lat=&lon=.
func (h *Handler) GetForecast(w http.ResponseWriter, r *http.Request) {
	result, err := h.weather.Forecast(r.Context(), coordinates(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetAirQuality handles GET /api/air_quality?lat=&lon=.
func (h *Handler) GetAirQuality(w http.ResponseWriter, r *http.Request) {
	result, err := h.weather.AirQuality(r.Context(), coordinates(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
