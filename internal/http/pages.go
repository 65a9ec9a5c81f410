package http

import (
	"bytes"
	"embed"
	"errors"
	"html/template"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/Nithesh414/Bloom-Alert/internal/auth"
	"github.com/Nithesh414/Bloom-Alert/internal/models"
	"github.com/Nithesh414/Bloom-Alert/internal/observability"
	"github.com/Nithesh414/Bloom-Alert/internal/store"
	"github.com/Nithesh414/Bloom-Alert/internal/upload"
	"github.com/Nithesh414/Bloom-Alert/internal/validation"
)

//go:embed templates/*
var templateFS embed.FS

func newTemplates() *template.Template {
	return template.Must(template.ParseFS(templateFS, "templates/*.html"))
}

type pageData struct {
	Title    string
	Username string
	Flashes  []flash
	Reports  []models.Report
	Report   *models.Report
}

// render executes a page into a buffer so a template error never leaves a half-written response.
func (h *Handler) render(w http.ResponseWriter, r *http.Request, name string, data pageData) {
	data.Flashes = h.popFlashes(w, r)
	if id, ok := auth.IdentityFromContext(r.Context()); ok {
		data.Username = id.Username
	}
	var buf bytes.Buffer
	if err := h.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		observability.LoggerFromContext(r.Context()).Error("render template", zap.String("template", name), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

// Home, Camera, Calendar and About render pages with no server-side data.
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "home.html", pageData{Title: "Home"})
}

func (h *Handler) Camera(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "camera.html", pageData{Title: "Camera"})
}

func (h *Handler) Calendar(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "calendar.html", pageData{Title: "Calendar"})
}

func (h *Handler) About(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "about.html", pageData{Title: "About"})
}

// AuthPage handles GET /auth.
func (h *Handler) AuthPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "auth.html", pageData{Title: "Login"})
}

// PostAuth handles POST /auth with action=login or action=register.
func (h *Handler) PostAuth(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.redirectWithFlash(w, r, "/auth", flashError, "Malformed input")
		return
	}
	username, password := r.PostForm.Get("username"), r.PostForm.Get("password")

	switch r.PostForm.Get("action") {
	case "register":
		_, err := h.auth.Register(r.Context(), username, password)
		switch {
		case err == nil:
			h.redirectWithFlash(w, r, "/auth", flashSuccess, "Registered. Please login.")
		case errors.Is(err, auth.ErrDuplicateUsername):
			h.redirectWithFlash(w, r, "/auth", flashError, "Username exists")
		case errors.Is(err, validation.ErrMalformedInput):
			h.redirectWithFlash(w, r, "/auth", flashError, "Username and password are required")
		default:
			observability.LoggerFromContext(r.Context()).Error("register failed", zap.Error(err))
			h.redirectWithFlash(w, r, "/auth", flashError, "Registration failed")
		}
	case "login":
		sess, _, err := h.auth.Login(r.Context(), username, password)
		switch {
		case err == nil:
			h.setSessionCookie(w, sess)
			h.redirectWithFlash(w, r, "/", flashSuccess, "Logged in")
		case errors.Is(err, auth.ErrInvalidCredentials):
			h.redirectWithFlash(w, r, "/auth", flashError, "Invalid credentials")
		default:
			observability.LoggerFromContext(r.Context()).Error("login failed", zap.Error(err))
			h.redirectWithFlash(w, r, "/auth", flashError, "Login failed")
		}
	default:
		h.redirectWithFlash(w, r, "/auth", flashError, "Unknown action")
	}
}

// Logout handles GET /logout.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Logout(r.Context(), sessionToken(r)); err != nil {
		observability.LoggerFromContext(r.Context()).Warn("logout failed", zap.Error(err))
	}
	h.clearSessionCookie(w)
	h.redirectWithFlash(w, r, "/auth", flashSuccess, "Logged out")
}

func (h *Handler) userReports(w http.ResponseWriter, r *http.Request, name, title string) {
	reports, err := h.reports.ListReportsByUser(r.Context(), identity(r).UserID)
	if err != nil {
		observability.LoggerFromContext(r.Context()).Error("list reports", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	h.render(w, r, name, pageData{Title: title, Reports: reports})
}

// ReportPage handles GET /report: the upload form plus the caller's reports.
func (h *Handler) ReportPage(w http.ResponseWriter, r *http.Request) {
	h.userReports(w, r, "report.html", "Report")
}

// UserReportsPage handles GET /user_reports_page.
func (h *Handler) UserReportsPage(w http.ResponseWriter, r *http.Request) {
	h.userReports(w, r, "user_reports.html", "My reports")
}

// PostUpload handles POST /upload from the report form.
func (h *Handler) PostUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(upload.MaxMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		h.redirectWithFlash(w, r, "/report", flashError, "Malformed input")
		return
	}
	f, name, err := upload.FormFile(r, "flowerImage")
	if err != nil {
		h.uploadFailed(w, r, err)
		return
	}
	defer f.Close()

	fields, err := validation.ValidateReportFields(models.ReportFields{
		Location:   r.FormValue("location"),
		DateTime:   r.FormValue("dateTime"),
		FlowerName: r.FormValue("flower_name"),
		Intensity:  r.FormValue("intensity"),
	})
	if err != nil {
		h.uploadFailed(w, r, err)
		return
	}
	if _, err := h.uploads.Upload(r.Context(), identity(r), name, f, fields); err != nil {
		h.uploadFailed(w, r, err)
		return
	}
	h.redirectWithFlash(w, r, "/report", flashSuccess, "Uploaded successfully")
}

func (h *Handler) uploadFailed(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, upload.ErrNoFileSelected):
		h.redirectWithFlash(w, r, "/report", flashError, "No file selected")
	case errors.Is(err, upload.ErrInvalidFileType):
		h.redirectWithFlash(w, r, "/report", flashError, "Invalid file type")
	case errors.Is(err, validation.ErrMalformedInput):
		h.redirectWithFlash(w, r, "/report", flashError, "Malformed input")
	default:
		observability.LoggerFromContext(r.Context()).Error("upload failed", zap.Error(err))
		h.redirectWithFlash(w, r, "/report", flashError, "Upload failed")
	}
}

// UpdateReportPage handles GET /update_report/{id}.
func (h *Handler) UpdateReportPage(w http.ResponseWriter, r *http.Request) {
	id, err := validation.ParseID(mux.Vars(r)["id"])
	if err != nil {
		h.redirectWithFlash(w, r, "/user_reports_page", flashError, "Report not found")
		return
	}
	report, err := h.reports.GetReport(r.Context(), identity(r).UserID, id)
	if err != nil {
		h.reportNotFound(w, r, err)
		return
	}
	h.render(w, r, "update_report.html", pageData{Title: "Edit report", Report: &report})
}

// PostUpdateReport handles POST /update_report/{id}. The date field is read
// as dateTime (form field name) or date_time.
func (h *Handler) PostUpdateReport(w http.ResponseWriter, r *http.Request) {
	id, err := validation.ParseID(mux.Vars(r)["id"])
	if err != nil {
		h.redirectWithFlash(w, r, "/user_reports_page", flashError, "Report not found")
		return
	}
	if err := r.ParseForm(); err != nil {
		h.redirectWithFlash(w, r, "/user_reports_page", flashError, "Malformed input")
		return
	}
	dateTime := r.PostForm.Get("dateTime")
	if dateTime == "" {
		dateTime = r.PostForm.Get("date_time")
	}
	fields, err := validation.ValidateReportFields(models.ReportFields{
		Location:   r.PostForm.Get("location"),
		DateTime:   dateTime,
		FlowerName: r.PostForm.Get("flower_name"),
		Intensity:  r.PostForm.Get("intensity"),
	})
	if err != nil {
		h.redirectWithFlash(w, r, "/user_reports_page", flashError, "Malformed input")
		return
	}
	if _, err := h.reports.UpdateReport(r.Context(), identity(r).UserID, id, fields); err != nil {
		h.reportNotFound(w, r, err)
		return
	}
	observability.ReportsUpdatedTotal.Inc()
	h.redirectWithFlash(w, r, "/user_reports_page", flashSuccess, "Report updated")
}

func (h *Handler) reportNotFound(w http.ResponseWriter, r *http.Request, err error) {
	if !errors.Is(err, store.ErrNotFound) {
		observability.LoggerFromContext(r.Context()).Error("report lookup failed", zap.Error(err))
	}
	h.redirectWithFlash(w, r, "/user_reports_page", flashError, "Report not found")
}

// Uploads serves stored images under /static/uploads/.
func (h *Handler) Uploads() http.Handler {
	return http.StripPrefix("/static/uploads/", http.FileServer(http.Dir(h.uploads.Dir())))
}
