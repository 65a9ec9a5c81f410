package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/Nithesh414/Bloom-Alert/internal/auth"
	"github.com/Nithesh414/Bloom-Alert/internal/models"
	"github.com/Nithesh414/Bloom-Alert/internal/observability"
)

var (
	ErrNoFileSelected  = errors.New("no file selected")
	ErrInvalidFileType = errors.New("invalid file type")
)

// DefaultDir is where uploaded images are written.
const DefaultDir = "static/uploads"

// MaxMemory bounds the in-memory part of multipart parsing; larger parts spill to temp files.
const MaxMemory = 32 << 20

var allowedExtensions = map[string]bool{
	"png":  true,
	"jpg":  true,
	"jpeg": true,
	"gif":  true,
}

var stripRe = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// Extension returns the lowercased text after the last dot, or "" when there is none.
func Extension(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return ""
	}
	return strings.ToLower(name[i+1:])
}

// AllowedFile reports whether name has a png, jpg, jpeg or gif extension.
func AllowedFile(name string) bool {
	return allowedExtensions[Extension(name)]
}

// SanitizeFilename reduces name to a safe ASCII basename. It may return "".
func SanitizeFilename(name string) string {
	name = norm.NFKD.String(name)

	var b strings.Builder
	for _, r := range name {
		if r < 0x80 {
			b.WriteRune(r)
		}
	}
	name = b.String()

	name = strings.NewReplacer("/", " ", `\`, " ").Replace(name)
	name = strings.Join(strings.Fields(name), "_")
	name = stripRe.ReplaceAllString(name, "")
	return strings.Trim(name, "._")
}

// storedName is the on-disk name for an upload whose original name passed AllowedFile.
func storedName(original string) string {
	safe := SanitizeFilename(original)
	if safe == "" || !AllowedFile(safe) {
		return uuid.NewString() + "." + Extension(original)
	}
	return safe
}

// ReportCreator persists report rows; *store.Store implements it.
type ReportCreator interface {
	CreateReport(ctx context.Context, r models.Report) (models.Report, error)
}

// Handler saves uploaded images and records reports.
type Handler struct {
	dir     string
	reports ReportCreator
}

// NewHandler creates the upload directory if needed.
func NewHandler(dir string, reports ReportCreator) (*Handler, error) {
	if dir == "" {
		dir = DefaultDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Handler{dir: dir, reports: reports}, nil
}

// Dir returns the upload directory.
func (h *Handler) Dir() string {
	return h.dir
}

// Save validates filename and writes body under the upload directory, replacing
// any file with the same name. Returns the stored name and byte count.
func (h *Handler) Save(filename string, body io.Reader) (string, int64, error) {
	if filename == "" {
		return "", 0, ErrNoFileSelected
	}
	if !AllowedFile(filename) {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidFileType, filename)
	}

	name := storedName(filename)
	f, err := os.Create(filepath.Join(h.dir, name))
	if err != nil {
		return "", 0, fmt.Errorf("create %s: %w", name, err)
	}
	n, err := io.Copy(f, body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", 0, fmt.Errorf("write %s: %w", name, err)
	}
	return name, n, nil
}

// Upload saves the image and creates a report owned by id.
func (h *Handler) Upload(ctx context.Context, id auth.Identity, filename string, body io.Reader, fields models.ReportFields) (models.Report, error) {
	name, _, err := h.Save(filename, body)
	if err != nil {
		return models.Report{}, err
	}
	r, err := h.reports.CreateReport(ctx, models.Report{
		UserID:        id.UserID,
		ImageFilename: name,
		Location:      fields.Location,
		DateTime:      fields.DateTime,
		FlowerName:    fields.FlowerName,
		Intensity:     fields.Intensity,
	})
	if err != nil {
		return models.Report{}, err
	}
	observability.ReportsCreatedTotal.Inc()
	observability.LoggerFromContext(ctx).Info("report uploaded",
		zap.Int64("report_id", r.ID),
		zap.Int64("user_id", id.UserID),
		zap.String("image", name))
	return r, nil
}

// DetectFile saves the image without creating a report and returns the prediction.
func (h *Handler) DetectFile(ctx context.Context, filename string, body io.Reader) (string, error) {
	name, size, err := h.Save(filename, body)
	if err != nil {
		return "", err
	}
	prediction := Detect(name, size)
	observability.DetectionsTotal.WithLabelValues(prediction).Inc()
	observability.LoggerFromContext(ctx).Debug("detection", zap.String("image", name), zap.Int64("size", size), zap.String("prediction", prediction))
	return prediction, nil
}

// FormFile opens the multipart part field. A missing part or empty filename is ErrNoFileSelected.
// The caller closes the returned file.
func FormFile(r *http.Request, field string) (io.ReadCloser, string, error) {
	f, hdr, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, "", ErrNoFileSelected
	}
	if err != nil {
		return nil, "", fmt.Errorf("read form file: %w", err)
	}
	if hdr.Filename == "" {
		f.Close()
		return nil, "", ErrNoFileSelected
	}
	return f, hdr.Filename, nil
}
