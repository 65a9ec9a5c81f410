// Package ndvi loads monthly NDVI series and classifies recent bloom activity.
package ndvi

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Nithesh414/Bloom-Alert/internal/models"
)

// DefaultPath is the CSV read when no path is configured.
const DefaultPath = "data/ndvi_sample.csv"

var errUnrecognizedColumns = errors.New("csv needs month,ndvi or date,ndvi columns")

var fallback = []models.NDVIRecord{
	{Month: "Jan", NDVI: 0.65},
	{Month: "Feb", NDVI: 0.70},
	{Month: "Mar", NDVI: 0.75},
	{Month: "Apr", NDVI: 0.72},
	{Month: "May", NDVI: 0.68},
	{Month: "Jun", NDVI: 0.74},
}

// Fallback returns the fixed series served when the CSV is missing or unusable.
func Fallback() []models.NDVIRecord {
	out := make([]models.NDVIRecord, len(fallback))
	copy(out, fallback)
	return out
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006/01/02",
	"01/02/2006",
}

// Loader reads the NDVI CSV on every call so edits show up without a restart.
type Loader struct {
	path   string
	logger *zap.Logger
}

// NewLoader returns a Loader for path (DefaultPath when empty).
func NewLoader(path string, logger *zap.Logger) *Loader {
	if path == "" {
		path = DefaultPath
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{path: path, logger: logger}
}

// Load returns the monthly series. Any failure yields Fallback; errors are only logged.
func (l *Loader) Load() []models.NDVIRecord {
	f, err := os.Open(l.path)
	if err != nil {
		l.logger.Debug("ndvi csv unavailable, using fallback", zap.String("path", l.path), zap.Error(err))
		return Fallback()
	}
	defer f.Close()

	records, err := Parse(f)
	if err != nil {
		l.logger.Debug("ndvi csv unusable, using fallback", zap.String("path", l.path), zap.Error(err))
		return Fallback()
	}
	return records
}

// Parse reads either a month,ndvi or a date,ndvi CSV. Headers are matched
// case-insensitively after trimming; month,ndvi wins when both shapes fit.
func Parse(r io.Reader) ([]models.NDVIRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := cols[name]; !dup {
			cols[name] = i
		}
	}

	ndviCol, ok := cols["ndvi"]
	if !ok {
		return nil, errUnrecognizedColumns
	}
	if monthCol, ok := cols["month"]; ok {
		return parseMonthly(cr, monthCol, ndviCol)
	}
	if dateCol, ok := cols["date"]; ok {
		return parseDaily(cr, dateCol, ndviCol)
	}
	return nil, errUnrecognizedColumns
}

func field(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func parseValue(raw string, line int) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("line %d: ndvi %q: %w", line, raw, err)
	}
	return v, nil
}

func parseMonthly(cr *csv.Reader, monthCol, ndviCol int) ([]models.NDVIRecord, error) {
	records := []models.NDVIRecord{}
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, err
		}
		raw := field(row, ndviCol)
		if raw == "" {
			continue
		}
		v, err := parseValue(raw, line)
		if err != nil {
			return nil, err
		}
		records = append(records, models.NDVIRecord{Month: field(row, monthCol), NDVI: v})
	}
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseDaily(cr *csv.Reader, dateCol, ndviCol int) ([]models.NDVIRecord, error) {
	var sums [12]float64
	var counts [12]int
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		t, ok := parseDate(field(row, dateCol))
		if !ok {
			continue
		}
		raw := field(row, ndviCol)
		if raw == "" {
			continue
		}
		v, err := parseValue(raw, line)
		if err != nil {
			return nil, err
		}
		m := t.Month() - 1
		sums[m] += v
		counts[m]++
	}

	records := []models.NDVIRecord{}
	for m := 0; m < 12; m++ {
		if counts[m] == 0 {
			continue
		}
		records = append(records, models.NDVIRecord{
			Month: time.Month(m + 1).String()[:3],
			NDVI:  sums[m] / float64(counts[m]),
		})
	}
	return records, nil
}

// Bloom statuses returned by Classify.
const (
	StatusHigh     = "High Bloom Activity"
	StatusModerate = "Moderate Bloom"
	StatusLow      = "Low Bloom Phase"
	StatusNoData   = "No data"
)

const recentWindow = 3

// Values extracts the ndvi column in order.
func Values(records []models.NDVIRecord) []float64 {
	out := make([]float64, len(records))
	for i, r := range records {
		out[i] = r.NDVI
	}
	return out
}

// Classify averages the last three values (fewer if short). Thresholds use the
// unrounded mean; the reported mean is rounded to 3 decimals.
func Classify(values []float64) models.BloomSummary {
	if len(values) == 0 {
		return models.BloomSummary{Status: StatusNoData}
	}
	recent := values
	if len(recent) > recentWindow {
		recent = recent[len(recent)-recentWindow:]
	}
	var sum float64
	for _, v := range recent {
		sum += v
	}
	mean := sum / float64(len(recent))

	status := StatusLow
	switch {
	case mean >= 0.70:
		status = StatusHigh
	case mean >= 0.60:
		status = StatusModerate
	}
	rounded := math.Round(mean*1000) / 1000
	return models.BloomSummary{Status: status, RecentMean: &rounded}
}
