package validation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/Nithesh414/Bloom-Alert/internal/models"
)

// ErrMalformedInput is returned for blank required fields, oversized text and bad identifiers.
var ErrMalformedInput = errors.New("malformed input")

// Default coordinates (Chennai) used when a query value is missing or unusable.
const (
	DefaultLat = 13.0827
	DefaultLon = 80.2707
)

// MaxUsernameLength and MaxFieldLength bound free text in runes.
const (
	MaxUsernameLength = 150
	MaxFieldLength    = 500
)

// ParseCoordinate returns def when raw is empty, unparseable or zero.
func ParseCoordinate(raw string, def float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || v == 0 {
		return def
	}
	return v
}

// ParseCoordinates applies ParseCoordinate to a lat/lon pair of query values.
func ParseCoordinates(lat, lon string) models.Coordinates {
	return models.Coordinates{
		Lat: ParseCoordinate(lat, DefaultLat),
		Lon: ParseCoordinate(lon, DefaultLon),
	}
}

// ValidateCredentials trims the username and requires both fields to be non-blank.
// The password is returned untouched.
func ValidateCredentials(username, password string) (string, string, error) {
	u := strings.TrimSpace(username)
	if u == "" || strings.TrimSpace(password) == "" {
		return "", "", fmt.Errorf("%w: username and password are required", ErrMalformedInput)
	}
	if utf8.RuneCountInString(u) > MaxUsernameLength {
		return "", "", fmt.Errorf("%w: username too long", ErrMalformedInput)
	}
	return u, password, nil
}

// ValidateReportFields trims each field; fields are optional but bounded in length.
func ValidateReportFields(f models.ReportFields) (models.ReportFields, error) {
	out := models.ReportFields{
		Location:   strings.TrimSpace(f.Location),
		DateTime:   strings.TrimSpace(f.DateTime),
		FlowerName: strings.TrimSpace(f.FlowerName),
		Intensity:  strings.TrimSpace(f.Intensity),
	}
	for name, v := range map[string]string{
		"location":    out.Location,
		"date_time":   out.DateTime,
		"flower_name": out.FlowerName,
		"intensity":   out.Intensity,
	} {
		if utf8.RuneCountInString(v) > MaxFieldLength {
			return models.ReportFields{}, fmt.Errorf("%w: %s too long", ErrMalformedInput, name)
		}
	}
	return out, nil
}

// ParseID parses a positive integer path identifier.
func ParseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id %q", ErrMalformedInput, raw)
	}
	return id, nil
}
