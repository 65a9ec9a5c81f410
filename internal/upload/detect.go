package upload

import "strings"

// Predictions returned by Detect.
const (
	FullBloom    = "Full Bloom"
	PartialBloom = "Partial Bloom"
	NoBloom      = "No Bloom"
	Unknown      = "Unknown"
)

const (
	fullBloomBytes    = 200000
	partialBloomBytes = 80000
)

// Detect guesses a bloom stage from the stored filename and file size.
// It is a placeholder heuristic, not an image classifier. A negative size means unknown.
func Detect(filename string, size int64) string {
	name := strings.ToLower(filename)
	switch {
	case strings.Contains(name, "full"):
		return FullBloom
	case strings.Contains(name, "partial"):
		return PartialBloom
	case size < 0:
		return Unknown
	case size > fullBloomBytes:
		return FullBloom
	case size > partialBloomBytes:
		return PartialBloom
	default:
		return NoBloom
	}
}
