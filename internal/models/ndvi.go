package models

// NDVIRecord is the vegetation index for one calendar month.
type NDVIRecord struct {
	Month string  `json:"month"`
	NDVI  float64 `json:"ndvi"`
}

// BloomSummary is the qualitative bloom status derived from recent NDVI values.
// RecentMean is nil when there is no data.
type BloomSummary struct {
	Status     string   `json:"status"`
	RecentMean *float64 `json:"recent_mean"`
}
