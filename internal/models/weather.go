package models

// CurrentWeather is the normalized current conditions for a coordinate.
type CurrentWeather struct {
	Name        string  `json:"name"`
	Main        string  `json:"main"`
	Description string  `json:"description"`
	Temp        float64 `json:"temp"`
	Humidity    int     `json:"humidity"`
	WindSpeed   float64 `json:"wind_speed"`
}

// ForecastDay is one sampled day from the 5-day/3-hour provider forecast.
type ForecastDay struct {
	Date string  `json:"date"`
	Temp float64 `json:"temp"`
	Desc string  `json:"desc"`
	Icon string  `json:"icon"`
}

// AirQuality is the provider AQI index (1-5) with its label.
type AirQuality struct {
	AQI    int    `json:"aqi"`
	Status string `json:"status"`
}

// Coordinates is a latitude/longitude pair in decimal degrees.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}
