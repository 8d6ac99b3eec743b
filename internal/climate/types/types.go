package types

// Station is one row of the station table.
type Station struct {
	Code      string  `json:"station"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Elevation float64 `json:"elevation"`
	// Located is false when the row has no coordinates.
	Located bool `json:"-"`
}

// Measurement is one daily observation. Dates are YYYY-MM-DD strings, which
// sort chronologically.
type Measurement struct {
	Station       string
	Date          string
	Precipitation *float64
	Temperature   float64
}

// Precipitation is a (date, station, prcp) row; Amount is nil when the
// station recorded no precipitation value.
type Precipitation struct {
	Date    string
	Station string
	Amount  *float64
}

// StationActivity is the number of measurements recorded by a station.
type StationActivity struct {
	Station string
	Count   int
}

type Observation struct {
	Date        string  `json:"date"`
	Temperature float64 `json:"temperature"`
}

// TemperatureStats is the raw aggregate over a date range. Min, Avg and Max
// are nil when Count is zero.
type TemperatureStats struct {
	Min   *float64
	Avg   *float64
	Max   *float64
	Count int
}

// TemperatureSummary is the response of the start and start/end routes.
type TemperatureSummary struct {
	Min   *float64 `json:"min"`
	Avg   *float64 `json:"avg"`
	Max   *float64 `json:"max"`
	Start string   `json:"start"`
	End   string   `json:"end,omitempty"`
}

type StationDistance struct {
	Station    string  `json:"station"`
	Name       string  `json:"name"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	DistanceKm float64 `json:"distance_km"`
}

// DatasetInfo describes the loaded store. FirstDate and LastDate are empty
// when there are no measurements.
type DatasetInfo struct {
	Stations     int    `json:"stations"`
	Measurements int    `json:"measurements"`
	FirstDate    string `json:"first_date,omitempty"`
	LastDate     string `json:"last_date,omitempty"`
}
