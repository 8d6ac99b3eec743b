package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"

	"climate-api/internal/climate/types"
)

//go:embed sql/get-latest-date.sql
var getLatestDateSQL string

//go:embed sql/get-precipitation-since.sql
var getPrecipitationSinceSQL string

//go:embed sql/get-station-codes.sql
var getStationCodesSQL string

//go:embed sql/get-stations.sql
var getStationsSQL string

//go:embed sql/get-station-activity.sql
var getStationActivitySQL string

//go:embed sql/get-station-latest-date.sql
var getStationLatestDateSQL string

//go:embed sql/get-station-temperatures.sql
var getStationTemperaturesSQL string

//go:embed sql/get-temperature-stats-from.sql
var getTemperatureStatsFromSQL string

//go:embed sql/get-temperature-stats-between.sql
var getTemperatureStatsBetweenSQL string

//go:embed sql/get-dataset-info.sql
var getDatasetInfoSQL string

// ClimateRepository hands out store sessions. Each session pins one pooled
// connection until Close, which callers must defer.
type ClimateRepository interface {
	Session(ctx context.Context) (Session, error)
}

// Session runs the read-only climate queries on a single connection.
type Session interface {
	// LatestDate is the most recent measurement date in the store; ok is
	// false when there are no measurements.
	LatestDate(ctx context.Context) (date string, ok bool, err error)
	// PrecipitationSince returns rows with date >= since ordered by date,
	// then station.
	PrecipitationSince(ctx context.Context, since string) ([]types.Precipitation, error)
	StationCodes(ctx context.Context) ([]string, error)
	Stations(ctx context.Context) ([]types.Station, error)
	// StationActivity returns measurement counts per station, busiest
	// first, ties broken by ascending station code.
	StationActivity(ctx context.Context) ([]types.StationActivity, error)
	StationLatestDate(ctx context.Context, station string) (date string, ok bool, err error)
	TemperaturesSince(ctx context.Context, station string, since string) ([]types.Observation, error)
	// TemperatureStats aggregates tobs over date >= start, and date <= end
	// when end is not empty.
	TemperatureStats(ctx context.Context, start string, end string) (types.TemperatureStats, error)
	DatasetInfo(ctx context.Context) (types.DatasetInfo, error)
	Close() error
}

type repositoryImpl struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) ClimateRepository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) Session(ctx context.Context) (Session, error) {
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire store session: %w", err)
	}
	return &sessionImpl{conn: conn}, nil
}

type sessionImpl struct {
	conn *sql.Conn
}

func (s *sessionImpl) Close() error {
	return s.conn.Close()
}

func (s *sessionImpl) LatestDate(ctx context.Context) (string, bool, error) {
	var d sql.NullString
	if err := s.conn.QueryRowContext(ctx, getLatestDateSQL).Scan(&d); err != nil {
		return "", false, fmt.Errorf("latest date: %w", err)
	}
	return d.String, d.Valid, nil
}

func (s *sessionImpl) PrecipitationSince(ctx context.Context, since string) ([]types.Precipitation, error) {
	rows, err := s.conn.QueryContext(ctx, getPrecipitationSinceSQL, since)
	if err != nil {
		return nil, fmt.Errorf("precipitation since %s: %w", since, err)
	}
	defer closeRows(rows, "precipitation")

	var out []types.Precipitation
	for rows.Next() {
		var p types.Precipitation
		var amount sql.NullFloat64
		if err := rows.Scan(&p.Date, &p.Station, &amount); err != nil {
			return nil, err
		}
		if amount.Valid {
			v := amount.Float64
			p.Amount = &v
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *sessionImpl) StationCodes(ctx context.Context) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx, getStationCodesSQL)
	if err != nil {
		return nil, fmt.Errorf("station codes: %w", err)
	}
	defer closeRows(rows, "station codes")

	var out []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		out = append(out, code)
	}
	return out, rows.Err()
}

func (s *sessionImpl) Stations(ctx context.Context) ([]types.Station, error) {
	rows, err := s.conn.QueryContext(ctx, getStationsSQL)
	if err != nil {
		return nil, fmt.Errorf("stations: %w", err)
	}
	defer closeRows(rows, "stations")

	var out []types.Station
	for rows.Next() {
		var st types.Station
		var lat, lon sql.NullFloat64
		if err := rows.Scan(&st.Code, &st.Name, &lat, &lon, &st.Elevation); err != nil {
			return nil, err
		}
		st.Latitude, st.Longitude = lat.Float64, lon.Float64
		st.Located = lat.Valid && lon.Valid
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *sessionImpl) StationActivity(ctx context.Context) ([]types.StationActivity, error) {
	rows, err := s.conn.QueryContext(ctx, getStationActivitySQL)
	if err != nil {
		return nil, fmt.Errorf("station activity: %w", err)
	}
	defer closeRows(rows, "station activity")

	var out []types.StationActivity
	for rows.Next() {
		var a types.StationActivity
		if err := rows.Scan(&a.Station, &a.Count); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *sessionImpl) StationLatestDate(ctx context.Context, station string) (string, bool, error) {
	var d sql.NullString
	if err := s.conn.QueryRowContext(ctx, getStationLatestDateSQL, station).Scan(&d); err != nil {
		return "", false, fmt.Errorf("latest date for %s: %w", station, err)
	}
	return d.String, d.Valid, nil
}

func (s *sessionImpl) TemperaturesSince(ctx context.Context, station string, since string) ([]types.Observation, error) {
	rows, err := s.conn.QueryContext(ctx, getStationTemperaturesSQL, station, since)
	if err != nil {
		return nil, fmt.Errorf("temperatures for %s since %s: %w", station, since, err)
	}
	defer closeRows(rows, "temperatures")

	var out []types.Observation
	for rows.Next() {
		var o types.Observation
		if err := rows.Scan(&o.Date, &o.Temperature); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *sessionImpl) TemperatureStats(ctx context.Context, start string, end string) (types.TemperatureStats, error) {
	var row *sql.Row
	if end == "" {
		row = s.conn.QueryRowContext(ctx, getTemperatureStatsFromSQL, start)
	} else {
		row = s.conn.QueryRowContext(ctx, getTemperatureStatsBetweenSQL, start, end)
	}

	var minT, avgT, maxT sql.NullFloat64
	var stats types.TemperatureStats
	if err := row.Scan(&minT, &avgT, &maxT, &stats.Count); err != nil {
		return types.TemperatureStats{}, fmt.Errorf("temperature stats: %w", err)
	}
	stats.Min = nullableFloat(minT)
	stats.Avg = nullableFloat(avgT)
	stats.Max = nullableFloat(maxT)
	return stats, nil
}

func (s *sessionImpl) DatasetInfo(ctx context.Context) (types.DatasetInfo, error) {
	var info types.DatasetInfo
	var first, last sql.NullString
	err := s.conn.QueryRowContext(ctx, getDatasetInfoSQL).Scan(&info.Stations, &info.Measurements, &first, &last)
	if err != nil {
		return types.DatasetInfo{}, fmt.Errorf("dataset info: %w", err)
	}
	info.FirstDate, info.LastDate = first.String, last.String
	return info, nil
}

func nullableFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func closeRows(rows *sql.Rows, what string) {
	if err := rows.Close(); err != nil {
		slog.Error("close rows", "query", what, "error", err)
	}
}
