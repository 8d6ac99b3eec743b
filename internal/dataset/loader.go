// Package dataset imports the station and measurement CSV files into a
// climate store.
package dataset

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"climate-api/internal/climate/types"
)

var (
	stationColumns     = []string{"station", "name", "latitude", "longitude", "elevation"}
	measurementColumns = []string{"station", "date", "prcp", "tobs"}
)

// Counts reports how many rows Load inserted.
type Counts struct {
	Stations     int `json:"stations"`
	Measurements int `json:"measurements"`
}

// Load inserts every row of the stations and measurements CSVs in a single
// transaction. Columns are matched by header name; extra columns are
// ignored. Nothing is written if any row is invalid.
func Load(ctx context.Context, db *sql.DB, stations, measurements io.Reader) (Counts, error) {
	var counts Counts

	stationRows, err := readStations(stations)
	if err != nil {
		return counts, fmt.Errorf("stations: %w", err)
	}
	measurementRows, err := readMeasurements(measurements)
	if err != nil {
		return counts, fmt.Errorf("measurements: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return counts, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			slog.Error("dataset rollback failed", "error", err)
		}
	}()

	insertStation, err := tx.PrepareContext(ctx,
		`INSERT INTO station (station, name, latitude, longitude, elevation) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return counts, err
	}
	defer insertStation.Close()
	for _, s := range stationRows {
		var lat, lon any
		if s.Located {
			lat, lon = s.Latitude, s.Longitude
		}
		if _, err := insertStation.ExecContext(ctx, s.Code, s.Name, lat, lon, s.elevation); err != nil {
			return counts, fmt.Errorf("insert station %s: %w", s.Code, err)
		}
	}

	insertMeasurement, err := tx.PrepareContext(ctx,
		`INSERT INTO measurement (station, date, prcp, tobs) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return counts, err
	}
	defer insertMeasurement.Close()
	for _, m := range measurementRows {
		if _, err := insertMeasurement.ExecContext(ctx, m.Station, m.Date, m.Precipitation, m.Temperature); err != nil {
			return counts, fmt.Errorf("insert measurement %s %s: %w", m.Station, m.Date, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return counts, fmt.Errorf("commit: %w", err)
	}
	counts.Stations = len(stationRows)
	counts.Measurements = len(measurementRows)
	return counts, nil
}

// stationRow is a parsed station line; nil elevation is stored as NULL.
type stationRow struct {
	types.Station
	elevation *float64
}

func readStations(r io.Reader) ([]stationRow, error) {
	var out []stationRow
	err := readCSV(r, stationColumns, func(line int, get func(string) string) error {
		s := types.Station{Code: get("station"), Name: get("name")}
		if s.Code == "" {
			return fmt.Errorf("line %d: empty station code", line)
		}
		var err error
		lat, lon := get("latitude"), get("longitude")
		if lat != "" && lon != "" {
			if s.Latitude, err = parseFloat(lat); err != nil {
				return fmt.Errorf("line %d: latitude: %w", line, err)
			}
			if s.Longitude, err = parseFloat(lon); err != nil {
				return fmt.Errorf("line %d: longitude: %w", line, err)
			}
			s.Located = true
		}
		row := stationRow{Station: s}
		if elev := get("elevation"); elev != "" {
			v, err := parseFloat(elev)
			if err != nil {
				return fmt.Errorf("line %d: elevation: %w", line, err)
			}
			row.Elevation = v
			row.elevation = &v
		}
		out = append(out, row)
		return nil
	})
	return out, err
}

func readMeasurements(r io.Reader) ([]types.Measurement, error) {
	var out []types.Measurement
	err := readCSV(r, measurementColumns, func(line int, get func(string) string) error {
		m := types.Measurement{Station: get("station"), Date: get("date")}
		if m.Station == "" {
			return fmt.Errorf("line %d: empty station code", line)
		}
		if _, err := time.Parse("2006-01-02", m.Date); err != nil {
			return fmt.Errorf("line %d: date %q is not YYYY-MM-DD", line, m.Date)
		}
		if s := get("prcp"); s != "" {
			v, err := parseFloat(s)
			if err != nil {
				return fmt.Errorf("line %d: prcp: %w", line, err)
			}
			m.Precipitation = &v
		}
		tobs := get("tobs")
		if tobs == "" {
			return fmt.Errorf("line %d: missing tobs", line)
		}
		v, err := parseFloat(tobs)
		if err != nil {
			return fmt.Errorf("line %d: tobs: %w", line, err)
		}
		m.Temperature = v
		out = append(out, m)
		return nil
	})
	return out, err
}

// readCSV calls fn for each data row with a getter keyed by header name.
func readCSV(r io.Reader, required []string, fn func(line int, get func(string) string) error) error {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty file")
		}
		return err
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range required {
		if _, ok := index[col]; !ok {
			return fmt.Errorf("missing column %q", col)
		}
	}

	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		get := func(col string) string {
			return strings.TrimSpace(rec[index[col]])
		}
		if err := fn(line, get); err != nil {
			return err
		}
	}
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}
