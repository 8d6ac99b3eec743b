package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/umahmood/haversine"

	"climate-api/internal/climate/repository"
	"climate-api/internal/climate/types"
)

// ErrInvalidInput marks errors caused by the caller's parameters rather
// than the store.
var ErrInvalidInput = errors.New("invalid input")

const (
	DefaultNearestLimit = 5
	MaxNearestLimit     = 50
)

// ActiveStation holds the last year of temperature observations of the
// station with the most measurements.
type ActiveStation struct {
	Station      string
	Observations []types.Observation
}

type Service struct {
	repository repository.ClimateRepository
	timeout    time.Duration
}

// NewService returns a Service whose store sessions are bounded by timeout.
// A non-positive timeout leaves sessions bounded only by the caller's
// context.
func NewService(repository repository.ClimateRepository, timeout time.Duration) *Service {
	return &Service{repository: repository, timeout: timeout}
}

// withSession acquires one store session for fn and releases it on every
// path.
func (s *Service) withSession(ctx context.Context, fn func(context.Context, repository.Session) error) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	sess, err := s.repository.Session(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			slog.Error("close store session", "error", err)
		}
	}()

	return fn(ctx, sess)
}

// Precipitation maps each date of the last 365 days of data (counted back
// from the newest measurement in the store) to its precipitation. Rows are
// read ordered by date then station and later rows overwrite earlier ones,
// so a date measured by several stations keeps the value of the greatest
// station code. An empty store yields an empty map.
func (s *Service) Precipitation(ctx context.Context) (map[string]*float64, error) {
	out := make(map[string]*float64)
	err := s.withSession(ctx, func(ctx context.Context, sess repository.Session) error {
		latest, ok, err := sess.LatestDate(ctx)
		if err != nil || !ok {
			return err
		}
		cutoff, err := yearBefore(latest)
		if err != nil {
			return err
		}
		rows, err := sess.PrecipitationSince(ctx, cutoff)
		if err != nil {
			return err
		}
		for _, r := range rows {
			out[r.Date] = r.Amount
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// StationCodes lists every station code in ascending order.
func (s *Service) StationCodes(ctx context.Context) ([]string, error) {
	codes := []string{}
	err := s.withSession(ctx, func(ctx context.Context, sess repository.Session) error {
		rows, err := sess.StationCodes(ctx)
		if err != nil {
			return err
		}
		codes = append(codes, rows...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return codes, nil
}

// MostActiveStation picks the station with the most measurements (ties go
// to the lowest station code) and returns its observations from the 365
// days before its own newest measurement, oldest first.
func (s *Service) MostActiveStation(ctx context.Context) (ActiveStation, error) {
	active := ActiveStation{Observations: []types.Observation{}}
	err := s.withSession(ctx, func(ctx context.Context, sess repository.Session) error {
		activity, err := sess.StationActivity(ctx)
		if err != nil || len(activity) == 0 {
			return err
		}
		active.Station = activity[0].Station

		latest, ok, err := sess.StationLatestDate(ctx, active.Station)
		if err != nil || !ok {
			return err
		}
		cutoff, err := yearBefore(latest)
		if err != nil {
			return err
		}
		obs, err := sess.TemperaturesSince(ctx, active.Station, cutoff)
		if err != nil {
			return err
		}
		active.Observations = append(active.Observations, obs...)
		return nil
	})
	if err != nil {
		return ActiveStation{}, err
	}
	return active, nil
}

// TemperatureSummary returns min, average and max tobs over date >= start,
// bounded by date <= end when end is not empty. The average is rounded to
// two decimals. A range without measurements is not an error: the summary
// comes back with nil aggregates.
func (s *Service) TemperatureSummary(ctx context.Context, start, end string) (types.TemperatureSummary, error) {
	from, err := ParseDate(start)
	if err != nil {
		return types.TemperatureSummary{}, err
	}
	if end != "" {
		to, err := ParseDate(end)
		if err != nil {
			return types.TemperatureSummary{}, err
		}
		if from.After(to) {
			return types.TemperatureSummary{}, fmt.Errorf("%w: start %s is after end %s", ErrInvalidInput, start, end)
		}
	}

	var stats types.TemperatureStats
	err = s.withSession(ctx, func(ctx context.Context, sess repository.Session) error {
		var err error
		stats, err = sess.TemperatureStats(ctx, start, end)
		return err
	})
	if err != nil {
		return types.TemperatureSummary{}, err
	}

	summary := types.TemperatureSummary{Start: start, End: end}
	if stats.Count == 0 {
		return summary, nil
	}
	summary.Min = stats.Min
	summary.Max = stats.Max
	if stats.Avg != nil {
		avg := roundTo2(*stats.Avg)
		summary.Avg = &avg
	}
	return summary, nil
}

// NearestStations orders located stations by great-circle distance from
// (lat, lon), nearest first, and returns at most limit of them.
func (s *Service) NearestStations(ctx context.Context, lat, lon float64, limit int) ([]types.StationDistance, error) {
	if lat < -90 || lat > 90 {
		return nil, fmt.Errorf("%w: latitude %v out of range [-90, 90]", ErrInvalidInput, lat)
	}
	if lon < -180 || lon > 180 {
		return nil, fmt.Errorf("%w: longitude %v out of range [-180, 180]", ErrInvalidInput, lon)
	}
	if limit < 1 || limit > MaxNearestLimit {
		return nil, fmt.Errorf("%w: limit %d out of range [1, %d]", ErrInvalidInput, limit, MaxNearestLimit)
	}

	var stations []types.Station
	err := s.withSession(ctx, func(ctx context.Context, sess repository.Session) error {
		var err error
		stations, err = sess.Stations(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	origin := haversine.Coord{Lat: lat, Lon: lon}
	out := make([]types.StationDistance, 0, len(stations))
	for _, st := range stations {
		if !st.Located {
			continue
		}
		_, km := haversine.Distance(origin, haversine.Coord{Lat: st.Latitude, Lon: st.Longitude})
		out = append(out, types.StationDistance{
			Station:    st.Code,
			Name:       st.Name,
			Latitude:   st.Latitude,
			Longitude:  st.Longitude,
			DistanceKm: math.Round(km*1000) / 1000,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DistanceKm != out[j].DistanceKm {
			return out[i].DistanceKm < out[j].DistanceKm
		}
		return out[i].Station < out[j].Station
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Service) DatasetInfo(ctx context.Context) (types.DatasetInfo, error) {
	var info types.DatasetInfo
	err := s.withSession(ctx, func(ctx context.Context, sess repository.Session) error {
		var err error
		info, err = sess.DatasetInfo(ctx)
		return err
	})
	return info, err
}

// roundTo2 rounds half away from zero to two decimal places.
func roundTo2(v float64) float64 {
	return math.Round(v*100) / 100
}
