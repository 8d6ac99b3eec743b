package controller

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"climate-api/internal/climate/service"
	"climate-api/internal/utils"
)

func parseRangePath(r *http.Request) (start, end string, err error) {
	start, end = r.PathValue("start"), r.PathValue("end")
	if start == "" {
		return "", "", errors.New("missing 'start'")
	}
	if end == "" {
		return "", "", errors.New("missing 'end'")
	}
	from, err := service.ParseDate(start)
	if err != nil {
		return "", "", errors.New("invalid 'start' (expected YYYY-MM-DD)")
	}
	to, err := service.ParseDate(end)
	if err != nil {
		return "", "", errors.New("invalid 'end' (expected YYYY-MM-DD)")
	}
	if from.After(to) {
		return "", "", errors.New("'start' must be <= 'end'")
	}
	return start, end, nil
}

func parseNearestQuery(r *http.Request) (lat, lon float64, limit int, err error) {
	q := r.URL.Query()

	lat, err = parseCoordinate(q.Get("lat"), "lat")
	if err != nil {
		return 0, 0, 0, err
	}
	lon, err = parseCoordinate(q.Get("lon"), "lon")
	if err != nil {
		return 0, 0, 0, err
	}

	limit = service.DefaultNearestLimit
	if s := q.Get("limit"); s != "" {
		n, convErr := strconv.Atoi(s)
		if convErr != nil {
			return 0, 0, 0, errors.New("invalid 'limit' (expected integer)")
		}
		if n <= 0 {
			return 0, 0, 0, errors.New("'limit' must be > 0")
		}
		if n > service.MaxNearestLimit {
			return 0, 0, 0, errors.New("'limit' must be <= " + strconv.Itoa(service.MaxNearestLimit))
		}
		limit = n
	}
	return lat, lon, limit, nil
}

func parseCoordinate(s, name string) (float64, error) {
	if s == "" {
		return 0, errors.New("missing '" + name + "'")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.New("invalid '" + name + "' (expected number)")
	}
	return v, nil
}

// writeServiceError maps service errors to a status. Store failures are
// logged and answered with a generic message.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, what string) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		utils.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		slog.Warn("store query timed out", "path", r.URL.Path, "error", err)
		utils.WriteError(w, http.StatusGatewayTimeout, "timed out loading "+what)
	case errors.Is(err, context.Canceled):
		slog.Warn("request canceled", "path", r.URL.Path)
		utils.WriteError(w, http.StatusServiceUnavailable, "request canceled")
	default:
		slog.Error("store query failed", "path", r.URL.Path, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load "+what)
	}
}
