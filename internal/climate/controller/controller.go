package controller

import (
	"context"
	"net/http"

	"climate-api/internal/climate/service"
	"climate-api/internal/climate/types"
)

// ClimateService is the part of service.Service the handlers depend on.
type ClimateService interface {
	Precipitation(ctx context.Context) (map[string]*float64, error)
	StationCodes(ctx context.Context) ([]string, error)
	MostActiveStation(ctx context.Context) (service.ActiveStation, error)
	TemperatureSummary(ctx context.Context, start, end string) (types.TemperatureSummary, error)
	NearestStations(ctx context.Context, lat, lon float64, limit int) ([]types.StationDistance, error)
}

type ClimateController interface {
	RegisterRoutes(mux *http.ServeMux)
}

type climateControllerImpl struct {
	service ClimateService
}

func NewClimateController(service ClimateService) ClimateController {
	return &climateControllerImpl{service: service}
}

func (c *climateControllerImpl) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", c.handleIndex)
	mux.HandleFunc("GET /api/v1.0/precipitation", c.handlePrecipitation)
	mux.HandleFunc("GET /api/v1.0/stations", c.handleStations)
	mux.HandleFunc("GET /api/v1.0/stations/nearest", c.handleNearestStations)
	mux.HandleFunc("GET /api/v1.0/tobs", c.handleTobs)
	mux.HandleFunc("GET /api/v1.0/start/{start}", c.handleSummaryFrom)
	mux.HandleFunc("GET /api/v1.0/end/{start}/{end}", c.handleSummaryBetween)
}
