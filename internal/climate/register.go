package climate

import (
	"database/sql"
	"net/http"
	"time"

	"climate-api/internal/climate/controller"
	"climate-api/internal/climate/repository"
	"climate-api/internal/climate/service"
)

// RegisterFeature wires the climate routes onto mux. queryTimeout bounds
// each request's store session.
func RegisterFeature(mux *http.ServeMux, db *sql.DB, queryTimeout time.Duration) *service.Service {
	climateRepository := repository.NewRepository(db)
	climateService := service.NewService(climateRepository, queryTimeout)
	climateController := controller.NewClimateController(climateService)
	climateController.RegisterRoutes(mux)
	return climateService
}
