package controller

import (
	"bytes"
	"log/slog"
	"net/http"

	"climate-api/internal/climate/views"
	"climate-api/internal/utils"
)

const indexTitle = "Hawaii climate API"

func (c *climateControllerImpl) handleIndex(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := views.RenderIndex(&buf, &views.IndexData{Title: indexTitle, Routes: views.Routes}); err != nil {
		slog.Error("index template render failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to render page")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Error("index: write response failed", "error", err)
	}
}

func (c *climateControllerImpl) handlePrecipitation(w http.ResponseWriter, r *http.Request) {
	prcp, err := c.service.Precipitation(r.Context())
	if err != nil {
		writeServiceError(w, r, err, "precipitation")
		return
	}
	utils.WriteJSON(w, http.StatusOK, prcp)
}

func (c *climateControllerImpl) handleStations(w http.ResponseWriter, r *http.Request) {
	codes, err := c.service.StationCodes(r.Context())
	if err != nil {
		writeServiceError(w, r, err, "stations")
		return
	}
	utils.WriteJSON(w, http.StatusOK, codes)
}

func (c *climateControllerImpl) handleTobs(w http.ResponseWriter, r *http.Request) {
	active, err := c.service.MostActiveStation(r.Context())
	if err != nil {
		writeServiceError(w, r, err, "temperature observations")
		return
	}
	if active.Station != "" {
		slog.Debug("tobs: most active station", "station", active.Station, "observations", len(active.Observations))
	}
	utils.WriteJSON(w, http.StatusOK, active.Observations)
}

func (c *climateControllerImpl) handleSummaryFrom(w http.ResponseWriter, r *http.Request) {
	start := r.PathValue("start")
	if start == "" {
		utils.WriteError(w, http.StatusBadRequest, "missing 'start'")
		return
	}
	summary, err := c.service.TemperatureSummary(r.Context(), start, "")
	if err != nil {
		writeServiceError(w, r, err, "temperature summary")
		return
	}
	utils.WriteJSON(w, http.StatusOK, summary)
}

func (c *climateControllerImpl) handleSummaryBetween(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseRangePath(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	summary, err := c.service.TemperatureSummary(r.Context(), start, end)
	if err != nil {
		writeServiceError(w, r, err, "temperature summary")
		return
	}
	utils.WriteJSON(w, http.StatusOK, summary)
}

func (c *climateControllerImpl) handleNearestStations(w http.ResponseWriter, r *http.Request) {
	lat, lon, limit, err := parseNearestQuery(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	nearest, err := c.service.NearestStations(r.Context(), lat, lon, limit)
	if err != nil {
		writeServiceError(w, r, err, "nearest stations")
		return
	}
	utils.WriteJSON(w, http.StatusOK, nearest)
}
