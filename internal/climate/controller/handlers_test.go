package controller

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/segmentio/encoding/json"

	"climate-api/internal/climate/service"
	"climate-api/internal/climate/types"
	"climate-api/internal/climate/views"
)

type mockService struct {
	prcp       map[string]*float64
	prcpErr    error
	codes      []string
	codesErr   error
	active     service.ActiveStation
	activeErr  error
	summary    types.TemperatureSummary
	summaryErr error
	nearest    []types.StationDistance
	nearestErr error

	gotStart, gotEnd string
	gotLat, gotLon   float64
	gotLimit         int
}

func (m *mockService) Precipitation(ctx context.Context) (map[string]*float64, error) {
	return m.prcp, m.prcpErr
}

func (m *mockService) StationCodes(ctx context.Context) ([]string, error) {
	return m.codes, m.codesErr
}

func (m *mockService) MostActiveStation(ctx context.Context) (service.ActiveStation, error) {
	return m.active, m.activeErr
}

func (m *mockService) TemperatureSummary(ctx context.Context, start, end string) (types.TemperatureSummary, error) {
	m.gotStart, m.gotEnd = start, end
	return m.summary, m.summaryErr
}

func (m *mockService) NearestStations(ctx context.Context, lat, lon float64, limit int) ([]types.StationDistance, error) {
	m.gotLat, m.gotLon, m.gotLimit = lat, lon, limit
	return m.nearest, m.nearestErr
}

func ptr(v float64) *float64 { return &v }

func newTestMux(svc ClimateService) *http.ServeMux {
	mux := http.NewServeMux()
	NewClimateController(svc).RegisterRoutes(mux)
	return mux
}

func serve(t *testing.T, mux *http.ServeMux, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

// errorMessage decodes a WriteError body. Raw bodies escape <, > and &.
func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return body["message"]
}

func Test_handleIndex(t *testing.T) {
	if err := views.LoadTemplates(); err != nil {
		t.Fatalf("LoadTemplates: %v", err)
	}
	mux := newTestMux(&mockService{})

	t.Run("lists routes as HTML", func(t *testing.T) {
		rec := serve(t, mux, http.MethodGet, "/")

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d; want %d", rec.Code, http.StatusOK)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
			t.Errorf("Content-Type = %q; want text/html; charset=utf-8", ct)
		}
		body := rec.Body.String()
		for _, want := range []string{"/api/v1.0/precipitation", "/api/v1.0/stations", "/api/v1.0/tobs", "/api/v1.0/start/", "/api/v1.0/end/"} {
			if !strings.Contains(body, want) {
				t.Errorf("body missing %q", want)
			}
		}
	})

	t.Run("only the exact root serves the index", func(t *testing.T) {
		for _, target := range []string{"/dashboard", "/index.html", "/api/v1.0"} {
			rec := serve(t, mux, http.MethodGet, target)
			if rec.Code != http.StatusNotFound {
				t.Errorf("GET %s status = %d; want %d", target, rec.Code, http.StatusNotFound)
			}
		}
	})
}

func Test_handlePrecipitation(t *testing.T) {
	t.Run("returns date map with nulls and sorted keys", func(t *testing.T) {
		svc := &mockService{prcp: map[string]*float64{
			"2017-08-23": ptr(0.45),
			"2017-08-22": nil,
		}}
		rec := serve(t, newTestMux(svc), http.MethodGet, "/api/v1.0/precipitation")

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d; want %d", rec.Code, http.StatusOK)
		}
		want := `{"2017-08-22":null,"2017-08-23":0.45}`
		if got := strings.TrimSpace(rec.Body.String()); got != want {
			t.Errorf("body = %s; want %s", got, want)
		}
	})

	t.Run("empty store gives empty object", func(t *testing.T) {
		svc := &mockService{prcp: map[string]*float64{}}
		rec := serve(t, newTestMux(svc), http.MethodGet, "/api/v1.0/precipitation")

		if got := strings.TrimSpace(rec.Body.String()); got != "{}" {
			t.Errorf("body = %s; want {}", got)
		}
	})

	t.Run("store failure is 500 without internals", func(t *testing.T) {
		svc := &mockService{prcpErr: errors.New("disk I/O error")}
		rec := serve(t, newTestMux(svc), http.MethodGet, "/api/v1.0/precipitation")

		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d; want %d", rec.Code, http.StatusInternalServerError)
		}
		if strings.Contains(rec.Body.String(), "disk I/O") {
			t.Errorf("body leaks store error: %s", rec.Body.String())
		}
	})

	t.Run("timeout is 504", func(t *testing.T) {
		svc := &mockService{prcpErr: fmt.Errorf("latest date: %w", context.DeadlineExceeded)}
		rec := serve(t, newTestMux(svc), http.MethodGet, "/api/v1.0/precipitation")

		if rec.Code != http.StatusGatewayTimeout {
			t.Errorf("status = %d; want %d", rec.Code, http.StatusGatewayTimeout)
		}
	})
}

func Test_handleStations(t *testing.T) {
	t.Run("returns codes in service order", func(t *testing.T) {
		svc := &mockService{codes: []string{"USC00511918", "USC00513117"}}
		rec := serve(t, newTestMux(svc), http.MethodGet, "/api/v1.0/stations")

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d; want %d", rec.Code, http.StatusOK)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
			t.Errorf("Content-Type = %q; want application/json", ct)
		}
		want := `["USC00511918","USC00513117"]`
		if got := strings.TrimSpace(rec.Body.String()); got != want {
			t.Errorf("body = %s; want %s", got, want)
		}
	})

	t.Run("empty store gives empty array", func(t *testing.T) {
		rec := serve(t, newTestMux(&mockService{codes: []string{}}), http.MethodGet, "/api/v1.0/stations")
		if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
			t.Errorf("body = %s; want []", got)
		}
	})

	t.Run("wrong method is 405", func(t *testing.T) {
		rec := serve(t, newTestMux(&mockService{}), http.MethodPost, "/api/v1.0/stations")
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("status = %d; want %d", rec.Code, http.StatusMethodNotAllowed)
		}
	})
}

func Test_handleTobs(t *testing.T) {
	svc := &mockService{active: service.ActiveStation{
		Station: "USC00519281",
		Observations: []types.Observation{
			{Date: "2016-08-23", Temperature: 77},
			{Date: "2016-08-24", Temperature: 77.5},
		},
	}}
	rec := serve(t, newTestMux(svc), http.MethodGet, "/api/v1.0/tobs")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; want %d", rec.Code, http.StatusOK)
	}
	want := `[{"date":"2016-08-23","temperature":77},{"date":"2016-08-24","temperature":77.5}]`
	if got := strings.TrimSpace(rec.Body.String()); got != want {
		t.Errorf("body = %s; want %s", got, want)
	}

	t.Run("store failure is 500", func(t *testing.T) {
		rec := serve(t, newTestMux(&mockService{activeErr: errors.New("boom")}), http.MethodGet, "/api/v1.0/tobs")
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d; want %d", rec.Code, http.StatusInternalServerError)
		}
	})
}

func Test_handleSummaryFrom(t *testing.T) {
	t.Run("passes start and open end", func(t *testing.T) {
		svc := &mockService{summary: types.TemperatureSummary{Min: ptr(58), Avg: ptr(74.59), Max: ptr(87), Start: "2017-08-01"}}
		rec := serve(t, newTestMux(svc), http.MethodGet, "/api/v1.0/start/2017-08-01")

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d; want %d", rec.Code, http.StatusOK)
		}
		if svc.gotStart != "2017-08-01" || svc.gotEnd != "" {
			t.Errorf("service got start=%q end=%q", svc.gotStart, svc.gotEnd)
		}
		want := `{"min":58,"avg":74.59,"max":87,"start":"2017-08-01"}`
		if got := strings.TrimSpace(rec.Body.String()); got != want {
			t.Errorf("body = %s; want %s", got, want)
		}
	})

	t.Run("no matching rows gives nulls", func(t *testing.T) {
		svc := &mockService{summary: types.TemperatureSummary{Start: "2030-01-01"}}
		rec := serve(t, newTestMux(svc), http.MethodGet, "/api/v1.0/start/2030-01-01")

		want := `{"min":null,"avg":null,"max":null,"start":"2030-01-01"}`
		if got := strings.TrimSpace(rec.Body.String()); got != want {
			t.Errorf("body = %s; want %s", got, want)
		}
	})

	t.Run("invalid input is 400", func(t *testing.T) {
		svc := &mockService{summaryErr: fmt.Errorf("%w: %q is not a YYYY-MM-DD date", service.ErrInvalidInput, "yesterday")}
		rec := serve(t, newTestMux(svc), http.MethodGet, "/api/v1.0/start/yesterday")

		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d; want %d", rec.Code, http.StatusBadRequest)
		}
		if !strings.Contains(rec.Body.String(), "YYYY-MM-DD") {
			t.Errorf("body = %s; want date format hint", rec.Body.String())
		}
	})
}

func Test_handleSummaryBetween(t *testing.T) {
	t.Run("passes both bounds", func(t *testing.T) {
		svc := &mockService{summary: types.TemperatureSummary{Min: ptr(70), Avg: ptr(75), Max: ptr(80), Start: "2017-01-01", End: "2017-01-31"}}
		rec := serve(t, newTestMux(svc), http.MethodGet, "/api/v1.0/end/2017-01-01/2017-01-31")

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d; want %d", rec.Code, http.StatusOK)
		}
		if svc.gotStart != "2017-01-01" || svc.gotEnd != "2017-01-31" {
			t.Errorf("service got start=%q end=%q", svc.gotStart, svc.gotEnd)
		}
		if !strings.Contains(rec.Body.String(), `"end":"2017-01-31"`) {
			t.Errorf("body = %s; want end echoed", rec.Body.String())
		}
	})

	tests := []struct {
		name   string
		target string
		want   string
	}{
		{"bad start", "/api/v1.0/end/2017-13-01/2017-12-31", "invalid 'start'"},
		{"bad end", "/api/v1.0/end/2017-01-01/31-12-2017", "invalid 'end'"},
		{"start after end", "/api/v1.0/end/2017-02-01/2017-01-01", "'start' must be <= 'end'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockService{}
			rec := serve(t, newTestMux(svc), http.MethodGet, tt.target)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d; want %d", rec.Code, http.StatusBadRequest)
			}
			if msg := errorMessage(t, rec); !strings.Contains(msg, tt.want) {
				t.Errorf("message = %q; want %q", msg, tt.want)
			}
			if svc.gotStart != "" {
				t.Error("service called for invalid range")
			}
		})
	}
}

func Test_handleNearestStations(t *testing.T) {
	t.Run("defaults limit", func(t *testing.T) {
		svc := &mockService{nearest: []types.StationDistance{{Station: "USC00519397", Name: "WAIKIKI 717.2, HI US", DistanceKm: 1.234}}}
		rec := serve(t, newTestMux(svc), http.MethodGet, "/api/v1.0/stations/nearest?lat=21.27&lon=-157.82")

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d; want %d", rec.Code, http.StatusOK)
		}
		if svc.gotLat != 21.27 || svc.gotLon != -157.82 || svc.gotLimit != service.DefaultNearestLimit {
			t.Errorf("service got lat=%v lon=%v limit=%d", svc.gotLat, svc.gotLon, svc.gotLimit)
		}
		if !strings.Contains(rec.Body.String(), `"distance_km":1.234`) {
			t.Errorf("body = %s; want distance", rec.Body.String())
		}
	})

	t.Run("missing lat is 400", func(t *testing.T) {
		rec := serve(t, newTestMux(&mockService{}), http.MethodGet, "/api/v1.0/stations/nearest?lon=1")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d; want %d", rec.Code, http.StatusBadRequest)
		}
	})

	t.Run("out of range from service is 400", func(t *testing.T) {
		svc := &mockService{nearestErr: fmt.Errorf("%w: latitude 91 out of range", service.ErrInvalidInput)}
		rec := serve(t, newTestMux(svc), http.MethodGet, "/api/v1.0/stations/nearest?lat=91&lon=0")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d; want %d", rec.Code, http.StatusBadRequest)
		}
	})
}
