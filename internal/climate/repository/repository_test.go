package repository

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"climate-api/internal/migrate"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// One connection keeps every session on the same in-memory database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		if closeErr := db.Close(); closeErr != nil {
			t.Errorf("close db: %v", closeErr)
		}
	})
	if _, err := migrate.Run(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seed(t *testing.T, db *sql.DB, stmts ...string) {
	t.Helper()
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("seed %q: %v", s, err)
		}
	}
}

func openSession(t *testing.T, db *sql.DB) Session {
	t.Helper()
	sess, err := NewRepository(db).Session(context.Background())
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	t.Cleanup(func() {
		if err := sess.Close(); err != nil {
			t.Errorf("close session: %v", err)
		}
	})
	return sess
}

const seedStations = `INSERT INTO station (station, name, latitude, longitude, elevation) VALUES
	('USC00519397', 'WAIKIKI 717.2, HI US', 21.2716, -157.8168, 3.0),
	('USC00513117', 'KANEOHE 838.1, HI US', 21.4234, -157.8015, 14.6),
	('USC00519281', 'WAIHEE 837.5, HI US', 21.45167, -157.84889, 32.9)`

const seedMeasurements = `INSERT INTO measurement (station, date, prcp, tobs) VALUES
	('USC00519397', '2016-08-22', 0.40, 76),
	('USC00519397', '2016-08-23', 0.00, 81),
	('USC00519397', '2017-08-23', 0.00, 81),
	('USC00513117', '2016-08-23', 0.15, 76),
	('USC00513117', '2017-08-23', NULL, 82),
	('USC00519281', '2016-08-23', 1.79, 77),
	('USC00519281', '2017-08-18', NULL, 79),
	('USC00519281', '2017-08-19', 0.09, 80)`

func TestNewRepository(t *testing.T) {
	if NewRepository(setupTestDB(t)) == nil {
		t.Fatal("NewRepository returned nil")
	}
}

func TestSession_EmptyStore(t *testing.T) {
	db := setupTestDB(t)
	sess := openSession(t, db)
	ctx := context.Background()

	if _, ok, err := sess.LatestDate(ctx); err != nil || ok {
		t.Errorf("LatestDate: ok=%v err=%v, want ok=false err=nil", ok, err)
	}
	codes, err := sess.StationCodes(ctx)
	if err != nil || len(codes) != 0 {
		t.Errorf("StationCodes = %v, %v; want empty, nil", codes, err)
	}
	activity, err := sess.StationActivity(ctx)
	if err != nil || len(activity) != 0 {
		t.Errorf("StationActivity = %v, %v; want empty, nil", activity, err)
	}
	stats, err := sess.TemperatureStats(ctx, "2010-01-01", "")
	if err != nil {
		t.Fatalf("TemperatureStats: %v", err)
	}
	if stats.Count != 0 || stats.Min != nil || stats.Avg != nil || stats.Max != nil {
		t.Errorf("TemperatureStats on empty store = %+v, want zero count and nil aggregates", stats)
	}
	info, err := sess.DatasetInfo(ctx)
	if err != nil {
		t.Fatalf("DatasetInfo: %v", err)
	}
	if info.Stations != 0 || info.Measurements != 0 || info.FirstDate != "" || info.LastDate != "" {
		t.Errorf("DatasetInfo = %+v, want zero value", info)
	}
}

func TestSession_LatestDate(t *testing.T) {
	db := setupTestDB(t)
	seed(t, db, seedStations, seedMeasurements)
	sess := openSession(t, db)

	got, ok, err := sess.LatestDate(context.Background())
	if err != nil || !ok {
		t.Fatalf("LatestDate: ok=%v err=%v", ok, err)
	}
	if got != "2017-08-23" {
		t.Errorf("LatestDate = %q, want 2017-08-23", got)
	}
}

func TestSession_PrecipitationSince(t *testing.T) {
	db := setupTestDB(t)
	seed(t, db, seedStations, seedMeasurements)
	sess := openSession(t, db)

	rows, err := sess.PrecipitationSince(context.Background(), "2016-08-23")
	if err != nil {
		t.Fatalf("PrecipitationSince: %v", err)
	}
	if len(rows) != 7 {
		t.Fatalf("got %d rows, want 7", len(rows))
	}
	// Ordered by date, then station.
	wantOrder := []struct{ date, station string }{
		{"2016-08-23", "USC00513117"},
		{"2016-08-23", "USC00519281"},
		{"2016-08-23", "USC00519397"},
		{"2017-08-18", "USC00519281"},
		{"2017-08-19", "USC00519281"},
		{"2017-08-23", "USC00513117"},
		{"2017-08-23", "USC00519397"},
	}
	for i, w := range wantOrder {
		if rows[i].Date != w.date || rows[i].Station != w.station {
			t.Errorf("row %d = %s/%s, want %s/%s", i, rows[i].Date, rows[i].Station, w.date, w.station)
		}
	}
	if rows[3].Amount != nil {
		t.Errorf("row 3 amount = %v, want nil (NULL prcp)", *rows[3].Amount)
	}
	if rows[1].Amount == nil || *rows[1].Amount != 1.79 {
		t.Errorf("row 1 amount = %v, want 1.79", rows[1].Amount)
	}
}

func TestSession_StationCodesAndStations(t *testing.T) {
	db := setupTestDB(t)
	seed(t, db, seedStations,
		`INSERT INTO station (station, name) VALUES ('USC00511918', 'HONOLULU OBSERVATORY 702.2, HI US')`)
	sess := openSession(t, db)
	ctx := context.Background()

	codes, err := sess.StationCodes(ctx)
	if err != nil {
		t.Fatalf("StationCodes: %v", err)
	}
	want := []string{"USC00511918", "USC00513117", "USC00519281", "USC00519397"}
	if len(codes) != len(want) {
		t.Fatalf("StationCodes = %v, want %v", codes, want)
	}
	for i := range want {
		if codes[i] != want[i] {
			t.Errorf("StationCodes[%d] = %q, want %q", i, codes[i], want[i])
		}
	}

	stations, err := sess.Stations(ctx)
	if err != nil {
		t.Fatalf("Stations: %v", err)
	}
	if len(stations) != 4 {
		t.Fatalf("Stations: got %d, want 4", len(stations))
	}
	if stations[0].Located {
		t.Errorf("station without coordinates reported as located: %+v", stations[0])
	}
	if !stations[3].Located || stations[3].Latitude != 21.2716 || stations[3].Elevation != 3.0 {
		t.Errorf("stations[3] = %+v, want WAIKIKI with coordinates", stations[3])
	}
}

func TestSession_StationActivity_TieBreak(t *testing.T) {
	db := setupTestDB(t)
	seed(t, db, seedStations, `INSERT INTO measurement (station, date, prcp, tobs) VALUES
		('USC00519397', '2017-01-01', 0, 70),
		('USC00519397', '2017-01-02', 0, 71),
		('USC00513117', '2017-01-01', 0, 70),
		('USC00513117', '2017-01-02', 0, 71),
		('USC00519281', '2017-01-01', 0, 72)`)
	sess := openSession(t, db)

	activity, err := sess.StationActivity(context.Background())
	if err != nil {
		t.Fatalf("StationActivity: %v", err)
	}
	if len(activity) != 3 {
		t.Fatalf("got %d rows, want 3", len(activity))
	}
	// Equal counts fall back to ascending station code.
	if activity[0].Station != "USC00513117" || activity[0].Count != 2 {
		t.Errorf("activity[0] = %+v, want USC00513117/2", activity[0])
	}
	if activity[1].Station != "USC00519397" || activity[2].Station != "USC00519281" {
		t.Errorf("activity order = %+v", activity)
	}
}

func TestSession_StationTemperatures(t *testing.T) {
	db := setupTestDB(t)
	seed(t, db, seedStations, seedMeasurements)
	sess := openSession(t, db)
	ctx := context.Background()

	latest, ok, err := sess.StationLatestDate(ctx, "USC00519281")
	if err != nil || !ok || latest != "2017-08-19" {
		t.Fatalf("StationLatestDate = %q, %v, %v; want 2017-08-19", latest, ok, err)
	}
	if _, ok, err := sess.StationLatestDate(ctx, "UNKNOWN"); err != nil || ok {
		t.Errorf("StationLatestDate(UNKNOWN): ok=%v err=%v, want ok=false", ok, err)
	}

	obs, err := sess.TemperaturesSince(ctx, "USC00519281", "2016-08-23")
	if err != nil {
		t.Fatalf("TemperaturesSince: %v", err)
	}
	if len(obs) != 3 {
		t.Fatalf("got %d observations, want 3", len(obs))
	}
	if obs[0].Date != "2016-08-23" || obs[0].Temperature != 77 || obs[2].Date != "2017-08-19" {
		t.Errorf("observations = %+v", obs)
	}
}

func TestSession_TemperatureStats(t *testing.T) {
	db := setupTestDB(t)
	seed(t, db, seedStations, seedMeasurements)
	sess := openSession(t, db)
	ctx := context.Background()

	tests := []struct {
		name      string
		start     string
		end       string
		wantCount int
		wantMin   float64
		wantMax   float64
	}{
		{name: "open ended", start: "2017-01-01", wantCount: 4, wantMin: 79, wantMax: 82},
		{name: "inclusive window", start: "2016-08-23", end: "2016-08-23", wantCount: 3, wantMin: 76, wantMax: 81},
		{name: "everything", start: "2000-01-01", end: "2099-12-31", wantCount: 8, wantMin: 76, wantMax: 82},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stats, err := sess.TemperatureStats(ctx, tt.start, tt.end)
			if err != nil {
				t.Fatalf("TemperatureStats: %v", err)
			}
			if stats.Count != tt.wantCount {
				t.Errorf("Count = %d, want %d", stats.Count, tt.wantCount)
			}
			if stats.Min == nil || *stats.Min != tt.wantMin {
				t.Errorf("Min = %v, want %v", stats.Min, tt.wantMin)
			}
			if stats.Max == nil || *stats.Max != tt.wantMax {
				t.Errorf("Max = %v, want %v", stats.Max, tt.wantMax)
			}
			if stats.Avg == nil || *stats.Avg < *stats.Min || *stats.Avg > *stats.Max {
				t.Errorf("Avg = %v outside [min, max]", stats.Avg)
			}
		})
	}

	empty, err := sess.TemperatureStats(ctx, "2010-01-01", "2010-12-31")
	if err != nil {
		t.Fatalf("TemperatureStats(empty window): %v", err)
	}
	if empty.Count != 0 || empty.Min != nil || empty.Avg != nil || empty.Max != nil {
		t.Errorf("empty window = %+v, want nil aggregates", empty)
	}
}

func TestSession_DatasetInfo(t *testing.T) {
	db := setupTestDB(t)
	seed(t, db, seedStations, seedMeasurements)
	sess := openSession(t, db)

	info, err := sess.DatasetInfo(context.Background())
	if err != nil {
		t.Fatalf("DatasetInfo: %v", err)
	}
	if info.Stations != 3 || info.Measurements != 8 {
		t.Errorf("counts = %d stations, %d measurements; want 3, 8", info.Stations, info.Measurements)
	}
	if info.FirstDate != "2016-08-22" || info.LastDate != "2017-08-23" {
		t.Errorf("range = %s..%s, want 2016-08-22..2017-08-23", info.FirstDate, info.LastDate)
	}
}

func TestSession_CanceledContext(t *testing.T) {
	db := setupTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewRepository(db).Session(ctx); err == nil {
		t.Fatal("Session(canceled ctx) error = nil, want non-nil")
	}
}
