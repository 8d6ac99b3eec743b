package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"climate-api/internal/dataset"
	"climate-api/internal/db"
	"climate-api/internal/migrate"
)

// InitStore creates the sqlite store at path if needed and applies pending
// schema migrations.
func InitStore(ctx context.Context, path string, logger *slog.Logger) ([]string, error) {
	path = filepath.Clean(path)
	dbConn, err := db.OpenWritable(ctx, path)
	if err != nil {
		return nil, err
	}
	defer closeDB(logger, dbConn)

	applied, err := migrate.Run(ctx, dbConn)
	if err != nil {
		return applied, fmt.Errorf("migrate: %w", err)
	}
	return applied, nil
}

// LoadDataset migrates the store at path and imports the two CSV files into
// it in one transaction.
func LoadDataset(ctx context.Context, path, stationsCSV, measurementsCSV string, logger *slog.Logger) (dataset.Counts, error) {
	stations, err := os.Open(stationsCSV)
	if err != nil {
		return dataset.Counts{}, err
	}
	defer stations.Close()
	measurements, err := os.Open(measurementsCSV)
	if err != nil {
		return dataset.Counts{}, err
	}
	defer measurements.Close()

	path = filepath.Clean(path)
	dbConn, err := db.OpenWritable(ctx, path)
	if err != nil {
		return dataset.Counts{}, err
	}
	defer closeDB(logger, dbConn)

	if _, err := migrate.Run(ctx, dbConn); err != nil {
		return dataset.Counts{}, fmt.Errorf("migrate: %w", err)
	}
	counts, err := dataset.Load(ctx, dbConn, stations, measurements)
	if err != nil {
		return dataset.Counts{}, err
	}
	logger.Info("dataset loaded", "path", path, "stations", counts.Stations, "measurements", counts.Measurements)
	return counts, nil
}
