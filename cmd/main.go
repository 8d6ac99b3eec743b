package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/segmentio/encoding/json"
	"github.com/spf13/cobra"

	"climate-api/internal/app"
	"climate-api/internal/climate/service"
	"climate-api/internal/climate/views"
	"climate-api/internal/config"
	"climate-api/internal/logging"
)

const appName = "climate-api"

// Set with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	serve := func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup(stdout)
		if err != nil {
			return err
		}
		logger.Info("starting", "app", appName, "version", version, "env", cfg.AppEnv, "log_level", cfg.LogLevel.String())

		err = app.Run(cmd.Context(), cfg, logger, version)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("run failed", "err", err)
			return err
		}
		logger.Info("shutting down")
		return nil
	}

	rootCmd := &cobra.Command{
		Use:           appName,
		Short:         "Hawaii climate JSON API",
		Long:          "Serves precipitation, station and temperature statistics from a climate store.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server (default)",
		Args:  cobra.NoArgs,
		RunE:  serve,
	}

	routesCmd := &cobra.Command{
		Use:   "routes",
		Short: "List the HTTP routes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, r := range views.Routes {
				if _, err := fmt.Fprintf(stdout, "%-60s %s\n", r.Path, r.Description); err != nil {
					return err
				}
			}
			return nil
		},
	}

	summaryCmd := &cobra.Command{
		Use:   "summary START [END]",
		Short: "Print min, avg and max temperature for a date range",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end := args[0], ""
			if len(args) == 2 {
				end = args[1]
			}
			return withService(cmd.Context(), stderr, func(svc *service.Service) error {
				summary, err := svc.TemperatureSummary(cmd.Context(), start, end)
				if err != nil {
					return err
				}
				return printJSON(stdout, summary)
			})
		},
	}

	stationsCmd := &cobra.Command{
		Use:   "stations",
		Short: "Print every station code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), stderr, func(svc *service.Service) error {
				codes, err := svc.StationCodes(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(stdout, codes)
			})
		},
	}

	var dbPath string
	initDBCmd := &cobra.Command{
		Use:   "init-db",
		Short: "Create the sqlite store and apply schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(stderr)
			if err != nil {
				return err
			}
			applied, err := app.InitStore(cmd.Context(), storePath(dbPath, cfg), logger)
			if err != nil {
				return err
			}
			logger.Info("migrations applied", "versions", applied)
			return nil
		},
	}

	var stationsCSV, measurementsCSV string
	loadCmd := &cobra.Command{
		Use:   "load",
		Short: "Import the station and measurement CSV files into the sqlite store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(stderr)
			if err != nil {
				return err
			}
			counts, err := app.LoadDataset(cmd.Context(), storePath(dbPath, cfg), stationsCSV, measurementsCSV, logger)
			if err != nil {
				return err
			}
			return printJSON(stdout, counts)
		},
	}
	loadCmd.Flags().StringVar(&stationsCSV, "stations", "hawaii_stations.csv", "stations CSV file")
	loadCmd.Flags().StringVar(&measurementsCSV, "measurements", "hawaii_measurements.csv", "measurements CSV file")

	for _, c := range []*cobra.Command{initDBCmd, loadCmd} {
		c.Flags().StringVar(&dbPath, "db", "", "sqlite store path (default: configured SQLITE_PATH)")
	}

	rootCmd.AddCommand(serveCmd, routesCmd, summaryCmd, stationsCmd, initDBCmd, loadCmd)
	return rootCmd
}

func setup(logOut io.Writer) (config.Config, *slog.Logger, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("config error: %w", err)
	}
	logger := logging.New(logOut, cfg, version, appName)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func withService(ctx context.Context, logOut io.Writer, fn func(*service.Service) error) error {
	cfg, logger, err := setup(logOut)
	if err != nil {
		return err
	}
	return app.WithService(ctx, cfg, logger, fn)
}

// storePath prefers --db over the configured SQLITE_PATH so the tooling
// writes the same file serve reads.
func storePath(flag string, cfg config.Config) string {
	if flag != "" {
		return flag
	}
	return cfg.Path
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
