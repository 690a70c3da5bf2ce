package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"text/tabwriter"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/urfave/cli/v2"

	"github.com/andresuchdata/stockcast/internal/app"
	"github.com/andresuchdata/stockcast/internal/codec"
	"github.com/andresuchdata/stockcast/internal/config"
	"github.com/andresuchdata/stockcast/internal/export"
	"github.com/andresuchdata/stockcast/internal/repository/postgres"
	"github.com/andresuchdata/stockcast/pkg/logger"
)

type appKey struct{}

func newUserFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "user",
		Usage:    "Owner of the analysis",
		Required: true,
		EnvVars:  []string{"STOCKCAST_USER"},
	}
}

func newAnalysisFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "analysis",
		Aliases:  []string{"a"},
		Usage:    "Analysis ID",
		Required: true,
	}
}

// initApp builds the service from the environment and keeps it on the
// command context.
func initApp(c *cli.Context) error {
	cfg := config.Load()
	logger.SetLevel(cfg.App.LogLevel)
	if cfg.App.LogJSON {
		logger.UseJSON(os.Stderr)
	}

	a, err := app.Build(c.Context, cfg)
	if err != nil {
		return err
	}
	c.Context = context.WithValue(c.Context, appKey{}, a)
	return nil
}

func closeApp(c *cli.Context) error {
	if a, ok := c.Context.Value(appKey{}).(*app.App); ok && a != nil {
		a.Close()
	}
	return nil
}

func appFrom(c *cli.Context) *app.App {
	return c.Context.Value(appKey{}).(*app.App)
}

func main() {
	cliApp := &cli.App{
		Name:  "stockcast",
		Usage: "Manage inventory forecast analyses",
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "Create the database tables",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "db-url",
						Usage:   "Database connection string (defaults to the DB_* settings)",
						EnvVars: []string{"DATABASE_URL"},
					},
				},
				Action: runMigrate,
			},
			{
				Name:  "import",
				Usage: "Store a forecast output file (JSON or gzip) as a new analysis",
				Flags: []cli.Flag{
					newUserFlag(),
					&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "Forecast output file", Required: true},
					&cli.StringFlag{Name: "name", Usage: "Analysis name"},
				},
				Before: initApp,
				After:  closeApp,
				Action: runImport,
			},
			{
				Name:  "forecast",
				Usage: "Run the forecasting process and store its output",
				Flags: []cli.Flag{
					newUserFlag(),
					&cli.StringFlag{Name: "name", Usage: "Analysis name"},
				},
				Before: initApp,
				After:  closeApp,
				Action: runForecast,
			},
			{
				Name:  "list",
				Usage: "List the analyses of a user",
				Flags: []cli.Flag{
					newUserFlag(),
				},
				Before: initApp,
				After:  closeApp,
				Action: runList,
			},
			{
				Name:  "resimulate",
				Usage: "Re-simulate every product of an analysis",
				Flags: []cli.Flag{
					newUserFlag(),
					newAnalysisFlag(),
					&cli.BoolFlag{Name: "regenerate", Usage: "Rebuild the reorder alerts as well"},
				},
				Before: initApp,
				After:  closeApp,
				Action: runResimulate,
			},
			{
				Name:  "export",
				Usage: "Write an analysis as an Excel workbook",
				Flags: []cli.Flag{
					newUserFlag(),
					newAnalysisFlag(),
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Output .xlsx path", Value: "analysis.xlsx"},
				},
				Before: initApp,
				After:  closeApp,
				Action: runExport,
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		logger.Log.Fatal().Err(err).Msg("command failed")
	}
}

func runMigrate(c *cli.Context) error {
	dsn := c.String("db-url")
	if dsn == "" {
		dsn = config.Load().Database.DSN()
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(c.Context); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	if err := postgres.Migrate(c.Context, db); err != nil {
		return err
	}
	logger.Log.Info().Msg("database migrated")
	return nil
}

func runImport(c *cli.Context) error {
	data, err := os.ReadFile(c.String("file"))
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", c.String("file"), err)
	}
	products, err := codec.DecodeProducts(data)
	if err != nil {
		return err
	}

	stored, err := appFrom(c).Service.CreateAnalysis(c.Context, c.String("user"), c.String("name"), products)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, stored.Analysis.ID)
	return nil
}

func runForecast(c *cli.Context) error {
	stored, err := appFrom(c).Service.RunForecast(c.Context, c.String("user"), c.String("name"))
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, stored.Analysis.ID)
	return nil
}

func runList(c *cli.Context) error {
	list, err := appFrom(c).Service.ListAnalyses(c.Context, c.String("user"))
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tPRODUCTS\tVERSION\tUPDATED")
	for _, s := range list {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n", s.ID, s.Name, s.ProductCount, s.Version, s.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func runResimulate(c *cli.Context) error {
	stored, err := appFrom(c).Service.RecalculateAnalysis(c.Context, c.String("user"), c.String("analysis"), c.Bool("regenerate"))
	if err != nil {
		return err
	}
	logger.Log.Info().
		Str("analysis_id", stored.Analysis.ID).
		Int64("version", stored.Version).
		Int("products", len(stored.Analysis.Products)).
		Msg("analysis re-simulated")
	return nil
}

func runExport(c *cli.Context) error {
	stored, err := appFrom(c).Service.GetAnalysisData(c.Context, c.String("user"), c.String("analysis"))
	if err != nil {
		return err
	}
	if err := export.WriteFile(c.String("out"), stored.Analysis.Products); err != nil {
		return err
	}
	logger.Log.Info().Str("file", c.String("out")).Msg("analysis exported")
	return nil
}
