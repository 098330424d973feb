package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rxtech-lab/argo-backtree/internal/algos"
	"github.com/rxtech-lab/argo-backtree/internal/backtest/engine"
	enginev1 "github.com/rxtech-lab/argo-backtree/internal/backtest/engine/engine_v1"
	"github.com/rxtech-lab/argo-backtree/internal/backtest/engine/engine_v1/datasource"
	"github.com/rxtech-lab/argo-backtree/internal/logger"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	readerDuckDB = "duckdb"
	readerCSV    = "csv"
)

// newDataSource picks the reader for the data files. "auto" uses the CSV reader when the
// pattern ends in .csv and DuckDB otherwise.
func newDataSource(reader string, dataPath string, log *logger.Logger) (datasource.DataSource, error) {
	if reader == "auto" {
		reader = readerDuckDB
		if strings.EqualFold(filepath.Ext(dataPath), ".csv") {
			reader = readerCSV
		}
	}

	switch reader {
	case readerDuckDB:
		return datasource.NewDataSource(":memory:", log)
	case readerCSV:
		return datasource.NewCSVDataSource(log), nil
	default:
		return nil, fmt.Errorf("unknown reader %q, expected auto, %s or %s", reader, readerDuckDB, readerCSV)
	}
}

// newCallbacks reports progress on a single bar that grows as runs start.
func newCallbacks(bar *progressbar.ProgressBar) engine.LifecycleCallbacks {
	onStart := engine.OnBacktestStartCallback(func(totalStrategies int, totalDataFiles int) error {
		bar.Describe(fmt.Sprintf("%d strategies x %d inputs", totalStrategies, totalDataFiles))

		return nil
	})
	onRunStart := engine.OnRunStartCallback(func(_ string, strategyName string, _ int, _ string, totalTicks int) error {
		bar.Describe(strategyName)
		bar.ChangeMax(bar.GetMax() + totalTicks)

		return nil
	})
	onProcessData := engine.OnProcessDataCallback(func(_ string, _ int, _ int) error {
		return bar.Add(1)
	})
	onRunEnd := engine.OnRunEndCallback(func(_ string, strategyName string, _ string, resultFolderPath string, state string) {
		bar.Describe(fmt.Sprintf("%s %s -> %s", strategyName, state, resultFolderPath))
	})
	onEnd := engine.OnBacktestEndCallback(func(_ error) {
		_ = bar.Finish()
	})

	return engine.LifecycleCallbacks{
		OnBacktestStart: &onStart,
		OnBacktestEnd:   &onEnd,
		OnRunStart:      &onRunStart,
		OnRunEnd:        &onRunEnd,
		OnProcessData:   &onProcessData,
	}
}

func runAction(ctx context.Context, cmd *cli.Command) error {
	level, err := zapcore.ParseLevel(cmd.String("log-level"))
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	log, err := logger.NewLoggerWithLevel(level)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck

	config, err := os.ReadFile(cmd.String("config"))
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	backtester := enginev1.NewBacktestEngineV1WithLogger(log)

	if err := backtester.Initialize(string(config)); err != nil {
		return fmt.Errorf("failed to initialize backtest engine: %w", err)
	}

	for _, path := range cmd.StringSlice("strategy") {
		if err := backtester.LoadStrategyDefinition(path); err != nil {
			return err
		}
	}

	dataPath := cmd.String("data")

	ds, err := newDataSource(cmd.String("reader"), dataPath, log)
	if err != nil {
		return err
	}
	defer ds.Close()

	if cmd.Bool("preload") {
		ds = datasource.NewInMemoryDataSourceFrom(ds)
	}

	if err := backtester.SetDataSource(ds); err != nil {
		return fmt.Errorf("failed to set data source: %w", err)
	}

	if err := backtester.SetDataPath(dataPath); err != nil {
		return fmt.Errorf("failed to set data path: %w", err)
	}

	if err := backtester.SetResultsFolder(cmd.String("results")); err != nil {
		return fmt.Errorf("failed to set results folder: %w", err)
	}

	bar := progressbar.NewOptions(0,
		progressbar.OptionSetWriter(cmd.Root().ErrWriter),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionClearOnFinish(),
	)

	err = backtester.Run(ctx, newCallbacks(bar))
	if err != nil {
		log.Error("Backtest failed", zap.Error(err))

		return err
	}

	fmt.Fprintf(cmd.Root().Writer, "Results written to %s\n", cmd.String("results"))

	return nil
}

func schemaAction(_ context.Context, cmd *cli.Command) error {
	var (
		schema string
		err    error
	)

	if cmd.Bool("definition") {
		schema, err = algos.DefinitionSchema()
	} else {
		schema, err = enginev1.NewBacktestEngineV1().GetConfigSchema()
	}

	if err != nil {
		return fmt.Errorf("failed to generate schema: %w", err)
	}

	fmt.Fprintln(cmd.Root().Writer, schema)

	return nil
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "backtest",
		Usage: "Run strategy trees over historical prices",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Simulate every strategy definition over every data file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "config",
						Aliases:  []string{"c"},
						Usage:    "Path to the engine configuration `FILE`",
						Required: true,
					},
					&cli.StringSliceFlag{
						Name:     "strategy",
						Aliases:  []string{"s"},
						Usage:    "Strategy definition `FILE`, may be repeated",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "data",
						Aliases:  []string{"d"},
						Usage:    "Price data file or glob, e.g. data/*.parquet",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "results",
						Aliases: []string{"r"},
						Usage:   "Directory the results are written to",
						Value:   "results",
					},
					&cli.StringFlag{
						Name:  "reader",
						Usage: fmt.Sprintf("Data reader: auto, %s or %s", readerDuckDB, readerCSV),
						Value: "auto",
					},
					&cli.BoolFlag{
						Name:  "preload",
						Usage: "Copy each data file into memory before building its universe",
					},
					&cli.StringFlag{
						Name:  "log-level",
						Usage: "Minimum log level (debug, info, warn, error)",
						Value: "info",
					},
				},
				Action: runAction,
			},
			{
				Name:  "schema",
				Usage: "Print the JSON schema of the engine configuration",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "definition",
						Usage: "Print the schema of strategy definition files instead",
					},
				},
				Action: schemaAction,
			},
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().Run(ctx, os.Args); err != nil {
		if ctx.Err() != nil {
			fmt.Println("Backtest stopped by user")
			os.Exit(130)
		}

		log.Fatal(err)
	}
}
