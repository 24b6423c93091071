package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	sqlx "github.com/jmoiron/sqlx"
	timetagger "github.com/next-exp/timetagger_go/pkg"
	"github.com/next-exp/timetagger_go/pkg/writer"
)

var dbConn *sqlx.DB
var configuration timetagger.Configuration

var (
	logger         Logger
	VerbosityLevel int
)

func init() {
	opts := &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}
	handlerStdOut := NewHandler(os.Stdout, opts)
	handlerStdErr := slog.NewJSONHandler(os.Stderr, opts)
	logger = Logger{
		InfoLog:  slog.New(handlerStdOut),
		ErrorLog: slog.New(handlerStdErr),
	}
}

func main() {
	configFilename := flag.String("config", "", "Configuration file path")
	runNumber := flag.Int("run", 0, "Run number used to look up the clock calibration")
	nReads := flag.Int("reads", -1, "Number of reads (overrides the configuration)")
	noDB := flag.Bool("no-db", false, "Use the fabric clock from the configuration instead of the database")
	flag.Parse()

	if err := run(*configFilename, *runNumber, *nReads, *noDB); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
}

func run(configFilename string, runNumber int, nReads int, noDB bool) error {
	var err error
	configuration, err = LoadConfiguration(configFilename)
	if err != nil {
		return fmt.Errorf("Error reading configuration file: %w", err)
	}
	if nReads >= 0 {
		configuration.NumReads = nReads
	}
	if noDB {
		configuration.NoDB = true
	}
	timetagger.SetConfiguration(configuration)
	timetagger.SetLogger(logger)

	VerbosityLevel = configuration.Verbosity
	if VerbosityLevel > 0 {
		message := fmt.Sprintf("Reading configuration file: %s", configFilename)
		logger.Info(message, "main")
		printConfiguration(configuration, logger)
	}

	var calibration timetagger.Calibration = timetagger.FixedClock{FabricMHz: configuration.FabricMHz}
	if !configuration.NoDB {
		dbConn, err = timetagger.ConnectToDatabase(configuration.User, configuration.Passwd, configuration.Host, configuration.DBName)
		if err != nil {
			return fmt.Errorf("Error connection to database: %w", err)
		}
		defer dbConn.Close()

		table, err := timetagger.LoadClockTable(dbConn, runNumber)
		if err != nil {
			return fmt.Errorf("Error loading clock calibration: %w", err)
		}
		calibration = table
	}

	device, err := timetagger.NewSimulatedDevice(simulatorConfig(configuration))
	if err != nil {
		return fmt.Errorf("Error creating device: %w", err)
	}

	worker := timetagger.NewWorker(device)
	defer worker.Stop()

	stream, err := timetagger.NewTimeTagStream(worker, device, calibration, configuration.StreamConfig())
	if err != nil {
		return fmt.Errorf("Error creating stream: %w", err)
	}

	hist, err := timetagger.NewHistogram(configuration.NumExperiments, configuration.BinWidth, configuration.NumBins)
	if err != nil {
		return fmt.Errorf("Error creating histogram: %w", err)
	}

	var out *writer.Writer
	var sink armWriter
	if configuration.WriteData {
		out, err = writer.NewWriter(configuration.FileOut, configuration.CompressionLevel)
		if err != nil {
			return err
		}
		sink = out
	}

	start := time.Now()
	var summary runSummary
	runErr := stream.Run(func(s *timetagger.TimeTagStream) error {
		var err error
		summary, err = acquire(s, hist, sink, configuration)
		return err
	})
	// Anything still queued when the readout stopped
	flushErr := flush(stream, hist, sink, &summary)

	if out != nil {
		if err := out.WriteHistogram(hist); err != nil {
			logger.Error(fmt.Errorf("error writing histogram: %w", err).Error())
		}
		if err := out.Close(); err != nil {
			logger.Error(err.Error())
		}
	}

	totArms, totTags := stream.Totals()
	stats := worker.Stats()
	logger.Info(fmt.Sprintf("Returned %d arm events, %d tags in %d reads", summary.Arms, summary.Tags, summary.Reads), "main")
	logger.Info(fmt.Sprintf("Received %d arm events, %d tags", totArms, totTags), "main")
	logger.Info(fmt.Sprintf("Worker: %d drains, %d batches, %d errors", stats.Drains, stats.Batches, stats.Errors), "main")
	logger.Info(fmt.Sprintf("Binned tags: %.0f", hist.Total()), "main")
	logger.Info(fmt.Sprintf("Total time: %d ms", time.Since(start).Milliseconds()), "main")

	if runErr != nil {
		return runErr
	}
	return flushErr
}
