package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/okian/drillbook/internal/simfeedback"
)

// Default configuration constants.
const (
	defaultNumEvents  = 1000
	defaultWorkers    = 2 // multiplier for runtime.NumCPU()
	defaultTimeout    = 30 * time.Second
	defaultSimTimeout = 10 * time.Minute
	defaultEditRatio  = 0.2
	defaultFailRatio  = 0.1
)

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:9090", "Base URL of the service")
		numEvents  = flag.Int("events", defaultNumEvents, "Number of feedback events to generate and submit")
		workers    = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		editRatio  = flag.Float64("edits", defaultEditRatio, "Fraction of events that re-rate an earlier activity")
		failRatio  = flag.Float64("failures", defaultFailRatio, "Fraction of saved events followed by a save-failed")
		outputFile = flag.String("output", "", "Output file for generated events (default: generated_feedback_TIMESTAMP.json)")
		logFile    = flag.String("log", "", "Log file for simulation output (default: sim_log_TIMESTAMP.log)")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		simfeedback.ShowHelp()
		return
	}

	// Setup logging
	if err := simfeedback.SetupLogging(*logFile); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		return
	}

	// Create context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), defaultSimTimeout)
	defer cancel()

	// Create simulation configuration
	config := &simfeedback.Config{
		BaseURL:    *baseURL,
		NumEvents:  *numEvents,
		Workers:    *workers,
		Timeout:    *timeout,
		EditRatio:  *editRatio,
		FailRatio:  *failRatio,
		OutputFile: *outputFile,
		LogFile:    *logFile,
		Verbose:    *verbose,
	}

	// Run the simulation
	if err := simfeedback.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Simulation failed: " + err.Error() + "\n")
		return
	}
}
