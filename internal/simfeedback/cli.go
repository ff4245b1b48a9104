package simfeedback

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/okian/drillbook/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging configures logging to both console and file.
// If logFile is empty, a timestamped filename is generated.
func SetupLogging(logFile string) error {
	// Initialize the logger first
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if logFile == "" {
		timestamp := time.Now().Format("20060102_150405")
		logFile = "sim_log_" + timestamp + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	multiWriter := io.MultiWriter(os.Stdout, file)
	log.SetOutput(multiWriter)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return nil
}

// ShowHelp prints usage information for the feedback simulation tool.
func ShowHelp() {
	os.Stdout.WriteString(`Drillbook Feedback Simulator
============================

A concurrent tool for exercising the drillbook feedback reconciliation
pipeline: it adds tasks for listed exercises and floods the webhook
endpoint with saved and save-failed events.

Usage:
  go run cmd/feedback-sim/main.go [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9090")
  -events int
        Number of feedback events to generate and submit (default 1000)
  -workers int
        Number of concurrent workers (default CPU cores * 2)
  -timeout duration
        HTTP request timeout (default 30s)
  -edits float
        Fraction of events that re-rate an earlier activity (default 0.2)
  -failures float
        Fraction of saved events followed by a save-failed (default 0.1)
  -output string
        Output file for generated events (default: generated_feedback_TIMESTAMP.json)
  -log string
        Log file for simulation output (default: sim_log_TIMESTAMP.log)
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # Simulate with default settings
  go run cmd/feedback-sim/main.go

  # Heavier run with more rollbacks
  go run cmd/feedback-sim/main.go -events 10000 -failures 0.3 -workers 16

  # Simulate against a remote instance
  go run cmd/feedback-sim/main.go -url http://drillbook:9090 -verbose
`)
}
