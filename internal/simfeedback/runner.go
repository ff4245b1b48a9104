package simfeedback

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/drillbook/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
)

// Run executes the complete feedback simulation.
func Run(ctx context.Context, config *Config) error {
	stats := &Stats{
		StartTime: time.Now(),
	}

	logger.Get().Info(ctx, "starting drillbook feedback simulation",
		logger.String("baseURL", config.BaseURL),
		logger.Int("events", config.NumEvents),
		logger.Int("workers", config.Workers),
		logger.String("timeout", config.Timeout.String()),
		logger.Float64("editRatio", config.EditRatio),
		logger.Float64("failRatio", config.FailRatio),
		logger.String("logFile", config.LogFile),
		logger.Any("verbose", config.Verbose))

	// Step 1: Check service health
	if err := checkServiceHealth(ctx, config); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: List exercises and add tasks where needed
	templateIDs, err := prepareTemplates(ctx, config, stats)
	if err != nil {
		return fmt.Errorf("template preparation failed: %w", err)
	}

	// Step 3: Generate feedback events
	webhooks, err := generateWebhooks(ctx, config, templateIDs, stats)
	if err != nil {
		return fmt.Errorf("event generation failed: %w", err)
	}

	// Step 4: Submit events concurrently
	if err := submitWebhooks(ctx, config, webhooks, stats); err != nil {
		return fmt.Errorf("event submission failed: %w", err)
	}

	// Step 5: Wait for reconciliation to settle
	logger.Get().Info(ctx, "waiting for reconciliation to settle")
	time.Sleep(SettleDelay)

	// Step 6: Fetch the resulting read model
	if err := reportExercises(ctx, config, stats); err != nil {
		return fmt.Errorf("exercise retrieval failed: %w", err)
	}

	// Step 7: Save events to file
	if err := saveWebhooksToFile(ctx, config, webhooks); err != nil {
		logger.Get().Warn(ctx, "failed to save events to file", logger.Error(err))
	}

	// Final statistics
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)

	displayFinalStats(stats)

	logger.Get().Info(ctx, "simulation completed successfully")
	return nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, config *Config) error {
	logger.Get().Info(ctx, "checking service health")

	client := newHTTPClient(config.Timeout)
	url := config.BaseURL + "/healthz"

	resp, err := client.Get(ctx, url)
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Get().Error(context.Background(), "failed to close response body", logger.Error(err))
		}
	}()

	// Accept any 200 response as healthy (the endpoint serves Prometheus metrics)
	if resp.StatusCode != StatusOK {
		return fmt.Errorf("service health check failed with status: %d", resp.StatusCode)
	}

	logger.Get().Info(ctx, "service is healthy")
	return nil
}

// prepareTemplates lists the catalog and converts every exercise that is
// not yet added into a task, returning the ids usable as feedback
// template references.
func prepareTemplates(ctx context.Context, config *Config, stats *Stats) ([]string, error) {
	client := newHTTPClient(config.Timeout)

	entries, err := fetchExercises(ctx, client, config)
	if err != nil {
		return nil, err
	}
	stats.ExercisesListed = len(entries)
	if len(entries) == 0 {
		return nil, fmt.Errorf("service returned an empty catalog")
	}

	templateIDs := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Added {
			continue
		}
		url := config.BaseURL + "/exercises/" + entry.ID + "/task"
		resp, err := client.Post(ctx, url, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to add task for %s: %w", entry.ID, err)
		}
		body, err := readResponseBody(resp)
		if err != nil {
			return nil, fmt.Errorf("failed to read task response for %s: %w", entry.ID, err)
		}
		if resp.StatusCode != StatusCreated {
			return nil, fmt.Errorf("task creation for %s failed with status: %d", entry.ID, resp.StatusCode)
		}
		var task TaskResponse
		if err := unmarshalJSON(body, &task); err != nil {
			return nil, fmt.Errorf("failed to decode task response for %s: %w", entry.ID, err)
		}
		templateIDs = append(templateIDs, task.TaskID)
		stats.TasksCreated++
	}

	if len(templateIDs) == 0 {
		return nil, fmt.Errorf("no exercises available for task conversion")
	}

	logger.Get().Info(ctx, "templates prepared",
		logger.Int("exercises", stats.ExercisesListed),
		logger.Int("tasksCreated", stats.TasksCreated))

	return templateIDs, nil
}

// fetchExercises retrieves the current exercise read model.
func fetchExercises(ctx context.Context, client *HTTPClient, config *Config) ([]ExerciseEntry, error) {
	url := config.BaseURL + "/exercises"

	resp, err := client.Get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch exercises: %w", err)
	}
	body, err := readResponseBody(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read exercises response: %w", err)
	}
	if resp.StatusCode != StatusOK {
		return nil, fmt.Errorf("exercise listing failed with status: %d", resp.StatusCode)
	}

	var entries []ExerciseEntry
	if err := unmarshalJSON(body, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode exercises response: %w", err)
	}
	return entries, nil
}

// reportExercises fetches the post-simulation read model and logs the
// counters each exercise settled on.
func reportExercises(ctx context.Context, config *Config, stats *Stats) error {
	client := newHTTPClient(config.Timeout)

	entries, err := fetchExercises(ctx, client, config)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		score := 0.0
		if entry.LastScore != nil {
			score = *entry.LastScore
		}
		logger.Get().Info(ctx, "exercise state",
			logger.String("id", entry.ID),
			logger.String("title", entry.Title),
			logger.Float64("lastScore", score),
			logger.Int("executionCount", entry.ExecutionCount),
			logger.Any("added", entry.Added))
	}

	return nil
}

// saveWebhooksToFile saves the generated events to a JSON file.
func saveWebhooksToFile(ctx context.Context, config *Config, webhooks []Webhook) error {
	if len(webhooks) == 0 {
		return fmt.Errorf("no events to save")
	}

	// Determine output filename
	filename := config.OutputFile
	if filename == "" {
		timestamp := time.Now().Format("20060102_150405")
		filename = "generated_feedback_" + timestamp + ".json"
	}

	// Ensure the directory exists
	dir := filepath.Dir(filename)
	if dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// Write events to file
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			logger.Get().Error(context.Background(), "failed to close file", logger.Error(err))
		}
	}()

	// Write JSON array
	if _, err := file.WriteString("[\n"); err != nil {
		return fmt.Errorf("failed to write opening bracket: %w", err)
	}

	for i, webhook := range webhooks {
		jsonData, err := marshalJSON(webhook)
		if err != nil {
			return fmt.Errorf("failed to marshal event %d: %w", i, err)
		}

		if _, err := file.Write(jsonData); err != nil {
			return fmt.Errorf("failed to write event %d: %w", i, err)
		}

		// Add comma except for last event
		if i < len(webhooks)-1 {
			if _, err := file.WriteString(","); err != nil {
				return fmt.Errorf("failed to write comma: %w", err)
			}
		}
		_, _ = file.WriteString("\n")
	}

	if _, err := file.WriteString("]\n"); err != nil {
		return fmt.Errorf("failed to write closing bracket: %w", err)
	}

	logger.Get().Info(ctx, "events saved to file", logger.String("filename", filename))
	return nil
}

// displayFinalStats prints the final simulation statistics.
func displayFinalStats(stats *Stats) {
	var acceptRate, eventsPerSecond float64

	if stats.EventsSubmitted > 0 {
		acceptRate = float64(stats.EventsAccepted) / float64(stats.EventsSubmitted) * PercentageMultiplier
	}

	if stats.Duration > 0 {
		eventsPerSecond = float64(stats.EventsSubmitted) / stats.Duration.Seconds()
	}

	logger.Get().Info(context.Background(), "final statistics",
		logger.Int("exercisesListed", stats.ExercisesListed),
		logger.Int("tasksCreated", stats.TasksCreated),
		logger.Int("eventsGenerated", stats.EventsGenerated),
		logger.Int("eventsSubmitted", stats.EventsSubmitted),
		logger.Int("eventsAccepted", stats.EventsAccepted),
		logger.Int("eventsDropped", stats.EventsDropped),
		logger.Int("eventsFailed", stats.EventsFailed),
		logger.Int("rollbacksEmitted", stats.RollbacksEmitted),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("acceptRate", acceptRate),
		logger.Float64("eventsPerSecond", eventsPerSecond))
}
