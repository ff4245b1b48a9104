package simfeedback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// HTTPClient wraps http.Client with timeout
type HTTPClient struct {
	client  *http.Client
	timeout time.Duration
}

// newHTTPClient creates a new HTTP client with timeout
func newHTTPClient(timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client: &http.Client{
			Timeout: timeout,
		},
		timeout: timeout,
	}
}

// Get performs a GET request
func (c *HTTPClient) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.client.Do(req)
}

// Post performs a POST request with JSON body
func (c *HTTPClient) Post(ctx context.Context, url string, body interface{}) (*http.Response, error) {
	jsonData, err := marshalJSON(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	return c.client.Do(req)
}

// marshalJSON marshals a struct to JSON
func marshalJSON(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// unmarshalJSON unmarshals JSON to a struct
func unmarshalJSON(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// readResponseBody reads and closes the response body
func readResponseBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// batchWebhooks groups each saved event with the save-failed that follows
// it, so a worker always posts a rollback after its save.
func batchWebhooks(webhooks []Webhook) [][]Webhook {
	batches := make([][]Webhook, 0, len(webhooks))
	for i := 0; i < len(webhooks); i++ {
		batch := []Webhook{webhooks[i]}
		if i+1 < len(webhooks) && webhooks[i+1].Type == "save-failed" && webhooks[i+1].OptimisticID == webhooks[i].OptimisticID {
			batch = append(batch, webhooks[i+1])
			i++
		}
		batches = append(batches, batch)
	}
	return batches
}

// submitWebhooks submits feedback events concurrently using worker pools.
func submitWebhooks(ctx context.Context, config *Config, webhooks []Webhook, stats *Stats) error {
	log.Printf("submitting %d feedback events with %d workers...", len(webhooks), config.Workers)

	client := newHTTPClient(config.Timeout)
	url := config.BaseURL + "/feedback/events"

	// Counters for statistics
	var (
		accepted  int64
		dropped   int64
		failed    int64
		submitted int64
	)

	// Progress reporting
	var lastReport time.Time
	reportInterval := 1 * time.Second

	batches := batchWebhooks(webhooks)

	// Create worker pool
	batchChan := make(chan []Webhook, config.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()

			for batch := range batchChan {
				select {
				case <-ctx.Done():
					return
				default:
					for _, webhook := range batch {
						result := submitSingleWebhook(ctx, client, url, webhook)

						// Update counters
						atomic.AddInt64(&submitted, 1)
						switch result {
						case "accepted":
							atomic.AddInt64(&accepted, 1)
						case "dropped":
							atomic.AddInt64(&dropped, 1)
						case "failed":
							atomic.AddInt64(&failed, 1)
						}
					}

					// Progress reporting
					if time.Since(lastReport) >= reportInterval {
						lastReport = time.Now()
						total := atomic.LoadInt64(&submitted)
						acc := atomic.LoadInt64(&accepted)
						drop := atomic.LoadInt64(&dropped)
						fail := atomic.LoadInt64(&failed)

						if config.Verbose {
							log.Printf("progress: %d/%d submitted (accepted: %d, dropped: %d, failed: %d)",
								total, len(webhooks), acc, drop, fail)
						} else {
							fmt.Printf("\rsubmitted: %d/%d (accepted: %d, dropped: %d, failed: %d)",
								total, len(webhooks), acc, drop, fail)
						}
					}
				}
			}
		}(i)
	}

	// Send batches to workers
	go func() {
		defer close(batchChan)
		for _, batch := range batches {
			select {
			case <-ctx.Done():
				return
			case batchChan <- batch:
			}
		}
	}()

	// Wait for all workers to complete
	wg.Wait()

	// Final progress report
	if !config.Verbose {
		fmt.Println() // New line after progress indicator
	}

	// Update stats
	stats.EventsSubmitted = int(atomic.LoadInt64(&submitted))
	stats.EventsAccepted = int(atomic.LoadInt64(&accepted))
	stats.EventsDropped = int(atomic.LoadInt64(&dropped))
	stats.EventsFailed = int(atomic.LoadInt64(&failed))

	log.Printf(`feedback submission completed:
   Accepted: %d
   Dropped: %d
   Failed: %d
`, stats.EventsAccepted, stats.EventsDropped, stats.EventsFailed)

	return nil
}

// submitSingleWebhook submits a single feedback event and returns the result.
func submitSingleWebhook(ctx context.Context, client *HTTPClient, url string, webhook Webhook) string {
	resp, err := client.Post(ctx, url, webhook)
	if err != nil {
		return "failed"
	}

	body, err := readResponseBody(resp)
	if err != nil {
		return "failed"
	}

	switch resp.StatusCode {
	case StatusAccepted:
		var ack AckResponse
		if err := unmarshalJSON(body, &ack); err == nil && ack.Status == "accepted" {
			return "accepted"
		}
		return "accepted" // Assume accepted for 202 even if parsing fails
	case StatusDropped:
		// Bus backpressure dropped the event
		return "dropped"
	default:
		return "failed"
	}
}
