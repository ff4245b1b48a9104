package simfeedback

import (
	"context"
	"crypto/rand"
	"math/big"

	"github.com/google/uuid"
	"github.com/okian/drillbook/pkg/logger"
)

// Constants for random number generation.
const (
	randomFloatDivisor = 1000000
	ratingShapeDivisor = 6
)

// Constants for rating generation ranges.
const (
	solidRatingMin    = 5.0
	solidRatingRange  = 3.0
	strongRatingMin   = 8.0
	strongRatingRange = 2.0
	weakRatingMin     = 1.0
	weakRatingRange   = 3.0
	fullRatingMin     = 1.0
	fullRatingRange   = 9.0
)

// Constants for rating shape cases.
const (
	caseSolidRating  = 0
	caseStrongRating = 1
	caseWeakRating   = 2
)

// activitySlot remembers an already-rated activity so later events can
// re-rate it the way a user editing their score would.
type activitySlot struct {
	templateID     string
	activityID     string
	taskInstanceID string
}

// getRandomFloat returns a random float64 between 0.0 and 1.0 using crypto/rand.
func getRandomFloat() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(randomFloatDivisor))
	return float64(n.Int64()) / float64(randomFloatDivisor)
}

// getRandomIndex returns a random index in [0, limit).
func getRandomIndex(limit int) int {
	if limit <= 0 {
		return 0
	}
	n, _ := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	return int(n.Int64())
}

// generateWebhooks creates the feedback event stream. Saved events may be
// followed immediately by a save-failed for the same optimistic id, and a
// configurable share of events re-rates a previously seen activity.
// Generation is sequential because edits depend on earlier events.
func generateWebhooks(ctx context.Context, config *Config, templateIDs []string, stats *Stats) ([]Webhook, error) {
	logger.Get().Info(ctx, "generating feedback events",
		logger.Int("numEvents", config.NumEvents),
		logger.Int("templates", len(templateIDs)))

	webhooks := make([]Webhook, 0, config.NumEvents*2)
	history := make([]activitySlot, 0, config.NumEvents)

	for i := 0; i < config.NumEvents; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		var slot activitySlot
		if len(history) > 0 && getRandomFloat() < config.EditRatio {
			// Re-rate an earlier activity under a fresh optimistic id.
			slot = history[getRandomIndex(len(history))]
		} else {
			slot = activitySlot{
				templateID:     templateIDs[getRandomIndex(len(templateIDs))],
				activityID:     uuid.New().String(),
				taskInstanceID: uuid.New().String(),
			}
			history = append(history, slot)
		}

		rating := generateVariedRating()
		optimisticID := uuid.New().String()

		webhooks = append(webhooks, Webhook{
			Type:           "saved",
			TemplateID:     slot.templateID,
			ActivityID:     slot.activityID,
			TaskInstanceID: slot.taskInstanceID,
			Rating:         &rating,
			OptimisticID:   optimisticID,
		})

		if getRandomFloat() < config.FailRatio {
			webhooks = append(webhooks, Webhook{
				Type:         "save-failed",
				OptimisticID: optimisticID,
			})
			stats.RollbacksEmitted++
		}
	}

	stats.EventsGenerated = len(webhooks)
	logger.Get().Info(ctx, "generated feedback events",
		logger.Int("count", len(webhooks)),
		logger.Int("rollbacks", stats.RollbacksEmitted))

	return webhooks, nil
}

// generateVariedRating creates a rating with varied distribution.
func generateVariedRating() float64 {
	randNum, _ := rand.Int(rand.Reader, big.NewInt(ratingShapeDivisor))
	switch randNum.Int64() {
	case caseSolidRating:
		// Solid sessions (5.0 - 8.0) - most common
		return solidRatingMin + getRandomFloat()*solidRatingRange
	case caseStrongRating:
		// Strong sessions (8.0 - 10.0)
		return strongRatingMin + getRandomFloat()*strongRatingRange
	case caseWeakRating:
		// Weak sessions (1.0 - 4.0)
		return weakRatingMin + getRandomFloat()*weakRatingRange
	default:
		// Anything across the full range (1.0 - 10.0)
		return fullRatingMin + getRandomFloat()*fullRatingRange
	}
}
