// Package snapshots persists the cart carried by each cart event so a returning browser can
// be shown its last known cart before the first refresh completes.
package snapshots

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"henry/internal/models"
)

type Writer interface {
	TouchSession(ctx context.Context, sessionID string, at time.Time) error
	SaveSnapshot(ctx context.Context, event models.CartEvent) error
}

const writeTimeout = 5 * time.Second

// Handler returns the consumer callback for the cart events topic.
func Handler(w Writer) func([]byte) {
	return func(data []byte) {
		var event models.CartEvent
		if err := json.Unmarshal(data, &event); err != nil {
			logrus.WithError(err).Error("Error unmarshaling cart event")
			return
		}
		if event.ID == "" || event.SessionID == "" {
			logrus.WithField("data", string(data)).Warn("Dropping cart event without id or session")
			return
		}
		if event.At.IsZero() {
			event.At = time.Now().UTC()
		}

		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()

		fields := logrus.Fields{
			"event_id":   event.ID,
			"session_id": event.SessionID,
			"kind":       event.Kind,
		}
		if err := w.TouchSession(ctx, event.SessionID, event.At); err != nil {
			logrus.WithError(err).WithFields(fields).Error("Failed to record session activity")
		}
		if err := w.SaveSnapshot(ctx, event); err != nil {
			logrus.WithError(err).WithFields(fields).Error("Failed to save cart snapshot")
			return
		}
		logrus.WithFields(fields).WithField("count", event.Count).Info("Cart snapshot saved")
	}
}
