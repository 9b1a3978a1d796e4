package service

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const webhookErrorStatusThreshold = 300

// SecurityAlertWebhook posts a notification when a refresh token is rotated
// from an IP the session has not been seen on. Fire-and-forget: delivery
// failure never affects the rotation.
type SecurityAlertWebhook struct {
	client     *http.Client
	log        *zap.SugaredLogger
	webhookURL string
}

func NewSecurityAlertWebhook(log *zap.SugaredLogger, webhookURL string) *SecurityAlertWebhook {
	return &SecurityAlertWebhook{
		client:     &http.Client{Timeout: 10 * time.Second},
		log:        log,
		webhookURL: webhookURL,
	}
}

type ipChangeAlert struct {
	UserID    int64  `json:"user_id"`
	SessionID string `json:"session_id"`
	OldIP     string `json:"old_ip"`
	NewIP     string `json:"new_ip"`
	UserAgent string `json:"user_agent"`
}

func (s *SecurityAlertWebhook) NotifyIPChange(ctx context.Context, userID int64, sessionID, oldIP, newIP, userAgent string) {
	if s.webhookURL == "" {
		return
	}

	go func() {
		payload, err := json.Marshal(ipChangeAlert{
			UserID:    userID,
			SessionID: sessionID,
			OldIP:     oldIP,
			NewIP:     newIP,
			UserAgent: userAgent,
		})
		if err != nil {
			s.log.Errorw("failed to marshal alert payload", "error", err)
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewBuffer(payload))
		if err != nil {
			s.log.Errorw("failed to create alert request", "error", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			s.log.Errorw("failed to send alert", "error", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode >= webhookErrorStatusThreshold {
			s.log.Warnw("alert webhook returned non-2xx status", "status", resp.StatusCode)
		}
	}()
}
