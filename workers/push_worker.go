// workers/push_worker.go
package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"habit-duel-service/models"

	"gorm.io/gorm"
)

// PushClient delivers stored notifications to the push gateway. Delivery is
// best effort: a failed batch stays undelivered and is retried next poll.
type PushClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	DB         *gorm.DB
}

func NewPushClient(db *gorm.DB, baseURL, token string) *PushClient {
	return &PushClient{
		BaseURL: baseURL,
		Token:   token,
		DB:      db,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type pushPayload struct {
	UserID   string `json:"user_id"`
	PushType string `json:"push_type"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	Deeplink string `json:"deeplink,omitempty"`
}

func (p *PushClient) send(ctx context.Context, n models.Notification) error {
	payload := pushPayload{
		UserID:   n.UserID,
		PushType: n.Type,
		Title:    n.Title,
		Body:     n.Body,
		Deeplink: n.Deeplink,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.BaseURL+"/api/v1/push", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Service-Token", p.Token)

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("push gateway returned status %d: %s", resp.StatusCode, string(msg))
	}
	return nil
}

func (p *PushClient) deliverPending(ctx context.Context) {
	var pending []models.Notification
	err := p.DB.Where("delivered_at IS NULL").
		Order("created_at ASC").
		Limit(50).
		Find(&pending).Error
	if err != nil {
		log.Printf("[PushWorker] failed to load pending notifications: %v", err)
		return
	}

	for _, n := range pending {
		if err := p.send(ctx, n); err != nil {
			log.Printf("[PushWorker] delivery failed for %s: %v", n.ID, err)
			continue
		}
		now := time.Now()
		if err := p.DB.Model(&models.Notification{}).
			Where("id = ?", n.ID).
			Update("delivered_at", now).Error; err != nil {
			log.Printf("[PushWorker] failed to mark %s delivered: %v", n.ID, err)
		}
	}
}

// PollNotifications delivers undelivered notifications on a fixed interval
// until the context is canceled.
func PollNotifications(ctx context.Context, client *PushClient, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			client.deliverPending(ctx)
		}
	}
}
