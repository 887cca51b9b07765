// workers/profile_sync_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"habit-duel-service/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MirroredProfile matches the JSON the profile service returns for changed
// users.
type MirroredProfile struct {
	ID             string    `json:"id"`
	Nickname       string    `json:"nickname"`
	Name           string    `json:"name"`
	Bio            *string   `json:"bio,omitempty"`
	ProfilePicture *string   `json:"profile_picture_url,omitempty"`
	Timezone       string    `json:"timezone"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ProfileSyncWorker mirrors nickname/avatar/timezone from the external
// profile service into the local users table. Balance is local state and is
// never touched by sync.
type ProfileSyncWorker struct {
	BaseURL    string
	Path       string
	Token      string
	HTTPClient *http.Client
	DB         *gorm.DB

	lastSyncedAt time.Time
}

func NewProfileSyncWorker(db *gorm.DB, baseURL, path, token string) *ProfileSyncWorker {
	return &ProfileSyncWorker{
		BaseURL: baseURL,
		Path:    path,
		Token:   token,
		DB:      db,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (w *ProfileSyncWorker) fetchChangedProfiles(ctx context.Context, since time.Time) ([]MirroredProfile, error) {
	u, err := url.Parse(w.BaseURL + w.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse profile service URL: %w", err)
	}
	q := u.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Service-Token", w.Token)

	resp, err := w.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call profile service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("profile service returned status %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Profiles []MirroredProfile `json:"profiles"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode profile response: %w", err)
	}
	return response.Profiles, nil
}

func (w *ProfileSyncWorker) syncOnce(ctx context.Context) error {
	profiles, err := w.fetchChangedProfiles(ctx, w.lastSyncedAt)
	if err != nil {
		return err
	}

	now := time.Now()
	for _, p := range profiles {
		user := models.User{
			ID:             p.ID,
			Nickname:       p.Nickname,
			Name:           p.Name,
			Bio:            p.Bio,
			ProfilePicture: p.ProfilePicture,
			Timezone:       p.Timezone,
			LastSyncedAt:   &now,
		}
		// Upsert profile fields only; hb_balance stays under ledger control.
		err := w.DB.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"nickname", "name", "bio", "profile_picture", "timezone", "last_synced_at",
			}),
		}).Create(&user).Error
		if err != nil {
			log.Printf("[ProfileSync] upsert failed for user %s: %v", p.ID, err)
		}
	}

	if len(profiles) > 0 {
		log.Printf("[ProfileSync] mirrored %d profiles", len(profiles))
	}
	w.lastSyncedAt = now
	return nil
}

// Start runs the sync loop until the context is canceled.
func (w *ProfileSyncWorker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := w.syncOnce(ctx); err != nil {
			log.Printf("[ProfileSync] sync failed: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
