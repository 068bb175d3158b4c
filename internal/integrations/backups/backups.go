package backups

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/credex-network/clearing/internal/config"
	"github.com/sirupsen/logrus"
)

// Client triggers external snapshots of the full store. The rebase job only
// awaits the trigger for phase ordering; the snapshot itself runs remotely.
type Client struct {
	url    string
	client *http.Client
	log    *logrus.Logger
}

// NewClient initializes a new backup trigger client
func NewClient(cfg *config.Config, log *logrus.Logger) *Client {
	return &Client{
		url: cfg.BackupURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log,
	}
}

type backupRequest struct {
	DateLabel string `json:"dateLabel"`
	Suffix    string `json:"suffix"`
}

// Backup requests a snapshot labeled with the date and suffix.
func (c *Client) Backup(ctx context.Context, dateLabel, suffix string) error {
	body, err := json.Marshal(backupRequest{DateLabel: dateLabel, Suffix: suffix})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	c.log.Infof("backup triggered: %s_%s", dateLabel, suffix)
	return nil
}
