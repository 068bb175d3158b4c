package openexchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/credex-network/clearing/internal/config"
	"github.com/credex-network/clearing/internal/models"
	"github.com/sirupsen/logrus"
)

// Client fetches USD-based historical exchange rates, keyed by date.
type Client struct {
	url    string
	appID  string
	client *http.Client
	log    *logrus.Logger
}

// NewClient initializes a new primary rate source client
func NewClient(cfg *config.Config, log *logrus.Logger) *Client {
	return &Client{
		url:   cfg.RatesURL,
		appID: cfg.RatesAppID,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: log,
	}
}

type ratesResponse struct {
	Rates map[string]float64 `json:"rates"`
}

// FetchRates retrieves the tracked denominations' rates for a date. Rates
// are units of each denomination per USD.
func (c *Client) FetchRates(ctx context.Context, date string) (map[models.Denomination]float64, error) {
	endpoint := fmt.Sprintf("%s/%s.json?app_id=%s", c.url, date, url.QueryEscape(c.appID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var body ratesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	rates := make(map[models.Denomination]float64, len(models.TrackedDenominations))
	for _, denom := range models.TrackedDenominations {
		rate, ok := body.Rates[string(denom)]
		if !ok {
			return nil, fmt.Errorf("rate for %s missing from response", denom)
		}
		rates[denom] = rate
	}

	c.log.Debugf("fetched %d rates for %s", len(rates), date)
	return rates, nil
}
