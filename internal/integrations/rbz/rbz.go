package rbz

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/credex-network/clearing/internal/config"
	"github.com/credex-network/clearing/internal/models"
	"github.com/sirupsen/logrus"
)

// Client fetches the Reserve Bank of Zimbabwe's daily exchange-rate table
// and extracts the ZWG/USD mid rate. This is the supplementary regional
// source; any failure here drops only ZWG for the day.
type Client struct {
	url    string
	client *http.Client
	log    *logrus.Logger
}

// NewClient initializes a new regional rate source client
func NewClient(cfg *config.Config, log *logrus.Logger) *Client {
	return &Client{
		url: cfg.RBZURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: log,
	}
}

// Denomination names the denomination this source supplies.
func (c *Client) Denomination() models.Denomination {
	return models.DenomZWG
}

// Row is one parsed line of the published rate table.
type Row struct {
	Currency string
	Bid      float64
	Ask      float64
	Avg      float64
}

// FetchRate retrieves the table and returns ZWG per USD from the USD row's
// average rate.
func (c *Client) FetchRate(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to read response: %w", err)
	}

	rows, err := ParseRateTable(body)
	if err != nil {
		return 0, err
	}
	for _, row := range rows {
		if strings.EqualFold(row.Currency, "USD") {
			if row.Avg <= 0 {
				return 0, fmt.Errorf("non-positive average rate %v for USD row", row.Avg)
			}
			c.log.Infof("fetched ZWG rate: %.6f per USD", row.Avg)
			return row.Avg, nil
		}
	}
	return 0, fmt.Errorf("no USD row in rate table")
}

// ParseRateTable decodes the published XML table into typed rows with
// numeric-format validation.
func ParseRateTable(raw []byte) ([]Row, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, fmt.Errorf("failed to parse XML: %w", err)
	}

	elements := doc.FindElements("//rates/rate")
	if len(elements) == 0 {
		return nil, fmt.Errorf("no rate rows found in table")
	}

	rows := make([]Row, 0, len(elements))
	for _, el := range elements {
		row := Row{}
		currency := el.FindElement("./currency")
		if currency == nil {
			return nil, fmt.Errorf("rate row missing currency element")
		}
		row.Currency = strings.TrimSpace(currency.Text())

		for _, field := range []struct {
			name string
			dst  *float64
		}{
			{"bid", &row.Bid},
			{"ask", &row.Ask},
			{"avg", &row.Avg},
		} {
			element := el.FindElement("./" + field.name)
			if element == nil {
				return nil, fmt.Errorf("rate row %s missing %s element", row.Currency, field.name)
			}
			value, err := strconv.ParseFloat(strings.TrimSpace(element.Text()), 64)
			if err != nil {
				return nil, fmt.Errorf("malformed %s rate for %s: %w", field.name, row.Currency, err)
			}
			*field.dst = value
		}
		rows = append(rows, row)
	}
	return rows, nil
}
