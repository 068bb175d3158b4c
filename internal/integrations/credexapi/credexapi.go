package credexapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/credex-network/clearing/internal/config"
	"github.com/credex-network/clearing/internal/service"
	"github.com/sirupsen/logrus"
)

// Client is the HTTP client for the external credex create/accept pipeline.
type Client struct {
	baseURL string
	client  *http.Client
	log     *logrus.Logger
}

// NewClient initializes a new credex pipeline client
func NewClient(cfg *config.Config, log *logrus.Logger) *Client {
	return &Client{
		baseURL: cfg.CredexAPIURL,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		log: log,
	}
}

type createRequest struct {
	IssuerID     string  `json:"issuerID"`
	AcceptorID   string  `json:"acceptorID"`
	Amount       float64 `json:"amount"`
	Denomination string  `json:"denomination"`
	SecuredDenom string  `json:"securedDenom,omitempty"`
	DueDate      string  `json:"dueDate,omitempty"`
	Type         string  `json:"type"`
}

type createResponse struct {
	CredexID string `json:"credexID"`
}

type acceptRequest struct {
	SignerID string `json:"signerID"`
}

type acceptResponse struct {
	Accepted bool `json:"accepted"`
}

// Create submits a credex offer and returns its id.
func (c *Client) Create(ctx context.Context, req service.CredexRequest) (string, error) {
	payload := createRequest{
		IssuerID:     req.IssuerID,
		AcceptorID:   req.AcceptorID,
		Amount:       req.Amount,
		Denomination: string(req.Denomination),
		SecuredDenom: string(req.SecuredDenom),
		Type:         req.Type,
	}
	if req.DueDate != nil {
		payload.DueDate = req.DueDate.Format("2006-01-02")
	}

	var resp createResponse
	if err := c.post(ctx, "/credex", payload, &resp); err != nil {
		return "", err
	}
	if resp.CredexID == "" {
		return "", fmt.Errorf("pipeline returned empty credex id")
	}
	c.log.Debugf("created credex %s (%s -> %s)", resp.CredexID, req.IssuerID, req.AcceptorID)
	return resp.CredexID, nil
}

// Accept signs a previously created offer into active debt.
func (c *Client) Accept(ctx context.Context, credexID, signerID string) error {
	var resp acceptResponse
	if err := c.post(ctx, "/credex/"+credexID+"/accept", acceptRequest{SignerID: signerID}, &resp); err != nil {
		return err
	}
	if !resp.Accepted {
		return fmt.Errorf("credex %s not accepted", credexID)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
