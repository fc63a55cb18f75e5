// Package mint issues ticket assets through the minting service and turns
// its receipts into TicketRecords.
package mint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/tixagent/internal/model"
	"github.com/capitalize-ai/tixagent/pkg/logger"
)

var (
	// ErrMintStatus is returned when the mint service answers non-2xx.
	ErrMintStatus = errors.New("mint service returned an error status")

	// ErrShortReceipt is returned when fewer assets come back than were requested.
	ErrShortReceipt = errors.New("mint service returned fewer tickets than requested")
)

const explorerBase = "https://explorer.solana.com/address/"

// Config holds mint service settings.
type Config struct {
	URL     string
	APIKey  string
	Cluster string
	Timeout time.Duration
}

// Client calls the HTTP minting service.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient creates a mint client. Cluster defaults to devnet.
func NewClient(cfg Config, log *logger.Logger) *Client {
	if cfg.Cluster == "" {
		cfg.Cluster = "devnet"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     log,
	}
}

type mintRequest struct {
	Owner   string                 `json:"owner"`
	Cluster string                 `json:"cluster"`
	Tickets []model.TicketMetadata `json:"tickets"`
}

type mintReceipt struct {
	AttendeeName    string `json:"attendee_name"`
	AssetID         string `json:"asset_id"`
	MintTransaction string `json:"mint_transaction"`
}

type mintResponse struct {
	Tickets []mintReceipt `json:"tickets"`
	Error   string        `json:"error,omitempty"`
}

// Mint issues one ticket per metadata entry to owner.
func (c *Client) Mint(ctx context.Context, owner string, tickets []model.TicketMetadata) ([]model.TicketRecord, error) {
	body, err := json.Marshal(mintRequest{Owner: owner, Cluster: c.cfg.Cluster, Tickets: tickets})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal mint request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build mint request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mint request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read mint response: %w", err)
	}

	var out mintResponse
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if json.Unmarshal(raw, &out) == nil && out.Error != "" {
			return nil, fmt.Errorf("%w: %d: %s", ErrMintStatus, resp.StatusCode, out.Error)
		}
		return nil, fmt.Errorf("%w: %d", ErrMintStatus, resp.StatusCode)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode mint response: %w", err)
	}
	if len(out.Tickets) < len(tickets) {
		return nil, fmt.Errorf("%w: got %d of %d", ErrShortReceipt, len(out.Tickets), len(tickets))
	}

	records := make([]model.TicketRecord, len(tickets))
	for i, meta := range tickets {
		r := out.Tickets[i]
		records[i] = model.TicketRecord{
			AttendeeName:    meta.AttendeeName,
			AssetID:         r.AssetID,
			MintTransaction: r.MintTransaction,
			EventName:       meta.EventName,
			EventDate:       meta.EventDate,
			Venue:           meta.Venue,
			PricePaid:       meta.PricePaid,
			Status:          model.TicketActive,
			VerificationURL: c.VerificationURL(r.AssetID),
		}
	}

	c.logger.Info("tickets minted",
		zap.String("owner", owner),
		zap.Int("count", len(records)),
		zap.String("cluster", c.cfg.Cluster),
	)
	return records, nil
}

// VerificationURL is the public explorer link for an asset.
func (c *Client) VerificationURL(assetID string) string {
	return explorerBase + assetID + "?cluster=" + c.cfg.Cluster
}
