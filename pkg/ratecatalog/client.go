/**
 * @description
 * This package provides a client for the external exchange-rate catalog.
 * It encapsulates the logic for fetching the rate snapshot a transfer is
 * quoted against, and for normalizing amounts between currencies (used by
 * the loyalty points settlement). Rates are consumed here, never managed.
 *
 * @dependencies
 * - context, encoding/json, fmt, net/http, time: Standard Go libraries.
 * - github.com/shopspring/decimal: Decimal amounts on the wire.
 */
package ratecatalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/adamsend/transfer-service/internal/domain"
)

var ErrRateNotFound = errors.New("rate not found in catalog")

// Client is a client for the rate catalog API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new rate catalog client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type rateResponse struct {
	RateID       string          `json:"rate_id"`
	FromCurrency string          `json:"from_currency"`
	ToCurrency   string          `json:"to_currency"`
	Rate         decimal.Decimal `json:"rate"`
	MinAmount    decimal.Decimal `json:"min_amount"`
	MaxAmount    decimal.Decimal `json:"max_amount"`
}

type convertResponse struct {
	Amount decimal.Decimal `json:"amount"`
}

func (c *Client) do(ctx context.Context, path string, out any) error {
	if c.baseURL == "" {
		return fmt.Errorf("rate catalog base url is empty")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if strings.TrimSpace(c.apiKey) != "" {
		req.Header.Set("X-API-Key", strings.TrimSpace(c.apiKey))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request to rate catalog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrRateNotFound
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("rate catalog returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode rate catalog response: %w", err)
	}
	return nil
}

// GetRate fetches one rate snapshot by id.
func (c *Client) GetRate(ctx context.Context, rateID string) (*domain.RateSnapshot, error) {
	var out rateResponse
	if err := c.do(ctx, "/rates/"+url.PathEscape(rateID), &out); err != nil {
		return nil, err
	}
	return &domain.RateSnapshot{
		RateID:       out.RateID,
		FromCurrency: strings.ToUpper(out.FromCurrency),
		ToCurrency:   strings.ToUpper(out.ToCurrency),
		Rate:         out.Rate,
		MinAmount:    out.MinAmount,
		MaxAmount:    out.MaxAmount,
	}, nil
}

// Convert normalizes an amount from one currency into another using the
// catalog's current cross rate.
func (c *Client) Convert(ctx context.Context, amount decimal.Decimal, fromCurrency, toCurrency string) (decimal.Decimal, error) {
	path := fmt.Sprintf("/convert?from=%s&to=%s&amount=%s",
		url.QueryEscape(strings.ToUpper(fromCurrency)),
		url.QueryEscape(strings.ToUpper(toCurrency)),
		url.QueryEscape(amount.String()),
	)
	var out convertResponse
	if err := c.do(ctx, path, &out); err != nil {
		return decimal.Zero, err
	}
	return out.Amount, nil
}
