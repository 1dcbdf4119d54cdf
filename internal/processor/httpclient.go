package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const requestTimeout = 15 * time.Second

// HTTPClient talks JSON to a payment processor gateway. Idempotency keys are
// sent as the Idempotency-Key header, matching the common processor
// convention.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPClient returns a client for the processor gateway at baseURL.
func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: requestTimeout},
	}
}

var _ Client = (*HTTPClient)(nil)

// apiError is the processor's error envelope.
type apiError struct {
	Error struct {
		Type     string `json:"type"`
		Code     string `json:"code"`
		Message  string `json:"message"`
		ChargeID string `json:"charge_id,omitempty"`
	} `json:"error"`
}

func (c *HTTPClient) CreateChargeWithSplit(ctx context.Context, p ChargeParams) (*Charge, error) {
	body := map[string]any{
		"amount_cents":        p.AmountCents,
		"currency":            p.Currency,
		"application_fee":     p.FeeCents,
		"destination_account": p.DestinationAccount,
		"transfer_cents":      p.TransferCents,
	}
	var charge Charge
	if err := c.post(ctx, "/v1/charges", p.IdempotencyKey, body, &charge); err != nil {
		return nil, err
	}
	return &charge, nil
}

func (c *HTTPClient) CreateTransfer(ctx context.Context, p TransferParams) (*Transfer, error) {
	body := map[string]any{
		"amount_cents":        p.AmountCents,
		"currency":            p.Currency,
		"destination_account": p.DestinationAccount,
		"source_charge":       p.SourceChargeID,
	}
	var tr Transfer
	if err := c.post(ctx, "/v1/transfers", p.IdempotencyKey, body, &tr); err != nil {
		return nil, err
	}
	return &tr, nil
}

func (c *HTTPClient) ReverseTransfer(ctx context.Context, p ReversalParams) (*Reversal, error) {
	body := map[string]any{"amount_cents": p.AmountCents}
	var rev Reversal
	path := fmt.Sprintf("/v1/transfers/%s/reversals", url.PathEscape(p.TransferID))
	if err := c.post(ctx, path, p.IdempotencyKey, body, &rev); err != nil {
		return nil, err
	}
	return &rev, nil
}

func (c *HTTPClient) CreateRefund(ctx context.Context, p RefundParams) (*Refund, error) {
	body := map[string]any{"charge": p.ChargeID}
	if p.AmountCents > 0 {
		body["amount_cents"] = p.AmountCents
	}
	var ref Refund
	if err := c.post(ctx, "/v1/refunds", p.IdempotencyKey, body, &ref); err != nil {
		return nil, err
	}
	return &ref, nil
}

func (c *HTTPClient) GetAccountStatus(ctx context.Context, accountID string) (*AccountStatus, error) {
	var st AccountStatus
	path := fmt.Sprintf("/v1/accounts/%s", url.PathEscape(accountID))
	if err := c.get(ctx, path, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *HTTPClient) FindChargeByKey(ctx context.Context, idempotencyKey string) (*Charge, error) {
	var charge Charge
	path := "/v1/charges/lookup?idempotency_key=" + url.QueryEscape(idempotencyKey)
	if err := c.get(ctx, path, &charge); err != nil {
		return nil, err
	}
	return &charge, nil
}

func (c *HTTPClient) FindTransferByKey(ctx context.Context, idempotencyKey string) (*Transfer, error) {
	var tr Transfer
	path := "/v1/transfers/lookup?idempotency_key=" + url.QueryEscape(idempotencyKey)
	if err := c.get(ctx, path, &tr); err != nil {
		return nil, err
	}
	return &tr, nil
}

func (c *HTTPClient) post(ctx context.Context, path, idempotencyKey string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	return c.do(req, out)
}

func (c *HTTPClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	return c.do(req, out)
}

func (c *HTTPClient) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("processor request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode processor response: %w", err)
		}
		return nil
	}

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}

	var apiErr apiError
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
		return fmt.Errorf("processor returned status %d", resp.StatusCode)
	}
	switch apiErr.Error.Type {
	case "card_error", "account_error":
		return &DeclineError{Code: apiErr.Error.Code, Message: apiErr.Error.Message}
	case "transfer_failed":
		return &TransferFailedError{ChargeID: apiErr.Error.ChargeID, Message: apiErr.Error.Message}
	}
	return fmt.Errorf("processor error (%d): %s", resp.StatusCode, apiErr.Error.Message)
}
