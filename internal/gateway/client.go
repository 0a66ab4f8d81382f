// Package gateway talks to the external payment provider: signed checkout
// session creation, signed refund calls, and verification/decoding of inbound
// webhook notifications. The provider's API is treated as opaque; the engine
// only stores the session reference and transaction id it hands back.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/dimasprsty/tiketin/internal/helpers"
	"github.com/dimasprsty/tiketin/internal/models"
)

const (
	checkoutPath = "/checkout/v1/payment"
	refundPath   = "/refunds/v1/refund"
)

type Config struct {
	BaseURL       string
	ClientID      string
	SecretKey     string
	WebhookSecret string
	FrontendURL   string
}

type Client struct {
	cfg  Config
	http *http.Client
	log  zerolog.Logger
}

func NewClient(cfg Config, log zerolog.Logger) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 15 * time.Second},
		log:  log.With().Str("component", "gateway").Logger(),
	}
}

// CheckoutSession is the provider's answer to a checkout creation: an opaque
// session reference and the redirect target for the buyer.
type CheckoutSession struct {
	SessionID  string `json:"session_id"`
	PaymentURL string `json:"payment_url"`
}

// CreateCheckoutSession asks the provider for a hosted checkout page covering
// the order's total. The session id must be stored on the Payment record so
// webhook notifications can be correlated back.
func (c *Client) CreateCheckoutSession(ctx context.Context, order *models.Order, paymentMode string) (*CheckoutSession, error) {
	lineItems := make([]map[string]interface{}, 0, len(order.Items))
	for _, item := range order.Items {
		lineItems = append(lineItems, map[string]interface{}{
			"id":       item.TicketID.String(),
			"name":     item.TicketName,
			"quantity": item.Quantity,
			"price":    item.Price,
		})
	}

	body := map[string]interface{}{
		"order": map[string]interface{}{
			"amount":         order.TotalAmount,
			"invoice_number": fmt.Sprintf("INV-%d", time.Now().Unix()),
			"currency":       order.Currency,
			"line_items":     lineItems,
			"callback_ref":   order.ID.String(),
		},
		"payment": map[string]interface{}{
			"payment_method": paymentMode,
		},
		"customer": map[string]interface{}{
			"name":  order.PurchaserName,
			"email": order.PurchaseEmail,
			"phone": order.PurchaseMobile,
		},
		"redirect": map[string]interface{}{
			"success_url": fmt.Sprintf("%s/checkout/success?orderId=%s", c.cfg.FrontendURL, order.ID),
			"cancel_url":  fmt.Sprintf("%s/checkout/cancel?orderId=%s", c.cfg.FrontendURL, order.ID),
		},
	}

	var out struct {
		Response struct {
			Order struct {
				SessionID string `json:"session_id"`
			} `json:"order"`
			Payment struct {
				URL string `json:"url"`
			} `json:"payment"`
		} `json:"response"`
	}
	if err := c.post(ctx, checkoutPath, body, &out); err != nil {
		return nil, fmt.Errorf("create checkout session for order %s: %w", order.ID, err)
	}
	if out.Response.Order.SessionID == "" || out.Response.Payment.URL == "" {
		return nil, fmt.Errorf("create checkout session for order %s: gateway response missing session or url", order.ID)
	}
	return &CheckoutSession{
		SessionID:  out.Response.Order.SessionID,
		PaymentURL: out.Response.Payment.URL,
	}, nil
}

// CreateRefund moves money back against a settled transaction and returns the
// provider's refund transaction id.
func (c *Client) CreateRefund(ctx context.Context, transactionID string, amount float64, reason string) (string, error) {
	body := map[string]interface{}{
		"transaction_id": transactionID,
		"amount":         amount,
		"reason":         reason,
	}

	var out struct {
		Response struct {
			Refund struct {
				ID     string `json:"id"`
				Status string `json:"status"`
			} `json:"refund"`
		} `json:"response"`
	}
	if err := c.post(ctx, refundPath, body, &out); err != nil {
		return "", fmt.Errorf("create refund for transaction %s: %w", transactionID, err)
	}
	if out.Response.Refund.ID == "" {
		return "", fmt.Errorf("create refund for transaction %s: gateway response missing refund id", transactionID)
	}
	return out.Response.Refund.ID, nil
}

func (c *Client) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	signer := helpers.NewRequestSigner(c.cfg.ClientID, c.cfg.SecretKey, path)
	for key, value := range signer.Headers(string(jsonBody)) {
		req.Header.Set(key, value)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, respBody)
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// VerifyWebhookSignature checks the raw webhook payload against its signature
// header. Payloads that fail verification must be rejected without side
// effects.
func (c *Client) VerifyWebhookSignature(body []byte, signature string) bool {
	return helpers.VerifyWebhookSignature(c.cfg.WebhookSecret, body, signature)
}
