package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dimasprsty/tiketin/internal/helpers"
	"github.com/dimasprsty/tiketin/internal/models"
)

func TestCreateCheckoutSession(t *testing.T) {
	var gotHeaders http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		assert.Equal(t, checkoutPath, r.URL.Path)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		order := body["order"].(map[string]interface{})
		assert.Equal(t, 150.0, order["amount"])

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"response": map[string]interface{}{
				"order":   map[string]interface{}{"session_id": "sess-123"},
				"payment": map[string]interface{}{"url": "https://pay.example.com/sess-123"},
			},
		})
	}))
	defer srv.Close()

	client := NewClient(Config{
		BaseURL:     srv.URL,
		ClientID:    "client-1",
		SecretKey:   "secret",
		FrontendURL: "https://shop.example.com",
	}, zerolog.Nop())

	order := &models.Order{
		ID:            uuid.New(),
		PurchaserName: "Dina",
		PurchaseEmail: "dina@example.com",
		Currency:      "IDR",
		TotalAmount:   150,
		Items: []models.OrderItem{
			{TicketID: uuid.New(), TicketName: "Regular", Quantity: 2, Price: 75},
		},
	}

	session, err := client.CreateCheckoutSession(context.Background(), order, "va")
	require.NoError(t, err)
	assert.Equal(t, "sess-123", session.SessionID)
	assert.Equal(t, "https://pay.example.com/sess-123", session.PaymentURL)

	assert.Equal(t, "client-1", gotHeaders.Get("Client-Id"))
	assert.NotEmpty(t, gotHeaders.Get("Request-Id"))
	assert.NotEmpty(t, gotHeaders.Get("Digest"))
	assert.Contains(t, gotHeaders.Get("Signature"), "HMACSHA256=")
}

func TestCreateCheckoutSessionGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid merchant"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, ClientID: "c", SecretKey: "s"}, zerolog.Nop())
	_, err := client.CreateCheckoutSession(context.Background(), &models.Order{ID: uuid.New()}, "")
	assert.Error(t, err)
}

func TestCreateRefund(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, refundPath, r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"response": map[string]interface{}{
				"refund": map[string]interface{}{"id": "rfd-9", "status": "success"},
			},
		})
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, ClientID: "c", SecretKey: "s"}, zerolog.Nop())
	refundID, err := client.CreateRefund(context.Background(), "txn-1", 50, "customer request")
	require.NoError(t, err)
	assert.Equal(t, "rfd-9", refundID)
}

func TestVerifyWebhookSignature(t *testing.T) {
	client := NewClient(Config{WebhookSecret: "whsec"}, zerolog.Nop())
	body := []byte(`{"event":"checkout.completed"}`)

	good := helpers.WebhookSignature("whsec", body)
	assert.True(t, client.VerifyWebhookSignature(body, good))
	assert.False(t, client.VerifyWebhookSignature(body, "deadbeef"))
	assert.False(t, client.VerifyWebhookSignature([]byte(`tampered`), good))
}

func TestParseWebhookEvent(t *testing.T) {
	tests := []struct {
		name string
		body string
		kind EventKind
	}{
		{
			name: "checkout completed",
			body: `{"event":"checkout.completed","data":{"session_id":"s1","transaction_id":"t1","amount":100}}`,
			kind: EventCheckoutCompleted,
		},
		{
			name: "payment failed",
			body: `{"event":"payment.failed","data":{"session_id":"s2"}}`,
			kind: EventPaymentFailed,
		},
		{
			name: "charge refunded",
			body: `{"event":"charge.refunded","data":{"transaction_id":"t3"}}`,
			kind: EventChargeRefunded,
		},
		{
			name: "unknown kind",
			body: `{"event":"payout.settled","data":{}}`,
			kind: EventUnrecognized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := ParseWebhookEvent([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.kind, event.Kind)
		})
	}
}

func TestParseWebhookEventMalformed(t *testing.T) {
	_, err := ParseWebhookEvent([]byte(`not json`))
	assert.Error(t, err)
}
