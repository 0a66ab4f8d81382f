package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/dimasprsty/tiketin/internal/gateway"
	"github.com/dimasprsty/tiketin/internal/helpers"
)

func newWebhookRouter(secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	gw := gateway.NewClient(gateway.Config{WebhookSecret: secret}, zerolog.Nop())
	h := NewWebhookHandler(nil, gw, zerolog.Nop())

	r := gin.New()
	r.POST("/v1/payments/webhook", h.Handle)
	return r
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	r := newWebhookRouter("whsec")

	body := `{"event":"checkout.completed","data":{"session_id":"s1"}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/payments/webhook", strings.NewReader(body))
	req.Header.Set("X-Gateway-Signature", "bogus")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookAcknowledgesUnrecognizedEvent(t *testing.T) {
	r := newWebhookRouter("whsec")

	body := `{"event":"payout.settled","data":{}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/payments/webhook", strings.NewReader(body))
	req.Header.Set("X-Gateway-Signature", helpers.WebhookSignature("whsec", []byte(body)))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ignored")
}

func TestWebhookRejectsMalformedPayload(t *testing.T) {
	r := newWebhookRouter("whsec")

	body := `not json`
	req := httptest.NewRequest(http.MethodPost, "/v1/payments/webhook", strings.NewReader(body))
	req.Header.Set("X-Gateway-Signature", helpers.WebhookSignature("whsec", []byte(body)))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
