package helpers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// RequestSigner builds the signed header set for outbound payment-gateway
// calls: a SHA-256 digest of the body and an HMAC over the canonical
// client/request/path/digest components.
type RequestSigner struct {
	ClientID    string
	SecretKey   string
	RequestID   string
	RequestPath string
}

func NewRequestSigner(clientID, secretKey, requestPath string) *RequestSigner {
	return &RequestSigner{
		ClientID:    clientID,
		SecretKey:   secretKey,
		RequestID:   uuid.New().String(),
		RequestPath: requestPath,
	}
}

func (s *RequestSigner) Digest(jsonBody string) string {
	hash := sha256.Sum256([]byte(jsonBody))
	return base64.StdEncoding.EncodeToString(hash[:])
}

func (s *RequestSigner) Signature(digest, requestTimestamp string) string {
	componentSignature := "Client-Id:" + s.ClientID + "\n" +
		"Request-Id:" + s.RequestID + "\n" +
		"Request-Timestamp:" + requestTimestamp + "\n" +
		"Request-Target:" + s.RequestPath + "\n" +
		"Digest:" + digest

	mac := hmac.New(sha256.New, []byte(s.SecretKey))
	mac.Write([]byte(componentSignature))
	return "HMACSHA256=" + base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (s *RequestSigner) Headers(jsonBody string) map[string]string {
	digest := s.Digest(jsonBody)
	requestTimestamp := time.Now().UTC().Format("2006-01-02T15:04:05Z")

	return map[string]string{
		"Client-Id":         s.ClientID,
		"Request-Id":        s.RequestID,
		"Request-Timestamp": requestTimestamp,
		"Signature":         s.Signature(digest, requestTimestamp),
		"Content-Type":      "application/json",
		"Digest":            digest,
	}
}

// WebhookSignature computes the hex HMAC-SHA256 of a raw webhook payload. The
// gateway signs with the shared webhook secret; we verify before parsing.
func WebhookSignature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyWebhookSignature compares a presented signature against the expected
// one in constant time.
func VerifyWebhookSignature(secret string, body []byte, signature string) bool {
	expected := WebhookSignature(secret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
