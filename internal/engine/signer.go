package engine

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Headers attached to every outbound delivery. Subscription-configured static
// headers may not override these.
const (
	SignatureHeader = "X-Webhook-Signature"
	EventHeader     = "X-Webhook-Event"
	DeliveryHeader  = "X-Webhook-Delivery"
	AttemptHeader   = "X-Webhook-Attempt"
)

// Sign computes the hex HMAC-SHA256 signature of body under the subscription
// secret. Receivers recompute it over the raw request body to verify
// authenticity.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a received signature in constant time.
func VerifySignature(secret string, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, body)), []byte(signature))
}
