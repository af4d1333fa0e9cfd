package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignPayment computes the checkout payment signature: HMAC-SHA256 over
// "<orderRef>|<paymentRef>" keyed by the provider key secret, hex encoded.
func SignPayment(orderRef, paymentRef, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(orderRef + "|" + paymentRef))
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyPaymentSignature validates the signature the client received from the
// provider's checkout widget. Constant-time comparison prevents timing-based
// signature recovery.
func VerifyPaymentSignature(orderRef, paymentRef, signature, secret string) bool {
	if orderRef == "" || paymentRef == "" || signature == "" || secret == "" {
		return false
	}
	expected := SignPayment(orderRef, paymentRef, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// SignWebhookPayload computes the webhook signature: HMAC-SHA256 over the raw
// request body keyed by the webhook secret, hex encoded.
func SignWebhookPayload(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyWebhookSignature validates a webhook delivery against the raw,
// unparsed body bytes. It must run before the body is decoded: any
// re-serialization changes the byte sequence and invalidates the signature.
func VerifyWebhookSignature(rawBody []byte, signature, secret string) bool {
	if len(rawBody) == 0 || signature == "" || secret == "" {
		return false
	}
	expected := SignWebhookPayload(rawBody, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}
