package gateway_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crmstack/billing/pkg/gateway"
)

func TestVerifyPaymentSignature(t *testing.T) {
	t.Parallel()

	const secret = "test-key-secret"

	t.Run("accepts valid signature", func(t *testing.T) {
		t.Parallel()
		sig := gateway.SignPayment("order_Abc123", "pay_Xyz789", secret)
		assert.True(t, gateway.VerifyPaymentSignature("order_Abc123", "pay_Xyz789", sig, secret))
	})

	t.Run("rejects signature for different payment", func(t *testing.T) {
		t.Parallel()
		sig := gateway.SignPayment("order_Abc123", "pay_Xyz789", secret)
		assert.False(t, gateway.VerifyPaymentSignature("order_Abc123", "pay_Other", sig, secret))
	})

	t.Run("rejects signature made with different secret", func(t *testing.T) {
		t.Parallel()
		sig := gateway.SignPayment("order_Abc123", "pay_Xyz789", "other-secret")
		assert.False(t, gateway.VerifyPaymentSignature("order_Abc123", "pay_Xyz789", sig, secret))
	})

	t.Run("rejects empty inputs", func(t *testing.T) {
		t.Parallel()
		assert.False(t, gateway.VerifyPaymentSignature("", "pay_Xyz789", "sig", secret))
		assert.False(t, gateway.VerifyPaymentSignature("order_Abc123", "", "sig", secret))
		assert.False(t, gateway.VerifyPaymentSignature("order_Abc123", "pay_Xyz789", "", secret))
		assert.False(t, gateway.VerifyPaymentSignature("order_Abc123", "pay_Xyz789", "sig", ""))
	})
}

func TestVerifyWebhookSignature(t *testing.T) {
	t.Parallel()

	const secret = "webhook-secret"

	t.Run("accepts signature over raw body", func(t *testing.T) {
		t.Parallel()
		body := []byte(`{"event":"subscription.activated","payload":{}}`)
		sig := gateway.SignWebhookPayload(body, secret)
		assert.True(t, gateway.VerifyWebhookSignature(body, sig, secret))
	})

	t.Run("rejects tampered body", func(t *testing.T) {
		t.Parallel()
		body := []byte(`{"event":"subscription.activated"}`)
		sig := gateway.SignWebhookPayload(body, secret)
		tampered := []byte(`{"event":"subscription.cancelled"}`)
		assert.False(t, gateway.VerifyWebhookSignature(tampered, sig, secret))
	})

	t.Run("re-serialized body no longer verifies", func(t *testing.T) {
		t.Parallel()
		// Whitespace differences after a decode/encode round trip change the
		// byte sequence, so verification has to run on the untouched stream.
		original := []byte(`{"event": "subscription.charged",  "payload": {"n": 1}}`)
		sig := gateway.SignWebhookPayload(original, secret)
		require.True(t, gateway.VerifyWebhookSignature(original, sig, secret))

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(original, &decoded))
		reserialized, err := json.Marshal(decoded)
		require.NoError(t, err)

		require.NotEqual(t, original, reserialized)
		assert.False(t, gateway.VerifyWebhookSignature(reserialized, sig, secret))
	})

	t.Run("rejects missing secret or signature", func(t *testing.T) {
		t.Parallel()
		body := []byte(`{}`)
		assert.False(t, gateway.VerifyWebhookSignature(body, "", secret))
		assert.False(t, gateway.VerifyWebhookSignature(body, "sig", ""))
		assert.False(t, gateway.VerifyWebhookSignature(nil, "sig", secret))
	})
}

func TestNewSelectsProvider(t *testing.T) {
	t.Parallel()

	t.Run("unknown provider", func(t *testing.T) {
		t.Parallel()
		_, err := gateway.New(gateway.Config{Provider: "stripe"})
		assert.ErrorIs(t, err, gateway.ErrUnknownProvider)
	})

	t.Run("missing credentials", func(t *testing.T) {
		t.Parallel()
		_, err := gateway.New(gateway.Config{Provider: "razorpay"})
		assert.ErrorIs(t, err, gateway.ErrGatewayUnavailable)
	})

	t.Run("razorpay with credentials", func(t *testing.T) {
		t.Parallel()
		client, err := gateway.New(gateway.Config{
			Provider:  "razorpay",
			KeyID:     "rzp_test_key",
			KeySecret: "rzp_test_secret",
		})
		require.NoError(t, err)
		assert.NotNil(t, client)
	})
}
