// Package gateway wraps the external payment gateway behind a provider-agnostic
// capability set: order creation, recurring subscription management, payment
// reads and cryptographic signature verification.
//
// The concrete provider is selected by configuration:
//
//	cfg := gateway.Config{Provider: "razorpay", KeyID: "...", KeySecret: "..."}
//	client, err := gateway.New(cfg)
//	if err != nil {
//	    // credentials missing or provider unknown
//	}
//
// All operations are network calls against the provider; no local state is
// touched here. Signature helpers operate on raw bytes and must be applied
// before any request body is parsed, since re-serialization changes the byte
// sequence the signature covers.
package gateway
