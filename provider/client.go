// Package provider implements the challenge delegate against a hosted OTP
// verification API. The provider owns code generation, delivery, and code
// matching; this client only moves handles and codes across the wire.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nimbuswallet/walletauth"
)

const defaultTimeout = 5 * time.Second

// Client talks to the verification API over HTTPS. It implements
// [walletauth.ChallengeDelegate].
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient returns a Client for the given API base URL and key. Uses a 5s
// timeout on the outbound HTTP client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

func channelFor(medium walletauth.Medium) string {
	if medium == walletauth.MediumEmail {
		return "email"
	}
	return "sms"
}

type challengeResponse struct {
	SID     string `json:"sid"`
	Channel string `json:"channel"`
	Status  string `json:"status"`
	Code    string `json:"error_code"`
}

// SendChallenge asks the provider to deliver a one-time code to the
// destination. The returned channel is the one the provider actually used,
// which may differ from the requested one when it falls back (for example
// sms to voice for landlines).
func (c *Client) SendChallenge(ctx context.Context, medium walletauth.Medium, destination string) (walletauth.Challenge, error) {
	payload, err := json.Marshal(map[string]string{
		"to":      destination,
		"channel": channelFor(medium),
	})
	if err != nil {
		return walletauth.Challenge{}, fmt.Errorf("provider: encoding request: %w", err)
	}

	var result challengeResponse
	status, err := c.do(ctx, http.MethodPost, "/v1/challenges", payload, &result)
	if err != nil {
		return walletauth.Challenge{}, fmt.Errorf("%w: %v", walletauth.ErrProviderUnavailable, err)
	}
	switch {
	case status >= 500 || status == http.StatusTooManyRequests:
		return walletauth.Challenge{}, fmt.Errorf("%w: provider returned %d (%s)", walletauth.ErrProviderUnavailable, status, result.Code)
	case status >= 400:
		return walletauth.Challenge{}, fmt.Errorf("provider rejected challenge: %d (%s)", status, result.Code)
	}
	return walletauth.Challenge{Handle: result.SID, Channel: result.Channel}, nil
}

type checkResponse struct {
	Status   string `json:"status"`
	EntityID string `json:"entity_id"`
	To       string `json:"to"`
	Code     string `json:"error_code"`
}

// VerifyChallenge submits the code for an outstanding challenge handle.
// A handle the provider no longer knows reads as an expired challenge.
func (c *Client) VerifyChallenge(ctx context.Context, handle, code string) (walletauth.VerifiedIdentity, error) {
	payload, err := json.Marshal(map[string]string{"code": code})
	if err != nil {
		return walletauth.VerifiedIdentity{}, fmt.Errorf("provider: encoding request: %w", err)
	}

	var result checkResponse
	status, err := c.do(ctx, http.MethodPost, "/v1/challenges/"+handle+"/check", payload, &result)
	if err != nil {
		return walletauth.VerifiedIdentity{}, fmt.Errorf("%w: %v", walletauth.ErrProviderUnavailable, err)
	}
	switch {
	case status == http.StatusNotFound:
		return walletauth.VerifiedIdentity{}, walletauth.ErrChallengeExpired
	case status >= 500 || status == http.StatusTooManyRequests:
		return walletauth.VerifiedIdentity{}, fmt.Errorf("%w: provider returned %d (%s)", walletauth.ErrProviderUnavailable, status, result.Code)
	case status >= 400:
		return walletauth.VerifiedIdentity{}, fmt.Errorf("provider rejected check: %d (%s)", status, result.Code)
	}

	switch result.Status {
	case "approved":
		return walletauth.VerifiedIdentity{ProviderID: result.EntityID, Destination: result.To}, nil
	case "expired", "canceled":
		return walletauth.VerifiedIdentity{}, walletauth.ErrChallengeExpired
	default:
		return walletauth.VerifiedIdentity{}, walletauth.ErrInvalidCode
	}
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && resp.StatusCode < 400 {
		return resp.StatusCode, fmt.Errorf("decoding response: %w", err)
	}
	return resp.StatusCode, nil
}
