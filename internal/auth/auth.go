// Package auth provides optional external authentication for player
// connections.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var (
	// ErrInvalidToken indicates the token is definitively invalid.
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrUnavailable indicates the auth service is unreachable or unavailable.
	// Callers may choose to fail open (allow) or fail closed (reject).
	ErrUnavailable = errors.New("auth: unavailable")
)

// Identity represents an authenticated player.
type Identity struct {
	PlayerID    string `json:"player_id"`
	DisplayName string `json:"display_name"`
}

// Validator validates authentication tokens.
type Validator interface {
	// Validate checks if a token is valid and returns the player identity.
	// Returns:
	//   - (*Identity, nil) if token is valid
	//   - (nil, ErrInvalidToken) if token is definitively invalid
	//   - (nil, ErrUnavailable) if auth service is unavailable
	//   - (nil, nil) if auth is disabled (NoopValidator only)
	Validate(ctx context.Context, token string) (*Identity, error)
}

// defaultTimeout bounds one verification round trip. Connection handshakes
// block on it, so it stays short.
const defaultTimeout = 500 * time.Millisecond

// maxResponseBytes caps how much of a verification response is read.
const maxResponseBytes = 1 << 20

// HTTPValidator validates tokens against an external HTTP endpoint.
type HTTPValidator struct {
	url         string
	adminSecret string
	client      *http.Client
}

// HTTPOption adjusts an HTTPValidator.
type HTTPOption func(*HTTPValidator)

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) HTTPOption {
	return func(v *HTTPValidator) { v.client.Timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client entirely.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(v *HTTPValidator) { v.client = c }
}

// NewHTTPValidator creates a validator posting tokens to url. adminSecret,
// when non-empty, is sent as the X-Admin-Secret header.
func NewHTTPValidator(url, adminSecret string, opts ...HTTPOption) *HTTPValidator {
	v := &HTTPValidator{
		url:         url,
		adminSecret: adminSecret,
		client:      &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

type verifyPayload struct {
	Token string `json:"token"`
}

type verifyResult struct {
	Valid       bool   `json:"valid"`
	PlayerID    string `json:"player_id,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Error       string `json:"error,omitempty"`
}

func (v *HTTPValidator) Validate(ctx context.Context, token string) (*Identity, error) {
	// An empty token can never verify; skip the round trip.
	if token == "" {
		return nil, ErrInvalidToken
	}

	body, err := json.Marshal(verifyPayload{Token: token})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if v.adminSecret != "" {
		req.Header.Set("X-Admin-Secret", v.adminSecret)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		// Network errors and timeouts both surface here.
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return nil, err
	}

	var result verifyResult
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decode error: %v", ErrUnavailable, err)
	}
	if !result.Valid {
		return nil, ErrInvalidToken
	}
	return &Identity{PlayerID: result.PlayerID, DisplayName: result.DisplayName}, nil
}

// classifyStatus maps a verification response status onto the error
// taxonomy: a definitive rejection stays ErrInvalidToken, everything else
// that is not a success counts as unavailable.
func classifyStatus(code int) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrInvalidToken
	default:
		return fmt.Errorf("%w: status %d", ErrUnavailable, code)
	}
}

// NoopValidator allows all connections without validation (dev mode).
type NoopValidator struct{}

// NewNoopValidator creates a validator that allows all connections.
func NewNoopValidator() *NoopValidator {
	return &NoopValidator{}
}

func (v *NoopValidator) Validate(_ context.Context, _ string) (*Identity, error) {
	// No token check, connections identify by display name only.
	return nil, nil
}
