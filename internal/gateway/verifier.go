package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gateward/gateward/internal/session"
)

// Verifier confirms a verification token matches a claimed descriptor.
// Implementations must fail closed: any doubt, transport failure, or
// non-success answer is false.
type Verifier interface {
	Verify(ctx context.Context, verification string, desc session.Descriptor) bool
}

// VerifierFunc adapts a function into a Verifier.
type VerifierFunc func(ctx context.Context, verification string, desc session.Descriptor) bool

func (f VerifierFunc) Verify(ctx context.Context, verification string, desc session.Descriptor) bool {
	return f(ctx, verification, desc)
}

// HTTPVerifier calls a verification service over HTTP. Anything but a
// clean 200 - including timeouts and connection errors - is a deny.
type HTTPVerifier struct {
	URL    string
	Client *http.Client
}

// NewHTTPVerifier verifies against the given verify endpoint URL.
func NewHTTPVerifier(verifyURL string) *HTTPVerifier {
	return &HTTPVerifier{
		URL:    verifyURL,
		Client: &http.Client{Timeout: 5 * time.Second},
	}
}

type verifyPayload struct {
	Verification string             `json:"verification"`
	UserData     session.Descriptor `json:"userData"`
}

func (v *HTTPVerifier) Verify(ctx context.Context, verification string, desc session.Descriptor) bool {
	body, err := json.Marshal(verifyPayload{Verification: verification, UserData: desc})
	if err != nil {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.URL, bytes.NewReader(body))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	client := v.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}
