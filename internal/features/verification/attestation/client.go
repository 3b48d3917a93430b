package attestation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"proof-contrib-backend/internal/common/logger"
)

// ErrCallbackRejected is returned when the attestation service refuses
// the callback URL during session init. The caller retries without one.
var ErrCallbackRejected = errors.New("attestation: callback url rejected")

// InitRequest starts one verification for a template.
type InitRequest struct {
	TemplateID  string `json:"templateId"`
	SessionID   string `json:"sessionId"`
	CallbackURL string `json:"callbackUrl,omitempty"`
}

// InitResult carries the opaque URL the user opens (QR code) and the
// attestation-side session handle the direct channel awaits on.
type InitResult struct {
	RequestURL    string `json:"requestUrl"`
	AttestationID string `json:"attestationId"`
}

// Client talks to the attestation service over HTTP. Its diagnostic
// output goes through an injectable writer so the recovery side-channel
// can tap it without touching the primary flow.
type Client struct {
	baseURL    string
	appID      string
	appSecret  string
	httpClient *http.Client
	diag       zerolog.Logger

	// pollEvery is the direct-channel result poll cadence.
	pollEvery time.Duration
}

func NewClient(baseURL, appID, appSecret string, diagOut io.Writer) *Client {
	if diagOut == nil {
		diagOut = io.Discard
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		appID:      appID,
		appSecret:  appSecret,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		diag:       logger.To(diagOut, "attestation"),
		pollEvery:  2 * time.Second,
	}
}

// InitSession initializes a verification session for a template and
// returns the request URL. A malformed callback URL makes the service
// reject the init; that surfaces as ErrCallbackRejected so the channel
// selection can fall back to direct.
func (c *Client) InitSession(ctx context.Context, req InitRequest) (*InitResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/sessions/init", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("attestation init: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("attestation init read: %w", err)
	}
	c.diag.Debug().Int("status", resp.StatusCode).RawJSON("body", sanitizeJSON(raw)).Msg("init response")

	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity {
		if req.CallbackURL != "" {
			return nil, fmt.Errorf("%w: http %d", ErrCallbackRejected, resp.StatusCode)
		}
		return nil, fmt.Errorf("attestation init rejected: http %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("attestation init: http %d", resp.StatusCode)
	}

	var out InitResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("attestation init decode: %w", err)
	}
	if out.RequestURL == "" {
		return nil, fmt.Errorf("attestation init: empty request url")
	}
	return &out, nil
}

// resultResponse is the direct-channel poll answer.
type resultResponse struct {
	Status string          `json:"status"`
	Proof  json.RawMessage `json:"proof"`
	Error  string          `json:"error"`
}

// AwaitResult blocks until the attestation service resolves the session
// on the direct channel. The resolution may be a structured proof or, in
// malformed cases, a bare string; both are returned as-is for the
// normalizer to sort out. Every response body is echoed to the
// diagnostic stream, resolved or not.
func (c *Client) AwaitResult(ctx context.Context, attestationID string) (json.RawMessage, error) {
	url := fmt.Sprintf("%s/v1/sessions/%s/result", c.baseURL, attestationID)

	ticker := time.NewTicker(c.pollEvery)
	defer ticker.Stop()

	for {
		res, done, err := c.fetchResult(ctx, url)
		if err != nil {
			return nil, err
		}
		if done {
			return res, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) fetchResult(ctx context.Context, url string) (json.RawMessage, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("attestation result: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, false, fmt.Errorf("attestation result read: %w", err)
	}
	c.diag.Debug().Int("status", resp.StatusCode).RawJSON("body", sanitizeJSON(raw)).Msg("result response")

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusAccepted {
		return nil, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("attestation result: http %d", resp.StatusCode)
	}

	var out resultResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, false, fmt.Errorf("attestation result decode: %w", err)
	}
	switch out.Status {
	case "completed":
		return out.Proof, true, nil
	case "failed":
		return nil, false, fmt.Errorf("attestation: %s", out.Error)
	default:
		return nil, false, nil
	}
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-App-Id", c.appID)
	req.Header.Set("Authorization", "Bearer "+c.appSecret)
}

// sanitizeJSON keeps RawJSON from panicking on non-JSON bodies.
func sanitizeJSON(raw []byte) []byte {
	if json.Valid(raw) {
		return raw
	}
	quoted, _ := json.Marshal(string(raw))
	return quoted
}
