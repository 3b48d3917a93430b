package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status of a verification session.
type Status string

const (
	StatusIdle          Status = "idle"
	StatusRequesting    Status = "requesting"
	StatusAwaitingProof Status = "awaiting_proof"
	StatusExtracting    Status = "extracting"
	StatusSubmitting    Status = "submitting"
	StatusSucceeded     Status = "succeeded"
	StatusFailed        Status = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// DeliveryChannel is the way a proof reaches this backend.
type DeliveryChannel string

const (
	// ChannelDirect blocks on the attestation SDK returning the proof to
	// the initiating call. Used when the relay cannot reach us.
	ChannelDirect DeliveryChannel = "direct"
	// ChannelRelayPolling polls the relay for a proof delivered via the
	// attestation service's out-of-band callback.
	ChannelRelayPolling DeliveryChannel = "relay-polling"
	// ChannelRedirectRecovery is never chosen proactively; it is detected
	// when a page load carries a proof in the URL fragment.
	ChannelRedirectRecovery DeliveryChannel = "redirect-recovery"
)

// VerificationSession is one in-flight attempt to verify one provider for
// one user. Discarded on terminal state; never persisted.
// @Description One in-flight verification attempt
type VerificationSession struct {
	SessionID  string          `json:"session_id"`
	UserID     int64           `json:"-"`
	ProviderID string          `json:"provider_id"`
	Channel    DeliveryChannel `json:"delivery_channel"`
	StartedAt  time.Time       `json:"started_at"`
	Status     Status          `json:"status"`

	// RequestURL is shown to the user, e.g. rendered as a QR code.
	RequestURL string `json:"request_url,omitempty"`

	// Wallet is the optional TON wallet the ledger credits points to.
	Wallet string `json:"-"`

	// TabVisible mirrors the client's page visibility. Drives the
	// deferred-failure policy; updated via the visibility endpoint.
	TabVisible bool `json:"-"`
}

// NewSessionID derives an unguessable session id from user, provider,
// time and a random suffix. Unguessability prevents cross-session proof
// injection on the relay.
func NewSessionID(userID int64, providerID string, now time.Time) string {
	return fmt.Sprintf("%d-%s-%d-%s", userID, providerID, now.UnixMilli(), uuid.NewString())
}
