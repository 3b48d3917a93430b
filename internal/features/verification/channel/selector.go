package channel

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"proof-contrib-backend/internal/features/verification/models"
)

// Selection is the outcome of channel negotiation for one session.
type Selection struct {
	Channel   models.DeliveryChannel
	SessionID string

	// CallbackURL is handed to the attestation service so its companion
	// app can deliver the proof out-of-band. Empty on the direct channel.
	CallbackURL string

	// RelaySessionID keys stored proofs on the relay. Cleared when the
	// selection falls back to direct so nobody polls a channel no proof
	// will ever arrive through.
	RelaySessionID string
}

// Selector decides how a proof will reach this backend, based on whether
// the attestation service's companion app can reach our public origin.
type Selector struct {
	publicBaseURL string
	callbackPath  string
}

func NewSelector(publicBaseURL string) *Selector {
	return &Selector{
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		callbackPath:  "/api/v1/relay/callback",
	}
}

// Select builds the session id and picks the delivery channel.
// Redirect-recovery is never selected here; it is detected reactively
// from the URL fragment on page load.
func (s *Selector) Select(userID int64, providerID string, now time.Time) Selection {
	sessionID := models.NewSessionID(userID, providerID, now)

	if !s.PubliclyReachable() {
		return Selection{Channel: models.ChannelDirect, SessionID: sessionID}
	}

	return Selection{
		Channel:        models.ChannelRelayPolling,
		SessionID:      sessionID,
		RelaySessionID: sessionID,
		CallbackURL:    fmt.Sprintf("%s%s?session=%s", s.publicBaseURL, s.callbackPath, url.QueryEscape(sessionID)),
	}
}

// FallbackToDirect rewrites a selection after the attestation service
// rejected the callback URL. The relay key is cleared with it.
func FallbackToDirect(sel Selection) Selection {
	sel.Channel = models.ChannelDirect
	sel.CallbackURL = ""
	sel.RelaySessionID = ""
	return sel
}

// PubliclyReachable reports whether the configured origin is reachable
// from outside. Loopback and private addresses mean local development:
// the companion app cannot call us back, so the direct channel is used.
func (s *Selector) PubliclyReachable() bool {
	u, err := url.Parse(s.publicBaseURL)
	if err != nil || u.Host == "" {
		return false
	}
	host := u.Hostname()
	if host == "localhost" || strings.HasSuffix(host, ".local") {
		return false
	}
	if ip := net.ParseIP(host); ip != nil {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() || ip.IsLinkLocalUnicast() {
			return false
		}
	}
	return true
}
