package models

import "time"

// NormalizedRecord maps a provider's expected field names to extracted
// values: []map[string]any for list fields, scalars otherwise. An empty
// record is an extraction failure, never a valid empty result.
type NormalizedRecord map[string]interface{}

// Empty reports whether no field carries a usable value.
func (r NormalizedRecord) Empty() bool {
	for _, v := range r {
		switch vv := v.(type) {
		case nil:
			continue
		case string:
			if vv != "" {
				return false
			}
		case []map[string]interface{}:
			if len(vv) > 0 {
				return false
			}
		case []interface{}:
			if len(vv) > 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// List returns the named field as a list of items, nil when absent or
// scalar-shaped.
func (r NormalizedRecord) List(name string) []map[string]interface{} {
	v, ok := r[name]
	if !ok {
		return nil
	}
	items, _ := v.([]map[string]interface{})
	return items
}

// ContributionRequest is what gets submitted to the Ledger API.
// ProofIdentifier is deterministic for a given envelope so the ledger can
// deduplicate repeated submissions of the same proof.
// @Description Normalized contribution submitted to the ledger
type ContributionRequest struct {
	ProviderID       string           `json:"providerId"`
	NormalizedRecord NormalizedRecord `json:"normalizedRecord"`
	ProofIdentifier  string           `json:"proofIdentifier"`
	Wallet           string           `json:"wallet,omitempty"`
	SubmittedAt      time.Time        `json:"submittedAt"`
}

// ContributionResult is the ledger's answer to an accepted contribution.
// @Description Ledger response for an accepted contribution
type ContributionResult struct {
	Accepted      bool    `json:"accepted"`
	PointsAwarded float64 `json:"points_awarded"`
}

// SessionView is the status payload handed back to the UI layer.
// @Description Public view of the current verification session
type SessionView struct {
	SessionID  string          `json:"session_id"`
	ProviderID string          `json:"provider_id"`
	Channel    DeliveryChannel `json:"delivery_channel"`
	Status     Status          `json:"status"`
	RequestURL string          `json:"request_url,omitempty"`
	StartedAt  time.Time       `json:"started_at"`

	Points        float64    `json:"points_awarded,omitempty"`
	ErrorCode     string     `json:"error_code,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	Retryable     bool       `json:"retryable,omitempty"`
	RefreshHint   bool       `json:"refresh_hint,omitempty"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
	FieldsMatched []string   `json:"fields_matched,omitempty"`
}
