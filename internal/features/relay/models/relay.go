package models

import "encoding/json"

// ProofResponse is what the polling client sees. Any non-success answer
// means "not yet", never an error.
// @Description Relay answer for a stored proof lookup
type ProofResponse struct {
	Success bool            `json:"success"`
	Proof   json.RawMessage `json:"proof,omitempty"`
}

// CallbackResponse acknowledges the attestation service's out-of-band
// callback.
// @Description Relay callback acknowledgement
type CallbackResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
