package models

import "encoding/json"

// ProofEnvelope is the raw, untrusted payload returned by the attestation
// service. It has no fixed schema: a single claim object, an array of
// claims, a JSON string wrapping either, an object whose keys are
// themselves JSON-encoded strings, or a bare diagnostic string.
type ProofEnvelope = json.RawMessage

// Claim is the best-effort structured reading of one proof object, per
// the attestor-core claim shape. Fields the payload does not carry stay
// zero; the normalizer falls back to the untyped scan.
type Claim struct {
	Identifier string    `json:"identifier"`
	Provider   string    `json:"provider"`
	Owner      string    `json:"owner"`
	Epoch      int       `json:"epoch"`
	ClaimData  ClaimData `json:"claimData"`

	// Alternate conventional locations for the same extracted data.
	ExtractedParameterValues map[string]json.RawMessage `json:"extractedParameterValues"`
	PublicData               map[string]json.RawMessage `json:"publicData"`
}

// ClaimData is the signed portion of a claim. Context is a stringified
// JSON object carrying extractedParameters.
type ClaimData struct {
	Provider   string `json:"provider"`
	Parameters string `json:"parameters"`
	Context    string `json:"context"`
	Identifier string `json:"identifier"`
	Owner      string `json:"owner"`
	Timestamp  int64  `json:"timestampS"`
}

// ClaimContext is the parsed form of ClaimData.Context.
type ClaimContext struct {
	ExtractedParameters map[string]string `json:"extractedParameters"`
	ProviderHash        string            `json:"providerHash"`
	ContextMessage      string            `json:"contextMessage"`
}
