package recovery

import (
	"encoding/base64"
	"encoding/json"
	"net/url"
	"strings"

	apperrors "proof-contrib-backend/internal/common/errors"
	providermodels "proof-contrib-backend/internal/features/provider/models"
	"proof-contrib-backend/internal/features/verification/models"
)

// SchemaSource is the registry surface schema inference needs.
type SchemaSource interface {
	All() []*providermodels.ProviderSchema
	SchemaForTemplate(templateID string) (*providermodels.ProviderSchema, bool)
}

const (
	fragmentProofKey = "reclaim_proof"
	fragmentErrorKey = "reclaim_error"
)

// FragmentResult is the decoded outcome of a redirect-recovery fragment.
type FragmentResult struct {
	Proof       models.ProofEnvelope
	ErrorReason string
}

// ParseFragment decodes a URL fragment planted by a mobile browser that
// completed verification via full-page redirect: #reclaim_proof=<base64>
// on success, #reclaim_error=<reason> on failure. The caller strips the
// fragment from the URL after one consumption.
func ParseFragment(fragment string) (*FragmentResult, error) {
	fragment = strings.TrimPrefix(strings.TrimSpace(fragment), "#")
	if fragment == "" {
		return nil, apperrors.NewValidationError("fragment", "empty")
	}

	// Not url.ParseQuery: that would fold "+" into spaces, and the proof
	// payload may use the standard base64 alphabet verbatim.
	var encoded string
	for _, part := range strings.Split(fragment, "&") {
		key, val, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		switch key {
		case fragmentErrorKey:
			reason, err := url.QueryUnescape(val)
			if err != nil {
				reason = val
			}
			if reason != "" {
				return &FragmentResult{ErrorReason: reason}, nil
			}
		case fragmentProofKey:
			if unescaped, err := url.PathUnescape(val); err == nil {
				val = unescaped
			}
			encoded = val
		}
	}
	if encoded == "" {
		return nil, apperrors.NewValidationError("fragment", "no recovery payload")
	}

	raw, err := decodeBase64(encoded)
	if err != nil {
		return nil, apperrors.NewValidationError("fragment", "invalid base64 payload")
	}
	if !json.Valid(raw) {
		return nil, apperrors.NewProofMalformedError("redirect-recovery")
	}
	return &FragmentResult{Proof: raw}, nil
}

// decodeBase64 tolerates both standard and URL-safe alphabets, padded or
// not; mobile browsers mangle padding inconsistently.
func decodeBase64(s string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.RawStdEncoding,
		base64.URLEncoding, base64.RawURLEncoding,
	} {
		if raw, err := enc.DecodeString(s); err == nil {
			return raw, nil
		}
	}
	return base64.StdEncoding.DecodeString(s)
}

// InferSchema reconstructs provider identity from hints inside a
// recovered proof. Redirect recovery is decoupled from any live session
// (the page reloaded), so nothing but the proof itself identifies the
// provider: claim provider name matching first, then a template id match
// against the registry.
func InferSchema(proof models.ProofEnvelope, reg SchemaSource) (*providermodels.ProviderSchema, bool) {
	var claim struct {
		Provider  string `json:"provider"`
		ClaimData struct {
			Provider string `json:"provider"`
		} `json:"claimData"`
		TemplateID string `json:"templateId"`
	}
	var claims []json.RawMessage
	first := proof
	if err := json.Unmarshal(proof, &claims); err == nil && len(claims) > 0 {
		first = claims[0]
	}
	_ = json.Unmarshal(first, &claim)

	for _, hint := range []string{claim.Provider, claim.ClaimData.Provider} {
		if hint == "" {
			continue
		}
		lower := strings.ToLower(hint)
		for _, s := range reg.All() {
			if strings.Contains(lower, s.ProviderID) {
				return s, true
			}
		}
	}

	if claim.TemplateID != "" {
		if s, ok := reg.SchemaForTemplate(claim.TemplateID); ok {
			return s, true
		}
	}

	// Last resort: any registered template id appearing in the raw text.
	text := string(proof)
	for _, s := range reg.All() {
		if strings.Contains(text, s.VerificationTemplateID) {
			return s, true
		}
	}
	return nil, false
}
