package models

import "regexp"

// FieldKind describes the shape a provider field is expected to take.
type FieldKind int

const (
	// FieldScalar is a single value (username, follower count).
	FieldScalar FieldKind = iota
	// FieldList is an array of item records (orders, rides).
	FieldList
)

// FieldSpec describes one semantic field a provider promises to expose.
// @Description One expected field of a provider schema
type FieldSpec struct {
	// Name is the canonical field name in the normalized record.
	Name string
	Kind FieldKind
	// Aliases are alternate keys the attestation payload is known to use
	// for the same data. Checked before recursing during deep search.
	Aliases []string
	// ItemKeys are the keys an element must carry to count as an item of
	// this list field. At least MinItemKeys of them must be present.
	ItemKeys    []string
	MinItemKeys int
	// FragmentPattern pulls individual item-shaped substrings out of
	// strings that embed partially escaped JSON. Last-resort extraction.
	FragmentPattern *regexp.Regexp
	// Required marks the field whose absence after all extraction steps
	// makes the whole record an extraction failure.
	Required bool
}

// ProviderSchema identifies a supported external account type.
// Loaded once at process start, never mutated.
// @Description Static schema of one supported external provider
type ProviderSchema struct {
	ProviderID string `json:"provider_id" example:"zomato"`
	// VerificationTemplateID is the opaque template id handed to the
	// attestation service when initializing a verification.
	VerificationTemplateID string  `json:"verification_template_id"`
	DisplayName            string  `json:"display_name" example:"Zomato"`
	RewardWeight           float64 `json:"reward_weight" example:"1.5"`

	Fields []FieldSpec `json:"-"`
}

// RequiredField returns the field whose presence decides extraction
// success, or the first field when none is explicitly marked.
func (s *ProviderSchema) RequiredField() *FieldSpec {
	for i := range s.Fields {
		if s.Fields[i].Required {
			return &s.Fields[i]
		}
	}
	if len(s.Fields) > 0 {
		return &s.Fields[0]
	}
	return nil
}

// FieldByName looks a field up by canonical name.
func (s *ProviderSchema) FieldByName(name string) *FieldSpec {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return &s.Fields[i]
		}
	}
	return nil
}
