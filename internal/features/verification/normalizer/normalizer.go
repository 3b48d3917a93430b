package normalizer

import (
	"crypto/sha256"
	"encoding/json"
	"sort"
	"strings"

	"github.com/mr-tron/base58"

	apperrors "proof-contrib-backend/internal/common/errors"
	providermodels "proof-contrib-backend/internal/features/provider/models"
	"proof-contrib-backend/internal/features/verification/models"
)

// maxDepth bounds the deep search so adversarial or self-referential
// looking envelopes always terminate.
const maxDepth = 15

// fragmentMinLen is the string length below which the regex fallback is
// not attempted; short strings that fail to parse carry no item data.
const fragmentMinLen = 100

// Normalizer extracts a provider's expected fields out of an arbitrarily
// shaped proof envelope. Stateless; safe for concurrent use.
type Normalizer struct{}

func New() *Normalizer {
	return &Normalizer{}
}

// Normalize locates the schema's expected fields inside the envelope.
// The cheap structured paths are tried first, the depth-bounded untyped
// scan only when the required field is still missing. Deterministic for
// a given envelope: map traversal is ordered by sorted keys throughout.
func (n *Normalizer) Normalize(envelope models.ProofEnvelope, schema *providermodels.ProviderSchema) (models.NormalizedRecord, error) {
	acc := newAccumulator(schema)

	for _, claim := range decodeClaims(envelope) {
		// Primary path: claimData.context -> extractedParameters.
		if ctx := parseClaimContext(claim.ClaimData.Context); ctx != nil {
			acc.mergeStringMap(ctx.ExtractedParameters)
		}
		// Alternate conventional locations for the same data.
		acc.mergeRawMap(claim.ExtractedParameterValues)
		acc.mergeRawMap(claim.PublicData)
	}

	if req := schema.RequiredField(); req != nil && !acc.populated(req.Name) {
		var root interface{}
		if err := json.Unmarshal(envelope, &root); err == nil {
			acc.deepSearch(root, 0)
		} else if s := decodeJSONString(envelope); s != "" {
			var inner interface{}
			if err := json.Unmarshal([]byte(s), &inner); err == nil {
				acc.deepSearch(inner, 0)
			} else {
				acc.scanString(s, 0)
			}
		}
	}

	record := acc.record()
	if record.Empty() {
		return nil, apperrors.NewProofMalformedError(schema.ProviderID)
	}
	return record, nil
}

// ProofIdentifier returns the identifier embedded in the envelope, or a
// synthesized fallback derived from the envelope bytes. Deterministic
// either way, so the ledger can deduplicate resubmissions.
func (n *Normalizer) ProofIdentifier(envelope models.ProofEnvelope) string {
	for _, claim := range decodeClaims(envelope) {
		if claim.Identifier != "" {
			return claim.Identifier
		}
		if claim.ClaimData.Identifier != "" {
			return claim.ClaimData.Identifier
		}
	}
	if id := searchIdentifier(decodeGeneric(envelope), 0); id != "" {
		return id
	}
	sum := sha256.Sum256(envelope)
	return "synth-" + base58.Encode(sum[:])
}

// decodeClaims reads zero or more structured claims out of the envelope,
// tolerating a single object, an array, or a JSON string wrapping either.
func decodeClaims(envelope models.ProofEnvelope) []models.Claim {
	var one models.Claim
	if err := json.Unmarshal(envelope, &one); err == nil && !claimZero(&one) {
		return []models.Claim{one}
	}
	var many []models.Claim
	if err := json.Unmarshal(envelope, &many); err == nil && len(many) > 0 {
		out := many[:0]
		for _, c := range many {
			if !claimZero(&c) {
				out = append(out, c)
			}
		}
		return out
	}
	if s := decodeJSONString(envelope); s != "" {
		return decodeClaims([]byte(s))
	}
	return nil
}

func claimZero(c *models.Claim) bool {
	return c.Identifier == "" && c.ClaimData.Context == "" &&
		len(c.ExtractedParameterValues) == 0 && len(c.PublicData) == 0
}

func decodeJSONString(raw []byte) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeGeneric(raw []byte) interface{} {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}

func parseClaimContext(ctx string) *models.ClaimContext {
	if ctx == "" {
		return nil
	}
	var parsed models.ClaimContext
	if err := json.Unmarshal([]byte(ctx), &parsed); err != nil {
		return nil
	}
	return &parsed
}

// searchIdentifier pre-order scans for an "identifier" string value.
func searchIdentifier(node interface{}, depth int) string {
	if depth > maxDepth {
		return ""
	}
	switch v := node.(type) {
	case map[string]interface{}:
		if id, ok := v["identifier"].(string); ok && id != "" {
			return id
		}
		for _, k := range sortedKeys(v) {
			if id := searchIdentifier(v[k], depth+1); id != "" {
				return id
			}
		}
	case []interface{}:
		for _, el := range v {
			if id := searchIdentifier(el, depth+1); id != "" {
				return id
			}
		}
	case string:
		if inner := decodeGeneric([]byte(v)); inner != nil {
			return searchIdentifier(inner, depth+1)
		}
	}
	return ""
}

// accumulator gathers per-field matches across extraction passes.
//
// List fields concatenate matches from different nested locations; a
// fully parsed array supersedes regex-matched fragments of the same
// data. Singleton fields keep the last match encountered so duplicate
// hits do not multiply (source behavior, kept intentionally).
type accumulator struct {
	schema *providermodels.ProviderSchema

	structured map[string][]map[string]interface{}
	fragments  map[string][]map[string]interface{}
	scalars    map[string]interface{}
}

func newAccumulator(schema *providermodels.ProviderSchema) *accumulator {
	return &accumulator{
		schema:     schema,
		structured: make(map[string][]map[string]interface{}),
		fragments:  make(map[string][]map[string]interface{}),
		scalars:    make(map[string]interface{}),
	}
}

func (a *accumulator) populated(field string) bool {
	return len(a.structured[field]) > 0 || len(a.fragments[field]) > 0 || a.scalars[field] != nil
}

func (a *accumulator) record() models.NormalizedRecord {
	rec := make(models.NormalizedRecord)
	for _, f := range a.schema.Fields {
		if f.Kind == providermodels.FieldList {
			if items := a.structured[f.Name]; len(items) > 0 {
				rec[f.Name] = items
			} else if items := a.fragments[f.Name]; len(items) > 0 {
				rec[f.Name] = items
			}
			continue
		}
		if v := a.scalars[f.Name]; v != nil {
			rec[f.Name] = v
		}
	}
	return rec
}

// mergeStringMap matches extractedParameters-style maps where list
// values arrive as stringified JSON arrays.
func (a *accumulator) mergeStringMap(params map[string]string) {
	for _, key := range sortedStringKeys(params) {
		field := a.fieldForKey(key)
		if field == nil {
			continue
		}
		a.acceptValue(field, params[key], 0)
	}
}

func (a *accumulator) mergeRawMap(params map[string]json.RawMessage) {
	for _, key := range sortedRawKeys(params) {
		field := a.fieldForKey(key)
		if field == nil {
			continue
		}
		a.acceptValue(field, decodeGeneric(params[key]), 0)
	}
}

func (a *accumulator) fieldForKey(key string) *providermodels.FieldSpec {
	for i := range a.schema.Fields {
		f := &a.schema.Fields[i]
		if f.Name == key {
			return f
		}
		for _, alias := range f.Aliases {
			if alias == key {
				return f
			}
		}
	}
	return nil
}

// acceptValue coerces a candidate value into the field, parsing
// stringified JSON and falling back to fragment extraction.
func (a *accumulator) acceptValue(field *providermodels.FieldSpec, value interface{}, depth int) {
	if depth > maxDepth || value == nil {
		return
	}
	if field.Kind == providermodels.FieldScalar {
		switch v := value.(type) {
		case string, float64, bool:
			a.scalars[field.Name] = v
		}
		return
	}

	switch v := value.(type) {
	case []interface{}:
		if items, ok := itemArray(v, field); ok {
			a.structured[field.Name] = append(a.structured[field.Name], items...)
		}
	case []map[string]interface{}:
		a.structured[field.Name] = append(a.structured[field.Name], v...)
	case string:
		var parsed interface{}
		if err := json.Unmarshal([]byte(v), &parsed); err == nil {
			a.acceptValue(field, parsed, depth+1)
			return
		}
		a.extractFragments(field, v)
	}
}

// deepSearch is the last-resort recursive scan over the untyped envelope
// tree. Direct alias keys are consumed before recursing so the cheap hit
// wins; object keys that are themselves giant JSON strings are parsed
// and descended into (known upstream malformation).
func (a *accumulator) deepSearch(node interface{}, depth int) {
	if depth > maxDepth {
		return
	}
	switch v := node.(type) {
	case map[string]interface{}:
		keys := sortedKeys(v)
		matched := make(map[string]bool, len(keys))
		for _, k := range keys {
			if field := a.fieldForKey(k); field != nil {
				a.acceptValue(field, v[k], depth)
				matched[k] = true
			}
		}
		for _, k := range keys {
			if matched[k] {
				continue
			}
			if len(k) > fragmentMinLen {
				if inner := decodeGeneric([]byte(k)); inner != nil {
					a.deepSearch(inner, depth+1)
				} else {
					a.scanString(k, depth+1)
				}
			}
			a.deepSearch(v[k], depth+1)
		}
	case []interface{}:
		if field := a.schema.RequiredField(); field != nil && field.Kind == providermodels.FieldList {
			if items, ok := itemArray(v, field); ok {
				a.structured[field.Name] = append(a.structured[field.Name], items...)
				return
			}
		}
		for _, el := range v {
			a.deepSearch(el, depth+1)
		}
	case string:
		a.scanString(v, depth)
	}
}

// scanString handles string nodes: parse as JSON when possible, else run
// the provider fragment regex over sufficiently long strings.
func (a *accumulator) scanString(s string, depth int) {
	if depth > maxDepth {
		return
	}
	if inner := decodeGeneric([]byte(s)); inner != nil {
		a.deepSearch(inner, depth+1)
		return
	}
	if len(s) <= fragmentMinLen {
		return
	}
	for i := range a.schema.Fields {
		f := &a.schema.Fields[i]
		if f.Kind == providermodels.FieldList {
			a.extractFragments(f, s)
		}
	}
}

// extractFragments pulls individual item-shaped substrings out of a
// string that embeds partially escaped JSON and parses each on its own.
func (a *accumulator) extractFragments(field *providermodels.FieldSpec, s string) {
	if field.FragmentPattern == nil || len(s) <= fragmentMinLen {
		return
	}
	for _, frag := range field.FragmentPattern.FindAllString(s, -1) {
		item := parseFragment(frag)
		if item == nil {
			continue
		}
		if itemShaped(item, field) {
			a.fragments[field.Name] = append(a.fragments[field.Name], item)
		}
	}
}

func parseFragment(frag string) map[string]interface{} {
	var item map[string]interface{}
	if err := json.Unmarshal([]byte(frag), &item); err == nil {
		return item
	}
	unescaped := strings.ReplaceAll(frag, `\"`, `"`)
	if err := json.Unmarshal([]byte(unescaped), &item); err == nil {
		return item
	}
	return nil
}

// itemArray converts v when every element matches the field's item
// shape. Partially matching arrays are left for element-wise recursion.
func itemArray(v []interface{}, field *providermodels.FieldSpec) ([]map[string]interface{}, bool) {
	if len(v) == 0 {
		return nil, false
	}
	items := make([]map[string]interface{}, 0, len(v))
	for _, el := range v {
		m, ok := el.(map[string]interface{})
		if !ok || !itemShaped(m, field) {
			return nil, false
		}
		items = append(items, m)
	}
	return items, true
}

func itemShaped(m map[string]interface{}, field *providermodels.FieldSpec) bool {
	if len(field.ItemKeys) == 0 {
		return false
	}
	min := field.MinItemKeys
	if min == 0 {
		min = len(field.ItemKeys)
	}
	found := 0
	for _, k := range field.ItemKeys {
		if _, ok := m[k]; ok {
			found++
		}
	}
	return found >= min
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedStringKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedRawKeys(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
