package registry

import (
	"regexp"
	"sort"

	apperrors "proof-contrib-backend/internal/common/errors"
	"proof-contrib-backend/internal/features/provider/models"
)

// Registry is the static provider schema table. It is assembled once at
// process start; lookups never mutate it.
type Registry struct {
	schemas map[string]*models.ProviderSchema
}

// Item fragment patterns for the stringified-JSON-key malformation. Each
// matches one item object embedded (possibly escape-mangled) in a string.
var (
	orderFragmentRe = regexp.MustCompile(`\{[^{}]*\\?"items\\?"[^{}]*\\?"price\\?"[^{}]*\\?"timestamp\\?"[^{}]*\\?"restaurant\\?"[^{}]*\}`)
	rideFragmentRe  = regexp.MustCompile(`\{[^{}]*\\?"fare\\?"[^{}]*\\?"timestamp\\?"[^{}]*\}`)
	watchFragmentRe = regexp.MustCompile(`\{[^{}]*\\?"title\\?"[^{}]*\\?"date\\?"[^{}]*\}`)
	dayFragmentRe   = regexp.MustCompile(`\{[^{}]*\\?"date\\?"[^{}]*\\?"count\\?"[^{}]*\}`)
)

// New builds the registry with every supported provider.
func New() *Registry {
	schemas := []*models.ProviderSchema{
		{
			ProviderID:             "zomato",
			VerificationTemplateID: "f9f383fd-32d9-4c54-942f-5e9fda349762",
			DisplayName:            "Zomato",
			RewardWeight:           1.5,
			Fields: []models.FieldSpec{
				{
					Name:            "orders",
					Kind:            models.FieldList,
					Aliases:         []string{"orders", "orderHistory", "order_history"},
					ItemKeys:        []string{"items", "price", "timestamp", "restaurant"},
					MinItemKeys:     3,
					FragmentPattern: orderFragmentRe,
					Required:        true,
				},
				{Name: "username", Kind: models.FieldScalar, Aliases: []string{"username", "name"}},
			},
		},
		{
			ProviderID:             "uber",
			VerificationTemplateID: "ae8d0dbd-8b8c-4b94-9f82-f34e36a2a6e2",
			DisplayName:            "Uber",
			RewardWeight:           1.2,
			Fields: []models.FieldSpec{
				{
					Name:            "rides",
					Kind:            models.FieldList,
					Aliases:         []string{"rides", "trips", "tripHistory"},
					ItemKeys:        []string{"fare", "timestamp", "pickup", "dropoff"},
					MinItemKeys:     2,
					FragmentPattern: rideFragmentRe,
					Required:        true,
				},
			},
		},
		{
			ProviderID:             "netflix",
			VerificationTemplateID: "c1e94dc3-7ad4-4ff5-b63e-0f91d7bdb5a9",
			DisplayName:            "Netflix",
			RewardWeight:           1.0,
			Fields: []models.FieldSpec{
				{
					Name:            "watchHistory",
					Kind:            models.FieldList,
					Aliases:         []string{"watchHistory", "viewingActivity", "titles"},
					ItemKeys:        []string{"title", "date"},
					MinItemKeys:     2,
					FragmentPattern: watchFragmentRe,
					Required:        true,
				},
			},
		},
		{
			ProviderID:             "github",
			VerificationTemplateID: "8573efb4-4529-47d3-80da-eaf7c098fedc",
			DisplayName:            "GitHub",
			RewardWeight:           2.0,
			Fields: []models.FieldSpec{
				{
					Name:            "allTimeActivity",
					Kind:            models.FieldList,
					Aliases:         []string{"allTimeActivity", "contributions", "contributionDays"},
					ItemKeys:        []string{"date", "count"},
					MinItemKeys:     2,
					FragmentPattern: dayFragmentRe,
					Required:        true,
				},
				{Name: "username", Kind: models.FieldScalar, Aliases: []string{"username", "login"}},
			},
		},
		{
			ProviderID:             "instagram",
			VerificationTemplateID: "2f4c86b2-91d8-4f0a-ae43-7c0f76b15dc1",
			DisplayName:            "Instagram",
			RewardWeight:           0.8,
			Fields: []models.FieldSpec{
				{Name: "username", Kind: models.FieldScalar, Aliases: []string{"username", "handle"}, Required: true},
				{Name: "followers", Kind: models.FieldScalar, Aliases: []string{"followers", "follower_count", "followersCount"}},
			},
		},
	}

	m := make(map[string]*models.ProviderSchema, len(schemas))
	for _, s := range schemas {
		m[s.ProviderID] = s
	}
	return &Registry{schemas: m}
}

// SchemaFor returns the schema for a provider id. Unknown ids are a caller
// error, never retried.
func (r *Registry) SchemaFor(providerID string) (*models.ProviderSchema, error) {
	s, ok := r.schemas[providerID]
	if !ok {
		return nil, apperrors.NewProviderUnknownError(providerID)
	}
	return s, nil
}

// SchemaForTemplate resolves a schema by verification template id. Used by
// redirect recovery, where only hints inside the proof survive a reload.
func (r *Registry) SchemaForTemplate(templateID string) (*models.ProviderSchema, bool) {
	for _, s := range r.schemas {
		if s.VerificationTemplateID == templateID {
			return s, true
		}
	}
	return nil, false
}

// All returns every schema sorted by provider id.
func (r *Registry) All() []*models.ProviderSchema {
	out := make([]*models.ProviderSchema, 0, len(r.schemas))
	for _, s := range r.schemas {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProviderID < out[j].ProviderID })
	return out
}
