package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "proof-contrib-backend/internal/common/errors"
	"proof-contrib-backend/internal/features/provider/models"
)

func TestSchemaForKnownProviders(t *testing.T) {
	r := New()
	for _, id := range []string{"zomato", "uber", "netflix", "github", "instagram"} {
		schema, err := r.SchemaFor(id)
		require.NoError(t, err, id)
		assert.Equal(t, id, schema.ProviderID)
		assert.NotEmpty(t, schema.VerificationTemplateID, id)
		require.NotNil(t, schema.RequiredField(), "%s must declare a required field", id)
	}
}

func TestSchemaForUnknownProvider(t *testing.T) {
	r := New()
	_, err := r.SchemaFor("myspace")
	require.Error(t, err)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeProviderUnknown, appErr.Code)
	assert.False(t, appErr.IsRetryable())
}

func TestSchemaForTemplate(t *testing.T) {
	r := New()
	zomato, err := r.SchemaFor("zomato")
	require.NoError(t, err)

	byTemplate, ok := r.SchemaForTemplate(zomato.VerificationTemplateID)
	require.True(t, ok)
	assert.Same(t, zomato, byTemplate)

	_, ok = r.SchemaForTemplate("00000000-0000-0000-0000-000000000000")
	assert.False(t, ok)
}

func TestTemplateIDsAreUnique(t *testing.T) {
	seen := map[string]string{}
	for _, s := range New().All() {
		prev, dup := seen[s.VerificationTemplateID]
		assert.False(t, dup, "template %s shared by %s and %s", s.VerificationTemplateID, prev, s.ProviderID)
		seen[s.VerificationTemplateID] = s.ProviderID
	}
}

func TestAllSortedByProviderID(t *testing.T) {
	all := New().All()
	require.Len(t, all, 5)
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].ProviderID, all[i].ProviderID)
	}
}

func TestListFieldsCarryFragmentPatterns(t *testing.T) {
	for _, s := range New().All() {
		for _, f := range s.Fields {
			if f.Kind != models.FieldList {
				continue
			}
			require.NotNil(t, f.FragmentPattern, "%s.%s", s.ProviderID, f.Name)
			assert.GreaterOrEqual(t, len(f.ItemKeys), f.MinItemKeys, "%s.%s", s.ProviderID, f.Name)
		}
	}
}

func TestOrderFragmentPatternMatchesEscapedJSON(t *testing.T) {
	schema, err := New().SchemaFor("zomato")
	require.NoError(t, err)
	orders := schema.FieldByName("orders")
	require.NotNil(t, orders)

	plain := `{"items":["Biryani"],"price":240,"timestamp":1700000000,"restaurant":"Paradise"}`
	escaped := `{\"items\":[\"Biryani\"],\"price\":240,\"timestamp\":1700000000,\"restaurant\":\"Paradise\"}`
	assert.True(t, orders.FragmentPattern.MatchString(plain))
	assert.True(t, orders.FragmentPattern.MatchString(escaped))
	assert.False(t, orders.FragmentPattern.MatchString(`{"fare":12,"timestamp":3}`))
}
