package normalizer

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "proof-contrib-backend/internal/common/errors"
	"proof-contrib-backend/internal/features/provider/registry"
)

func zomatoOrdersJSON(count int) string {
	items := make([]string, 0, count)
	for i := 0; i < count; i++ {
		items = append(items, fmt.Sprintf(
			`{"items":["Margherita","Coke"],"price":%d,"timestamp":%d,"restaurant":"Pizza Hub %d"}`,
			250+i*10, 1700000000+i, i))
	}
	return "[" + strings.Join(items, ",") + "]"
}

func primaryEnvelope(t *testing.T, provider string, params map[string]string) []byte {
	t.Helper()
	ctx, err := json.Marshal(map[string]interface{}{
		"extractedParameters": params,
		"providerHash":        "0xhash",
	})
	require.NoError(t, err)
	env, err := json.Marshal(map[string]interface{}{
		"identifier": "0xdeadbeef",
		"claimData": map[string]interface{}{
			"provider": provider,
			"context":  string(ctx),
		},
	})
	require.NoError(t, err)
	return env
}

func TestNormalizePrimaryShapeZomato(t *testing.T) {
	reg := registry.New()
	schema, err := reg.SchemaFor("zomato")
	require.NoError(t, err)

	env := primaryEnvelope(t, "zomato", map[string]string{
		"orders":   zomatoOrdersJSON(3),
		"username": "foodie42",
	})

	rec, err := New().Normalize(env, schema)
	require.NoError(t, err)

	orders := rec.List("orders")
	require.Len(t, orders, 3)
	assert.Equal(t, "Pizza Hub 0", orders[0]["restaurant"])
	assert.Equal(t, float64(250), orders[0]["price"])
	assert.Equal(t, "foodie42", rec["username"])
}

func TestNormalizePrimaryShapeAllProviders(t *testing.T) {
	reg := registry.New()
	params := map[string]map[string]string{
		"zomato":    {"orders": zomatoOrdersJSON(2), "username": "u"},
		"uber":      {"rides": `[{"fare":120,"timestamp":1,"pickup":"A","dropoff":"B"}]`},
		"netflix":   {"watchHistory": `[{"title":"Dark","date":"2024-01-01"}]`},
		"github":    {"allTimeActivity": `[{"date":"2024-01-01","count":4}]`, "username": "dev"},
		"instagram": {"username": "insta", "followers": "1024"},
	}

	for providerID, p := range params {
		t.Run(providerID, func(t *testing.T) {
			schema, err := reg.SchemaFor(providerID)
			require.NoError(t, err)

			rec, err := New().Normalize(primaryEnvelope(t, providerID, p), schema)
			require.NoError(t, err)

			for _, f := range schema.Fields {
				if _, wanted := p[f.Name]; wanted {
					assert.Contains(t, rec, f.Name, "field %s should be populated", f.Name)
				}
			}
		})
	}
}

func TestNormalizeAlternateTopLevelLocations(t *testing.T) {
	reg := registry.New()
	schema, err := reg.SchemaFor("netflix")
	require.NoError(t, err)

	env := []byte(`{
		"identifier": "0xabc",
		"claimData": {"provider": "netflix", "context": ""},
		"publicData": {"watchHistory": [{"title":"Dark","date":"2024-01-01"},{"title":"Ozark","date":"2024-02-02"}]}
	}`)

	rec, err := New().Normalize(env, schema)
	require.NoError(t, err)
	assert.Len(t, rec.List("watchHistory"), 2)
}

func TestNormalizeDeepSearchFindsNestedArray(t *testing.T) {
	reg := registry.New()
	schema, err := reg.SchemaFor("uber")
	require.NoError(t, err)

	env := []byte(`{
		"identifier": "0x1",
		"claimData": {"context": "{}"},
		"payload": {"wrapped": {"deeper": {"trips": [
			{"fare": 80, "timestamp": 100, "pickup": "Home", "dropoff": "Office"},
			{"fare": 95, "timestamp": 200, "pickup": "Office", "dropoff": "Home"}
		]}}}
	}`)

	rec, err := New().Normalize(env, schema)
	require.NoError(t, err)
	assert.Len(t, rec.List("rides"), 2)
}

func TestNormalizeStringifiedJSONKeyMalformation(t *testing.T) {
	reg := registry.New()
	schema, err := reg.SchemaFor("zomato")
	require.NoError(t, err)

	// The provider data hides inside an object KEY that is itself a giant
	// JSON blob. The decoded key parses, so it is descended into directly.
	blob := `{"orders":` + zomatoOrdersJSON(3) + `}`
	env, err := json.Marshal(map[string]interface{}{
		"identifier": "0x2",
		"claimData":  map[string]interface{}{"context": "{}"},
		"parameters": map[string]interface{}{blob: "present"},
	})
	require.NoError(t, err)
	require.Greater(t, len(blob), 100)

	rec, err := New().Normalize(env, schema)
	require.NoError(t, err)
	assert.Len(t, rec.List("orders"), 3)
}

func TestNormalizeFragmentRegexFallback(t *testing.T) {
	reg := registry.New()
	schema, err := reg.SchemaFor("zomato")
	require.NoError(t, err)

	// A long string that does NOT parse as JSON but embeds escaped
	// item-shaped fragments. Count must match the un-malformed parse.
	direct := zomatoOrdersJSON(3)
	mangled := "log: partial payload >> " + strings.ReplaceAll(direct, `"`, `\"`) + " << truncated"
	require.Greater(t, len(mangled), 100)

	env, err := json.Marshal(map[string]interface{}{
		"identifier": "0x3",
		"claimData":  map[string]interface{}{"context": "{}"},
		"debugDump":  mangled,
	})
	require.NoError(t, err)

	rec, err := New().Normalize(env, schema)
	require.NoError(t, err)

	var reference []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(direct), &reference))
	assert.Len(t, rec.List("orders"), len(reference))
	assert.Equal(t, reference[1]["restaurant"], rec.List("orders")[1]["restaurant"])
}

func TestNormalizeStructuredArraySupersedesFragments(t *testing.T) {
	reg := registry.New()
	schema, err := reg.SchemaFor("zomato")
	require.NoError(t, err)

	direct := zomatoOrdersJSON(2)
	mangled := "noise " + strings.ReplaceAll(direct, `"`, `\"`) + " noise"
	ctx, err := json.Marshal(map[string]interface{}{
		"extractedParameters": map[string]string{"orders": direct},
	})
	require.NoError(t, err)
	env, err := json.Marshal(map[string]interface{}{
		"identifier": "0x4",
		"claimData":  map[string]interface{}{"context": string(ctx)},
		"debugDump":  mangled,
	})
	require.NoError(t, err)

	rec, err := New().Normalize(env, schema)
	require.NoError(t, err)
	// The fully parsed array wins; fragments of the same data are not
	// appended on top of it.
	assert.Len(t, rec.List("orders"), 2)
}

func TestNormalizeSingletonLastWinsListConcat(t *testing.T) {
	reg := registry.New()
	schema, err := reg.SchemaFor("github")
	require.NoError(t, err)

	env := []byte(`{
		"identifier": "0x5",
		"claimData": {"context": "{}"},
		"a": {"username": "first", "allTimeActivity": [{"date":"2024-01-01","count":1}]},
		"b": {"username": "second", "allTimeActivity": [{"date":"2024-01-02","count":2}]}
	}`)

	rec, err := New().Normalize(env, schema)
	require.NoError(t, err)

	// List matches from different locations concatenate; singleton
	// fields keep the last match of the stable traversal.
	assert.Len(t, rec.List("allTimeActivity"), 2)
	assert.Equal(t, "second", rec["username"])
}

func TestNormalizeDepthCapTerminates(t *testing.T) {
	reg := registry.New()
	schema, err := reg.SchemaFor("uber")
	require.NoError(t, err)

	// 20 levels deep; rides sit below the cap and must not be reached.
	inner := `{"rides":[{"fare":1,"timestamp":2,"pickup":"x","dropoff":"y"}]}`
	deep := inner
	for i := 0; i < 20; i++ {
		deep = `{"level":` + deep + `}`
	}

	_, err = New().Normalize([]byte(deep), schema)
	require.Error(t, err)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeProofMalformed, appErr.Code)
}

func TestNormalizeIdempotent(t *testing.T) {
	reg := registry.New()
	schema, err := reg.SchemaFor("zomato")
	require.NoError(t, err)

	env := primaryEnvelope(t, "zomato", map[string]string{
		"orders":   zomatoOrdersJSON(3),
		"username": "foodie42",
	})

	first, err := New().Normalize(env, schema)
	require.NoError(t, err)
	second, err := New().Normalize(env, schema)
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestNormalizeEmptyRecordIsFailure(t *testing.T) {
	reg := registry.New()
	schema, err := reg.SchemaFor("netflix")
	require.NoError(t, err)

	_, err = New().Normalize([]byte(`{"identifier":"0x6","claimData":{"context":"{}"}}`), schema)
	require.Error(t, err)
	appErr, _ := apperrors.AsAppError(err)
	assert.Equal(t, apperrors.ErrCodeProofMalformed, appErr.Code)
}

func TestNormalizeBareMessageString(t *testing.T) {
	reg := registry.New()
	schema, err := reg.SchemaFor("zomato")
	require.NoError(t, err)

	_, err = New().Normalize([]byte(`"message"`), schema)
	require.Error(t, err)
}

func TestProofIdentifierFromEnvelope(t *testing.T) {
	n := New()
	env := primaryEnvelope(t, "zomato", map[string]string{"orders": zomatoOrdersJSON(1)})
	assert.Equal(t, "0xdeadbeef", n.ProofIdentifier(env))
}

func TestProofIdentifierSynthesizedFallback(t *testing.T) {
	n := New()
	env := []byte(`{"no": "identifier", "here": true}`)

	first := n.ProofIdentifier(env)
	second := n.ProofIdentifier(env)
	assert.True(t, strings.HasPrefix(first, "synth-"))
	assert.Equal(t, first, second)

	other := n.ProofIdentifier([]byte(`{"no": "identifier", "here": false}`))
	assert.NotEqual(t, first, other)
}

func TestProofIdentifierNestedIdentifier(t *testing.T) {
	n := New()
	env := []byte(`[{"claim": {"identifier": "0xnested"}}]`)
	assert.Equal(t, "0xnested", n.ProofIdentifier(env))
}
