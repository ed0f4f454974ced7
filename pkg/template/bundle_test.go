package template

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fingraph-lang/fingraph/pkg/ferrors"
)

func testGraphDict() map[string]any {
	return map[string]any{
		"periods": []any{"2023", "2024"},
		"order":   []any{"revenue"},
		"nodes": map[string]any{
			"revenue": map[string]any{
				"kind":   "item",
				"values": map[string]any{"2023": 100.0, "2024": 120.0},
			},
		},
	}
}

func TestChecksumIsStable(t *testing.T) {
	first, err := Checksum(testGraphDict())
	require.NoError(t, err)
	second, err := Checksum(testGraphDict())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
}

func TestBundleVerify(t *testing.T) {
	b, err := NewBundle(Meta{Name: "demo", Version: "v1", CreatedAt: time.Now().UTC()}, testGraphDict())
	require.NoError(t, err)
	require.NoError(t, b.Verify())
	assert.Equal(t, "demo_v1", b.ID())

	b.GraphDict["nodes"].(map[string]any)["revenue"].(map[string]any)["values"].(map[string]any)["2023"] = 999.0
	err = b.Verify()
	require.Error(t, err)
	assert.True(t, ferrors.IsCode(err, ferrors.CodeChecksumMismatch))
}

func TestDecodeBundleRoundTrip(t *testing.T) {
	b, err := NewBundle(Meta{Name: "demo", Version: "v2", CreatedAt: time.Now().UTC()}, testGraphDict())
	require.NoError(t, err)

	payload, err := b.Encode()
	require.NoError(t, err)

	decoded, err := DecodeBundle(payload)
	require.NoError(t, err)
	assert.Equal(t, b.Checksum, decoded.Checksum)
	assert.Equal(t, "demo_v2", decoded.ID())
}

func TestDecodeBundleRejectsGarbage(t *testing.T) {
	_, err := DecodeBundle([]byte("not json"))
	require.Error(t, err)
	assert.True(t, ferrors.IsCode(err, ferrors.CodeInvalidPayload))
}

func TestTemplateID(t *testing.T) {
	assert.Equal(t, "income_statement_v3", TemplateID("income_statement", "v3"))
}
