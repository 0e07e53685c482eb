package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genbatch/pipeline/internal/cliclient"
)

func TestLookupDottedWalksNestedFields(t *testing.T) {
	cfg := map[string]any{"rate_limit": map[string]any{"default_rpm": 60}}
	val, err := lookupDotted(cfg, "rate_limit.default_rpm")
	require.NoError(t, err)
	assert.Equal(t, 60, val)
}

func TestLookupDottedRejectsUnknownKey(t *testing.T) {
	cfg := map[string]any{"server": map[string]any{"port": 8080}}
	_, err := lookupDotted(cfg, "server.missing")
	require.Error(t, err)
}

func TestSetDottedCreatesIntermediateMaps(t *testing.T) {
	doc := map[string]any{}
	require.NoError(t, setDotted(doc, "rate_limit.default_rpm", "120"))
	nested, ok := doc["rate_limit"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "120", nested["default_rpm"])
}

func TestSetDottedRejectsNonMapIntermediate(t *testing.T) {
	doc := map[string]any{"server": "not-a-map"}
	err := setDotted(doc, "server.port", "9090")
	require.Error(t, err)
}

func TestIsConnectionErrorDetectsTransportFailures(t *testing.T) {
	assert.True(t, isConnectionError(&cliclient.ConnectionError{Err: assertErr{}}))
	assert.False(t, isConnectionError(usageErrorf("bad flag")))
}

func TestIsUsageErrorDetectsCLIMistakes(t *testing.T) {
	assert.True(t, isUsageError(usageErrorf("bad flag")))
	assert.False(t, isUsageError(assertErr{}))
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
