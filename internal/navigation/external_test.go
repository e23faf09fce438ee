package navigation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIntentURL(t *testing.T) {
	raw := "intent://pay.example.com/checkout#Intent;scheme=payapp;package=com.example.pay;S.browser_fallback_url=https%3A%2F%2Fpay.example.com%2Fweb;end"
	intent, err := ParseIntentURL(raw)
	require.NoError(t, err)

	require.NotNil(t, intent.Inner)
	assert.Equal(t, "payapp", intent.Inner.Scheme)
	assert.Equal(t, "pay.example.com", intent.Inner.Host)
	assert.Equal(t, "/checkout", intent.Inner.Path)
	assert.Equal(t, "https://pay.example.com/web", intent.FallbackURL)
}

func TestParseIntentURLWithoutScheme(t *testing.T) {
	intent, err := ParseIntentURL("intent://thing#Intent;S.browser_fallback_url=https%3A%2F%2Fexample.com;end")
	require.NoError(t, err)
	assert.Nil(t, intent.Inner)
	assert.Equal(t, "https://example.com", intent.FallbackURL)
}

func TestParseIntentURLWithoutFallback(t *testing.T) {
	intent, err := ParseIntentURL("intent://thing#Intent;scheme=someapp;end")
	require.NoError(t, err)
	require.NotNil(t, intent.Inner)
	assert.Equal(t, "someapp", intent.Inner.Scheme)
	assert.Empty(t, intent.FallbackURL)
}

func TestParseIntentURLRejectsOtherSchemes(t *testing.T) {
	_, err := ParseIntentURL("https://example.com/")
	assert.Error(t, err)
}
