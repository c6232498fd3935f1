package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslate(t *testing.T) {
	require.NoError(t, Initialize("en"))

	assert.Equal(t, "Authentication required", T("en", KeyAuthRequired))
	assert.Equal(t, "需要身分驗證", T("zh_TW", KeyAuthRequired))
	assert.Equal(t, "ip_id is not a valid address", T("en", KeyInvalidAddress, "ip_id"))

	// Unknown languages fall back to the default, unknown keys to the key itself.
	assert.Equal(t, "Authentication required", T("fr", KeyAuthRequired))
	assert.Equal(t, "no.such.key", T("zh_TW", "no.such.key"))

	assert.ElementsMatch(t, []string{"en", "zh_TW"}, GetSupportedLanguages())
}

// Every key must be translated in every bundled language.
func TestCataloguesAreComplete(t *testing.T) {
	require.NoError(t, Initialize("en"))

	english := instance.translations["en"]
	require.NotEmpty(t, english)
	for lang, translations := range instance.translations {
		for key := range english {
			assert.Contains(t, translations, key, "%s is missing %s", lang, key)
		}
	}
}
