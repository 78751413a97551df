package locale

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseNormalises(t *testing.T) {
	l, err := Parse("EN-gb")
	require.NoError(t, err)
	require.Equal(t, "en_GB", l.String())

	l, err = Parse("")
	require.NoError(t, err)
	require.True(t, l.IsRoot())

	_, err = Parse("en_GB_x_y")
	require.Error(t, err)
	_, err = Parse("e n")
	require.Error(t, err)
}

func TestFallbacks(t *testing.T) {
	l := MustParse("fr_CA_quebec")
	var got []string
	for _, f := range l.Fallbacks() {
		got = append(got, f.String())
	}
	require.Equal(t, []string{"fr_CA_quebec", "fr_CA", "fr", ""}, got)
	require.True(t, MustParse("fr").Contains(l))
	require.False(t, MustParse("en").Contains(l))
}

func TestExpand(t *testing.T) {
	gb := MustParse("en_GB")
	require.Equal(t, []Pattern{"en_GB"}, ExactLocale.Expand(gb))
	require.Equal(t, []Pattern{"en_GB", "en", ""}, LocaleAndContaining.Expand(gb))
	require.Equal(t, []Pattern{"en", "en_*"}, LocaleAndContained.Expand(MustParse("en")))
	require.Equal(t, []Pattern{"*"}, AllLocales.Expand(gb))
	require.True(t, AllLocales.IncludesAll())
	require.True(t, Pattern("en_*").IsWildcard())
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("locale_and_containing")
	require.NoError(t, err)
	require.Equal(t, LocaleAndContaining, m)
	_, err = ParseMode("bogus")
	require.Error(t, err)
}
