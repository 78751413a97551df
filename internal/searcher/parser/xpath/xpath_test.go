package xpath

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/dictionary"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/searcher/query"
	apperrors "github.com/Adithya-Monish-Kumar-K/repository-search/pkg/errors"
)

func cm(local string) query.Step {
	return query.Step{Axis: query.Child, Name: dictionary.QName{URI: dictionary.ContentURI, Local: local}}
}

func TestParse(t *testing.T) {
	ns := dictionary.New().Namespaces()
	anyStep := query.Step{Axis: query.Child, Name: dictionary.QName{Local: query.AnyLocal}, AnyNamespace: true}
	desc := query.Step{Axis: query.DescendantOrSelf}

	cases := []struct {
		expr string
		want []query.Step
	}{
		{"/", nil},
		{"/cm:a/cm:b", []query.Step{cm("a"), cm("b")}},
		{"cm:a/cm:b", []query.Step{cm("a"), cm("b")}},
		{"//cm:b", []query.Step{desc, cm("b")}},
		{"/cm:a//*", []query.Step{cm("a"), desc, anyStep}},
		{"/cm:a/.", []query.Step{cm("a"), {Axis: query.Self}}},
		{"/cm:*", []query.Step{cm("*")}},
		{"/child::cm:a", []query.Step{cm("a")}},
		{"/cm:a/descendant-or-self::node()/child::node()", []query.Step{cm("a"), desc, anyStep}},
		{"/{" + dictionary.ContentURI + "}a", []query.Step{cm("a")}},
	}
	for _, tc := range cases {
		got, err := Parse(tc.expr, ns)
		require.NoError(t, err, tc.expr)
		require.Equal(t, tc.want, got, tc.expr)
	}
}

func TestParseRejectsUnsupported(t *testing.T) {
	ns := dictionary.New().Namespaces()
	for _, expr := range []string{"", "/cm:a[1]", "/cm:a/..", "/@cm:name", "/cm:a/", "/count(cm:a)", "/parent::node()", "/'x'"} {
		_, err := Parse(expr, ns)
		require.Error(t, err, expr)
		var pe *apperrors.ParseError
		require.True(t, errors.As(err, &pe), expr)
		require.Equal(t, Language, pe.Language)
	}
}

func TestParseAggregatesUnknownPrefixes(t *testing.T) {
	ns := dictionary.New().Namespaces()
	_, err := Parse("/foo:a/cm:b/bar:c", ns)
	var ue *apperrors.UnresolvedError
	require.True(t, errors.As(err, &ue))
	require.Equal(t, []string{"foo", "bar"}, ue.Names)
	require.True(t, errors.Is(err, apperrors.ErrUnresolved))
}
