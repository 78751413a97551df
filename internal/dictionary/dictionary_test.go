package dictionary

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const testModel = `
namespaces:
  p: http://example.com/p
types:
  - name: cm:cmobject
    properties:
      - name: cm:name
        type: d:text
        stored: true
  - name: cm:content
    parent: cm:cmobject
    properties:
      - name: cm:content
        type: d:content
  - name: cm:folder
    parent: cm:cmobject
  - name: p:report
    parent: cm:content
    properties:
      - name: p:published
        type: d:datetime
      - name: p:code
        type: d:text
        tokenised: "false"
aspects:
  - name: cm:titled
    properties:
      - name: cm:title
        type: d:mltext
`

func loadTestModel(t *testing.T) *Dictionary {
	t.Helper()
	d, err := Load([]byte(testModel))
	require.NoError(t, err)
	return d
}

func TestResolveForms(t *testing.T) {
	d := loadTestModel(t)
	ns := d.Namespaces()

	q, err := Resolve(ns, "cm:content")
	require.NoError(t, err)
	require.Equal(t, QName{ContentURI, "content"}, q)

	q, err = Resolve(ns, "{http://example.com/p}report")
	require.NoError(t, err)
	require.Equal(t, "report", q.Local)

	q, err = Resolve(ns, "plain")
	require.NoError(t, err)
	require.Equal(t, QName{"", "plain"}, q)

	_, err = Resolve(ns, "zz:nope")
	require.Error(t, err)
}

func TestSubTypesTransitiveIncludingSelf(t *testing.T) {
	d := loadTestModel(t)
	content := QName{ContentURI, "content"}
	report := QName{"http://example.com/p", "report"}

	require.Equal(t, []QName{content, report}, d.SubTypes(content))
	require.Len(t, d.SubTypes(QName{ContentURI, "cmobject"}), 4)
	require.Equal(t, []QName{report}, d.SubTypes(report))
}

func TestPropertiesOfType(t *testing.T) {
	d := loadTestModel(t)
	require.Equal(t, []QName{{ContentURI, "content"}}, d.PropertiesOfType(TypeContent))
	require.Equal(t, []QName{{ContentURI, "title"}}, d.PropertiesOfType(TypeMLText))

	p, ok := d.Property(QName{"http://example.com/p", "code"})
	require.True(t, ok)
	require.Equal(t, TokeniseFalse, p.Tokenised)
	require.Equal(t, QName{"http://example.com/p", "report"}, p.Container)

	_, ok = d.Aspect(QName{ContentURI, "content"})
	require.False(t, ok)
	_, ok = d.Aspect(QName{ContentURI, "titled"})
	require.True(t, ok)
}

func TestLoadRejectsUnknownDataType(t *testing.T) {
	_, err := Load([]byte(`
types:
  - name: cm:thing
    properties:
      - name: cm:x
        type: d:nope
`))
	require.Error(t, err)
}
