package document

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/dictionary"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/locale"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/repository"
)

const testModel = `
namespaces:
  cm: http://www.repository.org/model/content/1.0
types:
  - name: cm:content
    properties:
      - name: cm:name
        type: d:text
        stored: true
      - name: cm:title
        type: d:mltext
        stored: true
      - name: cm:content
        type: d:content
      - name: cm:size
        type: d:int
`

const store = repository.StoreRef("workspace://SpacesStore")

func cm(local string) dictionary.QName {
	return dictionary.NewQName(dictionary.ContentURI, local)
}

func values(d *Document, name string) []string {
	var out []string
	for _, f := range d.Fields {
		if f.Name == name {
			out = append(out, f.Value)
		}
	}
	return out
}

func TestIdentityInvariant(t *testing.T) {
	d := New("n1")
	require.NoError(t, d.Validate())
	require.Error(t, d.Add(Field{Name: FieldID, Value: "other"}))

	bad := &Document{Fields: []Field{{Name: FieldID, Value: "x", Indexed: true, Tokenised: true, Stored: true}}}
	require.Error(t, bad.Validate())
	require.Error(t, (&Document{}).Validate())
}

func TestStoredFields(t *testing.T) {
	d := New("n1")
	d.Keyword(FieldAspect, "a")
	d.Keyword(FieldAspect, "b")
	d.Exact(FieldIsNode, True)
	s := d.Stored()
	assert.Equal(t, "n1", s.ID())
	assert.Equal(t, []string{"a", "b"}, s[FieldAspect])
	assert.Equal(t, []string{FieldAspect, FieldID}, s.Names())
}

func newBuilder(t *testing.T, repo *repository.Memory, content repository.ContentService) *Builder {
	t.Helper()
	dict, err := dictionary.Load([]byte(testModel))
	require.NoError(t, err)
	reg, err := tokenizer.NewRegistry(tokenizer.Options{DefaultLocale: locale.MustParse("en")})
	require.NoError(t, err)
	return NewBuilder(dict, reg, repo, content)
}

func TestBuildNode(t *testing.T) {
	repo := repository.NewMemory()
	content := repository.NewMemoryContent()
	content.Put("store://c1", "Quarterly report")
	root := repository.NewNodeRef(store, "root")
	ref := repository.NewNodeRef(store, "doc")
	repo.Put(repository.Node{Ref: root, IsRoot: true, Type: cm("folder")})
	node := repository.Node{
		Ref:     ref,
		Type:    cm("content"),
		Aspects: []dictionary.QName{cm("titled")},
		TxID:    7,
		Parents: []repository.ChildAssoc{{Parent: root, QName: cm("doc"), Primary: true}},
		Properties: map[dictionary.QName]repository.PropertyValue{
			cm("name"):    repository.Text("report.txt"),
			cm("title"):   {ML: map[string]string{"fr": "Rapport"}},
			cm("content"): {Content: &repository.ContentData{URL: "store://c1", Mimetype: "text/plain", Size: 16}},
			cm("size"):    repository.Text("16"),
		},
	}
	repo.Put(node)
	b := newBuilder(t, repo, content)

	doc, err := b.Build(context.Background(), node, true)
	require.NoError(t, err)
	require.NoError(t, doc.Validate())
	assert.Equal(t, string(ref), doc.ID())
	assert.Equal(t, []string{"7"}, values(doc, FieldTX))
	assert.Equal(t, []string{string(root)}, values(doc, FieldPrimaryParent))
	assert.Equal(t, []string{"/" + cm("doc").String()}, values(doc, FieldPath))
	assert.Equal(t, []string{FTSStatusClean}, values(doc, FieldFTSStatus))
	assert.Equal(t, []string{"text/plain"}, values(doc, PropertyField(cm("content"))+SuffixMimetype))
	assert.Equal(t, []string{"en"}, values(doc, PropertyField(cm("content"))+SuffixLocale))
	assert.Equal(t, []string{"Quarterly report"}, values(doc, PropertyField(cm("content"))))
	assert.Equal(t, []string{tokenizer.TagLocale(locale.MustParse("fr"), "Rapport")}, values(doc, PropertyField(cm("title"))))
}

func TestBuildWithoutContentMarksDirty(t *testing.T) {
	repo := repository.NewMemory()
	ref := repository.NewNodeRef(store, "doc")
	node := repository.Node{
		Ref:  ref,
		Type: cm("content"),
		Properties: map[dictionary.QName]repository.PropertyValue{
			cm("content"): {Content: &repository.ContentData{URL: "store://c1", Mimetype: "text/plain"}},
		},
	}
	repo.Put(node)
	b := newBuilder(t, repo, repository.NewMemoryContent())

	doc, err := b.Build(context.Background(), node, false)
	require.NoError(t, err)
	assert.Equal(t, []string{FTSStatusDirty}, values(doc, FieldFTSStatus))
	assert.Empty(t, values(doc, PropertyField(cm("content"))))
}

func TestBuildTransformationFailuresDegrade(t *testing.T) {
	repo := repository.NewMemory()
	b := newBuilder(t, repo, repository.NewMemoryContent())
	ctx := context.Background()

	failed := repository.Node{
		Ref: repository.NewNodeRef(store, "a"),
		Properties: map[dictionary.QName]repository.PropertyValue{
			cm("content"): {Content: &repository.ContentData{URL: "store://missing", Mimetype: "text/plain"}},
		},
	}
	doc, err := b.Build(ctx, failed, true)
	require.NoError(t, err)
	assert.Equal(t, []string{NotIndexedTransformFailed}, values(doc, PropertyField(cm("content"))))

	binary := repository.Node{
		Ref: repository.NewNodeRef(store, "b"),
		Properties: map[dictionary.QName]repository.PropertyValue{
			cm("content"): {Content: &repository.ContentData{URL: "store://img", Mimetype: "image/png"}},
		},
	}
	doc, err = b.Build(ctx, binary, true)
	require.NoError(t, err)
	assert.Equal(t, []string{NotIndexedNoTransformer}, values(doc, PropertyField(cm("content"))))
}
