package document

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/dictionary"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/locale"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/repository"
)

// Builder converts repository nodes to index documents.
type Builder struct {
	dict      *dictionary.Dictionary
	analyzers *tokenizer.Registry
	nodes     repository.NodeService
	content   repository.ContentService
	logger    *slog.Logger
}

// NewBuilder creates a Builder. content may be nil, in which case content
// properties index the no-transformer sentinel.
func NewBuilder(dict *dictionary.Dictionary, analyzers *tokenizer.Registry, nodes repository.NodeService, content repository.ContentService) *Builder {
	return &Builder{
		dict:      dict,
		analyzers: analyzers,
		nodes:     nodes,
		content:   content,
		logger:    slog.Default().With("component", "document-builder"),
	}
}

// Build returns the document for node. With withContent false, content
// properties are left for a later full-text pass and the document is marked
// dirty.
func (b *Builder) Build(ctx context.Context, node repository.Node, withContent bool) (*Document, error) {
	doc := New(string(node.Ref))
	doc.Keyword(FieldTX, strconv.FormatInt(node.TxID, 10))
	doc.Exact(FieldIsNode, True)
	doc.Keyword(FieldStore, string(node.Ref.Store()))
	if node.IsRoot {
		doc.Exact(FieldIsRoot, True)
	}
	if node.Container {
		doc.Exact(FieldIsContainer, True)
	}
	doc.Keyword(FieldType, node.Type.String())
	for _, a := range node.Aspects {
		doc.Keyword(FieldAspect, a.String())
	}
	for _, p := range node.Parents {
		doc.Keyword(FieldParent, string(p.Parent))
		doc.Keyword(FieldQName, p.QName.String())
		if p.Primary {
			doc.Keyword(FieldPrimaryParent, string(p.Parent))
		}
	}

	paths, err := repository.ResolvePaths(ctx, b.nodes, node.Ref)
	if err != nil {
		return nil, fmt.Errorf("building document for %s: %w", node.Ref, err)
	}
	for _, p := range paths {
		doc.Keyword(FieldPath, p.String())
	}

	status := FTSStatusClean
	names := make([]dictionary.QName, 0, len(node.Properties))
	for q := range node.Properties {
		names = append(names, q)
	}
	sort.Slice(names, func(i, j int) bool { return names[i].String() < names[j].String() })
	for _, q := range names {
		def := b.property(q)
		if !def.Indexed && !def.Stored {
			continue
		}
		value := node.Properties[q]
		switch def.DataType {
		case dictionary.TypeMLText:
			b.addML(doc, def, value)
		case dictionary.TypeContent:
			if value.Content == nil {
				continue
			}
			if !withContent {
				status = FTSStatusDirty
			}
			b.addContent(ctx, doc, def, *value.Content, withContent)
		default:
			b.addValues(doc, def, value.Values)
		}
	}
	doc.Exact(FieldFTSStatus, status)
	return doc, nil
}

func (b *Builder) property(q dictionary.QName) dictionary.PropertyDef {
	if def, ok := b.dict.Property(q); ok {
		return *def
	}
	// residual properties index as text
	return dictionary.PropertyDef{Name: q, DataType: dictionary.TypeText, Indexed: true, Stored: true}
}

func (b *Builder) addValues(doc *Document, def dictionary.PropertyDef, values []string) {
	field := PropertyField(def.Name)
	for _, v := range values {
		switch def.DataType {
		case dictionary.TypeText, dictionary.TypeAny:
			tokenised := def.Tokenised != dictionary.TokeniseFalse
			doc.Fields = append(doc.Fields, Field{
				Name: field, Value: v, Stored: def.Stored, Indexed: def.Indexed,
				Tokenised: tokenised, Analyzer: b.analyzers.ForDataType(def.DataType, tokenised),
			})
			if def.Tokenised == dictionary.TokeniseBoth && def.Indexed {
				doc.Exact(field, v)
			}
		default:
			doc.Fields = append(doc.Fields, Field{
				Name: field, Value: v, Stored: def.Stored, Indexed: def.Indexed,
				Tokenised: true, Analyzer: b.analyzers.ForDataType(def.DataType, true),
			})
		}
	}
}

func (b *Builder) addML(doc *Document, def dictionary.PropertyDef, value repository.PropertyValue) {
	field := PropertyField(def.Name)
	tokenised := def.Tokenised != dictionary.TokeniseFalse
	analyzer := b.analyzers.ForDataType(dictionary.TypeMLText, tokenised)
	tags := make([]string, 0, len(value.ML))
	for tag := range value.ML {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	for _, tag := range tags {
		loc, err := locale.Parse(tag)
		if err != nil {
			b.logger.Warn("invalid locale on multilingual value, using default",
				"property", def.Name.String(), "locale", tag, "error", err)
			loc = b.analyzers.DefaultLocale()
		}
		doc.Fields = append(doc.Fields, Field{
			Name: field, Value: tokenizer.TagLocale(loc, value.ML[tag]),
			Stored: def.Stored, Indexed: def.Indexed, Tokenised: true, Analyzer: analyzer,
		})
	}
	for _, v := range value.Values {
		doc.Fields = append(doc.Fields, Field{
			Name: field, Value: tokenizer.TagLocale(b.analyzers.DefaultLocale(), v),
			Stored: def.Stored, Indexed: def.Indexed, Tokenised: true, Analyzer: analyzer,
		})
	}
}

func (b *Builder) addContent(ctx context.Context, doc *Document, def dictionary.PropertyDef, c repository.ContentData, withContent bool) {
	field := PropertyField(def.Name)
	if def.Stored {
		doc.Fields = append(doc.Fields, Field{Name: field, Value: c.URL, Stored: true})
	}
	if !def.Indexed {
		return
	}
	doc.Keyword(field+SuffixMimetype, c.Mimetype)
	doc.Keyword(field+SuffixSize, tokenizer.EncodeInt(c.Size))
	loc := b.analyzers.DefaultLocale()
	if c.Locale != "" {
		if parsed, err := locale.Parse(c.Locale); err == nil {
			loc = parsed
		}
	}
	doc.Keyword(field+SuffixLocale, loc.String())
	if !withContent {
		return
	}

	if b.content == nil {
		doc.Exact(field, NotIndexedNoTransformer)
		return
	}
	text, err := b.content.Text(ctx, c)
	switch {
	case errors.Is(err, repository.ErrNoTransformer):
		b.logger.Debug("no transformer for content", "property", def.Name.String(), "mimetype", c.Mimetype)
		doc.Exact(field, NotIndexedNoTransformer)
	case err != nil:
		b.logger.Warn("content transformation failed, content not indexed",
			"id", doc.ID(), "property", def.Name.String(), "url", c.URL, "error", err)
		doc.Exact(field, NotIndexedTransformFailed)
	default:
		doc.Fields = append(doc.Fields, Field{
			Name: field, Value: text, Indexed: true, Tokenised: true,
			Analyzer: b.analyzers.ForDataType(dictionary.TypeContent, true),
		})
	}
}
