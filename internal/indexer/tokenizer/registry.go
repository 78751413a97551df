package tokenizer

import (
	"fmt"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/registry"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/dictionary"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/locale"
)

// TextAnalyzerName is the default analyzer for tokenised text: unicode word
// segmentation and lower-casing, no stop words and no stemming, so that
// wildcard and phrase queries see the surface forms.
const TextAnalyzerName = "repository_text"

func init() {
	registry.RegisterAnalyzer(TextAnalyzerName, newTextAnalyzer)
}

func newTextAnalyzer(config map[string]interface{}, cache *registry.Cache) (analysis.Analyzer, error) {
	tok, err := cache.TokenizerNamed(unicode.Name)
	if err != nil {
		return nil, err
	}
	lower, err := cache.TokenFilterNamed(lowercase.Name)
	if err != nil {
		return nil, err
	}
	return &analysis.DefaultAnalyzer{
		Tokenizer:    tok,
		TokenFilters: []analysis.TokenFilter{lower},
	}, nil
}

// Registry picks the analyzer for a field from its data type.
type Registry struct {
	text     Analyzer
	keyword  Analyzer
	integer  Analyzer
	float    Analyzer
	date     Analyzer
	mlLocale locale.Locale
}

// Options configure a Registry.
type Options struct {
	// TextAnalyzer names a registered bleve analyzer for tokenised text;
	// "en" enables english stemming.
	TextAnalyzer  string
	DefaultLocale locale.Locale
}

// NewRegistry resolves the bleve analyzers once.
func NewRegistry(opts Options) (*Registry, error) {
	name := opts.TextAnalyzer
	if name == "" {
		name = TextAnalyzerName
	}
	if name != TextAnalyzerName && name != en.AnalyzerName {
		return nil, fmt.Errorf("unsupported text analyzer %q", name)
	}
	cache := registry.NewCache()
	text, err := cache.AnalyzerNamed(name)
	if err != nil {
		return nil, fmt.Errorf("loading analyzer %s: %w", name, err)
	}
	kw, err := cache.AnalyzerNamed(keyword.Name)
	if err != nil {
		return nil, fmt.Errorf("loading analyzer %s: %w", keyword.Name, err)
	}
	return &Registry{
		text:     NewBleve(text),
		keyword:  NewBleve(kw),
		integer:  integerAnalyzer{},
		float:    floatAnalyzer{},
		date:     dateAnalyzer{},
		mlLocale: opts.DefaultLocale,
	}, nil
}

// Text is the tokenising analyzer.
func (r *Registry) Text() Analyzer { return r.text }

// Keyword emits the whole value as one token.
func (r *Registry) Keyword() Analyzer { return r.keyword }

// DefaultLocale is the locale assumed for untagged multilingual text.
func (r *Registry) DefaultLocale() locale.Locale { return r.mlLocale }

// ForDataType returns the analyzer for values of dataType. tokenised only
// affects text-like types.
func (r *Registry) ForDataType(dataType dictionary.QName, tokenised bool) Analyzer {
	switch dataType {
	case dictionary.TypeText, dictionary.TypeContent, dictionary.TypeAny:
		if tokenised {
			return r.text
		}
		return r.keyword
	case dictionary.TypeMLText:
		if tokenised {
			return NewMLAnalyzer(r.text, r.mlLocale, locale.ExactLocale)
		}
		return NewMLAnalyzer(r.keyword, r.mlLocale, locale.ExactLocale)
	case dictionary.TypeInt, dictionary.TypeLong:
		return r.integer
	case dictionary.TypeFloat, dictionary.TypeDouble:
		return r.float
	case dictionary.TypeDate, dictionary.TypeDatetime:
		return r.date
	default:
		return r.keyword
	}
}

// ForMLQuery returns a multilingual analyzer that expands tokens with mode.
func (r *Registry) ForMLQuery(tokenised bool, mode locale.AnalysisMode) Analyzer {
	base := r.keyword
	if tokenised {
		base = r.text
	}
	return NewMLAnalyzer(base, r.mlLocale, mode)
}
