// Package executor runs queries: it substitutes parameters, compiles the
// query in its language, evaluates it against one store's index and turns
// the matches into a sorted, permission-filtered result set.
package executor

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/dictionary"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/txn"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/locale"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/repository"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/searcher/builder"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/searcher/parser/fts"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/searcher/parser/lucene"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/searcher/parser/xpath"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/searcher/resultset"
	"github.com/Adithya-Monish-Kumar-K/repository-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/repository-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/repository-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/repository-search/pkg/tracing"
)

// Options are the collaborators of an Executor.
type Options struct {
	Dictionary *dictionary.Dictionary
	Analyzers  *tokenizer.Registry
	Router     *store.Router
	// Transactions resolves open transactions for queries that include
	// uncommitted data. Without it every query searches committed data.
	Transactions *txn.Manager
	// Permissions filters rows; AllowAll when nil.
	Permissions PermissionEvaluator
	Search      config.SearchConfig
	Metrics     *metrics.Metrics
}

// Executor runs queries. It is safe for concurrent use.
type Executor struct {
	dict    *dictionary.Dictionary
	reg     *tokenizer.Registry
	router  *store.Router
	txns    *txn.Manager
	perms   PermissionEvaluator
	cfg     config.SearchConfig
	metrics *metrics.Metrics
	now     func() time.Time
	logger  *slog.Logger
}

// New creates an Executor.
func New(opts Options) *Executor {
	perms := opts.Permissions
	if perms == nil {
		perms = AllowAll{}
	}
	return &Executor{
		dict:    opts.Dictionary,
		reg:     opts.Analyzers,
		router:  opts.Router,
		txns:    opts.Transactions,
		perms:   perms,
		cfg:     opts.Search,
		metrics: opts.Metrics,
		now:     time.Now,
		logger:  slog.Default().With("component", "query-executor"),
	}
}

// Query runs p against its store.
func (e *Executor) Query(ctx context.Context, p SearchParameters) (*resultset.ResultSet, error) {
	start := time.Now()
	rs, err := e.query(ctx, p)
	rows := 0
	if rs != nil {
		rows = rs.Length()
	}
	e.metrics.ObserveQuery(p.Language, outcome(err), time.Since(start), rows)
	return rs, err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, apperrors.ErrParse):
		return "parse_error"
	case errors.Is(err, apperrors.ErrUnresolved):
		return "unresolved"
	}
	return "error"
}

type plan struct {
	params  SearchParameters
	query   string
	ns      dictionary.NamespaceResolver
	locales []locale.Locale
	mode    locale.AnalysisMode
	keys    []sortKey
}

func (e *Executor) query(ctx context.Context, p SearchParameters) (*resultset.ResultSet, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if e.cfg.TimeoutPerQuery > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.TimeoutPerQuery)
		defer cancel()
	}
	ctx, span := tracing.StartChildSpan(ctx, "query")
	defer span.End()
	span.SetAttr("language", p.Language)
	span.SetAttr("store", string(p.Store()))

	pl := plan{params: p, ns: e.dict.Namespaces()}
	var err error
	if pl.query, err = parser.Substitute(p.Query, p.Definitions, p.Values, pl.ns); err != nil {
		return nil, err
	}
	if pl.locales, pl.mode, err = e.locales(p); err != nil {
		return nil, err
	}
	if pl.keys, err = sortKeys(p.Sort, e.dict, pl.ns); err != nil {
		return nil, err
	}

	var rs *resultset.ResultSet
	err = e.view(p, func(leaves []index.Reader) error {
		var err error
		rs, err = e.run(ctx, pl, leaves)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rs, nil
}

func (e *Executor) locales(p SearchParameters) ([]locale.Locale, locale.AnalysisMode, error) {
	tags := p.Locales
	if len(tags) == 0 && e.cfg.DefaultLocale != "" {
		tags = []string{e.cfg.DefaultLocale}
	}
	locales := make([]locale.Locale, 0, len(tags))
	for _, tag := range tags {
		l, err := locale.Parse(tag)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
		}
		locales = append(locales, l)
	}
	var mode locale.AnalysisMode
	if name := cmp.Or(p.MLAnalysisMode, e.cfg.DefaultMLAnalysisMode); name != "" {
		m, err := locale.ParseMode(name)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
		}
		mode = m
	}
	return locales, mode, nil
}

// view runs fn over the leaves the query must see: the caller's open
// transaction when it asked for uncommitted data, the committed index
// otherwise.
func (e *Executor) view(p SearchParameters, fn func(leaves []index.Reader) error) error {
	s := p.Store()
	if p.TxID != "" && !p.ExcludeUncommitted && e.txns != nil {
		if ix, ok := e.txns.Lookup(s, p.TxID); ok {
			return ix.Search(fn)
		}
		e.logger.Debug("transaction not open, searching committed data", "store", s, "tx", p.TxID)
	}
	engine, ok := e.router.Lookup(s)
	if !ok {
		return apperrors.Newf(apperrors.ErrNotFound, 404, "store %s has no index", s)
	}
	g := engine.Acquire()
	defer g.Release()
	return fn(g.Leaves())
}

func (e *Executor) run(ctx context.Context, pl plan, leaves []index.Reader) (*resultset.ResultSet, error) {
	p := pl.params
	searcher := query.NewSearcher(leaves, query.Options{
		MaxExpansions: e.cfg.MaxWildcardExpansions,
		Concurrency:   e.cfg.MaxConcurrentLeafSearch,
	})

	_, buildSpan := tracing.StartChildSpan(ctx, "build")
	n, err := e.compile(pl, builder.Options{
		Dictionary:             e.dict,
		Analyzers:              e.reg,
		Namespaces:             pl.ns,
		Terms:                  searcher,
		TextAttributes:         p.TextAttributes,
		AllAttributes:          p.AllAttributes,
		Locales:                pl.locales,
		MLAnalysisMode:         pl.mode,
		LowerCaseExpandedTerms: e.cfg.LowerCaseExpandedTerms,
		CaseInsensitiveRanges:  e.cfg.CaseInsensitiveRanges,
		MaxExpansions:          e.cfg.MaxWildcardExpansions,
	})
	buildSpan.End()
	if err != nil {
		return nil, err
	}
	e.logger.Debug("compiled query", "store", p.Store(), "language", p.Language, "query", n.String(), "sort", p.Sort)

	execCtx, execSpan := tracing.StartChildSpan(ctx, "execute")
	defer execSpan.End()
	hits, err := searcher.Search(execCtx, n)
	if err != nil {
		return nil, err
	}
	nodes, err := searcher.Search(execCtx, &query.Term{Field: document.FieldIsNode, Text: document.True})
	if err != nil {
		return nil, err
	}
	for i, h := range hits {
		h.Docs = roaring.And(h.Docs, nodes[i].Docs)
	}

	cs := make([]candidate, 0)
	for i, h := range hits {
		it := h.Docs.Iterator()
		for it.HasNext() {
			doc := it.Next()
			cs = append(cs, candidate{ScoredDoc: ranker.ScoredDoc{Leaf: i, Doc: doc, Score: ranker.Round(h.Score(doc))}})
		}
	}
	// stored values are loaded up front only when sorting needs them
	if hasFieldSort(pl.keys) {
		for i := range cs {
			if err := load(leaves, &cs[i]); err != nil {
				return nil, err
			}
		}
	}
	sortCandidates(cs, pl.keys, pl.locales)
	execSpan.SetAttr("matches", len(cs))

	return e.filter(ctx, pl, leaves, cs)
}

func hasFieldSort(keys []sortKey) bool {
	for _, k := range keys {
		if k.def.Type == SortByField {
			return true
		}
	}
	return false
}

func load(leaves []index.Reader, c *candidate) error {
	if c.stored != nil {
		return nil
	}
	stored, err := leaves[c.Leaf].Document(c.Doc)
	if err != nil {
		return apperrors.IndexIO("loading matched document", err)
	}
	c.stored = stored
	c.ID = stored.ID()
	return nil
}

func (e *Executor) compile(pl plan, bo builder.Options) (query.Node, error) {
	p := pl.params
	op := cmp.Or(p.DefaultOperator, e.cfg.DefaultOperator)
	switch p.Language {
	case parser.LanguageLucene:
		return lucene.New(builder.New(bo), lucene.Options{
			DefaultField:    p.DefaultField,
			DefaultOperator: lucene.ParseOperator(op),
		}).Parse(pl.query)
	case parser.LanguageXPath:
		return xpath.Compile(pl.query, pl.ns, false)
	case parser.LanguageFTS:
		return fts.NewEngine(bo).Query(pl.query, fts.QueryOptions{
			FetchSize:                p.FetchSize,
			MaxItems:                 p.Limit,
			Locales:                  pl.locales,
			Connective:               fts.ParseConnective(op),
			Store:                    string(p.Store()),
			IncludeInTransactionData: p.TxID != "" && !p.ExcludeUncommitted,
			DefaultField:             p.DefaultField,
			Templates:                p.Templates,
		})
	}
	return nil, apperrors.Newf(apperrors.ErrInvalidInput, 400, "unsupported query language %q", p.Language)
}

// filter walks the sorted candidates, keeping the readable ones until a
// limit or the permission budget stops it. Running out of budget truncates
// the result instead of failing the query.
func (e *Executor) filter(ctx context.Context, pl plan, leaves []index.Reader, cs []candidate) (*resultset.ResultSet, error) {
	p := pl.params
	b := budget{
		maxChecks: cmp.Or(p.MaxPermissionChecks, e.cfg.MaxPermissionChecks),
		maxTime:   cmp.Or(p.MaxPermissionCheckTime(), e.cfg.MaxPermissionCheckTime),
		start:     e.now(),
		now:       e.now,
	}
	limitBy, _ := resultset.ParseLimitBy(string(p.LimitBy))
	switch limitBy {
	case resultset.FinalSize:
		b.finalSize = cmp.Or(p.Limit, e.cfg.DefaultLimit)
	case resultset.NumberOfPermissionEvaluations:
		if p.Limit > 0 {
			b.maxChecks = p.Limit
		}
	}

	meta := resultset.Metadata{Store: p.Store(), Language: p.Language, LimitedBy: resultset.Unlimited}
	rows := make([]resultset.Row, 0, min(len(cs), cmp.Or(p.FetchSize, len(cs))))
	for i := range cs {
		if by, stop := b.exhausted(len(rows)); stop {
			meta.LimitedBy, meta.Truncated = by, true
			if by == resultset.NumberOfPermissionEvaluations {
				e.logger.Warn("permission check budget exhausted, truncating results",
					"store", p.Store(), "checks", b.checks, "elapsed", e.now().Sub(b.start),
					"kept", len(rows), "unchecked", len(cs)-i)
				e.metrics.PermissionTruncated()
			}
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: query stopped after %d permission checks: %v", apperrors.ErrTimeout, b.checks, err)
		}
		c := &cs[i]
		if err := load(leaves, c); err != nil {
			return nil, err
		}
		ref := repository.NodeRef(c.ID)
		b.checks++
		ok, err := e.perms.CanRead(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("checking read permission on %s: %w", ref, err)
		}
		if !ok {
			continue
		}
		rows = append(rows, resultset.Row{NodeRef: ref, Score: c.Score, Values: c.stored})
	}
	return resultset.New(rows, meta), nil
}
