package executor

import (
	"fmt"
	"slices"
	"time"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/repository"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/searcher/resultset"
	apperrors "github.com/Adithya-Monish-Kumar-K/repository-search/pkg/errors"
)

// SortType selects what a sort definition orders by.
type SortType string

const (
	SortByField    SortType = "FIELD"
	SortByDocument SortType = "DOCUMENT"
	SortByScore    SortType = "SCORE"
)

// SortDefinition is one sort key. Field names a property (@cm:name, cm:name
// or {uri}local) or a structural field such as ID or TX.
type SortDefinition struct {
	Type      SortType `json:"type"`
	Field     string   `json:"field,omitempty"`
	Ascending bool     `json:"ascending"`
}

// SearchParameters describe one query.
type SearchParameters struct {
	Stores   []repository.StoreRef `json:"stores"`
	Language string                `json:"language"`
	Query    string                `json:"query"`

	Definitions []parser.Definition `json:"parameterDefinitions,omitempty"`
	Values      []parser.Value      `json:"parameters,omitempty"`

	// DefaultOperator is AND or OR; the configured default when empty.
	DefaultOperator string `json:"defaultOperator,omitempty"`
	// DefaultField scopes unqualified terms; TEXT when empty.
	DefaultField string           `json:"defaultFieldName,omitempty"`
	Sort         []SortDefinition `json:"sort,omitempty"`

	Locales        []string `json:"locales,omitempty"`
	MLAnalysisMode string   `json:"mlAnalysisMode,omitempty"`

	LimitBy   resultset.LimitBy `json:"limitBy,omitempty"`
	Limit     int               `json:"limit,omitempty"`
	FetchSize int               `json:"bulkFetchSize,omitempty"`

	// TxID names the caller's open transaction. Its uncommitted changes are
	// searched unless ExcludeUncommitted is set.
	TxID               string `json:"txId,omitempty"`
	ExcludeUncommitted bool   `json:"excludeDataInTheCurrentTransaction,omitempty"`

	// Zero budgets fall back to the configured defaults.
	MaxPermissionChecks          int   `json:"maxPermissionChecks,omitempty"`
	MaxPermissionCheckTimeMillis int64 `json:"maxPermissionCheckTimeMillis,omitempty"`

	TextAttributes []string            `json:"textAttributes,omitempty"`
	AllAttributes  []string            `json:"allAttributes,omitempty"`
	Templates      map[string][]string `json:"queryTemplates,omitempty"`
}

// Store is the single store the query runs against.
func (p *SearchParameters) Store() repository.StoreRef {
	if len(p.Stores) == 0 {
		return ""
	}
	return p.Stores[0]
}

// MaxPermissionCheckTime is the wall-clock permission budget.
func (p *SearchParameters) MaxPermissionCheckTime() time.Duration {
	return time.Duration(p.MaxPermissionCheckTimeMillis) * time.Millisecond
}

// Validate checks the parameters that do not depend on the index.
func (p *SearchParameters) Validate() error {
	if len(p.Stores) != 1 {
		return apperrors.Newf(apperrors.ErrInvalidInput, 400, "exactly one store must be searched, got %d", len(p.Stores))
	}
	if p.Stores[0] == "" {
		return apperrors.New(apperrors.ErrInvalidInput, 400, "store is empty")
	}
	if !slices.Contains(parser.Languages, p.Language) {
		return apperrors.Newf(apperrors.ErrInvalidInput, 400, "unsupported query language %q", p.Language)
	}
	if _, err := resultset.ParseLimitBy(string(p.LimitBy)); err != nil {
		return err
	}
	if p.Limit < 0 || p.FetchSize < 0 || p.MaxPermissionChecks < 0 || p.MaxPermissionCheckTimeMillis < 0 {
		return apperrors.New(apperrors.ErrInvalidInput, 400, "limits must not be negative")
	}
	for _, s := range p.Sort {
		switch s.Type {
		case SortByDocument, SortByScore:
		case SortByField:
			if s.Field == "" {
				return apperrors.New(apperrors.ErrInvalidInput, 400, "field sort without a field")
			}
		default:
			return apperrors.Newf(apperrors.ErrInvalidInput, 400, "unknown sort type %q", s.Type)
		}
	}
	return nil
}

func (s SortDefinition) String() string {
	dir := "desc"
	if s.Ascending {
		dir = "asc"
	}
	if s.Type == SortByField {
		return fmt.Sprintf("%s %s", s.Field, dir)
	}
	return fmt.Sprintf("%s %s", s.Type, dir)
}
