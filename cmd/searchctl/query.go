package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"gopkg.in/urfave/cli.v1"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/auth"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/repository"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/searcher/resultset"
)

var queryCommand = cli.Command{
	Name:      "query",
	Usage:     "Run a query against the committed index",
	ArgsUsage: "QUERY",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "store, s", Value: "workspace://SpacesStore", Usage: "store to search"},
		cli.StringFlag{Name: "language, l", Value: "lucene", Usage: "lucene, xpath or fts"},
		cli.IntFlag{Name: "limit", Usage: "maximum number of rows"},
		cli.StringSliceFlag{Name: "locale", Usage: "query locale, repeatable"},
		cli.StringSliceFlag{Name: "sort", Usage: "SCORE, DOCUMENT or a field such as @cm:name; prefix - for descending"},
		cli.StringFlag{Name: "operator", Usage: "default operator, AND or OR"},
		cli.StringFlag{Name: "as", Usage: "evaluate read permissions as this principal"},
		cli.StringSliceFlag{Name: "authority", Usage: "authority held by --as, repeatable"},
		cli.BoolFlag{Name: "json", Usage: "print the result set as JSON"},
	},
	Action: runQuery,
}

func parseSort(specs []string) []executor.SortDefinition {
	var defs []executor.SortDefinition
	for _, spec := range specs {
		desc := strings.HasPrefix(spec, "-")
		spec = strings.TrimPrefix(spec, "-")
		def := executor.SortDefinition{Ascending: !desc}
		switch t := executor.SortType(strings.ToUpper(spec)); t {
		case executor.SortByScore, executor.SortByDocument:
			def.Type = t
		default:
			def.Type, def.Field = executor.SortByField, spec
		}
		defs = append(defs, def)
	}
	return defs
}

func runQuery(c *cli.Context) error {
	q := strings.Join(c.Args(), " ")
	if q == "" {
		return errors.New("no query specified")
	}
	e, err := openEnv(c, true)
	if err != nil {
		return err
	}
	defer e.Close()

	opts := executor.Options{
		Dictionary: e.dict,
		Analyzers:  e.analyzers,
		Router:     e.router,
		Search:     e.cfg.Search,
	}
	ctx := context.Background()
	if principal := c.String("as"); principal != "" {
		ctx = auth.WithCaller(ctx, auth.Caller{Principal: principal, Authorities: c.StringSlice("authority")})
		opts.Permissions = auth.NewReadEvaluator(e.nodes)
	}
	p := executor.SearchParameters{
		Stores:          []repository.StoreRef{repository.StoreRef(c.String("store"))},
		Language:        c.String("language"),
		Query:           q,
		DefaultOperator: c.String("operator"),
		Locales:         c.StringSlice("locale"),
		Sort:            parseSort(c.StringSlice("sort")),
	}
	if limit := c.Int("limit"); limit > 0 {
		p.LimitBy, p.Limit = resultset.FinalSize, limit
	}

	rs, err := executor.New(opts).Query(ctx, p)
	if err != nil {
		return err
	}
	if c.Bool("json") {
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(rs)
	}
	w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SCORE\tNODE")
	for i := 0; i < rs.Length(); i++ {
		row, err := rs.Row(i)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%.4f\t%s\n", row.Score, row.NodeRef)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	meta := rs.Metadata()
	fmt.Fprintf(c.App.Writer, "%d rows, limited by %s\n", rs.Length(), meta.LimitedBy)
	return nil
}
