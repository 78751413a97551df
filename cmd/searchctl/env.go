package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/urfave/cli.v1"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/dictionary"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/txn"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/locale"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/repository"
	"github.com/Adithya-Monish-Kumar-K/repository-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/repository-search/pkg/postgres"
)

// env is what a command needs to touch the index.
type env struct {
	cfg       *config.Config
	dict      *dictionary.Dictionary
	analyzers *tokenizer.Registry
	router    *store.Router
	nodes     repository.NodeService
	changes   repository.ChangeSource
	db        *postgres.Client
}

func loadConfig(ctx *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(ctx.GlobalString("config"))
	if err != nil {
		return nil, err
	}
	if dir := ctx.GlobalString("data-dir"); dir != "" {
		cfg.Indexer.DataDir = dir
	}
	return cfg, nil
}

// openEnv opens the stores and the node source. Nodes come from the
// --nodes file when given, from postgres when enabled, and are otherwise
// absent.
func openEnv(ctx *cli.Context, readOnly bool) (*env, error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg}
	if e.dict, err = dictionary.LoadFile(cfg.Dictionary.ModelPath); err != nil {
		return nil, err
	}
	defaultLocale, err := locale.Parse(cfg.Search.DefaultLocale)
	if err != nil {
		return nil, fmt.Errorf("search.defaultLocale: %w", err)
	}
	if e.analyzers, err = tokenizer.NewRegistry(tokenizer.Options{DefaultLocale: defaultLocale}); err != nil {
		return nil, err
	}

	switch path := ctx.GlobalString("nodes"); {
	case path != "":
		mem, err := readNodes(path)
		if err != nil {
			return nil, err
		}
		e.nodes, e.changes = mem, mem
	case cfg.Postgres.Enabled:
		if e.db, err = postgres.New(cfg.Postgres); err != nil {
			return nil, err
		}
		repo := repository.NewPostgres(e.db)
		e.nodes, e.changes = repo, repo
	default:
		mem := repository.NewMemory()
		e.nodes, e.changes = mem, mem
	}

	indexCfg := cfg.Indexer
	indexCfg.ReadOnly = readOnly
	if e.router, err = store.NewRouter(indexCfg); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

func (e *env) manager() *txn.Manager {
	return txn.NewManager(e.router, txn.Services{
		Nodes:   e.nodes,
		Changes: e.changes,
		Builder: document.NewBuilder(e.dict, e.analyzers, e.nodes, repository.NewFileContent(e.cfg.Indexer.ContentRoot)),
	})
}

func (e *env) Close() {
	if e.router != nil {
		e.router.Close()
	}
	if e.db != nil {
		e.db.Close()
	}
}

// readNodes loads one JSON encoded repository.Node per line.
func readNodes(path string) (*repository.Memory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening nodes file: %w", err)
	}
	defer f.Close()

	mem := repository.NewMemory()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16<<20)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var n repository.Node
		if err := json.Unmarshal(scanner.Bytes(), &n); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		mem.Put(n)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading nodes file: %w", err)
	}
	return mem, nil
}
