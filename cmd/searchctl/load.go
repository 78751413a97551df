package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gopkg.in/urfave/cli.v1"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/txn"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/repository"
)

var loadCommand = cli.Command{
	Name:  "load",
	Usage: "Index every node of a store in one transaction",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "store, s", Value: "workspace://SpacesStore", Usage: "store to index"},
		cli.StringFlag{Name: "mode, m", Value: "SYNCHRONOUS", Usage: "SYNCHRONOUS, ASYNCHRONOUS or UNINDEXED"},
		cli.BoolFlag{Name: "rebuild", Usage: "drop the existing index of the store first"},
	},
	Action: runLoad,
}

func runLoad(c *cli.Context) error {
	s := repository.StoreRef(c.String("store"))
	if s == "" {
		return errors.New("no store specified")
	}
	mode, err := txn.ParseMode(c.String("mode"))
	if err != nil {
		return err
	}
	e, err := openEnv(c, false)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := context.Background()
	mgr := e.manager()
	ix, err := mgr.Indexer(s, "load-"+uuid.NewString())
	if err != nil {
		return err
	}
	if err := load(ctx, ix, mode, c.Bool("rebuild")); err != nil {
		if rbErr := ix.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	fmt.Fprintf(c.App.Writer, "indexed %s (%s), last indexed snapshot %d\n", s, mode, mgr.LastIndexedSnapshot(s))

	if mode == txn.Asynchronous {
		res, err := mgr.DrainAll(ctx, s)
		if err != nil {
			return fmt.Errorf("background pass: %w", err)
		}
		fmt.Fprintf(c.App.Writer, "background pass indexed %d, %d remaining\n", res.Processed, res.Remaining)
	}
	return nil
}

func load(ctx context.Context, ix *txn.Indexer, mode txn.Mode, rebuild bool) error {
	if rebuild {
		if err := ix.DeleteIndex(ctx, txn.Synchronous); err != nil {
			return fmt.Errorf("dropping index: %w", err)
		}
	}
	if err := ix.CreateIndex(ctx, mode); err != nil {
		return fmt.Errorf("indexing store: %w", err)
	}
	if err := ix.Prepare(); err != nil {
		return fmt.Errorf("prepare failed: %w", err)
	}
	if err := ix.Commit(); err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}
	return nil
}
