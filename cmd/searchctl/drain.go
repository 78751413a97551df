package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"gopkg.in/urfave/cli.v1"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/txn"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/repository"
)

var drainCommand = cli.Command{
	Name:  "drain",
	Usage: "Run background full-text passes until nothing is left",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "store, s", Usage: "store to drain; every store when empty"},
	},
	Action: runDrain,
}

func runDrain(c *cli.Context) error {
	e, err := openEnv(c, false)
	if err != nil {
		return err
	}
	defer e.Close()

	mgr := e.manager()
	stores := mgr.Stores()
	if s := c.String("store"); s != "" {
		stores = []repository.StoreRef{repository.StoreRef(s)}
	}
	for _, s := range stores {
		res, err := mgr.DrainAll(context.Background(), s)
		if err != nil {
			return fmt.Errorf("draining %s: %w", s, err)
		}
		fmt.Fprintf(c.App.Writer, "%s: indexed %d, %d remaining\n", s, res.Processed, res.Remaining)
	}
	return nil
}

var snapshotsCommand = cli.Command{
	Name:      "snapshots",
	Usage:     "Report the last indexed snapshot of a store",
	ArgsUsage: "[SNAPSHOT_ID]",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "store, s", Value: "workspace://SpacesStore", Usage: "store to inspect"},
	},
	Action: runSnapshots,
}

func runSnapshots(c *cli.Context) error {
	e, err := openEnv(c, true)
	if err != nil {
		return err
	}
	defer e.Close()

	mgr := txn.NewManager(e.router, txn.Services{})
	s := repository.StoreRef(c.String("store"))
	out := map[string]any{"store": s, "lastIndexed": mgr.LastIndexedSnapshot(s)}
	if arg := c.Args().First(); arg != "" {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return fmt.Errorf("snapshot id %q is not a number", arg)
		}
		out["snapshot"] = id
		out["indexed"] = mgr.IsSnapshotIndexed(s, id)
		out["searchable"] = mgr.IsSnapshotSearchable(s, id)
	}
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
