// Command searchctl administers a local index directory: it loads nodes,
// runs queries, drains background work, reports snapshots and manages API
// keys.
package main

import (
	"log/slog"
	"os"

	"gopkg.in/urfave/cli.v1"

	"github.com/Adithya-Monish-Kumar-K/repository-search/pkg/logger"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		slog.Error("searchctl failed", "error", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "searchctl"
	app.HelpName = os.Args[0]
	app.Usage = "repository search administration"
	app.HideVersion = true
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "config, c", Value: "configs/development.yaml", Usage: "path to config file"},
		cli.StringFlag{Name: "data-dir", Usage: "index data directory, overriding the config"},
		cli.StringFlag{Name: "nodes", Usage: "JSON lines file of repository nodes, used instead of postgres"},
		cli.StringFlag{Name: "log-level", Value: "warn", Usage: "log level"},
	}
	app.Commands = []cli.Command{
		loadCommand,
		queryCommand,
		drainCommand,
		snapshotsCommand,
		keysCommand,
	}
	app.Before = func(ctx *cli.Context) error {
		// stdout carries command output
		slog.SetDefault(logger.New(os.Stderr, ctx.String("log-level"), "text"))
		return nil
	}
	return app
}
