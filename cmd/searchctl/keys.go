package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/urfave/cli.v1"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/repository-search/pkg/postgres"
)

var keysCommand = cli.Command{
	Name:  "keys",
	Usage: "Manage API keys (needs postgres)",
	Subcommands: []cli.Command{
		{
			Name:  "create",
			Usage: "Issue a key; the raw key is printed once",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "principal, p", Usage: "user the key authenticates"},
				cli.StringSliceFlag{Name: "authority, a", Usage: "group or role held by the principal, repeatable"},
				cli.StringFlag{Name: "name", Usage: "label for the key"},
				cli.IntFlag{Name: "rate-limit", Value: 100, Usage: "requests per rate limit window, 0 for unlimited"},
				cli.DurationFlag{Name: "expires-in", Usage: "lifetime, e.g. 720h"},
			},
			Action: withValidator(runKeysCreate),
		},
		{
			Name:      "revoke",
			Usage:     "Deactivate a key",
			ArgsUsage: "RAW_KEY",
			Action:    withValidator(runKeysRevoke),
		},
		{
			Name:   "list",
			Usage:  "List active keys",
			Action: withValidator(runKeysList),
		},
	},
}

func withValidator(fn func(c *cli.Context, v *apikey.Validator) error) func(*cli.Context) error {
	return func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			return err
		}
		defer db.Close()
		keys := apikey.NewPostgresStore(db)
		if err := keys.Migrate(context.Background()); err != nil {
			return err
		}
		return fn(c, apikey.NewValidator(keys))
	}
}

func runKeysCreate(c *cli.Context, v *apikey.Validator) error {
	spec := apikey.KeyInfo{
		Name:        c.String("name"),
		Principal:   c.String("principal"),
		Authorities: c.StringSlice("authority"),
		RateLimit:   c.Int("rate-limit"),
	}
	if d := c.Duration("expires-in"); d > 0 {
		at := time.Now().Add(d).UTC()
		spec.ExpiresAt = &at
	}
	raw, info, err := v.CreateKey(context.Background(), spec)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "id:        %s\n", info.ID)
	fmt.Fprintf(c.App.Writer, "principal: %s\n", info.Principal)
	fmt.Fprintf(c.App.Writer, "key:       %s\n", raw)
	return nil
}

func runKeysRevoke(c *cli.Context, v *apikey.Validator) error {
	raw := c.Args().First()
	if raw == "" {
		return errors.New("no key specified")
	}
	if err := v.RevokeKey(context.Background(), raw); err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, "revoked")
	return nil
}

func runKeysList(c *cli.Context, v *apikey.Validator) error {
	keys, err := v.ListKeys(context.Background())
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tPRINCIPAL\tAUTHORITIES\tRATE\tEXPIRES")
	for _, k := range keys {
		expires := "never"
		if k.ExpiresAt != nil {
			expires = k.ExpiresAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n", k.ID, k.Name, k.Principal, strings.Join(k.Authorities, ","), k.RateLimit, expires)
	}
	return w.Flush()
}
