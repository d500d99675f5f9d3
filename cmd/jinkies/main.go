// Jinkies is a background Atom/RSS feed monitor. It polls configured
// feeds on an interval, deduplicates entries against a persistent
// ledger, and surfaces only entries it has never reported before.
//
// Feed credentials live in the OS secret store, never in config files,
// and are only ever sent over HTTPS.
package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/abelbrown/jinkies/internal/config"
)

func main() {
	if err := app().Run(os.Args); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func app() *cli.App {
	return &cli.App{
		Name:  "jinkies",
		Usage: "background Atom/RSS feed monitor",
		Description: `Jinkies watches Atom and RSS feeds (Jenkins build feeds in
particular) and reports entries it has not seen before. Feeds,
the poll interval, and the seen-entry ledger are persisted in the
platform config directory; credentials go to the OS keychain.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config-dir",
				Usage:   "override the config directory",
				EnvVars: []string{"JINKIES_CONFIG_DIR"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "log level (debug, info, warn, error)",
				EnvVars: []string{"JINKIES_LOG_LEVEL"},
			},
		},
		Commands: []*cli.Command{
			runCmd(),
			addCmd(),
			removeCmd(),
			listCmd(),
			importCmd(),
			entriesCmd(),
		},
		Action: func(ctx *cli.Context) error {
			return cli.ShowAppHelp(ctx)
		},
	}
}

// configDir resolves the config directory from the flag or the
// platform default, creating it if needed.
func configDir(ctx *cli.Context) (string, error) {
	dir := ctx.String("config-dir")
	if dir == "" {
		var err error
		dir, err = config.Dir()
		if err != nil {
			return "", err
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create config directory: %w", err)
	}
	return dir, nil
}
