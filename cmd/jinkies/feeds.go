package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/abelbrown/jinkies/internal/config"
	"github.com/abelbrown/jinkies/internal/importer"
	"github.com/abelbrown/jinkies/internal/model"
	"github.com/abelbrown/jinkies/internal/urlcheck"
	"github.com/abelbrown/jinkies/internal/vault"
)

func addCmd() *cli.Command {
	return &cli.Command{
		Name:      "add",
		Usage:     "add a feed to the watch list",
		ArgsUsage: "<url>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "name",
				Usage: "display name for the feed (defaults to the URL)",
			},
			&cli.StringFlag{
				Name:  "user",
				Usage: "username for HTTP Basic auth (requires an https:// URL)",
			},
			&cli.StringFlag{
				Name:  "token",
				Usage: "API token or password for HTTP Basic auth",
			},
		},
		Action: func(ctx *cli.Context) error {
			rawURL := ctx.Args().First()
			if err := urlcheck.Validate(rawURL); err != nil {
				return err
			}
			url := strings.TrimSpace(rawURL)

			dir, err := configDir(ctx)
			if err != nil {
				return err
			}
			cfg, err := config.LoadConfig(dir)
			if err != nil {
				return err
			}
			if cfg.FindFeed(url) >= 0 {
				return fmt.Errorf("feed already configured: %s", url)
			}

			user, token := ctx.String("user"), ctx.String("token")
			if (user == "") != (token == "") {
				return fmt.Errorf("--user and --token must be given together")
			}
			if user != "" {
				// Vault refuses non-HTTPS URLs before anything is written.
				v := vault.New(vault.NewKeyringStore())
				if err := v.Store(url, user, token); err != nil {
					return err
				}
			}

			name := ctx.String("name")
			if name == "" {
				name = url
			}
			cfg.Feeds = append(cfg.Feeds, model.Feed{URL: url, Name: name, Enabled: true})
			if err := config.SaveConfig(dir, cfg); err != nil {
				return err
			}
			fmt.Printf("added %s\n", url)
			return nil
		},
	}
}

func removeCmd() *cli.Command {
	return &cli.Command{
		Name:      "remove",
		Usage:     "remove a feed and purge its stored credentials",
		ArgsUsage: "<url>",
		Action: func(ctx *cli.Context) error {
			url := strings.TrimSpace(ctx.Args().First())
			if url == "" {
				return fmt.Errorf("feed URL required")
			}

			dir, err := configDir(ctx)
			if err != nil {
				return err
			}
			cfg, err := config.LoadConfig(dir)
			if err != nil {
				return err
			}
			i := cfg.FindFeed(url)
			if i < 0 {
				return fmt.Errorf("no such feed: %s", url)
			}
			cfg.Feeds = append(cfg.Feeds[:i], cfg.Feeds[i+1:]...)
			if err := config.SaveConfig(dir, cfg); err != nil {
				return err
			}

			// Credentials must not outlive the feed they belong to.
			if err := vault.New(vault.NewKeyringStore()).Delete(url); err != nil {
				log.WithField("feed", url).WithError(err).Warn("failed to purge credentials")
			}
			fmt.Printf("removed %s\n", url)
			return nil
		},
	}
}

func listCmd() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "list configured feeds",
		Action: func(ctx *cli.Context) error {
			dir, err := configDir(ctx)
			if err != nil {
				return err
			}
			cfg, err := config.LoadConfig(dir)
			if err != nil {
				return err
			}
			if len(cfg.Feeds) == 0 {
				fmt.Println("no feeds configured")
				return nil
			}
			for _, f := range cfg.Feeds {
				status := "enabled"
				if !f.Enabled {
					status = "disabled"
				}
				last := f.LastPollTime
				if last == "" {
					last = "never"
				}
				fmt.Printf("%-8s  %-30s  last poll %-22s  %s\n", status, f.Name, last, f.URL)
			}
			return nil
		},
	}
}

func importCmd() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "import feeds from an OPML file or a saved feed document",
		ArgsUsage: "<file>",
		Description: `OPML files (.opml) contribute one feed per outline with an
xmlUrl. Any other file is parsed as a saved Atom/RSS document:
the feed itself is imported, and Jenkins job links found in its
entries are mined into additional per-job feeds.`,
		Action: func(ctx *cli.Context) error {
			path := ctx.Args().First()
			if path == "" {
				return fmt.Errorf("file path required")
			}

			opml, err := isOPML(path)
			if err != nil {
				return err
			}
			var feeds []model.Feed
			if opml {
				feeds, err = importer.ImportOPML(path)
			} else {
				feeds, err = importer.ImportLocalFeed(path)
			}
			if err != nil {
				return err
			}

			dir, err := configDir(ctx)
			if err != nil {
				return err
			}
			cfg, err := config.LoadConfig(dir)
			if err != nil {
				return err
			}

			added := 0
			for _, f := range feeds {
				if cfg.FindFeed(f.URL) >= 0 {
					log.WithField("feed", f.URL).Debug("already configured, skipping")
					continue
				}
				cfg.Feeds = append(cfg.Feeds, f)
				fmt.Printf("imported %s (%s)\n", f.Name, f.URL)
				added++
			}
			if added == 0 {
				fmt.Println("nothing new to import")
				return nil
			}
			return config.SaveConfig(dir, cfg)
		},
	}
}

// isOPML routes an import file to the right parser. A .opml extension
// is definitive; .xml is ambiguous between OPML and a feed document,
// so the content decides.
func isOPML(path string) (bool, error) {
	if strings.EqualFold(filepath.Ext(path), ".opml") {
		return true, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	return strings.Contains(strings.ToLower(string(head)), "<opml"), nil
}
