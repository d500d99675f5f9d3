package main

import (
	"fmt"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/abelbrown/jinkies/internal/archive"
)

func entriesCmd() *cli.Command {
	return &cli.Command{
		Name:  "entries",
		Usage: "inspect archived entries",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "show recently discovered entries",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Value: 20,
						Usage: "maximum number of entries to show",
					},
				},
				Action: func(ctx *cli.Context) error {
					arch, err := openArchive(ctx)
					if err != nil {
						return err
					}
					defer arch.Close()

					entries, err := arch.Recent(ctx.Int("limit"))
					if err != nil {
						return err
					}
					if len(entries) == 0 {
						fmt.Println("no archived entries")
						return nil
					}
					for _, e := range entries {
						marker := " "
						if !e.Seen {
							marker = "*"
						}
						fmt.Printf("%s %-40s  %-20s  %s\n", marker, e.Title, e.Published, e.Link)
					}
					return nil
				},
			},
			{
				Name:      "seen",
				Usage:     "mark an archived entry as seen",
				ArgsUsage: "<entry-id>",
				Action: func(ctx *cli.Context) error {
					id := ctx.Args().First()
					if id == "" {
						return fmt.Errorf("entry id required")
					}
					arch, err := openArchive(ctx)
					if err != nil {
						return err
					}
					defer arch.Close()
					return arch.MarkSeen(id)
				},
			},
		},
	}
}

func openArchive(ctx *cli.Context) (*archive.Store, error) {
	dir, err := configDir(ctx)
	if err != nil {
		return nil, err
	}
	return archive.Open(filepath.Join(dir, "entries.db"))
}
