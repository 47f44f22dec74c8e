package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/kailas-cloud/netscout/internal/version"
)

func main() {
	_ = godotenv.Load()
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	apiFlags := []cli.Flag{
		&cli.StringFlag{
			Name:    "url",
			Usage:   "netscout API base URL",
			Value:   "http://localhost:8080",
			EnvVars: []string{"NETSCOUT_URL"},
		},
		&cli.StringFlag{
			Name:    "token",
			Usage:   "JWT or API key",
			EnvVars: []string{"NETSCOUT_TOKEN"},
		},
		&cli.StringFlag{
			Name:    "user",
			Usage:   "User id sent as X-User-ID (API keys and unauthenticated servers)",
			EnvVars: []string{"NETSCOUT_USER"},
		},
	}
	storeFlags := []cli.Flag{
		&cli.StringFlag{
			Name:    "env",
			Usage:   "Config environment (local, dev, prod)",
			Value:   "local",
			EnvVars: []string{"ENV"},
		},
		&cli.StringFlag{
			Name:  "config",
			Usage: "Explicit config file path, overrides --env",
		},
	}

	return &cli.App{
		Name:    "netscoutctl",
		Usage:   "Search your LinkedIn network and manage the netscout index",
		Version: version.String(),
		Commands: []*cli.Command{
			{
				Name:      "search",
				Usage:     "Run a natural-language search and print ranked results",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags: append(apiFlags,
					&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "Do not print progress steps"},
					&cli.BoolFlag{Name: "evidence", Usage: "Print per-trait evidence"},
				),
			},
			{
				Name:   "usage",
				Usage:  "Show search quota and provider budgets",
				Action: usageCommand,
				Flags: append(apiFlags,
					&cli.StringFlag{Name: "period", Usage: "day or month", Value: "day"},
				),
			},
			{
				Name:   "health",
				Usage:  "Show server dependency health",
				Action: healthCommand,
				Flags:  apiFlags,
			},
			{
				Name:   "migrate",
				Usage:  "Create the profile schema and pgvector extension",
				Action: migrateCommand,
				Flags:  storeFlags,
			},
			{
				Name:   "reindex",
				Usage:  "Backfill profile embeddings into the configured vector backend",
				Action: reindexCommand,
				Flags: append(storeFlags,
					&cli.StringFlag{Name: "owner", Usage: "Owner user id", Required: true},
					&cli.IntFlag{Name: "page-size", Usage: "Profiles per page", Value: 200},
					&cli.IntFlag{Name: "batch-size", Usage: "Profiles per embedding request", Value: 32},
					&cli.IntFlag{Name: "workers", Usage: "Concurrent embedding requests", Value: 4},
					&cli.BoolFlag{Name: "missing-only", Usage: "Skip profiles that already have an embedding"},
				),
			},
		},
	}
}
