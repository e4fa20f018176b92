package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/notegraph/internal"
	"github.com/starford/notegraph/internal/noteservice"
	pkgconfig "github.com/starford/notegraph/pkg/config"
)

var version = "dev"

func loadOptions(cmd *cli.Command) ([]internal.Option, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, opts...)
}

func searchNotes(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() == 0 {
		return fmt.Errorf("usage: notegraph search <query>")
	}
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	query := strings.Join(cmd.Args().Slice(), " ")
	limit := int(cmd.Int("limit"))
	return internal.RunQuery(ctx, os.Stdout, func(ctx context.Context, svc *noteservice.Service) (any, error) {
		return svc.Search(ctx, query, limit)
	}, opts...)
}

func similarNotes(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() == 0 {
		return fmt.Errorf("usage: notegraph similar <id>")
	}
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	id := cmd.Args().First()
	limit := int(cmd.Int("limit"))
	return internal.RunQuery(ctx, os.Stdout, func(ctx context.Context, svc *noteservice.Service) (any, error) {
		return svc.Similar(ctx, id, limit)
	}, opts...)
}

func limitFlag() cli.Flag {
	return &cli.IntFlag{
		Name:    "limit",
		Aliases: []string{"n"},
		Usage:   "Maximum number of results (0 uses the configured default)",
	}
}

func main() {
	cmd := &cli.Command{
		Name:    "notegraph",
		Usage:   "Problem/solution notes with related-note suggestions, ranked search and a note graph",
		Version: version,
		Action:  serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API and vault watcher (default)",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools over stdio",
				Action: serveMCP,
			},
			{
				Name:      "search",
				Usage:     "Rank notes against a query and print JSON",
				ArgsUsage: "<query>",
				Flags:     []cli.Flag{limitFlag()},
				Action:    searchNotes,
			},
			{
				Name:      "similar",
				Usage:     "Print the related-note bundle for a note id as JSON",
				ArgsUsage: "<id>",
				Flags:     []cli.Flag{limitFlag()},
				Action:    similarNotes,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
