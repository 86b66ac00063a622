package migrate

import (
	"context"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/chirino/clinical-history/internal/config"
	registrymigrate "github.com/chirino/clinical-history/internal/registry/migrate"
	registrystore "github.com/chirino/clinical-history/internal/registry/store"
	"github.com/urfave/cli/v3"

	// Store plugins register their migrators alongside their loaders.
	_ "github.com/chirino/clinical-history/internal/plugin/store/postgres"
	_ "github.com/chirino/clinical-history/internal/plugin/store/sqlite"
)

// Command returns the migrate sub-command.
func Command() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply the clinical history schema and exit",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "db-url",
				Sources:  cli.EnvVars("CLINICAL_HISTORY_DB_URL"),
				Usage:    "Database connection URL (postgres) or file path (sqlite)",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "db-kind",
				Sources: cli.EnvVars("CLINICAL_HISTORY_DB_KIND"),
				Usage:   "Store backend (" + strings.Join(registrystore.Names(), "|") + ")",
				Value:   "postgres",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := config.DefaultConfig()
			cfg.DBURL = cmd.String("db-url")
			cfg.DatastoreType = cmd.String("db-kind")
			cfg.DatastoreMigrateAtStart = true
			if _, err := registrystore.Select(cfg.DatastoreType); err != nil {
				return err
			}
			ctx = config.WithContext(ctx, &cfg)

			log.Info("Running migrations...", "db", cfg.DatastoreType)
			if err := registrymigrate.RunAll(ctx); err != nil {
				return err
			}
			log.Info("All migrations completed successfully")
			return nil
		},
	}
}
