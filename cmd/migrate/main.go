// Command migrate manages the FundSphere schema: SQL migrations for the
// relational store and indexes for the document store.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"fundsphere/internal/config"
	"fundsphere/internal/database"
	"fundsphere/internal/middleware"
	"fundsphere/internal/repository/mongostore"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfg *config.Config
	root := &cobra.Command{
		Use:          "migrate",
		Short:        "FundSphere schema management",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfg = loaded
			middleware.ConfigureLogger(middleware.LogOptions{Env: cfg.Env, Level: cfg.LogLevel})
			return nil
		},
	}

	root.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending SQL migrations, or ensure indexes on the document store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if cfg.StoreDriver == config.StoreDriverMongo {
				return ensureMongoIndexes(ctx, cfg)
			}
			return withDB(cfg, func(db *gorm.DB) error {
				n, err := database.NewMigrator(db).Up(ctx)
				if err != nil {
					return err
				}
				middleware.Logger.Info("migrations applied", slog.Int("count", n))
				return nil
			})
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "auto",
		Short: "Run gorm AutoMigrate for every campaign table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg.DBSchemaMode = database.SchemaModeAuto
			return withDB(cfg, func(db *gorm.DB) error {
				return database.ApplySchema(cmd.Context(), db, cfg)
			})
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the schema plan and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(cfg, func(db *gorm.DB) error {
				status, err := database.GetSchemaStatus(cmd.Context(), db, cfg)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "mode=%s env=%s sql=%t auto=%t applied=%d pending=%d\n",
					status.Mode, status.Env, status.RunSQL, status.RunAuto, len(status.Applied), len(status.Pending))
				for _, m := range status.Pending {
					fmt.Fprintf(out, "pending %s\n", m.String())
				}
				return nil
			})
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "down <version>",
		Short: "Roll back the latest applied migration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid version %q: %w", args[0], err)
			}
			return withDB(cfg, func(db *gorm.DB) error {
				return database.NewMigrator(db).Down(cmd.Context(), version)
			})
		},
	})

	return root
}

func withDB(cfg *config.Config, fn func(db *gorm.DB) error) error {
	if cfg.StoreDriver == config.StoreDriverMongo {
		return fmt.Errorf("STORE_DRIVER=%s has no SQL schema", cfg.StoreDriver)
	}
	db, err := database.ConnectWithOptions(cfg, database.ConnectOptions{ApplySchema: false})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer func() { _ = database.Close(db) }()
	return fn(db)
}

func ensureMongoIndexes(ctx context.Context, cfg *config.Config) error {
	client, err := mongostore.Connect(ctx, cfg.MongoURI)
	if err != nil {
		return err
	}
	defer func() { _ = client.Disconnect(context.Background()) }()

	if err := mongostore.EnsureIndexes(ctx, client.Database(cfg.MongoDB)); err != nil {
		return err
	}
	middleware.Logger.Info("mongo indexes ensured", slog.String("database", cfg.MongoDB))
	return nil
}
