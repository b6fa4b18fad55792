package main

import (
	"errors"
	"io/fs"
	stdLog "log"
	"time"

	"github.com/Astemirdum/bookhub/library/app"
	"github.com/Astemirdum/bookhub/library/config"
	"github.com/Astemirdum/bookhub/pkg/postgres"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"
)

// @title BookHub API
// @version 1.0
// @description Library borrowing backend: books, featured books, borrow and return.
// @BasePath /
func main() {
	if err := newRootCmd().Execute(); err != nil {
		stdLog.Fatal(err)
	}
}

func loadConfig() config.Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		stdLog.Fatal("load envs from .env ", err)
	}
	return config.NewConfig(
		config.WithLogLevel(zapcore.DebugLevel),
		config.WithWriteTimeout(time.Minute),
	)
}

func newRootCmd() *cobra.Command {
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := loadConfig()
			return app.Run(&cfg)
		},
	}

	migrate := &cobra.Command{
		Use:       "migrate [up|down|status]",
		Short:     "Apply Postgres migrations",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{postgres.MigrateUp, postgres.MigrateDown, postgres.MigrateStatus},
		RunE: func(cmd *cobra.Command, args []string) error {
			command := postgres.MigrateUp
			if len(args) == 1 {
				command = args[0]
			}
			cfg := loadConfig()
			return app.Migrate(&cfg, command)
		},
	}

	root := &cobra.Command{
		Use:          "bookhub",
		Short:        "BookHub library service",
		SilenceUsage: true,
		RunE:         serve.RunE,
		Args:         cobra.NoArgs,
	}
	root.AddCommand(serve, migrate)
	return root
}
