package main

import (
	"context"
	"fmt"
	"kiselgram-backend/internal/config"
	"kiselgram-backend/internal/database"
	"kiselgram-backend/internal/logging"
	"kiselgram-backend/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRootCmd() *cobra.Command {
	var configPath string

	serveCmd := newServeCmd(&configPath)

	cmd := &cobra.Command{
		Use:          "kiselgram",
		Short:        "Kiselgram messaging backend",
		SilenceUsage: true,
		RunE:         serveCmd.RunE,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path, config.json in the working directory by default")

	cmd.AddCommand(serveCmd)
	cmd.AddCommand(newMigrateCmd(&configPath))

	return cmd
}

// bootstrap loads the configuration and sets up the logger every command
// starts with.
func bootstrap(configPath string) (*models.ConfigFile, *zap.SugaredLogger, error) {
	fmt.Println("Reading config file...")
	cfg, err := config.Load(config.New(configPath))
	if err != nil {
		return nil, nil, err
	}

	fmt.Println("Setting up logger...")
	sugar, err := logging.Setup(cfg.LogLevel, cfg.LogToFile)
	if err != nil {
		return nil, nil, err
	}

	return cfg, sugar, nil
}

func setupDatabase(cfg *models.ConfigFile, sugar *zap.SugaredLogger) (*sqlx.DB, error) {
	db, dialect, err := database.Setup(cfg, sugar)
	if err != nil {
		return nil, err
	}
	sugar.Infof("Database %s is ready", dialect)
	return db, nil
}

func setupRedis(ctx context.Context, cfg *models.ConfigFile) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddress,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}

	return rdb, nil
}
