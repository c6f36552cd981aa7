package main

import (
	"context"
	"errors"
	"fmt"
	"kiselgram-backend/internal/access"
	"kiselgram-backend/internal/attachments"
	"kiselgram-backend/internal/bots"
	"kiselgram-backend/internal/conversations"
	"kiselgram-backend/internal/handlers"
	"kiselgram-backend/internal/identity"
	"kiselgram-backend/internal/jwt"
	"kiselgram-backend/internal/keyValue"
	"kiselgram-backend/internal/logging"
	"kiselgram-backend/internal/membership"
	"kiselgram-backend/internal/messages"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	cacheEvictInterval = time.Minute
	shutdownTimeout    = 10 * time.Second
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the bot responder",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), *configPath)
		},
	}
}

func serve(parent context.Context, configPath string) error {
	if parent == nil {
		parent = context.Background()
	}

	cfg, sugar, err := bootstrap(configPath)
	if err != nil {
		return err
	}
	defer sugar.Sync()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := setupDatabase(cfg, sugar)
	if err != nil {
		sugar.Error(err)
		return err
	}
	defer db.Close()

	var cache *keyValue.Store
	if cfg.SelfContained {
		cache = keyValue.NewLocal(sugar)
	} else {
		sugar.Info("Connecting to redis...")
		redisClient, err := setupRedis(ctx, cfg)
		if err != nil {
			sugar.Error(err)
			return err
		}
		defer redisClient.Close()
		cache = keyValue.NewRedis(sugar, redisClient)
	}

	users := identity.NewStore(db, sugar)
	files := attachments.NewManager(cfg.UploadRoot, cfg.MaxUploadBytes, cfg.ThumbnailSize, sugar)
	ledger := membership.NewLedger(db, sugar, files)
	store := messages.NewStore(db, sugar, access.NewEngine(ledger, users), files)
	resolver := conversations.NewResolver(store, ledger, users)

	responder := bots.NewResponder(users, store, sugar.Named("bots"), cfg.BotInterval, cfg.BotBackoff)
	if err := responder.Seed(ctx); err != nil {
		sugar.Error(err)
		return err
	}

	server := handlers.NewServer(cfg, sugar, handlers.Services{
		Users:         users,
		Ledger:        ledger,
		Messages:      store,
		Conversations: resolver,
		Files:         files,
		Cache:         cache,
	})
	jwt.Setup(cfg.JwtSecret, server.IsHttps())
	httpServer := server.HTTPServer()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		cache.Run(gctx, cacheEvictInterval)
		return nil
	})

	g.Go(func() error {
		if err := responder.Start(gctx, logging.Gocron(sugar)); err != nil {
			return fmt.Errorf("starting bot responder: %w", err)
		}
		<-gctx.Done()
		return responder.Stop()
	})

	g.Go(func() error {
		protocol := "http"
		if server.IsHttps() {
			protocol = "https"
		}
		sugar.Infof("Server is running on %s://%s", protocol, httpServer.Addr)

		if err := server.ListenAndServe(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		sugar.Info("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		sugar.Error(err)
		return err
	}

	sugar.Info("Server stopped")
	return nil
}
