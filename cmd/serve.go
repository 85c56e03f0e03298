// cmd/serve.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/markb/chatlite/internal/auth"
	"github.com/markb/chatlite/internal/cache"
	"github.com/markb/chatlite/internal/chat"
	"github.com/markb/chatlite/internal/hub"
	"github.com/markb/chatlite/internal/log"
	"github.com/markb/chatlite/internal/migration"
	"github.com/markb/chatlite/internal/presence"
	"github.com/markb/chatlite/internal/server"
	"github.com/markb/chatlite/internal/session"
	"github.com/markb/chatlite/internal/store"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chatlite server",
	Long:  `Starts the WebSocket and HTTP API server.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetInt("port")
		host, _ := cmd.Flags().GetString("host")

		jwtSecret := os.Getenv("CHATLITE_JWT_SECRET")
		if jwtSecret == "" {
			jwtSecret = "super-secret-jwt-key-please-change-in-production"
			fmt.Println("Warning: Using default JWT secret. Set CHATLITE_JWT_SECRET in production.")
		}

		if err := log.Init(buildLogConfig(cmd)); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}

		ctx := cmd.Context()

		databaseURL := envOr("CHATLITE_DATABASE_URL", "postgres://localhost:5432/chatlite")
		pool, err := pgxpool.New(ctx, databaseURL)
		if err != nil {
			return fmt.Errorf("failed to open database pool: %w", err)
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			return fmt.Errorf("failed to reach database: %w", err)
		}

		redisAddr := envOr("CHATLITE_REDIS_ADDR", "localhost:6379")
		redisDB, err := strconv.Atoi(envOr("CHATLITE_REDIS_DB", "0"))
		if err != nil {
			return fmt.Errorf("invalid CHATLITE_REDIS_DB: %w", err)
		}
		rdb := redis.NewClient(&redis.Options{
			Addr:     redisAddr,
			Password: os.Getenv("CHATLITE_REDIS_PASSWORD"),
			DB:       redisDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to reach redis: %w", err)
		}

		if _, err := migration.NewRunner(pool).Up(ctx, migration.Builtin()); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}

		st := store.New(pool)
		cacheStore := cache.New(rdb)
		presenceStore := presence.NewStore(rdb)
		h := hub.New()

		verifier := auth.NewVerifier(jwtSecret, cacheStore)
		messageService := chat.NewMessageService(st, st.Conversations, h)
		profiles := chat.NewProfiles(cacheStore, st.Users)
		conversationService := chat.NewConversationService(st, profiles, h)

		srv := server.New(server.Config{
			SessionDeps: session.Deps{
				Hub:        h,
				Verifier:   verifier,
				Friends:    st.Friends,
				Messages:   messageService,
				Membership: st.Conversations,
				Presence:   presenceStore,
			},
			Presence:      presenceStore,
			Verifier:      verifier,
			Messages:      messageService,
			Conversations: conversationService,
			Friends:       st,
		})

		addr := fmt.Sprintf("%s:%d", host, port)
		log.Info("starting chatlite", "addr", addr, "redis", redisAddr)
		fmt.Printf("Starting chatlite on %s\n", addr)
		fmt.Printf("  WebSocket: ws://%s/ws\n", addr)
		fmt.Printf("  API:       http://%s/api\n", addr)

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.ListenAndServe(addr)
		}()

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

		select {
		case err := <-errCh:
			return err
		case sig := <-stop:
			log.Info("shutting down", "signal", sig.String())
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

// buildLogConfig creates a log.Config from environment variables and CLI
// flags. Priority: CLI flags > environment variables > defaults
func buildLogConfig(cmd *cobra.Command) *log.Config {
	cfg := log.DefaultConfig()

	if mode := os.Getenv("CHATLITE_LOG_MODE"); mode != "" {
		cfg.Mode = mode
	}
	if level := os.Getenv("CHATLITE_LOG_LEVEL"); level != "" {
		cfg.Level = level
	}
	if format := os.Getenv("CHATLITE_LOG_FORMAT"); format != "" {
		cfg.Format = format
	}
	if path := os.Getenv("CHATLITE_LOG_FILE"); path != "" {
		cfg.FilePath = path
	}

	if mode, _ := cmd.Flags().GetString("log-mode"); mode != "" {
		cfg.Mode = mode
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Level = level
	}

	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().String("log-mode", "", "Log mode: console or file (default: console)")
	serveCmd.Flags().String("log-level", "", "Log level: debug, info, warn, error (default: info)")
}
