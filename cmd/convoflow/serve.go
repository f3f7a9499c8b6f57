package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/convoflow/convoflow/internal/httpapi"
	"github.com/convoflow/convoflow/internal/support"
	"github.com/convoflow/convoflow/pkg/convoflow/approval"
	"github.com/convoflow/convoflow/pkg/convoflow/checkpoint"
	"github.com/convoflow/convoflow/pkg/convoflow/config"
	"github.com/convoflow/convoflow/pkg/convoflow/event"
	"github.com/convoflow/convoflow/pkg/convoflow/llm"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the workflow HTTP server",
	Long: `Starts the convoflow HTTP server with the built-in support workflow,
streaming run progress over SSE and persisting threads to the configured store.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

		store, err := openStore(cfg.Store)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer store.Close()

		client, err := buildClient(cfg.Model)
		if err != nil {
			return fmt.Errorf("build model client: %w", err)
		}

		bus := event.NewBus(event.BusConfig{
			OnDrop: func(evt event.Event, id int64) {
				logger.Warn("dropped event for slow subscriber",
					"thread_id", evt.ThreadID, "subscriber", id)
			},
		})
		defer bus.Close()

		approvals := approval.NewInbox()

		runner, err := support.NewRunner(store, client, bus, approvals,
			support.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("build support workflow: %w", err)
		}

		api := httpapi.NewServer(bus, approvals, httpapi.WithLogger(logger))
		api.Register(runner)

		srv := &http.Server{
			Addr:              cfg.Listen,
			Handler:           api,
			ReadHeaderTimeout: 10 * time.Second,
		}

		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("server listening",
				"addr", cfg.Listen,
				"store", cfg.Store.Backend,
				"model", cfg.Model.Provider)
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			return fmt.Errorf("server error: %w", err)

		case sig := <-shutdown:
			logger.Info("shutting down", "signal", sig.String())

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				logger.Error("graceful shutdown did not complete", "error", err)
				if err := srv.Close(); err != nil {
					return fmt.Errorf("close server: %w", err)
				}
			}
			logger.Info("server stopped")
			return nil
		}
	},
}

func openStore(cfg config.StoreConfig) (checkpoint.Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return checkpoint.NewMemoryStore(), nil
	case "sqlite":
		return checkpoint.NewSQLiteStore(cfg.Path)
	case "redis":
		return checkpoint.NewRedisStore(cfg.Addr), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func buildClient(cfg config.ModelConfig) (llm.Client, error) {
	switch cfg.Provider {
	case "", "mock":
		return llm.NewMock("This is a canned reply.\nSUMMARY: canned test conversation"), nil
	case "openai":
		opts := []llm.OpenAIOption{
			llm.WithTemperature(cfg.Temperature),
		}
		if cfg.Name != "" {
			opts = append(opts, llm.WithModel(cfg.Name))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, llm.WithBaseURL(cfg.BaseURL))
		}
		if cfg.MaxTokens > 0 {
			opts = append(opts, llm.WithMaxTokens(cfg.MaxTokens))
		}
		return llm.NewOpenAI(opts...)
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
