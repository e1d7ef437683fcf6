package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fintalk-io/fintalk/internal/config"
	"github.com/fintalk-io/fintalk/internal/gateway"
	"github.com/fintalk-io/fintalk/internal/llm"
	"github.com/fintalk-io/fintalk/internal/rates"
	"github.com/fintalk-io/fintalk/internal/server"
	"github.com/fintalk-io/fintalk/internal/store"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Fintalk chat API server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config, e.g. :8080)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	if cfg.OpenAIAPIKey == "" {
		log.Warn().Msg("FINTALK_OPENAI_API_KEY not set — chat requests will fail until it is configured")
	}

	st, err := store.Open(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("opening ledger database: %w", err)
	}
	defer st.Close()

	var provider llm.Provider
	if cfg.OpenAIBaseURL != "" {
		provider = llm.NewOpenAIProviderWithBaseURL(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.LLMTimeout)
	} else {
		provider = llm.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.LLMTimeout)
	}
	resolver := llm.NewResolver(provider, cfg.PrimaryModel, cfg.FallbackModel)

	rateCache := rates.NewCache(rates.NewClient(cfg.RatesBaseURL, 10*time.Second))
	if err := rateCache.Start(cfg.RatesRefreshCron); err != nil {
		return fmt.Errorf("starting rate refresh: %w", err)
	}
	defer rateCache.Stop()

	gw, err := gateway.New(gateway.Params{
		Store:     st,
		Completer: resolver,
		Rates:     rateCache,
		Config:    cfg,
	})
	if err != nil {
		return fmt.Errorf("building gateway: %w", err)
	}

	srv := server.NewServer(gw, st, cfg, server.WithCORSOrigins([]string{"*"}))

	addr := cfg.ListenAddr
	if serveAddr != "" {
		addr = serveAddr
	}
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      srv.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	log.Info().
		Str("addr", addr).
		Str("primary_model", cfg.PrimaryModel).
		Str("fallback_model", cfg.FallbackModel).
		Str("db", cfg.DBPath()).
		Msg("fintalk_serve_started")

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown_signal_received")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("server_stopped")
	return nil
}
