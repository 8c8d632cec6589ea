package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"paysession/config"
	"paysession/handlers"
	"paysession/services"
	"paysession/templates"
	"paysession/utils"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "paysession",
		Short:        "Payment session lifecycle controller",
		Long:         `paysession tracks one payment session at a time: it counts down to expiry, polls the payment service, handles cancellation and serves the session's QR code and live updates.`,
		SilenceUsage: true,
	}
	root.AddCommand(newServeCommand())
	return root
}

func newServeCommand() *cobra.Command {
	var configPath, port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath, port)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", config.DefaultPath(), "path to the JSON config file")
	cmd.Flags().StringVar(&port, "port", "", "listen port, overrides the config file and PORT")
	return cmd
}

func run(ctx context.Context, configPath, port string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if port != "" {
		cfg.Port = port
	}
	utils.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	remote, err := newRemote(ctx, cfg)
	if err != nil {
		utils.Error("main", "Payment provider unavailable", "provider", cfg.Provider, "error", err)
		return err
	}

	resolver := services.NewQRResolver(
		services.NewHTTPImageLoader(cfg.ImageFetchTimeout),
		services.NewQRCodeEncoder(cfg.QRSize),
		cfg.QRLoadTimeout,
	)
	sessions := handlers.NewSessionManager(remote, resolver, handlers.NewSSEBroadcaster(), services.ReconcilerOptions{
		PollInterval:  cfg.PollInterval,
		TickInterval:  cfg.TickInterval,
		FetchTimeout:  cfg.FetchTimeout,
		CancelTimeout: cfg.CancelTimeout,
	})
	api := &handlers.API{Sessions: sessions, WebhookSecret: config.GetStripeWebhookSecret()}

	mux := http.NewServeMux()
	api.Routes(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		utils.Info("http", "Listening", "addr", srv.Addr, "provider", cfg.Provider)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		utils.Info("main", "Shutdown signal received")
	case err := <-serveErr:
		utils.Error("http", "Server error", "error", err)
		sessions.Shutdown()
		return err
	}

	// closing the session ends its SSE streams so Shutdown does not wait on them
	sessions.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		utils.Error("http", "Graceful shutdown failed", "error", err)
		return err
	}
	utils.Info("main", "Shutdown complete")
	return nil
}

// newRemote builds the configured payment provider.
func newRemote(ctx context.Context, cfg templates.AppConfig) (services.RemoteService, error) {
	switch cfg.Provider {
	case "stripe":
		p := services.NewStripeProvider(config.GetStripeKey(), nil)

		pingCtx, cancel := context.WithTimeout(ctx, cfg.FetchTimeout)
		defer cancel()
		if err := p.Ping(pingCtx); err != nil {
			return nil, err
		}
		utils.Info("provider", "Stripe API initialized successfully")

		registerWebhookEndpoint(ctx, p, cfg)
		return p, nil
	default:
		return services.NewPaymentAPI(cfg.PaymentAPIBaseURL, cfg.PaymentAPIKey, cfg.FetchTimeout), nil
	}
}

// registerWebhookEndpoint registers the Stripe webhook when a public URL is
// configured. Without one the session relies on polling alone.
func registerWebhookEndpoint(ctx context.Context, p *services.StripeProvider, cfg templates.AppConfig) {
	publicURL := strings.TrimRight(strings.TrimSpace(cfg.PublicURL), "/")
	if publicURL == "" {
		utils.Info("provider", "No public URL configured, using polling only")
		return
	}
	if config.GetStripeWebhookSecret() == "" {
		utils.Warn("provider", "Public URL configured but no webhook secret, using polling only")
		return
	}

	if _, err := p.RegisterWebhook(ctx, publicURL+"/stripe-webhook", handlers.WebhookEvents); err != nil {
		utils.Error("provider", "Failed to register webhook endpoint, falling back to polling only", "error", err)
	}
}
