package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frahmantamala/payment-gateway/api"
	"github.com/frahmantamala/payment-gateway/internal/merchant"
	"github.com/frahmantamala/payment-gateway/internal/order"
	"github.com/frahmantamala/payment-gateway/internal/payment"
	"github.com/frahmantamala/payment-gateway/internal/refund"
	"github.com/frahmantamala/payment-gateway/internal/transport"
	"github.com/frahmantamala/payment-gateway/internal/transport/rest"
	"github.com/frahmantamala/payment-gateway/internal/webhook"

	"github.com/go-chi/chi"
	"github.com/spf13/cobra"
)

var withWorkers bool

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

func startHTTPServer() {
	cfg := mustLoadConfig()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	if _, err := api.Load(ctx); err != nil {
		app.Logger.Error("openapi document rejected", "error", err)
		os.Exit(1)
	}

	router := chi.NewRouter()
	setupRoutes(router, app)

	// the in-memory queue only exists inside this process
	var pools *workerGroup
	if withWorkers || cfg.Queue.Driver == "memory" {
		pools = startPools(ctx, app, allQueues, cfg.Worker.Concurrency)
		go runJanitor(ctx, app)
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	app.Logger.Info("starting HTTP server", "address", addr, "queue_driver", cfg.Queue.Driver)

	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		app.Logger.Info("received signal, shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			app.Logger.Error("server shutdown error", "error", err)
		}
		if pools != nil {
			pools.Shutdown(shutdownCtx)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			app.Logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}

	app.Logger.Info("server stopped")
}

func setupRoutes(router *chi.Mux, app *App) {
	base := transport.NewBaseHandler(app.Logger)

	health := rest.NewHealthHandler(app.DB.DB)
	if app.Redis != nil {
		health.WithCheck("redis", func(ctx context.Context) error {
			return app.Redis.Ping(ctx).Err()
		})
	}

	rest.RegisterAllRoutes(router, rest.RouterDeps{
		Health:         health,
		Queue:          rest.NewQueueHandler(base, app.Dispatcher),
		Orders:         order.NewHandler(base, app.Orders),
		Payments:       payment.NewHandler(base, app.Payments),
		Refunds:        refund.NewHandler(base, app.Refunds),
		Webhooks:       webhook.NewHandler(base, app.Webhooks),
		Merchants:      merchant.NewHandler(base, app.Merchants),
		Authenticator:  app.Merchants,
		Base:           base,
		OpenAPI:        api.Spec,
		AllowedOrigins: app.Config.Server.AllowedOrigins,
		Logger:         app.Logger,
	})
}

const shutdownTimeout = 30 * time.Second

func init() {
	httpServerCmd.Flags().BoolVar(&withWorkers, "with-workers", false, "also run every worker pool in this process")
}
