package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/frahmantamala/payment-gateway/internal/jobqueue"
	"github.com/spf13/cobra"
)

const purgeInterval = time.Hour

var allQueues = jobqueue.Queues

var workerConcurrency int

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start worker pools",
	Long:  `Start the worker pools that settle payments, process refunds and deliver webhooks.`,
}

var paymentWorkerCmd = &cobra.Command{
	Use:   "payment",
	Short: "Start the payment processing worker pool",
	Run: func(cmd *cobra.Command, args []string) {
		runWorkers(jobqueue.QueuePayment)
	},
}

var refundWorkerCmd = &cobra.Command{
	Use:   "refund",
	Short: "Start the refund processing worker pool",
	Run: func(cmd *cobra.Command, args []string) {
		runWorkers(jobqueue.QueueRefund)
	},
}

var webhookWorkerCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Start the webhook delivery worker pool",
	Run: func(cmd *cobra.Command, args []string) {
		runWorkers(jobqueue.QueueWebhook)
	},
}

var allWorkerCmd = &cobra.Command{
	Use:   "all",
	Short: "Start every worker pool in one process",
	Run: func(cmd *cobra.Command, args []string) {
		runWorkers(allQueues...)
	},
}

func runWorkers(queues ...string) {
	cfg := mustLoadConfig()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	if cfg.Queue.Driver == "memory" {
		app.Logger.Warn("memory queue driver: this worker only sees jobs enqueued by itself; run `server --with-workers` instead")
	}

	concurrency := cfg.Worker.Concurrency
	if workerConcurrency > 0 {
		concurrency = workerConcurrency
	}

	pools := startPools(ctx, app, queues, concurrency)
	go runJanitor(ctx, app)

	app.Logger.Info("workers are running. Press Ctrl+C to stop.", "queues", queues, "concurrency", concurrency)
	<-ctx.Done()
	app.Logger.Info("received signal, shutting down workers")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	pools.Shutdown(shutdownCtx)
}

type workerGroup struct {
	pools []*jobqueue.Pool
	app   *App
}

func startPools(ctx context.Context, app *App, queues []string, concurrency int) *workerGroup {
	handlers := app.Handlers()
	group := &workerGroup{app: app}

	for _, name := range queues {
		pool := jobqueue.NewPool(app.Queue, handlers[name], jobqueue.PoolConfig{
			Queue:        name,
			Concurrency:  concurrency,
			PollInterval: app.Config.Queue.PollInterval,
		}, app.Logger)
		pool.Start(ctx)
		group.pools = append(group.pools, pool)
	}
	return group
}

// Shutdown drains every pool in parallel within ctx's deadline.
func (g *workerGroup) Shutdown(ctx context.Context) {
	var wg sync.WaitGroup
	for _, pool := range g.pools {
		wg.Add(1)
		go func(p *jobqueue.Pool) {
			defer wg.Done()
			if err := p.Shutdown(ctx); err != nil {
				g.app.Logger.Warn("shutdown timeout reached, forcing exit", "error", err)
			}
		}(pool)
	}
	wg.Wait()
	g.app.Logger.Info("worker pools shutdown complete")
}

type purger interface {
	Purge(ctx context.Context) (int64, error)
}

// runJanitor drops expired idempotency keys and, for the postgres queue,
// finished job rows.
func runJanitor(ctx context.Context, app *App) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if n, err := app.Idempotency.PurgeExpired(ctx); err != nil {
			app.Logger.Error("failed to purge idempotency keys", "error", err)
		} else if n > 0 {
			app.Logger.Info("purged expired idempotency keys", "count", n)
		}

		if p, ok := app.Queue.(purger); ok {
			if n, err := p.Purge(ctx); err != nil {
				app.Logger.Error("failed to purge finished jobs", "error", err)
			} else if n > 0 {
				app.Logger.Info("purged finished jobs", "count", n)
			}
		}
	}
}

func init() {
	workerCmd.PersistentFlags().IntVar(&workerConcurrency, "concurrency", 0, "workers per queue (overrides config)")

	workerCmd.AddCommand(paymentWorkerCmd)
	workerCmd.AddCommand(refundWorkerCmd)
	workerCmd.AddCommand(webhookWorkerCmd)
	workerCmd.AddCommand(allWorkerCmd)

	rootCmd.AddCommand(workerCmd)
}
