package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var webhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Webhook management commands",
	Long:  `Send test webhooks and re-schedule failed deliveries`,
}

var testWebhookCmd = &cobra.Command{
	Use:   "test",
	Short: "Send a webhook.test event to a merchant",
	Run: func(cmd *cobra.Command, args []string) {
		withApp(func(ctx context.Context, app *App) error {
			resp, err := app.Merchants.SendTestWebhook(ctx, webhookMerchantID)
			if err != nil {
				return err
			}
			fmt.Println(resp.Message)
			return nil
		})
	},
}

var retryWebhookCmd = &cobra.Command{
	Use:   "retry",
	Short: "Reset a webhook log and deliver it again from attempt 1",
	Run: func(cmd *cobra.Command, args []string) {
		withApp(func(ctx context.Context, app *App) error {
			resp, err := app.Webhooks.RetryWebhook(ctx, webhookMerchantID, webhookLogID)
			if err != nil {
				return err
			}
			fmt.Printf("%s: %s\n", resp.ID, resp.Message)
			return nil
		})
	},
}

var (
	webhookMerchantID string
	webhookLogID      string
)

// withApp runs fn against a fully wired App and exits non-zero on failure.
func withApp(fn func(ctx context.Context, app *App) error) {
	cfg := mustLoadConfig()
	ctx := context.Background()

	app, err := newApp(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	if err := fn(ctx, app); err != nil {
		app.Logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func init() {
	webhookCmd.PersistentFlags().StringVar(&webhookMerchantID, "merchant", "", "merchant id")
	_ = webhookCmd.MarkPersistentFlagRequired("merchant")
	retryWebhookCmd.Flags().StringVar(&webhookLogID, "log", "", "webhook log id")
	_ = retryWebhookCmd.MarkFlagRequired("log")

	webhookCmd.AddCommand(testWebhookCmd)
	webhookCmd.AddCommand(retryWebhookCmd)

	rootCmd.AddCommand(webhookCmd)
}
