package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"

	errs "github.com/frahmantamala/payment-gateway/internal"
	"github.com/frahmantamala/payment-gateway/internal/merchant"
	merchantPostgres "github.com/frahmantamala/payment-gateway/internal/merchant/postgres"
	"github.com/frahmantamala/payment-gateway/pkg/logger"
	"github.com/spf13/cobra"
)

const (
	testMerchantName      = "Test Merchant"
	testMerchantAPIKey    = "key_test_abc123"
	testMerchantAPISecret = "secret_test_xyz789"
)

var seedWebhookURL string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with the test merchant",
	Long:  `Seed the database with a test merchant using well-known API credentials for local development.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustLoadConfig()
		ctx := context.Background()

		db, gormDB, err := openStores(cfg)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		defer db.Close()

		// seeding never publishes events
		service := merchant.NewService(merchantPostgres.NewMerchantRepository(gormDB), nil, cfg.Security.BCryptCost, logger.LoggerWrapper())

		existing, err := service.TestMerchant(ctx, merchant.TestMerchantEmail)
		if err == nil {
			fmt.Println("test merchant already exists:", existing.ID)
			return
		}
		if !errors.Is(err, errs.ErrMerchantNotFound) {
			log.Fatalf("failed to look up test merchant: %v", err)
		}

		creds, err := service.CreateMerchant(ctx, &merchant.CreateMerchantDTO{
			Name:       testMerchantName,
			Email:      merchant.TestMerchantEmail,
			APIKey:     testMerchantAPIKey,
			APISecret:  testMerchantAPISecret,
			WebhookURL: seedWebhookURL,
		})
		if err != nil {
			log.Fatalf("failed to insert test merchant: %v", err)
		}

		fmt.Println("Seeded test merchant:", creds.MerchantID)
		fmt.Println("  X-Api-Key:   ", creds.APIKey)
		fmt.Println("  X-Api-Secret:", creds.APISecret)
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedWebhookURL, "webhook-url", "", "webhook URL for the test merchant")
}
