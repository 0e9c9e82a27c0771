package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"storefront/internal/config"
	"storefront/internal/db"
	"storefront/internal/importer"
	"storefront/internal/logging"
	productrepo "storefront/internal/repository/product"
)

var filePath string

var rootCmd = &cobra.Command{
	Use:   "importer",
	Short: "Import a product CSV into the local catalog table",
	Long: `Reads a CSV with the header id,slug,name,description,price,salePrice,inStock,image
and upserts one product per slug. Prices are decimal dollars. Rows carrying only
an image URL add that image to the product above them.`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVarP(&filePath, "file", "f", "", "Path to the product CSV")
	_ = rootCmd.MarkFlagRequired("file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg := config.FromEnv()
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	logger = logger.Named("importer")

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	pool, err := db.Connect(ctx, cfg.DBConnString)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer pool.Close()

	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	imp := importer.NewCSVImporter(f, productrepo.NewPostgres(pool, logger), logger)

	start := time.Now()
	count, err := imp.Run(ctx)
	if err != nil {
		return fmt.Errorf("import failed after %d products: %w", count, err)
	}
	logger.Info("import complete",
		zap.String("file", filePath),
		zap.Int("count", count),
		zap.Duration("elapsed", time.Since(start).Truncate(time.Millisecond)),
	)
	return nil
}
