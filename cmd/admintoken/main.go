package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"storefront/internal/config"
	"storefront/internal/service/session"
)

var (
	subject string
	ttl     time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "admintoken",
	Short: "Mint a back-office token signed with ADMIN_JWT_SECRET",
	Long: `Prints a bearer token accepted by the order status, payment status and
refund routes. The token carries the admin role and expires after --ttl.`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVarP(&subject, "subject", "s", "operator", "Who the token is issued to")
	rootCmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg := config.FromEnv()
	admin := session.NewAdmin(cfg.AdminJWTSecret)
	if !admin.Enabled() {
		return fmt.Errorf("ADMIN_JWT_SECRET is not set")
	}
	token, err := admin.Issue(subject, ttl)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
