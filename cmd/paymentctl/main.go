package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	"go-paywatch/app"
	"go-paywatch/config"
	"go-paywatch/payment/db"
	"go-paywatch/payment/signature"
	"go-paywatch/web/middleware"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:          "paymentctl",
		Short:        "Operator tool for the payment reconciliation service",
		Version:      Version,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(pollCmd())
	rootCmd.AddCommand(cancelCmd())
	rootCmd.AddCommand(signCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(hashCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func build() (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return app.Build(cfg, app.NewLogger())
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := build()
			if err != nil {
				return err
			}
			if err := db.Sync(a.DB); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Println("schema up to date")
			return nil
		},
	}
}

func pollCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "poll [payment_id]",
		Short: "Ask the monitoring service about a payment and apply the answer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := build()
			if err != nil {
				return err
			}
			res, err := a.Engine.HandlePoll(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s %s final=%t\n", res.PaymentID, res.Status, res.Final)
			return nil
		},
	}
}

func cancelCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "cancel [payment_id]",
		Short: "Cancel an open payment and release its order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := build()
			if err != nil {
				return err
			}
			res, err := a.Engine.Cancel(cmd.Context(), args[0], reason)
			if err != nil {
				return err
			}
			if !res.Changed {
				fmt.Printf("%s already %s, nothing to do\n", res.PaymentID, res.Status)
				return nil
			}
			fmt.Printf("%s %s, order %s\n", res.PaymentID, res.Status, res.OrderStatus)
			return nil
		},
	}
	cmd.Flags().StringVarP(&reason, "reason", "r", "", "note recorded on the order")
	return cmd
}

func signCmd() *cobra.Command {
	var secret, body string
	var ts int64
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Print webhook signature headers for a body, for testing senders",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = os.Getenv("WEBHOOK_SECRET")
			}
			if secret == "" {
				return fmt.Errorf("--secret or WEBHOOK_SECRET is required")
			}
			if ts == 0 {
				ts = time.Now().Unix()
			}
			stamp := strconv.FormatInt(ts, 10)
			fmt.Printf("X-Timestamp: %s\n", stamp)
			fmt.Printf("X-Signature: %s\n", signature.Sign(secret, stamp, []byte(body)))
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "webhook secret (defaults to WEBHOOK_SECRET)")
	cmd.Flags().StringVar(&body, "body", "", "exact request body")
	cmd.Flags().Int64Var(&ts, "timestamp", 0, "unix seconds (defaults to now)")
	cmd.MarkFlagRequired("body")
	return cmd
}

func tokenCmd() *cobra.Command {
	var subject string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an operator token for the admin API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if subject == "" {
				subject = cfg.AdminUser
			}
			token, err := middleware.NewAuth(cfg.JWTSecret, ttl).IssueToken(subject)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "token subject (defaults to ADMIN_USER)")
	cmd.Flags().DurationVar(&ttl, "ttl", middleware.DefaultTokenTTL, "token lifetime")
	return cmd
}

func hashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print a bcrypt hash for ADMIN_PASSWORD_HASH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := bcrypt.GenerateFromPassword([]byte(args[0]), bcrypt.DefaultCost)
			if err != nil {
				return err
			}
			fmt.Println(string(hash))
			return nil
		},
	}
}
