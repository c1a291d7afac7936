/**
 * @description
 * Entry point for the batch ledger service.
 *
 * @dependencies
 * - github.com/urfave/cli/v2: Command-line surface (serve, audit, migrate, hash-code).
 * - github.com/joho/godotenv: For loading .env files during local development.
 */
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/Monadic-DNA/Batcher-sub000/internal/domain"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, relying on environment variables")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	app := &cli.App{
		Name:  "batcher",
		Usage: "batch payment ledger for DNA sequencing cohorts",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the HTTP API and the slashing scheduler",
				Action: func(c *cli.Context) error {
					return runServe(c.Context, logger)
				},
			},
			{
				Name:  "audit",
				Usage: "consume ledger events into the audit log",
				Action: func(c *cli.Context) error {
					return runAudit(c.Context, logger)
				},
			},
			{
				Name:  "migrate",
				Usage: "apply database migrations",
				Action: func(c *cli.Context) error {
					return runMigrate(c.Context, logger)
				},
			},
			{
				Name:      "hash-code",
				Usage:     "print the on-ledger hash of a discount code",
				ArgsUsage: "<code>",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return cli.Exit("exactly one discount code is required", 2)
					}
					fmt.Println(domain.HashDiscountCode(c.Args().First()).Hex())
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}
