package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sievedocs/sieve/config"
	srv "github.com/sievedocs/sieve/internal/server"
	"github.com/sievedocs/sieve/mcp"
)

func main() {
	var root = &cobra.Command{Use: "sieve"}

	var cfgPath string
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (default: ./config/config.json)")

	var serveAddr string
	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP search API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if serveAddr == "" {
				serveAddr = os.Getenv("SIEVE_HTTP_ADDR")
			}
			return srv.Run(cfgPath, serveAddr)
		},
	}
	serve.Flags().StringVar(&serveAddr, "addr", "", "listen address (default: general.listen)")

	var mcpCmd = &cobra.Command{
		Use:   "mcp",
		Short: "Run MCP stdio server for coding agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := mcp.NewMCPServer(cfgPath)
			if err != nil {
				return err
			}
			return m.Serve(os.Stdin, os.Stdout)
		},
	}

	var migDir string
	var direction string
	var steps int
	var migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn := os.Getenv("DATABASE_URL")
			if dsn == "" {
				cfg := config.LoadConfig(cfgPath)
				var err error
				dsn, err = cfg.Storage.Postgres.DSN()
				if err != nil {
					return err
				}
			}
			return srv.Migrate(migDir, dsn, direction, steps)
		},
	}
	migrateCmd.Flags().StringVar(&migDir, "dir", "file://migrations", "migrations source (file://migrations)")
	migrateCmd.Flags().StringVar(&direction, "direction", "up", "up or down")
	migrateCmd.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")

	var tokenSubject string
	var tokenTTL string
	var tokenCmd = &cobra.Command{
		Use:   "token",
		Short: "Mint a JWT for a search client",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			if cfg.General.JWTSecret == "" {
				return fmt.Errorf("general.jwt_secret not configured")
			}
			ttl, err := time.ParseDuration(tokenTTL)
			if err != nil {
				return err
			}
			signed, err := srv.SignJWT(tokenSubject, []byte(cfg.General.JWTSecret), ttl)
			if err != nil {
				return err
			}
			fmt.Println(signed)
			return nil
		},
	}
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "cli", "token subject (user id)")
	tokenCmd.Flags().StringVar(&tokenTTL, "ttl", "720h", "token lifetime")

	root.AddCommand(serve, mcpCmd, migrateCmd, tokenCmd)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
