// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/javajoker/imi-licensing/internal/config"
	"github.com/javajoker/imi-licensing/internal/database"
	"github.com/javajoker/imi-licensing/internal/i18n"
	"github.com/javajoker/imi-licensing/internal/middleware"
	"github.com/javajoker/imi-licensing/internal/router"
	"github.com/javajoker/imi-licensing/internal/services"
	"github.com/javajoker/imi-licensing/internal/utils"
)

func main() {
	app := cli.NewApp()
	app.Name = "ip-licensing"
	app.Usage = "IP licensing and royalty server"
	app.Action = serve
	app.Commands = []*cli.Command{
		{
			Action:      serve,
			Name:        "serve",
			Usage:       "Start the HTTP API",
			Description: `Loads configuration from the environment (and .env), migrates the ledger, bootstraps the protocol modules and serves the API.`,
		},
		{
			Action: migrate,
			Name:   "migrate",
			Usage:  "Run database migrations and exit",
		},
		{
			Action:    issueToken,
			Name:      "token",
			Usage:     "Issue a bearer token for an account",
			ArgsUsage: "--address <0x...>",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "address", Required: true, Usage: "account the token authenticates"},
				&cli.IntFlag{Name: "ttl", Usage: "token lifetime in hours (defaults to JWT_ACCESS_TTL)"},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func serve(cctx *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	configureLogging(cfg)

	db, err := database.Initialize(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close(db)

	if err := database.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := i18n.Initialize(cfg.I18n.DefaultLocale); err != nil {
		return fmt.Errorf("failed to initialize i18n: %w", err)
	}

	protocol := services.NewProtocol(db, cfg, nil)
	if err := protocol.Bootstrap(cctx.Context); err != nil {
		return fmt.Errorf("failed to bootstrap protocol: %w", err)
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(cctx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	middleware.RunLimiters(ctx)
	r := router.Initialize(protocol, cfg)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("Server exited")
	return nil
}

func migrate(cctx *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	configureLogging(cfg)

	db, err := database.Initialize(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close(db)

	if err := database.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Println("Migrations complete")
	return nil
}

func issueToken(cctx *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	address := cctx.String("address")
	if !common.IsHexAddress(address) {
		return fmt.Errorf("invalid address %q", address)
	}
	ttl := cctx.Int("ttl")
	if ttl <= 0 {
		ttl = cfg.JWT.AccessTokenTTL
	}

	utils.SetJWTSecret(cfg.JWT.SecretKey)
	token, err := utils.GenerateJWT(common.HexToAddress(address), ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(cctx.App.Writer, token)
	return nil
}

func configureLogging(cfg *config.Config) {
	if cfg.Environment == "production" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
		logrus.SetLevel(logrus.InfoLevel)
		return
	}
	logrus.SetLevel(logrus.DebugLevel)
}
