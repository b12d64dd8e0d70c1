// Command famguardd serves the famguard access-control API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrEthical07/famguard"
	"github.com/MrEthical07/famguard/internal/audit"
	"github.com/MrEthical07/famguard/internal/httpapi"
	"github.com/MrEthical07/famguard/notify"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var configPath, envPath, listen string
	flagSet := pflag.NewFlagSet("famguardd", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "famguard.yaml", "path to the YAML config file")
	flagSet.StringVar(&envPath, "env-file", ".env", "dotenv file loaded before reading the environment")
	flagSet.StringVar(&listen, "listen", "", "listen address, overrides the config file")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	// A missing .env is fine in production.
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", envPath, err)
	}

	fc, err := loadFile(configPath)
	if err != nil {
		return err
	}
	fc.applyEnv()
	if listen != "" {
		fc.Listen = listen
	}
	if fc.Listen == "" {
		fc.Listen = ":8080"
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: fc.logLevel()}))
	slog.SetDefault(logger)

	cfg, err := fc.engineConfig()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	builder := famguard.New().WithConfig(cfg).WithLogger(logger)

	if fc.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: fc.Redis.Addr, Password: fc.Redis.Password, DB: fc.Redis.DB})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			// The engine degrades without redis; start anyway.
			logger.Warn("redis unreachable at startup", "addr", fc.Redis.Addr, "error", err)
		}
		builder.WithRedis(rdb)
	} else {
		logger.Warn("no redis configured, blacklist and throttles are per instance")
	}

	if fc.Alerts.From != "" {
		ses, err := notify.NewSESNotifier(ctx, fc.Alerts.SESRegion, fc.Alerts.From, fc.Alerts.FromName)
		if err != nil {
			return err
		}
		builder.WithNotifier(ses)
	}

	if fc.AuditLog != "" {
		f, err := os.OpenFile(fc.AuditLog, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("open audit log: %w", err)
		}
		defer f.Close()
		builder.WithAuditSink(audit.NewJSONWriterSink(f))
	}

	engine, err := builder.Build(ctx)
	if err != nil {
		return err
	}
	defer engine.Close()

	srv := &http.Server{
		Addr:              fc.Listen,
		Handler:           httpapi.New(engine, httpapi.Options{TrustProxy: fc.TrustProxy, Logger: logger}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("famguardd listening", "addr", fc.Listen, "database", cfg.Database.Type)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
