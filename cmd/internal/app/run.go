package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/Emjay-16/aqi-project/cmd/internal/migrations"
)

const usage = `usage: aqi [command]

commands:
  serve     run the HTTP server (default)
  migrate   apply database migrations and exit
  help      show this message
`

// ErrUsage reports an unknown command line.
var ErrUsage = errors.New("usage")

// Run is the CLI entrypoint used by cmd/aqi.
// It returns an error instead of calling os.Exit to keep defers effective and lint clean.
func Run(args []string, stdout io.Writer) error {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cmd := "serve"
	if len(args) > 0 {
		cmd = strings.TrimSpace(args[0])
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch cmd {
	case "serve":
		return serve(ctx)
	case "migrate":
		return migrate(ctx)
	case "help", "-h", "--help":
		_, _ = io.WriteString(stdout, usage)
		return nil
	default:
		_, _ = io.WriteString(stdout, usage)
		return fmt.Errorf("%w: unknown command %q", ErrUsage, cmd)
	}
}

func serve(ctx context.Context) error {
	cfg := LoadConfig()
	log := NewLogger(cfg.LogLevel, cfg.LogFormat, cfg.LogColor)

	a, err := New(ctx, cfg, log)
	if err != nil {
		log.Error("server.init.fail", "err", err)
		return err
	}
	return a.Run(ctx)
}

func migrate(ctx context.Context) error {
	cfg := LoadConfig()
	log := NewLogger(cfg.LogLevel, cfg.LogFormat, cfg.LogColor)

	if cfg.DatabaseURL == "" {
		return errors.New("migrate: AQI_DATABASE_URL is required")
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		log.Error("db.migrate.fail", "err", err)
		return err
	}
	defer pool.Close()

	if err := migrations.UpPool(ctx, pool); err != nil {
		log.Error("db.migrate.fail", "err", err)
		return err
	}
	log.Info("db.migrate.ok")
	return nil
}
