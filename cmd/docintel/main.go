package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/docintel/internal/config"
	"github.com/cuongbtq/docintel/internal/jobclient"
	"github.com/cuongbtq/docintel/internal/tracker"
	"github.com/cuongbtq/docintel/shared/logger"
	"github.com/joho/godotenv"
)

const usage = `usage:
  docintel [-config path] pdf <document-id> [page...]
  docintel [-config path] video <document-id> [voice]
  docintel [-config path] youtube <url>
  docintel [-config path] chat <session-id> <question>`

var errUsage = errors.New(usage)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Println("Failed to read .env file:", err)
	}

	defaultConfigPath := os.Getenv("DOCINTEL_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/docintel/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Usage = func() { fmt.Fprintln(flag.CommandLine.Output(), usage) }
	flag.Parse()

	args := flag.Args()
	if len(args) < 2 {
		return errUsage
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateClientConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := logger.New(&logger.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		Output:       cfg.Logging.Output,
		EnableSource: cfg.Logging.EnableCaller,
		NoColor:      cfg.Logging.NoColor,
		TimeFormat:   time.TimeOnly,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	client, err := jobclient.NewClient(&jobclient.Config{
		BaseURL: cfg.Client.BaseURL,
		Timeout: cfg.Client.Timeout,
		Tokens:  jobclient.StaticToken(os.Getenv(cfg.Client.TokenEnv)),
		Logger:  appLogger.Logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := &cli{
		cfg:    cfg,
		client: client,
		out:    os.Stdout,
		trackerOpts: tracker.Options{
			MaxFailures:    cfg.Jobs.MaxFailures,
			FailureWindow:  cfg.Jobs.FailureWindow,
			RequestTimeout: cfg.Jobs.RequestTimeout,
			Logger:         appLogger.Logger,
		},
	}

	switch args[0] {
	case "pdf", "video", "youtube":
		return app.runJob(ctx, args[0], args[1:])
	case "chat":
		if len(args) < 3 {
			return errUsage
		}
		return app.runChat(ctx, args[1], args[2:])
	default:
		return errUsage
	}
}
