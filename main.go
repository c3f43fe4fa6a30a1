package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"tradesim/config"
	"tradesim/internal/dashboard"
	"tradesim/internal/metrics"
	"tradesim/internal/publisher"
	"tradesim/logger"
	"tradesim/session"
	"tradesim/writer"
)

const defaultConfigPath = "config/config.yml"

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	symbol := flag.String("symbol", "", "Symbol for the auto-started session (overrides session.symbol)")
	autoStart := flag.Bool("autostart", false, "Start a session with the configured defaults on launch")
	flag.Parse()

	cfg, err := loadConfig(log, config.ResolveConfigPath(*configPath, defaultConfigPath))
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}
	if *symbol != "" {
		cfg.Session.Symbol = strings.TrimSpace(*symbol)
	}
	if *autoStart {
		cfg.Session.AutoStart = true
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithEnv("HOSTNAME", "LOG_LEVEL").WithFields(logger.Fields{
		"service":     cfg.Tradesim.Name,
		"version":     cfg.Tradesim.Version,
		"environment": config.AppEnvironment(),
	}).Info("starting tradesim")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if strings.EqualFold(cfg.Logging.Level, "report") {
		logger.StartReport(ctx, log, cfg.Logging.ReportInterval)
	}

	if cfg.Metrics.Prometheus {
		metrics.Init()
	}
	metrics.InitCloudWatch(ctx, cfg.Metrics.CloudWatch)

	sinks, err := buildSinks(ctx, cfg)
	if err != nil {
		log.WithError(err).Error("Failed to initialise result sinks")
		os.Exit(1)
	}

	sess := session.New(cfg)
	if cfg.Session.AutoStart {
		if err := sess.Start(ctx, session.DefaultSimulation(cfg)); err != nil {
			log.WithError(err).Error("Failed to start simulation session")
			os.Exit(1)
		}
	}

	dash, err := dashboard.NewServer(cfg, sess, log)
	if err != nil {
		log.WithError(err).Error("Failed to create dashboard")
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return publisher.NewPoller(cfg, sess, sinks...).Run(gctx)
	})
	if dash != nil {
		g.Go(func() error { return dash.Run(gctx) })
	} else if cfg.Metrics.Prometheus {
		g.Go(func() error { return metrics.Serve(gctx, cfg.Metrics.Address) })
	}

	log.Info("all components started successfully")

	err = g.Wait()
	sess.Stop()
	if err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Error("tradesim stopped with error")
		os.Exit(1)
	}
	log.Info("tradesim stopped")
}

// loadConfig falls back to built-in defaults when the file is missing, except
// in production-like environments.
func loadConfig(log *logger.Log, path string) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if err == nil {
		return cfg, nil
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) || config.IsProductionLike(config.AppEnvironment()) {
		return nil, err
	}
	log.WithFields(logger.Fields{"path": path}).Warn("config file not found; using built-in defaults")
	cfg = config.Default()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func buildSinks(ctx context.Context, cfg *config.Config) ([]writer.ResultSink, error) {
	var sinks []writer.ResultSink
	if cfg.Redis.Enabled {
		client, err := writer.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, writer.NewRedisWriter(client, cfg.Redis))
	}
	if cfg.Kafka.Enabled {
		kw, err := writer.NewKafkaWriter(cfg.Kafka)
		if err != nil {
			for _, s := range sinks {
				_ = s.Close()
			}
			return nil, err
		}
		sinks = append(sinks, kw)
	}
	return sinks, nil
}
