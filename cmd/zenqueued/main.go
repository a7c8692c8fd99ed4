// Command zenqueued runs ZenQueue's native line-delimited RPC server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/zenqueue/zenqueue/internal/config"
	"github.com/zenqueue/zenqueue/internal/metrics"
	"github.com/zenqueue/zenqueue/internal/queue"
	"github.com/zenqueue/zenqueue/internal/server"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	log, err := setupLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	q := queue.New()

	reg := prometheus.NewRegistry()
	recorder := metrics.New(reg)
	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, reg, log)
		go pollDepthGauges(recorder, q)
	}

	limiter := server.NewAcceptLimiter(cfg.AcceptRate, cfg.AcceptBurst)
	srv := server.NewServer(q, cfg.MaxConnections, log, recorder)
	srv.Limiter = limiter
	srv.ShutdownTimeout = cfg.ShutdownTimeout

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("shutdown signal received")
		cancel()
	}()

	log.Info().Str("addr", cfg.Addr()).Msg("zenqueued starting")
	if err := srv.Serve(ctx, cfg.Addr()); err != nil {
		log.Error().Err(err).Msg("fatal server error")
		return 1
	}
	return 0
}

// parseFlags applies CLI flags on top of a YAML file and environment
// variables, in that precedence order (CLI wins).
func parseFlags() (config.Config, error) {
	configPath := flag.String("config", "", "path to a YAML config file (optional)")
	iface := flag.String("interface", "", "bind interface (shorthand -i)")
	flag.StringVar(iface, "i", "", "bind interface (shorthand for -interface)")
	port := flag.Int("port", 0, "bind port (shorthand -p)")
	flag.IntVar(port, "p", 0, "bind port (shorthand for -port)")
	maxConns := flag.Int("max-connections", 0, "maximum concurrent connections (shorthand -c)")
	flag.IntVar(maxConns, "c", 0, "maximum concurrent connections (shorthand for -max-connections)")
	logLevel := flag.String("log-level", "", "log level: DEBUG, INFO, WARN, ERROR, SILENT (shorthand -l)")
	flag.StringVar(logLevel, "l", "", "log level (shorthand for -log-level)")
	acceptRate := flag.Float64("accept-rate", -1, "connections/sec admission cap, <= 0 disables it")
	metricsAddr := flag.String("metrics-addr", "", "address to serve /metrics on, empty disables it")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return config.Config{}, err
	}

	if *iface != "" {
		cfg.Interface = *iface
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *maxConns != 0 {
		cfg.MaxConnections = *maxConns
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *acceptRate >= 0 {
		cfg.AcceptRate = *acceptRate
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func setupLogger(levelName string) (zerolog.Logger, error) {
	level, err := config.ParseLogLevel(levelName)
	if err != nil {
		return zerolog.Logger{}, err
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
		Level(level).
		With().Timestamp().Logger(), nil
}

func serveMetrics(addr string, reg *prometheus.Registry, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	log.Info().Str("addr", addr).Msg("metrics endpoint listening")
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("metrics server failed")
	}
}

func pollDepthGauges(recorder *metrics.Recorder, q *queue.Queue) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for range ticker.C {
		recorder.SetDepths(q)
	}
}
