// Command zenqueue-httpd runs ZenQueue's optional HTTP adapter:
// a thin POST-per-action mapping of the same RPC onto request bodies,
// sharing nothing with the native server except the in-process queue and
// dispatcher it's built from — run it standalone, pointed at its own Queue.
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
	"github.com/zenqueue/zenqueue/internal/httpapi"
	"github.com/zenqueue/zenqueue/internal/metrics"
	"github.com/zenqueue/zenqueue/internal/queue"
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

	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).Level(level).With().Timestamp().Logger()

	q := queue.New()

	reg := prometheus.NewRegistry()
	recorder := metrics.New(reg)

	mux := http.NewServeMux()
	mux.Handle("/", httpapi.NewHandler(q, recorder, log))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	httpSrv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for range ticker.C {
			recorder.SetDepths(q)
		}
	}()

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("zenqueue-httpd starting")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("fatal server error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Info().Msg("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
		return 1
	}
	log.Info().Msg("zenqueue-httpd stopped gracefully")
	return 0
}

func parseFlags() (config.Config, error) {
	configPath := flag.String("config", "", "path to a YAML config file (optional)")
	iface := flag.String("interface", "", "bind interface (shorthand -i)")
	flag.StringVar(iface, "i", "", "bind interface (shorthand for -interface)")
	port := flag.Int("port", 0, "bind port (shorthand -p)")
	flag.IntVar(port, "p", 0, "bind port (shorthand for -port)")
	logLevel := flag.String("log-level", "", "log level: DEBUG, INFO, WARN, ERROR, SILENT (shorthand -l)")
	flag.StringVar(logLevel, "l", "", "log level (shorthand for -log-level)")
	flag.Parse()

	defaults := config.Defaults()
	defaults.Port = config.DefaultHTTPPort // native and HTTP default ports differ
	cfg, err := config.LoadWithDefaults(*configPath, defaults)
	if err != nil {
		return config.Config{}, err
	}

	if *iface != "" {
		cfg.Interface = *iface
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}
