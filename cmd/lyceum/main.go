// Command lyceum serves the query expansion engine as an MCP server over
// stdio.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/candlelight-ai/lyceum"
	"github.com/candlelight-ai/lyceum/common/logger"
	"github.com/candlelight-ai/lyceum/config"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to the yaml configuration file")
		env        = flag.String("env", "prod", "runtime environment (prod, dev, local, docker)")
		logLevel   = flag.String("log-level", "", "override the log level (debug, info, warn, error)")
	)
	flag.Parse()

	if err := run(*configPath, *env, *logLevel); err != nil {
		fmt.Fprintf(os.Stderr, "lyceum: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, env, logLevel string) error {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	log, err := logger.New(env, logLevel)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck

	if cfg.Metrics.Addr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil {
				log.Warn("metrics listener stopped", zap.Error(err))
			}
		}()
		log.Info("serving prometheus metrics", zap.String("addr", cfg.Metrics.Addr))
	}

	client, err := lyceum.New(context.Background(), cfg, lyceum.WithLogger(log))
	if err != nil {
		return err
	}
	defer client.Close() //nolint:errcheck

	log.Info("starting mcp server on stdio",
		zap.String("version", lyceum.Version),
		zap.Strings("methods", cfg.Expansion.Methods))
	return lyceum.ServeStdio(client)
}
