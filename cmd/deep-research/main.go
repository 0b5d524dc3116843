// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the deep-research CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/deep-research/internal/app"
	"github.com/pdiddy/deep-research/internal/secrets"
	"github.com/pdiddy/deep-research/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// shutdownTimeout bounds how long running tasks may finish after the
// command is done or interrupted.
const shutdownTimeout = 30 * time.Second

// rootCmd is the base command for the deep-research CLI.
var rootCmd = &cobra.Command{
	Use:   "deep-research",
	Short: "Multi-engine search and iterative research with cited answers",
	Long: `deep-research answers open-ended questions by decomposing them, searching
several engines at once (SearXNG, Wikipedia, arXiv, Semantic Scholar, OpenAlex,
DuckDuckGo, Brave, GitHub), and synthesizing a cited answer with a language
model.

Research runs as a task on a small worker pool. Task state is kept in a
SQLite database so it can be listed, inspected and resumed later.`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default: ./deep-research.yaml or ~/.config/deep-research/config.yaml)")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.Bool("log-json", false, "log as JSON instead of console text")
	pf.String("secrets-dir", ".secrets", "directory of API key files")
	pf.String("store", "", "task database path (default data/research.db)")
	pf.String("redis", "", "Redis address for the live progress feed")
	pf.String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")

	bind := map[string]string{
		"log.level":           "log-level",
		"log.json":            "log-json",
		"secrets_dir":         "secrets-dir",
		"store.path":          "store",
		"progress.redis_addr": "redis",
		"metrics.addr":        "metrics-addr",
	}
	for key, flag := range bind {
		if err := viper.BindPFlag(key, pf.Lookup(flag)); err != nil {
			panic(err)
		}
	}
}

func initConfig() {
	app.SetDefaults(viper.GetViper())

	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("deep-research")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "deep-research"))
		}
	}

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig builds the logger and the component configuration, with
// credentials from the secrets directory.
func loadConfig() (types.Config, *zap.Logger, error) {
	v := viper.GetViper()
	logger, err := app.NewLogger(v.GetString("log.level"), v.GetBool("log.json"))
	if err != nil {
		return types.Config{}, nil, err
	}
	s, err := secrets.Load(v.GetString("secrets_dir"), logger)
	if err != nil {
		return types.Config{}, nil, err
	}
	if len(s) > 0 {
		logger.Info("loaded secrets", zap.Strings("keys", secrets.Names(s)))
	}
	cfg := app.LoadConfig(v)
	app.ApplySecrets(&cfg, v, s)
	return cfg, logger, nil
}

// setup builds the application for one command. The returned func closes
// it, giving running tasks shutdownTimeout to finish.
func setup(cmd *cobra.Command, opts app.Options) (*app.App, func(), error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	a, err := app.New(cmd.Context(), cfg, logger, opts)
	if err != nil {
		return nil, nil, err
	}

	var srv *http.Server
	if addr := viper.GetString("metrics.addr"); addr != "" {
		srv = &http.Server{Addr: addr, Handler: a.Metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", zap.String("addr", addr), zap.Error(err))
			}
		}()
		logger.Info("serving metrics", zap.String("addr", addr))
	}

	return a, func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if srv != nil {
			srv.Shutdown(ctx)
		}
		if err := a.Close(ctx); err != nil {
			logger.Warn("shutdown incomplete", zap.Error(err))
		}
	}, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
