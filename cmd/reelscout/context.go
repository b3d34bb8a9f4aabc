package main

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"reelscout/internal/api"
	"reelscout/internal/config"
	"reelscout/internal/enricher"
	"reelscout/internal/fetcher"
	"reelscout/internal/logging"
	"reelscout/internal/sources/justwatch"
	"reelscout/internal/sources/letterboxd"
	"reelscout/internal/store"
	"reelscout/internal/syncer"
)

type commandContext struct {
	configFlag *string
	verbose    *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string, verbose *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		verbose:    verbose,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) cliLogger() *slog.Logger {
	verbose := c.verbose != nil && *c.verbose
	logger, err := logging.NewCLI(c.config, verbose)
	if err != nil {
		return logging.NewNop()
	}
	return logger
}

// withStore opens the cache store for the duration of fn.
func (c *commandContext) withStore(fn func(*config.Config, *store.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg)
	if err != nil {
		return fmt.Errorf("open cache store: %w", err)
	}
	defer st.Close()
	return fn(cfg, st)
}

func (c *commandContext) apiClient() (*api.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Paths.APIBind == "" {
		return nil, fmt.Errorf("%w: paths.api_bind is empty", api.ErrDaemonUnavailable)
	}
	return api.NewClient(cfg.Paths.APIBind, cfg.Paths.APIToken), nil
}

// newOrchestrator wires the production sources into a sync orchestrator.
func newOrchestrator(cfg *config.Config, st *store.Store, logger *slog.Logger) (*syncer.Orchestrator, error) {
	catalogClient, err := justwatch.New(cfg.Catalog.BaseURL, time.Duration(cfg.Catalog.TimeoutSeconds)*time.Second)
	if err != nil {
		return nil, fmt.Errorf("catalog client: %w", err)
	}
	ratingsClient, err := letterboxd.New(cfg.Ratings.BaseURL, cfg.Ratings.UserAgent, time.Duration(cfg.Ratings.TimeoutSeconds)*time.Second)
	if err != nil {
		return nil, fmt.Errorf("ratings client: %w", err)
	}
	f := fetcher.NewFromConfig(cfg, catalogClient, logger)
	e := enricher.NewFromConfig(cfg, ratingsClient, st, logger)
	return syncer.New(cfg, st, f, e, logger), nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
