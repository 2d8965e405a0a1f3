package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"comicvault/internal/archive"
	"comicvault/internal/config"
	"comicvault/internal/ingest"
	"comicvault/internal/library"
	"comicvault/internal/logging"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	store  *library.Store
	logger *slog.Logger
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
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

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

// openStore opens the library once per invocation.
func (c *commandContext) openStore() (*library.Store, error) {
	if c.store != nil {
		return c.store, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	store, err := library.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open library: %w", err)
	}
	c.store = store
	return store, nil
}

// newLogger builds the configured logger for commands that run stages.
// Read-only commands stay quiet.
func (c *commandContext) newLogger() (*slog.Logger, error) {
	if c.logger != nil {
		return c.logger, nil
	}
	logger, err := logging.NewFromConfig(c.configValue())
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	c.logger = logger
	return logger, nil
}

func (c *commandContext) registry() (*archive.Registry, error) {
	reg, err := archive.NewDefaultRegistry(c.configValue(), logging.NewNop())
	if err != nil {
		return nil, fmt.Errorf("archive bindings: %w", err)
	}
	return reg, nil
}

// withEngine builds the ingest engine and asks it to stop between chunks
// once the command context is cancelled by a signal.
func (c *commandContext) withEngine(cmd *cobra.Command, fn func(ctx context.Context, engine *ingest.Engine) error) error {
	store, err := c.openStore()
	if err != nil {
		return err
	}
	logger, err := c.newLogger()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	engine, err := ingest.NewEngine(ctx, c.configValue(), store, logger)
	if err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, engine.Stop)
	defer stop()
	return fn(ctx, engine)
}

func (c *commandContext) close() error {
	if c.store == nil {
		return nil
	}
	err := c.store.Close()
	c.store = nil
	return err
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid comic id %q", arg)
	}
	return id, nil
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
