package main

import (
	"context"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"callaudit/internal/config"
	"callaudit/internal/daemonctl"
	"callaudit/internal/ledger"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
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

// dialClient returns a daemon client when the daemon API answers, nil
// otherwise.
func (c *commandContext) dialClient(ctx context.Context) *daemonctl.Client {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil
	}
	client, err := daemonctl.New(cfg)
	if err != nil {
		return nil
	}
	if err := client.Ping(ctx); err != nil {
		return nil
	}
	return client
}

// withFacade runs fn against the daemon API when the daemon is reachable,
// falling back to direct ledger access otherwise.
func (c *commandContext) withFacade(ctx context.Context, fn func(callAPI) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}

	if client := c.dialClient(ctx); client != nil {
		return fn(&clientFacade{client: client})
	}

	store, err := ledger.OpenFromDir(cfg.Paths.LogDir)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(newStoreFacade(cfg, store))
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
